/*
包 database 负责打开 SQL 线索库并管理连接池。

Open 根据 config.DatabaseConfig 选择 GORM dialector（postgres、mysql，
或基于 glebarez/sqlite 的纯 Go SQLite），返回的 PoolManager 负责：

  - 连接池参数（SQLite 固定单连接）
  - 后台 Ping 探活，并通过 StatsRecorder 上报连接数
  - WithTransaction / WithTransactionRetry，后者对死锁、序列化失败、
    断连与 "database is locked" 使用 llm/retry 的指数退避
*/
package database
