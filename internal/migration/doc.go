/*
包 migration 管理线索库的 Schema 版本，基于 golang-migrate。

每种方言（postgres、mysql、sqlite）的 SQL 文件通过 embed 内嵌在
migrations/<dialect>/ 下，文件名形如 000001_create_leads.up.sql，
up/down 成对出现。SQLMigrator 通过 iofs 源驱动加载它们；
CLI 为 `leadflow migrate up|down|steps|force|version|status` 提供输出。

sqlite 方言使用 golang-migrate 的 sqlite3 驱动（database/sql 名称
"sqlite3"），与应用运行期的纯 Go "sqlite" 驱动互不冲突。
*/
package migration
