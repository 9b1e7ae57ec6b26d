/*
Package main 提供 LeadFlow 服务端程序入口。

# 子命令

  - serve：在 host:port（默认 0.0.0.0:8000）上挂载 --app 指定的应用
  - campaign：对线索存储中的全部线索执行一次批量发信
  - image：输出 Dockerfile，或经 Dagger 构建并推送镜像
  - migrate：数据库迁移（up/down/steps/force/version/status）
  - version / health / help

# 应用注册表

--app 取 module:attribute 形式，只注册了 workflow:app。
模块或属性不存在时进程以退出码 1 结束。

# 中间件链

Recovery → RequestID → OTelTracing → SecurityHeaders → Metrics →
RequestLogger → CORS → RateLimiter。管理接口额外经过 RequireAuth
（X-API-Key 或 HS256 Bearer Token）。

metrics_port 为 0 时 /metrics 挂在 API 端口上，默认只打开一个监听套接字。
*/
package main
