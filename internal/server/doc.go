/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供
    Start / Shutdown / Run / WaitForShutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、请求头上限与关闭超时。
    FromServerConfig 与 MetricsConfig 从 LeadFlow 配置派生 API
    端口与独立指标端口的配置。

# 主要能力

  - 非阻塞启动：Start 先同步监听，失败立即返回，再在后台 goroutine 中服务。
    端口为 0 时 BoundAddr 返回实际监听地址。
  - 优雅关闭：Shutdown 在配置的超时内排空请求。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM。
  - 错误传播：Errors() 返回异步错误通道。
*/
package server
