/*
Package handlers 提供 LeadFlow HTTP API 的请求处理器实现。

# 核心类型

  - ChatHandler：对话轮次，POST /chat/{session_id} 与 /ws/chat/{session_id}
  - WorkflowHandler：以给定消息运行一次 leadbot → emailagent 工作流
  - CampaignHandler：对全部线索执行批量发信，同一时间只允许一次
  - HealthHandler：根路径、存活、就绪与版本信息
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

# 约定

/chat 成功时返回扁平的 ChatReply，其余端点使用 Response 包装。
错误统一经 WriteError 输出，状态码由 types.StatusFor 决定。
同一会话的并发请求由 session.Locker 串行化。
*/
package handlers
