/*
Package types 提供 LeadFlow 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 agent、workflow、llm、api
等上层模块提供统一的类型契约：

  - Error / ErrorCode：结构化错误，含 HTTP 状态码与 Retryable 标记
  - Message / Role：对话消息
  - Lead / LeadStatus：潜在客户与邮件投递状态
  - Context 传播：WithRequestID / WithSessionID / WithTraceID
*/
package types
