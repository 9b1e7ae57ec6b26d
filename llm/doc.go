/*
Package llm 定义 LeadFlow 使用的统一 LLM 接口与调用弹性层。

# 核心类型

  - Provider：Completion / HealthCheck / Name 三个方法的适配接口
  - ChatRequest / ChatResponse：与 OpenAI chat completions 对齐的请求与响应
  - Error：带错误码的上游错误，IsRetryable / IsClientError 用于分类

# 弹性

ResilientProvider 在任意 Provider 外层叠加重试（retry 子包）
与熔断（circuitbreaker 子包），并把每次调用的耗时、token 与结果
上报给 Observer。客户端错误（4xx 中除 429 外）不重试，也不计入熔断。

# 子包

  - providers/openaicompat：OpenAI 兼容 HTTP 实现
  - tokenizer：基于 tiktoken 的 token 计数，用于对话记忆截断
  - retry / circuitbreaker：可独立使用的退避与熔断原语

DecodeJSON 用于解析 JSON 模式下的模型输出。
*/
package llm
