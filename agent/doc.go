/*
Package agent 提供 LeadFlow 中各个 Agent 共用的基础实现。

# 概述

BaseAgent 持有 Agent 身份（ID、名称、类型）、LLM Provider 与日志器，
并封装一次 LLM 调用的通用流程：构造请求、开启 span、记录耗时与错误。
具体的业务 Agent 位于子包中：

  - leadbot：对话获客，抽取联系方式、判断购买意向与对话结束
  - emailagent：根据线索摘要生成并发送营销邮件，支持批量发信

# 调用约定

模型取自 Agent 配置，温度与 token 上限由调用方按用途（Purpose）指定。
Purpose 会写入日志、span 属性与 LLM 指标标签。

需要结构化输出时使用 CompleteJSON，它以 JSON 模式请求模型，
并容忍代码块包裹与前后说明文字。
*/
package agent
