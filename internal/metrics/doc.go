/*
包 metrics 提供基于 Prometheus 的指标采集。

Collector 统一注册 HTTP、LLM、对话线索、邮件、工作流与数据库指标，
默认注册到 prometheus.DefaultRegisterer，测试或独立进程可通过
NewCollectorWithRegistry 传入自己的 Registry。

Collector 实现 llm.Observer，可直接交给 llm.ResilientProvider。
HTTP 状态码按 2xx/3xx/4xx/5xx 归类，避免 label 基数膨胀。
*/
package metrics
