/*
Package config 提供 LeadFlow 的配置加载。

配置优先级：默认值 → YAML 文件 → 旧部署环境变量（OPENAI_API_KEY、
GMAIL_USER、GMAIL_PASS、GOOGLE_APPLICATION_CREDENTIALS_BASE64）→
LEADFLOW_* 前缀环境变量。加载完成后调用 Config.Validate 做整体校验。
*/
package config
