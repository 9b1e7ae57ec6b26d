// Package tlsutil 提供集中式 TLS 配置，
// 为 LLM HTTP 客户端、Google API 客户端、SMTP 与 Redis 连接提供 TLS 1.2+、仅 AEAD 密码套件的设置。
package tlsutil
