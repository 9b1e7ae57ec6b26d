// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 HTTP 中间件与工作流节点提供全局 TracerProvider / MeterProvider。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
