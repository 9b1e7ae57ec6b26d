// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 对话与线索
	chatTurnsTotal      *prometheus.CounterVec
	leadsSavedTotal     *prometheus.CounterVec
	leadStoreDuration   *prometheus.HistogramVec
	sessionsActive      prometheus.Gauge
	emailsTotal         *prometheus.CounterVec
	workflowRunsTotal   *prometheus.CounterVec
	workflowNodeLatency *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 在默认 Registry 上创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 在指定 Registerer 上创建指标收集器
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	f := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	c.httpRequestSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)
	c.llmRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
	c.llmTokensUsed = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 对话与线索
	c.chatTurnsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns handled by the lead bot, by outcome",
		},
		[]string{"outcome"}, // reply, confirm, saved, ended, error
	)
	c.leadsSavedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_saved_total",
			Help:      "Leads written to the lead store",
		},
		[]string{"backend", "status"},
	)
	c.leadStoreDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lead_store_operation_duration_seconds",
			Help:      "Lead store operation latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"backend", "operation"},
	)
	c.sessionsActive = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_sessions_active",
			Help:      "Chat sessions currently held by the session store",
		},
	)
	c.emailsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Follow-up emails by delivery outcome",
		},
		[]string{"status"}, // sent, failed, skipped
	)
	c.workflowRunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Workflow invocations by result",
		},
		[]string{"graph", "status"},
	)
	c.workflowNodeLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_node_duration_seconds",
			Help:      "Time spent in each workflow node",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"graph", "node", "status"},
	)

	// 数据库指标
	c.dbConnectionsOpen = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)
	c.dbQueryDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"database", "operation"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求，满足 llm.Observer
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🧲 线索与对话
// =============================================================================

// RecordChatTurn 记录一轮对话的结果
func (c *Collector) RecordChatTurn(outcome string) {
	c.chatTurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordLeadSaved 记录一次线索写入
func (c *Collector) RecordLeadSaved(backend, status string) {
	c.leadsSavedTotal.WithLabelValues(backend, status).Inc()
}

// RecordLeadStoreOp 记录线索存储操作耗时
func (c *Collector) RecordLeadStoreOp(backend, operation string, duration time.Duration) {
	c.leadStoreDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// SetActiveSessions 更新当前会话数
func (c *Collector) SetActiveSessions(n int) {
	c.sessionsActive.Set(float64(n))
}

// RecordEmail 记录邮件投递结果
func (c *Collector) RecordEmail(status string) {
	c.emailsTotal.WithLabelValues(status).Inc()
}

// =============================================================================
// 🔀 工作流
// =============================================================================

// RecordWorkflowRun 记录一次图执行
func (c *Collector) RecordWorkflowRun(graph, status string) {
	c.workflowRunsTotal.WithLabelValues(graph, status).Inc()
}

// RecordWorkflowNode 记录单个节点耗时
func (c *Collector) RecordWorkflowNode(graph, node, status string, duration time.Duration) {
	c.workflowNodeLatency.WithLabelValues(graph, node, status).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码归类
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
