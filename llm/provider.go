package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/technosurge/leadflow/types"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"  // 参数/格式错误
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"     // 未授权或密钥失效
	ErrForbidden       ErrorCode = "LLM_FORBIDDEN"        // 权限或内容策略拒绝
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"     // 上游或本地限流
	ErrQuotaExceeded   ErrorCode = "LLM_QUOTA_EXCEEDED"   // 额度/配额用尽
	ErrModelOverloaded ErrorCode = "LLM_MODEL_OVERLOADED" // 模型过载/熔断
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT" // 上游超时
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"   // 上游 5xx/网络错误
	ErrEmptyResponse   ErrorCode = "LLM_EMPTY_RESPONSE"   // 没有可用的 choice
)

// Error LLM 调用错误
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// IsClientError 判断是否为调用方错误（不计入熔断失败）
func IsClientError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrInvalidRequest, ErrUnauthorized, ErrForbidden, ErrQuotaExceeded:
		return true
	}
	return false
}

// IsRetryable 判断 LLM 错误是否值得重试
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return types.IsRetryable(err)
}

// ResponseFormat 输出格式约束
type ResponseFormat string

const (
	FormatText ResponseFormat = ""
	FormatJSON ResponseFormat = "json_object"
)

// ChatRequest 聊天请求
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []types.Message `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float32         `json:"temperature,omitempty"`
	ResponseFormat ResponseFormat  `json:"response_format,omitempty"`
	Timeout        time.Duration   `json:"timeout,omitempty"`
	// Purpose 调用用途，仅用于日志与指标（reply / extract / end_check / summary / email）
	Purpose string `json:"-"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Content 返回第一个 choice 的文本内容（去除首尾空白）
func (r *ChatResponse) Content() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", &Error{Code: ErrEmptyResponse, Message: "no choices in response"}
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 定义了统一的 LLM 适配接口。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级健康检查
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// Complete 便捷函数：发起请求并返回文本内容
func Complete(ctx context.Context, p Provider, req *ChatRequest) (string, error) {
	resp, err := p.Completion(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content()
}
