package llm

import (
	"context"
	"errors"
	"time"

	"github.com/technosurge/leadflow/llm/circuitbreaker"
	"github.com/technosurge/leadflow/llm/retry"
	"go.uber.org/zap"
)

// Observer 接收每次 LLM 调用的结果，用于指标上报
type Observer interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// ResilientProvider 具有重试与熔断能力的 Provider 包装器
type ResilientProvider struct {
	provider Provider
	retryer  *retry.Retryer
	breaker  *circuitbreaker.Breaker
	observer Observer
	logger   *zap.Logger
}

// ResilientOption 配置 ResilientProvider
type ResilientOption func(*ResilientProvider)

// WithRetryer 设置重试器
func WithRetryer(r *retry.Retryer) ResilientOption {
	return func(rp *ResilientProvider) { rp.retryer = r }
}

// WithBreaker 设置熔断器
func WithBreaker(b *circuitbreaker.Breaker) ResilientOption {
	return func(rp *ResilientProvider) { rp.breaker = b }
}

// WithObserver 设置指标观察者
func WithObserver(o Observer) ResilientOption {
	return func(rp *ResilientProvider) { rp.observer = o }
}

// NewResilientProvider 包装底层 Provider
func NewResilientProvider(provider Provider, logger *zap.Logger, opts ...ResilientOption) *ResilientProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	rp := &ResilientProvider{
		provider: provider,
		logger:   logger.With(zap.String("component", "llm"), zap.String("provider", provider.Name())),
	}
	for _, opt := range opts {
		opt(rp)
	}
	return rp
}

// ShouldRetry 供 retry.Policy 使用的错误分类：熔断与调用方错误不重试
func ShouldRetry(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}

// CountsAsFailure 供 circuitbreaker.Config 使用：调用方错误不计入熔断
func CountsAsFailure(err error) bool {
	return !IsClientError(err)
}

// Completion 实现 Provider.Completion
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	call := func(ctx context.Context) (*ChatResponse, error) {
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		if rp.breaker != nil {
			return circuitbreaker.Call(ctx, rp.breaker, func(ctx context.Context) (*ChatResponse, error) {
				return rp.provider.Completion(ctx, req)
			})
		}
		return rp.provider.Completion(ctx, req)
	}

	var resp *ChatResponse
	var err error
	if rp.retryer != nil {
		resp, err = retry.Do(ctx, rp.retryer, call)
	} else {
		resp, err = call(ctx)
	}

	rp.observe(req, resp, err, time.Since(start))
	if err != nil {
		rp.logger.Warn("llm completion failed",
			zap.String("model", req.Model),
			zap.String("purpose", req.Purpose),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

// HealthCheck 实现 Provider.HealthCheck
func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if rp.breaker != nil && rp.breaker.State() == circuitbreaker.StateOpen {
		return &HealthStatus{Healthy: false}, circuitbreaker.ErrCircuitOpen
	}
	return rp.provider.HealthCheck(ctx)
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

func (rp *ResilientProvider) observe(req *ChatRequest, resp *ChatResponse, err error, d time.Duration) {
	if rp.observer == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	var prompt, completion int
	if resp != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	rp.observer.RecordLLMRequest(rp.provider.Name(), req.Model, status, d, prompt, completion)
}
