// Package circuitbreaker 提供连续失败计数熔断器。
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 正常放行
	StateClosed State = iota
	// StateOpen 熔断中
	StateOpen
	// StateHalfOpen 试探性恢复
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls in half-open state")
)

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值
	Threshold int
	// ResetTimeout Open -> HalfOpen 的等待时间
	ResetTimeout time.Duration
	// HalfOpenMaxCalls 半开状态下允许的并发试探数
	HalfOpenMaxCalls int
	// IsFailure 判断错误是否计入失败，nil 表示所有错误都计入
	IsFailure func(err error) bool
	// OnStateChange 状态变更回调（同步调用，不要阻塞）
	OnStateChange func(from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker 熔断器
type Breaker struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	halfOpenInFlight int
}

// New 创建熔断器
func New(cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{cfg: cfg, logger: logger, now: time.Now, state: StateClosed}
}

// Call 在熔断器保护下执行 fn
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call 在熔断器保护下执行带返回值的 fn
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.beforeCall(); err != nil {
		return zero, err
	}
	result, err := fn(ctx)
	b.afterCall(err)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// State 当前状态（Open 超过 ResetTimeout 仍报告 Open，直到下一次调用）
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpenInFlight = 0
	b.setState(StateClosed)
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.halfOpenInFlight = 0
		fallthrough
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenInFlight++
	}
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err))

	if b.state == StateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if !failed {
		if b.state == StateHalfOpen {
			b.logger.Info("circuit breaker recovered")
			b.setState(StateClosed)
		}
		b.failures = 0
		return
	}

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.Threshold {
			b.logger.Warn("circuit breaker opened",
				zap.Int("failures", b.failures),
				zap.Int("threshold", b.cfg.Threshold),
				zap.Error(err),
			)
			b.trip()
		}
	case StateHalfOpen:
		b.logger.Warn("circuit breaker probe failed, reopening", zap.Error(err))
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.setState(StateOpen)
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
