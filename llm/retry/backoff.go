// Package retry 提供指数退避重试。
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy 重试策略
type Policy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 初始延迟
	MaxDelay     time.Duration // 最大延迟
	Multiplier   float64       // 退避倍数
	Jitter       bool          // ±25% 随机抖动
	// ShouldRetry 判断错误是否可重试，nil 表示所有错误都重试
	ShouldRetry func(err error) bool
	// OnRetry 每次重试前回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回适用于 LLM API 调用的默认策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 指数退避重试器
type Retryer struct {
	policy Policy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New 创建重试器，非法参数回落到默认值
func New(policy Policy, logger *zap.Logger) *Retryer {
	def := DefaultPolicy()
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = def.InitialDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = def.Multiplier
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger, sleep: sleepCtx}
}

// Policy 返回生效的策略
func (r *Retryer) Policy() Policy { return r.policy }

// Do 执行 fn，失败时按策略重试
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do 执行带返回值的 fn，失败时按策略重试
func Do[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.Delay(attempt)
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			if err := r.sleep(ctx, delay); err != nil {
				return zero, fmt.Errorf("retry cancelled: %w", err)
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if !r.retryable(err) {
			return zero, err
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return zero, fmt.Errorf("failed after %d attempts: %w", r.policy.MaxRetries+1, lastErr)
}

// Delay 计算第 attempt 次重试前的等待时间
func (r *Retryer) Delay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}

func (r *Retryer) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.policy.ShouldRetry == nil {
		return true
	}
	return r.policy.ShouldRetry(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
