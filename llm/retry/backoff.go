package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/BaSui01/wonderland/llm"
	"go.uber.org/zap"
)

// Policy 定义重试策略配置
// 延迟 = BaseDelay * 2^(attempt-1)，Provider 给出 retry-after 时取两者较大值
type Policy struct {
	MaxRetries  int                                               `json:"max_retries" yaml:"max_retries"` // 最大重试次数（0 表示只尝试一次）
	BaseDelay   time.Duration                                     `json:"base_delay" yaml:"base_delay"`   // 第一次重试前的等待
	MaxDelay    time.Duration                                     `json:"max_delay" yaml:"max_delay"`     // 指数部分上限，0 表示不限；不会压低 retry-after
	ShouldRetry func(err error) bool                              `json:"-" yaml:"-"`                     // 为空时使用 llm.IsRetryable
	OnRetry     func(attempt int, err error, delay time.Duration) `json:"-" yaml:"-"`                     // 重试回调
}

// DefaultPolicy 返回默认的重试策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Delay 计算第 attempt 次重试（从 1 开始）前的等待时间。
// retryAfter 是 Provider 要求的最短等待，0 表示没有提示。
func (p Policy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(math.MaxInt64)
	if exp := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)); exp < math.MaxInt64 {
		delay = time.Duration(exp)
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

// Retryer 重试器接口
// 提供统一的重试能力
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error

	// DoWithResult 执行函数并返回结果，失败时根据策略重试
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy Policy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy Policy, logger *zap.Logger) Retryer {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay < 0 {
		policy.BaseDelay = 0
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = llm.IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backoffRetryer{
		policy: policy,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
// 不可重试的错误立即返回；次数耗尽时原样返回最后一次错误
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		// 第一次执行不延迟
		if attempt > 0 {
			retryAfter := time.Duration(llm.RetryAfterOf(lastErr)) * time.Second
			delay := r.policy.Delay(attempt, retryAfter)

			r.logger.Warn("retrying after failure",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			if err := sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("retry canceled: %w", err)
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if !r.policy.ShouldRetry(err) {
			r.logger.Debug("错误不可重试", zap.Error(err))
			return nil, err
		}
	}

	r.logger.Warn("重试次数耗尽",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

// Run 是 DoWithResult 的泛型版本，省去调用方的类型断言
func Run[T any](ctx context.Context, r Retryer, fn func() (T, error)) (T, error) {
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// sleep 等待 d，同时监听 context 取消
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
