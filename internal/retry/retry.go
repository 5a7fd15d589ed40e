package retry

import (
	"context"
	"errors"
	"time"
)

// ErrPermanent 包装后表示不应重试的错误
var ErrPermanent = errors.New("permanent error")

// Permanent 标记错误不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
func (e *permanentError) Is(target error) bool {
	return target == ErrPermanent
}

// Retryer 有限次数重试，退避 = baseDelay × 2^n，上限 maxDelay
type Retryer struct {
	maxAttempts uint
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryer 创建重试器，maxAttempts 为总尝试次数（至少1次）
func NewRetryer(maxAttempts uint, baseDelay, maxDelay time.Duration) *Retryer {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	return &Retryer{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// Fixed 固定间隔的重试器
func Fixed(maxAttempts uint, delay time.Duration) *Retryer {
	return NewRetryer(maxAttempts, delay, delay)
}

// Attempts 总尝试次数
func (r *Retryer) Attempts() uint {
	return r.maxAttempts
}

// Do 执行 fn 直到成功、遇到不可重试错误、次数用尽或 ctx 结束；返回最后一次的错误
func (r *Retryer) Do(ctx context.Context, fn func(attempt uint) error) error {
	var lastErr error

	for attempt := uint(0); attempt < r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}
		lastErr = err

		if attempt+1 < r.maxAttempts {
			select {
			case <-time.After(r.calculateBackoff(attempt)):
			case <-ctx.Done():
				return lastErr
			}
		}
	}

	return lastErr
}

func (r *Retryer) calculateBackoff(attempt uint) time.Duration {
	delay := r.baseDelay * (1 << attempt)
	return min(delay, r.maxDelay)
}
