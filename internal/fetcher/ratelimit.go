package fetcher

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 按秒、分钟、小时三个窗口计数的限流器
type RateLimiter struct {
	mu                sync.Mutex
	secCount          int
	minCount          int
	hrCount           int
	secReset          time.Time
	minReset          time.Time
	hrReset           time.Time
	requestsPerSecond int
	requestsPerMinute int
	requestsPerHour   int
	pollInterval      time.Duration
}

// NewRateLimiter 创建限流器
func NewRateLimiter(requestsPerSecond, requestsPerMinute, requestsPerHour int) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		secReset:          now.Add(time.Second),
		minReset:          now.Add(time.Minute),
		hrReset:           now.Add(time.Hour),
		requestsPerSecond: requestsPerSecond,
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		pollInterval:      50 * time.Millisecond,
	}
}

// Wait 阻塞直到允许发出下一个请求，或 ctx 结束
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.tryAcquire() {
			return nil
		}

		select {
		case <-time.After(r.pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tryAcquire 检查与计数在同一把锁内完成
func (r *RateLimiter) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetIfNeeded(time.Now())

	if r.secCount >= r.requestsPerSecond ||
		r.minCount >= r.requestsPerMinute ||
		r.hrCount >= r.requestsPerHour {
		return false
	}

	r.secCount++
	r.minCount++
	r.hrCount++
	return true
}

func (r *RateLimiter) resetIfNeeded(now time.Time) {
	if now.After(r.secReset) {
		r.secCount = 0
		r.secReset = now.Add(time.Second)
	}
	if now.After(r.minReset) {
		r.minCount = 0
		r.minReset = now.Add(time.Minute)
	}
	if now.After(r.hrReset) {
		r.hrCount = 0
		r.hrReset = now.Add(time.Hour)
	}
}
