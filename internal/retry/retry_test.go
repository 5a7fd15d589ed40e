package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryer(t *testing.T) {
	r := NewRetryer(3, 100*time.Millisecond, time.Second)
	assert.Equal(t, uint(3), r.Attempts())
	assert.Equal(t, 100*time.Millisecond, r.baseDelay)
	assert.Equal(t, time.Second, r.maxDelay)

	assert.Equal(t, uint(1), NewRetryer(0, 0, 0).Attempts())
}

func TestRetryer_SuccessOnFirstAttempt(t *testing.T) {
	called := 0
	err := Fixed(3, 10*time.Millisecond).Do(context.Background(), func(uint) error {
		called++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestRetryer_SuccessAfterRetries(t *testing.T) {
	var seen []uint
	err := Fixed(3, 5*time.Millisecond).Do(context.Background(), func(attempt uint) error {
		seen = append(seen, attempt)
		if attempt < 2 {
			return errors.New("temporary error")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{0, 1, 2}, seen)
}

func TestRetryer_AttemptsExhausted(t *testing.T) {
	expected := errors.New("persistent error")
	attempts := 0
	err := Fixed(3, 5*time.Millisecond).Do(context.Background(), func(uint) error {
		attempts++
		return expected
	})
	assert.Same(t, expected, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_PermanentStopsImmediately(t *testing.T) {
	cause := errors.New("bad request")
	attempts := 0
	err := Fixed(3, 5*time.Millisecond).Do(context.Background(), func(uint) error {
		attempts++
		return Permanent(cause)
	})
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Permanent(nil))
}

func TestRetryer_ContextCancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := 0
	err := Fixed(3, 10*time.Millisecond).Do(ctx, func(uint) error {
		called++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, called)
}

func TestRetryer_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	expected := errors.New("temporary error")
	attempts := 0
	err := Fixed(5, time.Second).Do(ctx, func(uint) error {
		attempts++
		return expected
	})
	assert.Same(t, expected, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryer_CalculateBackoff(t *testing.T) {
	r := NewRetryer(6, 100*time.Millisecond, time.Second)

	cases := []struct {
		attempt  uint
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, r.calculateBackoff(tc.attempt))
	}

	fixed := Fixed(3, time.Second)
	assert.Equal(t, time.Second, fixed.calculateBackoff(0))
	assert.Equal(t, time.Second, fixed.calculateBackoff(2))
}

func TestRetryer_FixedBackoffTiming(t *testing.T) {
	start := time.Now()
	_ = Fixed(3, 30*time.Millisecond).Do(context.Background(), func(uint) error {
		return errors.New("fail")
	})
	// 3次尝试之间有2次等待
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}
