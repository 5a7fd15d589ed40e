package notifier

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"alpha15-sentry/internal/retry"
	"alpha15-sentry/pkg/types"
)

// Dispatcher 向所有渠道投递信号，每个渠道独立重试
type Dispatcher struct {
	channels []Interface
	retryer  *retry.Retryer
	fallback *ConsoleNotifier
}

// NewDispatcher 创建投递器，maxAttempts 为每个渠道的总尝试次数，backoff 为固定间隔
func NewDispatcher(cfg types.NotifyConfig, channels ...Interface) *Dispatcher {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Dispatcher{
		channels: channels,
		retryer:  retry.Fixed(uint(attempts), backoff),
		fallback: NewConsoleNotifier(),
	}
}

// Notify 投递信号，至少一个渠道成功时返回true。全部失败只记录日志并降级为控制台输出
func (d *Dispatcher) Notify(ctx context.Context, signal *types.TradingSignal) bool {
	delivered := false

	for _, ch := range d.channels {
		err := d.retryer.Do(ctx, func(attempt uint) error {
			err := ch.Send(ctx, signal)
			if err != nil {
				zap.L().Warn("⚠️ 通知发送失败",
					zap.String("channel", ch.Name()),
					zap.String("symbol", signal.Symbol),
					zap.Uint("attempt", attempt+1),
					zap.Uint("max_attempts", d.retryer.Attempts()),
					zap.Error(err))
			}
			return err
		})
		if err != nil {
			zap.L().Error("❌ 通知渠道重试耗尽",
				zap.String("channel", ch.Name()),
				zap.String("symbol", signal.Symbol),
				zap.Error(err))
			continue
		}

		delivered = true
		zap.L().Info("✅ 通知已发送",
			zap.String("channel", ch.Name()),
			zap.String("message", FormatMessage(signal)))
	}

	if !delivered {
		zap.L().Error("❌ 所有通知渠道失败，降级为控制台输出", zap.String("symbol", signal.Symbol))
		_ = d.fallback.Send(ctx, signal)
	}
	return delivered
}

// Close 关闭持有连接的渠道
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, ch := range d.channels {
		if c, ok := ch.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
