package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"alpha15-sentry/pkg/types"
)

// futuresSuffix 期货/期权合约代码中的到期日后缀，例如 RELIANCE28AUG25FUT、NIFTY28AUG2524000CE
var futuresSuffix = regexp.MustCompile(`^(.+?)\d{2}[A-Z]{3}\d{2}(?:FUT|\d+(?:\.\d+)?(?:CE|PE))$`)

// Interface 通知接口
type Interface interface {
	Name() string
	Send(ctx context.Context, signal *types.TradingSignal) error
}

// CleanSymbol 去掉合约代码的到期日后缀，得到标的名称；无法识别时原样返回
func CleanSymbol(symbol string) string {
	if m := futuresSuffix.FindStringSubmatch(symbol); m != nil {
		return m[1]
	}
	return symbol
}

// FormatPrice 价格保留两位小数
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 2, 64)
}

// FormatMessage 生成告警正文，如 "BUY : RELIANCE at LTP: 2950.55"
func FormatMessage(signal *types.TradingSignal) string {
	name := CleanSymbol(signal.Symbol)
	switch signal.SignalType {
	case types.SignalBuy:
		return fmt.Sprintf("BUY : %s at LTP: %s", name, FormatPrice(signal.Price))
	case types.SignalSell:
		return fmt.Sprintf("SELL: %s at LTP: %s", name, FormatPrice(signal.Price))
	default:
		return fmt.Sprintf("%s: %s at LTP: %s", signal.SignalType, name, FormatPrice(signal.Price))
	}
}

// directionEmoji 买入/卖出对应的箭头
func directionEmoji(signal *types.TradingSignal) string {
	if signal.SignalType == types.SignalSell {
		return "📉"
	}
	return "📈"
}

// NewFromConfig 按配置创建所有已启用的通知渠道，均未配置时返回控制台通知器
func NewFromConfig(cfg *types.Config) []Interface {
	var channels []Interface

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		channels = append(channels, NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Network.Proxy))
		zap.L().Info("✅ 已配置Telegram通知服务")
	}

	if cfg.DingTalk.WebhookURL != "" {
		channels = append(channels, NewDingTalkNotifier(cfg.DingTalk.WebhookURL, cfg.DingTalk.Secret))
		if cfg.DingTalk.Secret != "" {
			zap.L().Info("✅ 已配置钉钉通知服务（含加签验证）")
		} else {
			zap.L().Warn("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
		}
	}

	if cfg.PushPlus.UserToken != "" {
		channels = append(channels, NewPushPlusNotifier(cfg.PushPlus.UserToken, cfg.PushPlus.To))
		zap.L().Info("✅ 已配置PushPlus通知服务", zap.Bool("friends", cfg.PushPlus.To != ""))
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		channels = append(channels, NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		zap.L().Info("✅ 已配置Kafka信号发布", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	if len(channels) == 0 {
		zap.L().Info("🔧 未配置任何通知渠道，使用控制台输出模式")
		channels = append(channels, NewConsoleNotifier())
	}

	return channels
}

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct {
	out io.Writer
}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{out: os.Stdout}
}

func (cn *ConsoleNotifier) Name() string { return "console" }

func (cn *ConsoleNotifier) Send(_ context.Context, signal *types.TradingSignal) error {
	cn.printSignal(signal)
	return nil
}

func (cn *ConsoleNotifier) printSignal(signal *types.TradingSignal) {
	border := "╔" + strings.Repeat("═", 60) + "╗"
	bottomBorder := "╚" + strings.Repeat("═", 60) + "╝"

	var b strings.Builder
	b.WriteString("\n" + border + "\n")
	fmt.Fprintf(&b, "║ %s 🚨 %s\n", directionEmoji(signal), FormatMessage(signal))
	fmt.Fprintf(&b, "║ 合约: %s (%s)\n", signal.Symbol, signal.Exchange)
	fmt.Fprintf(&b, "║ 首根K线: O %s  H %s  L %s\n",
		FormatPrice(signal.FirstOpen), FormatPrice(signal.FirstHigh), FormatPrice(signal.FirstLow))
	fmt.Fprintf(&b, "║ POC: %s  ATR: %s\n", FormatPrice(signal.POC), FormatPrice(signal.ATRValue))
	fmt.Fprintf(&b, "║ 信号时间: %s\n", signal.SignalTime.Format("2006-01-02 15:04:05"))
	b.WriteString(bottomBorder + "\n")

	fmt.Fprint(cn.out, b.String())
}
