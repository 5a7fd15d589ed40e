package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"alpha15-sentry/pkg/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// signalEvent 发布到Kafka的信号事件
type signalEvent struct {
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	Token      string    `json:"token"`
	Exchange   string    `json:"exchange"`
	Side       string    `json:"side"`
	LTP        float64   `json:"ltp"`
	POC        float64   `json:"poc"`
	ATR        float64   `json:"atr"`
	FirstOpen  float64   `json:"first_open"`
	FirstHigh  float64   `json:"first_high"`
	FirstLow   float64   `json:"first_low"`
	Message    string    `json:"message"`
	SignalTime time.Time `json:"signal_time"`
}

// KafkaNotifier 把信号作为JSON事件写入Kafka主题，key为合约名
type KafkaNotifier struct {
	writer messageWriter
	topic  string
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
		topic: topic,
	}
}

func (kn *KafkaNotifier) Name() string { return "kafka" }

func (kn *KafkaNotifier) Send(ctx context.Context, signal *types.TradingSignal) error {
	value, err := json.Marshal(signalEvent{
		Symbol:     signal.Symbol,
		Name:       CleanSymbol(signal.Symbol),
		Token:      signal.Token,
		Exchange:   signal.Exchange,
		Side:       string(signal.SignalType),
		LTP:        signal.Price,
		POC:        signal.POC,
		ATR:        signal.ATRValue,
		FirstOpen:  signal.FirstOpen,
		FirstHigh:  signal.FirstHigh,
		FirstLow:   signal.FirstLow,
		Message:    FormatMessage(signal),
		SignalTime: signal.SignalTime,
	})
	if err != nil {
		return fmt.Errorf("序列化信号事件失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(signal.Symbol),
		Value: value,
		Time:  signal.SignalTime,
	}
	if err := kn.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("写入Kafka主题 %s 失败: %w", kn.topic, err)
	}
	return nil
}

func (kn *KafkaNotifier) Close() error {
	return kn.writer.Close()
}
