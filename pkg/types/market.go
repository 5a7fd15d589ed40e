package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCandle K线数据质量错误（high/low 与 open/close 不一致、时间乱序等）
	ErrInvalidCandle = errors.New("invalid candle")
	// ErrNoData 数据源请求成功但没有数据
	ErrNoData = errors.New("no data")
)

// Interval K线周期
type Interval string

const (
	IntervalOneDay        Interval = "ONE_DAY"
	IntervalFifteenMinute Interval = "FIFTEEN_MINUTE"
)

// Duration 返回周期对应的时长
func (i Interval) Duration() time.Duration {
	switch i {
	case IntervalOneDay:
		return 24 * time.Hour
	case IntervalFifteenMinute:
		return 15 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// KLine K线数据结构
type KLine struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Interval  Interval  `json:"interval"`
}

// Validate 检查单根K线的价格关系
func (k *KLine) Validate() error {
	hi := k.Open
	lo := k.Close
	if lo > hi {
		hi, lo = lo, hi
	}
	if k.High < hi || lo < k.Low {
		return fmt.Errorf("%w: %s at %s o=%v h=%v l=%v c=%v",
			ErrInvalidCandle, k.Symbol, k.OpenTime.Format(time.RFC3339), k.Open, k.High, k.Low, k.Close)
	}
	return nil
}

// ValidateSeries 检查整段序列：价格关系合法，时间严格递增
func ValidateSeries(klines []*KLine) error {
	for i, k := range klines {
		if err := k.Validate(); err != nil {
			return err
		}
		if i > 0 && !k.OpenTime.After(klines[i-1].OpenTime) {
			return fmt.Errorf("%w: %s timestamps out of order at %s",
				ErrInvalidCandle, k.Symbol, k.OpenTime.Format(time.RFC3339))
		}
	}
	return nil
}

// Instrument 可交易合约（启动时加载一次，运行期间不可变）
type Instrument struct {
	Symbol   string  `json:"symbol" yaml:"symbol"`
	Token    string  `json:"token" yaml:"token"`
	TickSize float64 `json:"tick_size" yaml:"tick_size"`
	Exchange string  `json:"exchange" yaml:"exchange"`
}

// Validate 校验单条合约配置
func (i Instrument) Validate() error {
	if i.Symbol == "" {
		return errors.New("missing symbol")
	}
	if i.Token == "" {
		return fmt.Errorf("%s: missing token", i.Symbol)
	}
	if i.TickSize <= 0 {
		return fmt.Errorf("%s: tick size must be positive, got %v", i.Symbol, i.TickSize)
	}
	if i.Exchange == "" {
		return fmt.Errorf("%s: missing exchange", i.Symbol)
	}
	return nil
}
