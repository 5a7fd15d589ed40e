package types

import "time"

// Signal 方向信号
type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// TradingSignal 开盘区间突破信号
type TradingSignal struct {
	Symbol     string    `json:"symbol"`
	Token      string    `json:"token"`
	Exchange   string    `json:"exchange"`
	SignalType Signal    `json:"signal_type"`
	Price      float64   `json:"price"` // 触发时的LTP
	POC        float64   `json:"poc"`
	ATRValue   float64   `json:"atr_value"`
	FirstOpen  float64   `json:"first_open"`
	FirstHigh  float64   `json:"first_high"`
	FirstLow   float64   `json:"first_low"`
	FirstClose float64   `json:"first_close"`
	SignalTime time.Time `json:"signal_time"`
}

// Evaluation 单个合约一次评估的指标快照，用于日志落库
type Evaluation struct {
	Symbol    string    `json:"symbol"`
	POC       float64   `json:"poc"`
	ATRValue  float64   `json:"atr_value"`
	LTP       float64   `json:"ltp"`
	FirstOpen float64   `json:"first_open"`
	FirstHigh float64   `json:"first_high"`
	FirstLow  float64   `json:"first_low"`
	Signal    Signal    `json:"signal"`
	EvalTime  time.Time `json:"eval_time"`
}
