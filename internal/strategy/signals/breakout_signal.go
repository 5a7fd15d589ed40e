package signals

import (
	"time"

	"go.uber.org/zap"

	"alpha15-sentry/internal/strategy/indicators"
	"alpha15-sentry/pkg/types"
)

// BreakoutInput 单个合约一次评估所需的全部输入
type BreakoutInput struct {
	Instrument  types.Instrument
	FirstCandle *types.KLine   // 当日第一根15分钟K线
	PrevSession []*types.KLine // 上一交易日15分钟K线，用于POC
	DailyBars   []*types.KLine // 日K线，用于ATR
	LTP         float64
	HasLTP      bool
	Now         time.Time
}

// BreakoutDetector 开盘区间突破信号检测器
type BreakoutDetector struct {
	profileCalc *indicators.ProfileCalculator
	atrCalc     *indicators.ATRCalculator
}

// NewBreakoutDetector 创建信号检测器
func NewBreakoutDetector() *BreakoutDetector {
	return &BreakoutDetector{
		profileCalc: indicators.NewProfileCalculator(),
		atrCalc:     indicators.NewATRCalculator(),
	}
}

// Evaluate 纯函数形式的突破规则
//
//	open > poc：atr > high-open 且 ltp > high 时为 BUY
//	open < poc：atr > open-low  且 ltp < low  时为 SELL
//	open == poc：无信号
func Evaluate(first *types.KLine, poc, atr, ltp float64) types.Signal {
	if first == nil {
		return types.SignalNone
	}

	switch {
	case first.Open > poc:
		openToHigh := first.High - first.Open
		if atr > openToHigh && ltp > first.High {
			return types.SignalBuy
		}
	case first.Open < poc:
		openToLow := first.Open - first.Low
		if atr > openToLow && ltp < first.Low {
			return types.SignalSell
		}
	}

	return types.SignalNone
}

// DetectSignal 计算POC、ATR并检测信号；任何输入缺失都视为无信号
func (bd *BreakoutDetector) DetectSignal(in BreakoutInput) (*types.TradingSignal, *types.Evaluation) {
	symbol := in.Instrument.Symbol

	if in.FirstCandle == nil || !in.HasLTP {
		zap.L().Debug("输入不完整，跳过",
			zap.String("symbol", symbol),
			zap.Bool("has_first_candle", in.FirstCandle != nil),
			zap.Bool("has_ltp", in.HasLTP))
		return nil, nil
	}

	poc, ok := bd.profileCalc.POC(in.PrevSession, in.Instrument.TickSize)
	if !ok {
		zap.L().Debug("POC无法计算", zap.String("symbol", symbol), zap.Int("bars", len(in.PrevSession)))
		return nil, nil
	}

	atr, ok := bd.atrCalc.Calculate(in.DailyBars)
	if !ok {
		zap.L().Debug("ATR数据不足",
			zap.String("symbol", symbol),
			zap.Int("bars", len(in.DailyBars)),
			zap.Int("required", bd.atrCalc.MinBars()))
		return nil, nil
	}

	first := in.FirstCandle
	direction := Evaluate(first, poc, atr, in.LTP)

	eval := &types.Evaluation{
		Symbol:    symbol,
		POC:       poc,
		ATRValue:  atr,
		LTP:       in.LTP,
		FirstOpen: first.Open,
		FirstHigh: first.High,
		FirstLow:  first.Low,
		Signal:    direction,
		EvalTime:  in.Now,
	}

	zap.L().Debug("评估完成",
		zap.String("symbol", symbol),
		zap.Float64("poc", poc),
		zap.Float64("atr", atr),
		zap.Float64("open", first.Open),
		zap.Float64("high", first.High),
		zap.Float64("low", first.Low),
		zap.Float64("ltp", in.LTP),
		zap.String("signal", string(direction)))

	if direction == types.SignalNone {
		return nil, eval
	}

	signal := &types.TradingSignal{
		Symbol:     symbol,
		Token:      in.Instrument.Token,
		Exchange:   in.Instrument.Exchange,
		SignalType: direction,
		Price:      in.LTP,
		POC:        poc,
		ATRValue:   atr,
		FirstOpen:  first.Open,
		FirstHigh:  first.High,
		FirstLow:   first.Low,
		FirstClose: first.Close,
		SignalTime: in.Now,
	}

	zap.L().Info("🎯 检测到交易信号",
		zap.String("symbol", symbol),
		zap.String("signal_type", string(direction)),
		zap.Float64("ltp", in.LTP),
		zap.Float64("poc", poc),
		zap.Float64("atr", atr))

	return signal, eval
}

// ValidateSignalConditions 返回各项判定条件，便于排查为什么没有信号
func (bd *BreakoutDetector) ValidateSignalConditions(in BreakoutInput) map[string]interface{} {
	conditions := make(map[string]interface{})
	conditions["has_first_candle"] = in.FirstCandle != nil
	conditions["has_ltp"] = in.HasLTP
	conditions["prev_session_bars"] = len(in.PrevSession)
	conditions["daily_bars"] = len(in.DailyBars)

	poc, pocOK := bd.profileCalc.POC(in.PrevSession, in.Instrument.TickSize)
	conditions["poc_available"] = pocOK
	if pocOK {
		conditions["poc"] = poc
	}

	atr, atrOK := bd.atrCalc.Calculate(in.DailyBars)
	conditions["atr_available"] = atrOK
	if atrOK {
		conditions["atr"] = atr
	}

	if in.FirstCandle != nil && pocOK {
		first := in.FirstCandle
		conditions["open_above_poc"] = first.Open > poc
		conditions["open_below_poc"] = first.Open < poc
		conditions["open_to_high"] = first.High - first.Open
		conditions["open_to_low"] = first.Open - first.Low
		if in.HasLTP && atrOK {
			conditions["signal"] = string(Evaluate(first, poc, atr, in.LTP))
		}
	}

	return conditions
}
