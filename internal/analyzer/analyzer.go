package analyzer

//go:generate mockgen -source=analyzer.go -destination=mock/marketdata_mock.go -package=mock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alpha15-sentry/internal/calendar"
	"alpha15-sentry/internal/strategy/signals"
	"alpha15-sentry/pkg/types"
)

var (
	// ErrDataUnavailable 数据暂不可用（第一根K线未完成、K线不足、无数据），本轮跳过
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrFetch 行情请求失败，进入本轮重试列表
	ErrFetch = errors.New("market data fetch failed")
)

// MarketData 行情数据来源
type MarketData interface {
	DailyCandles(ctx context.Context, inst types.Instrument, from, to time.Time) ([]*types.KLine, error)
	IntradayCandles(ctx context.Context, inst types.Instrument, from, to time.Time) ([]*types.KLine, error)
	LastTradedPrice(ctx context.Context, inst types.Instrument) (float64, error)
}

// AnalysisEngine 单个合约的一次完整评估：取数、计算POC/ATR、判定突破
type AnalysisEngine struct {
	data         MarketData
	cal          *calendar.Calendar
	detector     *signals.BreakoutDetector
	lookbackDays int
}

// NewAnalysisEngine 创建分析引擎，lookbackDays 为ATR日K线回看天数
func NewAnalysisEngine(data MarketData, cal *calendar.Calendar, lookbackDays int) *AnalysisEngine {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &AnalysisEngine{
		data:         data,
		cal:          cal,
		detector:     signals.NewBreakoutDetector(),
		lookbackDays: lookbackDays,
	}
}

// Analyze 评估合约在 now 时刻是否出现信号。无信号时 signal 为nil；
// 错误为 ErrDataUnavailable 或 ErrFetch 之一
func (ae *AnalysisEngine) Analyze(ctx context.Context, inst types.Instrument, now time.Time) (*types.TradingSignal, *types.Evaluation, error) {
	now = now.In(ae.cal.Location())

	if !ae.cal.FirstCandleReady(now) {
		return nil, nil, fmt.Errorf("%w: 第一根15分钟K线尚未完成 %s", ErrDataUnavailable, inst.Symbol)
	}

	// 上一交易日完整时段用于POC
	prevOpen, prevClose := ae.cal.SessionBounds(ae.cal.LastTradingDay(now))
	prevSession, err := ae.data.IntradayCandles(ctx, inst, prevOpen, prevClose)
	if err != nil {
		return nil, nil, classify(err, "上一交易日15分钟K线")
	}

	todayOpen, todayClose := ae.cal.SessionBounds(now)
	today, err := ae.data.IntradayCandles(ctx, inst, todayOpen, todayClose)
	if err != nil {
		return nil, nil, classify(err, "当日15分钟K线")
	}
	today = sessionOnly(today, todayOpen)
	if len(today) < 2 {
		return nil, nil, fmt.Errorf("%w: 当日15分钟K线不足 %s (%d根)", ErrDataUnavailable, inst.Symbol, len(today))
	}

	y, m, d := now.AddDate(0, 0, -ae.lookbackDays).Date()
	dailyFrom := time.Date(y, m, d, todayOpen.Hour(), todayOpen.Minute(), 0, 0, now.Location())
	daily, err := ae.data.DailyCandles(ctx, inst, dailyFrom, todayClose)
	if err != nil {
		return nil, nil, classify(err, "日K线")
	}

	ltp, err := ae.data.LastTradedPrice(ctx, inst)
	if err != nil {
		return nil, nil, classify(err, "LTP")
	}

	input := signals.BreakoutInput{
		Instrument:  inst,
		FirstCandle: today[0],
		PrevSession: prevSession,
		DailyBars:   daily,
		LTP:         ltp,
		HasLTP:      true,
		Now:         now,
	}

	signal, eval := ae.detector.DetectSignal(input)
	if eval == nil {
		return nil, nil, fmt.Errorf("%w: POC或ATR无法计算 %s", ErrDataUnavailable, inst.Symbol)
	}

	if signal == nil {
		zap.L().Debug("📋 未触发信号，条件明细",
			zap.String("symbol", inst.Symbol),
			zap.Any("conditions", ae.detector.ValidateSignalConditions(input)))
	}

	return signal, eval, nil
}

// sessionOnly 去掉开盘前的K线
func sessionOnly(klines []*types.KLine, open time.Time) []*types.KLine {
	for i, k := range klines {
		if !k.OpenTime.Before(open) {
			return klines[i:]
		}
	}
	return nil
}

// classify 空数据与脏数据视为数据不可用，其余视为请求失败
func classify(err error, what string) error {
	if errors.Is(err, types.ErrNoData) || errors.Is(err, types.ErrInvalidCandle) {
		return fmt.Errorf("%w: %s: %v", ErrDataUnavailable, what, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrFetch, what, err)
}
