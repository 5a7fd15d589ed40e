package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha15-sentry/pkg/types"
)

func firstCandle(open, high, low, close float64) *types.KLine {
	start := time.Date(2025, 8, 28, 9, 15, 0, 0, time.UTC)
	return &types.KLine{
		Symbol:    "X",
		OpenTime:  start,
		CloseTime: start.Add(15 * time.Minute),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Interval:  types.IntervalFifteenMinute,
	}
}

func mirror(k *types.KLine, poc float64) *types.KLine {
	m := *k
	m.Open = 2*poc - k.Open
	m.High = 2*poc - k.Low
	m.Low = 2*poc - k.High
	m.Close = 2*poc - k.Close
	return &m
}

func TestEvaluate_Buy(t *testing.T) {
	first := firstCandle(100, 102, 99.5, 101.5)
	assert.Equal(t, types.SignalBuy, Evaluate(first, 98, 3.5, 103))
}

func TestEvaluate_BuyRequiresWideATR(t *testing.T) {
	first := firstCandle(100, 102, 99.5, 101.5)
	assert.Equal(t, types.SignalNone, Evaluate(first, 98, 1.0, 103))
	// atr 等于 open-to-high 不算
	assert.Equal(t, types.SignalNone, Evaluate(first, 98, 2.0, 103))
}

func TestEvaluate_BuyRequiresBreakAboveHigh(t *testing.T) {
	first := firstCandle(100, 102, 99.5, 101.5)
	assert.Equal(t, types.SignalNone, Evaluate(first, 98, 3.5, 102))
	assert.Equal(t, types.SignalNone, Evaluate(first, 98, 3.5, 101))
}

func TestEvaluate_Sell(t *testing.T) {
	first := firstCandle(100, 100.5, 98, 98.5)
	assert.Equal(t, types.SignalSell, Evaluate(first, 102, 3.5, 97))
	assert.Equal(t, types.SignalNone, Evaluate(first, 102, 2.0, 97))
	assert.Equal(t, types.SignalNone, Evaluate(first, 102, 3.5, 98))
}

func TestEvaluate_OpenAtPOC(t *testing.T) {
	first := firstCandle(100, 102, 98, 101)
	assert.Equal(t, types.SignalNone, Evaluate(first, 100, 50, 200))
	assert.Equal(t, types.SignalNone, Evaluate(first, 100, 50, 1))
}

func TestEvaluate_NilCandle(t *testing.T) {
	assert.Equal(t, types.SignalNone, Evaluate(nil, 100, 5, 110))
}

func TestEvaluate_Symmetry(t *testing.T) {
	cases := []struct {
		first    *types.KLine
		poc, atr float64
		ltp      float64
	}{
		{firstCandle(100, 100.5, 98, 98.5), 102, 3.5, 97},
		{firstCandle(250, 251, 247, 248), 260, 4, 246.5},
		{firstCandle(100, 100.5, 98, 98.5), 102, 1.5, 97},
	}

	for _, tc := range cases {
		sell := Evaluate(tc.first, tc.poc, tc.atr, tc.ltp)
		buy := Evaluate(mirror(tc.first, tc.poc), tc.poc, tc.atr, 2*tc.poc-tc.ltp)
		switch sell {
		case types.SignalSell:
			assert.Equal(t, types.SignalBuy, buy)
		default:
			assert.Equal(t, types.SignalNone, buy)
		}
	}
}

func dailyBars(n int, rng float64) []*types.KLine {
	bars := make([]*types.KLine, 0, n)
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		bars = append(bars, &types.KLine{
			Symbol:   "X",
			OpenTime: start.AddDate(0, 0, i),
			Open:     100,
			High:     100 + rng/2,
			Low:      100 - rng/2,
			Close:    100,
			Interval: types.IntervalOneDay,
		})
	}
	return bars
}

func pocSession(price float64) []*types.KLine {
	k := firstCandle(price, price, price, price)
	k.OpenTime = k.OpenTime.AddDate(0, 0, -1)
	return []*types.KLine{k}
}

func scenarioInput(atrRange float64) BreakoutInput {
	return BreakoutInput{
		Instrument:  types.Instrument{Symbol: "X", Token: "1234", TickSize: 0.05, Exchange: "NFO"},
		FirstCandle: firstCandle(100, 102, 99.5, 101.5),
		PrevSession: pocSession(98),
		DailyBars:   dailyBars(20, atrRange),
		LTP:         103,
		HasLTP:      true,
		Now:         time.Date(2025, 8, 28, 9, 31, 0, 0, time.UTC),
	}
}

func TestDetectSignal_BuyScenario(t *testing.T) {
	signal, eval := NewBreakoutDetector().DetectSignal(scenarioInput(3.5))
	require.NotNil(t, signal)
	require.NotNil(t, eval)

	assert.Equal(t, types.SignalBuy, signal.SignalType)
	assert.Equal(t, "X", signal.Symbol)
	assert.Equal(t, "1234", signal.Token)
	assert.Equal(t, 103.0, signal.Price)
	assert.InDelta(t, 98.0, signal.POC, 1e-9)
	assert.InDelta(t, 3.5, signal.ATRValue, 1e-9)
	assert.Equal(t, types.SignalBuy, eval.Signal)
}

func TestDetectSignal_NarrowATRScenario(t *testing.T) {
	signal, eval := NewBreakoutDetector().DetectSignal(scenarioInput(1.0))
	assert.Nil(t, signal)
	require.NotNil(t, eval)
	assert.Equal(t, types.SignalNone, eval.Signal)
	assert.InDelta(t, 1.0, eval.ATRValue, 1e-9)
}

func TestDetectSignal_MissingInputs(t *testing.T) {
	bd := NewBreakoutDetector()

	in := scenarioInput(3.5)
	in.HasLTP = false
	signal, eval := bd.DetectSignal(in)
	assert.Nil(t, signal)
	assert.Nil(t, eval)

	in = scenarioInput(3.5)
	in.FirstCandle = nil
	signal, _ = bd.DetectSignal(in)
	assert.Nil(t, signal)

	in = scenarioInput(3.5)
	in.PrevSession = nil
	signal, _ = bd.DetectSignal(in)
	assert.Nil(t, signal)

	in = scenarioInput(3.5)
	in.DailyBars = in.DailyBars[:14]
	signal, eval = bd.DetectSignal(in)
	assert.Nil(t, signal)
	assert.Nil(t, eval)
}

func TestValidateSignalConditions(t *testing.T) {
	conditions := NewBreakoutDetector().ValidateSignalConditions(scenarioInput(3.5))
	assert.Equal(t, true, conditions["poc_available"])
	assert.Equal(t, true, conditions["open_above_poc"])
	assert.Equal(t, "BUY", conditions["signal"])
	assert.InDelta(t, 2.0, conditions["open_to_high"], 1e-9)
}
