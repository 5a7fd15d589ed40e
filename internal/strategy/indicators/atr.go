package indicators

import (
	"math"

	"alpha15-sentry/pkg/types"
)

// ATRPeriod Wilder平滑周期，固定为14
const ATRPeriod = 14

// ATRCalculator ATR指标计算器（Wilder平滑）
type ATRCalculator struct {
	length int
}

// NewATRCalculator 创建ATR计算器
func NewATRCalculator() *ATRCalculator {
	return &ATRCalculator{
		length: ATRPeriod,
	}
}

// MinBars 计算所需的最少日K线数量：14根用于种子均值，至少再1根用于平滑
func (ac *ATRCalculator) MinBars() int {
	return ac.length + 1
}

// Calculate 计算最新的ATR值，数据不足时返回 ok=false
func (ac *ATRCalculator) Calculate(klines []*types.KLine) (float64, bool) {
	if len(klines) < ac.MinBars() {
		return 0, false
	}

	trValues := ac.calculateTrueRange(klines)

	// 种子：前14个真实波幅的算术平均
	atr := 0.0
	for _, tr := range trValues[:ac.length] {
		atr += tr
	}
	atr /= float64(ac.length)

	n := float64(ac.length)
	for _, tr := range trValues[ac.length:] {
		atr = (atr*(n-1) + tr) / n
	}

	return atr, true
}

// calculateTrueRange 计算真实波幅序列，第一根K线没有前收盘价，取 high-low
func (ac *ATRCalculator) calculateTrueRange(klines []*types.KLine) []float64 {
	trValues := make([]float64, len(klines))
	trValues[0] = klines[0].High - klines[0].Low

	for i := 1; i < len(klines); i++ {
		current := klines[i]
		previous := klines[i-1]

		// 真实波幅 = max(high-low, |high-prevClose|, |low-prevClose|)
		hl := current.High - current.Low
		hc := math.Abs(current.High - previous.Close)
		lc := math.Abs(current.Low - previous.Close)

		trValues[i] = math.Max(hl, math.Max(hc, lc))
	}

	return trValues
}
