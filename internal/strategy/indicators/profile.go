package indicators

import (
	"math"
	"strings"

	"alpha15-sentry/pkg/types"
)

const (
	// BinScale 价格区间宽度 = 最小变动价位 × BinScale，比交易所tick更细
	BinScale = 0.05

	// SentinelLetter 超过52个时段后使用的占位字母
	SentinelLetter = '?'

	tpoLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// 浮点容差，避免 99.5/0.0025 之类的除法落到相邻区间
	priceEpsilon = 1e-9
)

// ProfileCalculator TPO市场轮廓计算器
type ProfileCalculator struct{}

// NewProfileCalculator 创建市场轮廓计算器
func NewProfileCalculator() *ProfileCalculator {
	return &ProfileCalculator{}
}

// PeriodLetter 返回第i个时段的字母：A-Z、a-z，之后为占位符
func PeriodLetter(i int) byte {
	if i >= 0 && i < len(tpoLetters) {
		return tpoLetters[i]
	}
	return SentinelLetter
}

// Build 用单个交易日的15分钟K线构建市场轮廓，无数据或tick非法时返回nil
func (pc *ProfileCalculator) Build(session []*types.KLine, tickSize float64) *types.MarketProfile {
	if len(session) == 0 || tickSize <= 0 {
		return nil
	}

	width := tickSize * BinScale

	minLow, maxHigh := session[0].Low, session[0].High
	for _, k := range session[1:] {
		minLow = math.Min(minLow, k.Low)
		maxHigh = math.Max(maxHigh, k.High)
	}

	lowBound := math.Floor(minLow/width+priceEpsilon) * width
	highBound := math.Ceil(maxHigh/width-priceEpsilon) * width
	binCount := int(math.Round((highBound-lowBound)/width)) + 1

	letters := make([]strings.Builder, binCount)
	counts := make([]int, binCount)
	price := func(i int) float64 {
		return roundPrice(lowBound + float64(i)*width)
	}

	for period, k := range session {
		letter := PeriodLetter(period)

		// 区间 [p, p+width] 与 [low, high] 相交 ⇔ low <= p+width 且 high >= p，
		// 先按价格算出候选下标，再逐个用原条件确认
		first := int(math.Floor((k.Low-width-lowBound)/width)) - 1
		last := int(math.Ceil((k.High-lowBound)/width)) + 1
		if first < 0 {
			first = 0
		}
		if last > binCount-1 {
			last = binCount - 1
		}

		for i := first; i <= last; i++ {
			p := price(i)
			if k.Low <= p+width && k.High >= p {
				letters[i].WriteByte(letter)
				counts[i]++
			}
		}
	}

	profile := &types.MarketProfile{Width: width}
	for i := 0; i < binCount; i++ {
		if counts[i] == 0 {
			continue
		}
		profile.Bins = append(profile.Bins, types.PriceBin{
			Price:   price(i),
			Letters: letters[i].String(),
			Count:   counts[i],
		})
	}

	return profile
}

// POC 计算价值中枢（触及次数最多的价格区间），轮廓为空时返回 ok=false
func (pc *ProfileCalculator) POC(session []*types.KLine, tickSize float64) (float64, bool) {
	return pc.Build(session, tickSize).POC()
}

func roundPrice(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
