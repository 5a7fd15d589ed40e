package types

// PriceBin 价格区间 [Price, Price+Width)
type PriceBin struct {
	Price   float64 `json:"price"`
	Letters string  `json:"letters"` // 触及该区间的时段字母，按时段顺序
	Count   int     `json:"count"`
}

// MarketProfile TPO市场轮廓，Bins按价格升序且只包含被触及的区间
type MarketProfile struct {
	Width float64    `json:"width"`
	Bins  []PriceBin `json:"bins"`
}

// POC 返回触及次数最多的价格，次数相同取最低价；空轮廓返回 ok=false
func (mp *MarketProfile) POC() (float64, bool) {
	if mp == nil || len(mp.Bins) == 0 {
		return 0, false
	}
	best := 0
	for i := 1; i < len(mp.Bins); i++ {
		if mp.Bins[i].Count > mp.Bins[best].Count {
			best = i
		}
	}
	return mp.Bins[best].Price, true
}
