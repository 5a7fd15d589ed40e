package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"alpha15-sentry/pkg/types"
)

const dateLayout = "2006-01-02"

// Phase 当前时刻相对监控窗口的位置
type Phase int

const (
	PhaseBeforeWindow Phase = iota
	PhaseInWindow
	PhaseAfterWindow
)

func (p Phase) String() string {
	switch p {
	case PhaseBeforeWindow:
		return "before_window"
	case PhaseInWindow:
		return "in_window"
	case PhaseAfterWindow:
		return "after_window"
	default:
		return "unknown"
	}
}

// clock 一天中的分钟数
type clock int

func parseClock(v string) (clock, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("时间格式错误 %q: %w", v, err)
	}
	return clock(t.Hour()*60 + t.Minute()), nil
}

func (c clock) on(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}

// Calendar 交易日历：时区、节假日、交易时段与监控窗口
type Calendar struct {
	loc         *time.Location
	holidays    map[string]struct{}
	marketOpen  clock
	marketClose clock
	windowStart clock
	windowEnd   clock
	cutoff      clock
}

// New 根据会话配置创建交易日历
func New(cfg types.SessionConfig) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区失败: %w", err)
	}

	c := &Calendar{
		loc:      loc,
		holidays: make(map[string]struct{}, len(cfg.Holidays)),
	}

	fields := []struct {
		dst *clock
		val string
	}{
		{&c.marketOpen, cfg.MarketOpen},
		{&c.marketClose, cfg.MarketClose},
		{&c.windowStart, cfg.WindowStart},
		{&c.windowEnd, cfg.WindowEnd},
		{&c.cutoff, cfg.FirstCandleCutoff},
	}
	for _, f := range fields {
		if *f.dst, err = parseClock(f.val); err != nil {
			return nil, err
		}
	}

	for _, h := range cfg.Holidays {
		day, err := time.ParseInLocation(dateLayout, h, loc)
		if err != nil {
			return nil, fmt.Errorf("节假日格式错误 %q: %w", h, err)
		}
		c.holidays[day.Format(dateLayout)] = struct{}{}
	}

	return c, nil
}

// Location 交易所时区
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// DateKey 返回交易所时区下的日期字符串
func (c *Calendar) DateKey(t time.Time) string {
	return t.In(c.loc).Format(dateLayout)
}

// IsTradingDay 非周末且不在节假日列表中
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[t.Format(dateLayout)]
	return !holiday
}

// LastTradingDay 返回 t 之前最近的一个交易日（不含当天）
func (c *Calendar) LastTradingDay(t time.Time) time.Time {
	day := t.In(c.loc).AddDate(0, 0, -1)
	for !c.IsTradingDay(day) {
		day = day.AddDate(0, 0, -1)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// SessionBounds 返回某日的开盘、收盘时刻
func (c *Calendar) SessionBounds(day time.Time) (time.Time, time.Time) {
	day = day.In(c.loc)
	return c.marketOpen.on(day), c.marketClose.on(day)
}

// WindowBounds 返回某日监控窗口的起止时刻（结束分钟包含在窗口内）
func (c *Calendar) WindowBounds(day time.Time) (time.Time, time.Time) {
	day = day.In(c.loc)
	return c.windowStart.on(day), c.windowEnd.on(day)
}

// Phase 判断 t 处于窗口之前、之中还是之后，按分钟截断比较
func (c *Calendar) Phase(t time.Time) Phase {
	t = t.In(c.loc)
	now := clock(t.Hour()*60 + t.Minute())
	switch {
	case now < c.windowStart:
		return PhaseBeforeWindow
	case now > c.windowEnd:
		return PhaseAfterWindow
	default:
		return PhaseInWindow
	}
}

// FirstCandleReady 第一根15分钟K线是否已经收盘
func (c *Calendar) FirstCandleReady(t time.Time) bool {
	t = t.In(c.loc)
	return clock(t.Hour()*60+t.Minute()) >= c.cutoff
}

// NextWindowStart 返回 t 之后（含当天尚未开始的窗口）下一个交易日的窗口开始时刻
func (c *Calendar) NextWindowStart(t time.Time) time.Time {
	t = t.In(c.loc)
	day := t
	for {
		if c.IsTradingDay(day) {
			start := c.windowStart.on(day)
			if !start.Before(t) {
				return start
			}
		}
		day = day.AddDate(0, 0, 1)
		y, m, d := day.Date()
		day = time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	}
}
