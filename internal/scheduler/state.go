package scheduler

import "sort"

type alertEntry struct {
	alerted           bool
	lastAttemptFailed bool
}

// DailyAlertState 当日每个合约的告警状态，只由调度器单线程读写
type DailyAlertState struct {
	date    string
	entries map[string]*alertEntry
}

// NewDailyAlertState 创建 date（交易所时区 2006-01-02）的空状态
func NewDailyAlertState(date string) *DailyAlertState {
	return &DailyAlertState{
		date:    date,
		entries: make(map[string]*alertEntry),
	}
}

// Date 状态所属的交易日
func (s *DailyAlertState) Date() string {
	return s.date
}

func (s *DailyAlertState) entry(symbol string) *alertEntry {
	e := s.entries[symbol]
	if e == nil {
		e = &alertEntry{}
		s.entries[symbol] = e
	}
	return e
}

// IsAlerted 合约当日是否已告警
func (s *DailyAlertState) IsAlerted(symbol string) bool {
	e := s.entries[symbol]
	return e != nil && e.alerted
}

// MarkAlerted 标记已告警；当日已告警过则返回false
func (s *DailyAlertState) MarkAlerted(symbol string) bool {
	e := s.entry(symbol)
	if e.alerted {
		return false
	}
	e.alerted = true
	e.lastAttemptFailed = false
	return true
}

// MarkFailed 记录最近一次取数结果
func (s *DailyAlertState) MarkFailed(symbol string, failed bool) {
	s.entry(symbol).lastAttemptFailed = failed
}

// LastAttemptFailed 最近一次取数是否失败
func (s *DailyAlertState) LastAttemptFailed(symbol string) bool {
	e := s.entries[symbol]
	return e != nil && e.lastAttemptFailed
}

// AlertedCount 已告警合约数
func (s *DailyAlertState) AlertedCount() int {
	n := 0
	for _, e := range s.entries {
		if e.alerted {
			n++
		}
	}
	return n
}

// Alerted 已告警合约，按名称排序
func (s *DailyAlertState) Alerted() []string {
	symbols := make([]string, 0, len(s.entries))
	for symbol, e := range s.entries {
		if e.alerted {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Rollover 日期前进时清空状态，返回是否发生了切换
func (s *DailyAlertState) Rollover(date string) bool {
	if date <= s.date {
		return false
	}
	s.date = date
	s.entries = make(map[string]*alertEntry)
	return true
}
