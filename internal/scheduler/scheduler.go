package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alpha15-sentry/internal/analyzer"
	"alpha15-sentry/internal/calendar"
	"alpha15-sentry/internal/strategy/monitor"
	"alpha15-sentry/pkg/types"
)

// State 调度器状态
type State int

const (
	StateWaiting State = iota
	StatePolling
	StateRetrying
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING_FOR_WINDOW"
	case StatePolling:
		return "ACTIVE_POLLING"
	case StateRetrying:
		return "RETRYING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

var stateNames = []string{
	StateWaiting.String(),
	StatePolling.String(),
	StateRetrying.String(),
	StateDone.String(),
}

// 结束原因
const (
	ReasonWindowClosed  = "window_closed"
	ReasonAllAlerted    = "all_alerted"
	ReasonNonTradingDay = "non_trading_day"
	ReasonCancelled     = "cancelled"
)

// Analyzer 单合约评估
type Analyzer interface {
	Analyze(ctx context.Context, inst types.Instrument, now time.Time) (*types.TradingSignal, *types.Evaluation, error)
}

// Notifier 信号投递，返回是否至少一个渠道成功
type Notifier interface {
	Notify(ctx context.Context, signal *types.TradingSignal) bool
}

// AlertStore 已告警合约的外部镜像，用于同日重启恢复
type AlertStore interface {
	LoadAlerted(ctx context.Context, date string) ([]string, error)
	MarkAlerted(ctx context.Context, date, symbol string) error
}

// Journal 评估与信号日志
type Journal interface {
	RecordEvaluation(ctx context.Context, runID string, eval *types.Evaluation) error
	RecordSignal(ctx context.Context, runID string, signal *types.TradingSignal, delivered bool) error
}

type statsReporter interface {
	GetRedisStats() map[string]interface{}
}

// SessionReport 一次监控会话的统计
type SessionReport struct {
	RunID       string    `json:"run_id"`
	Date        string    `json:"date"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Cycles      int       `json:"cycles"`
	Evaluations int       `json:"evaluations"`
	Signals     int       `json:"signals"`
	Delivered   int       `json:"delivered"`
	Failures    int       `json:"failures"`
	Retries     int       `json:"retries"`
	Alerted     []string  `json:"alerted"`
	Reason      string    `json:"reason"`
}

// Option 可选依赖
type Option func(*Scheduler)

// WithAlertStore 已告警状态镜像
func WithAlertStore(store AlertStore) Option {
	return func(s *Scheduler) { s.store = store }
}

// WithJournal 评估与信号落库
func WithJournal(journal Journal) Option {
	return func(s *Scheduler) { s.journal = journal }
}

// WithMonitor Prometheus指标
func WithMonitor(pm *monitor.PerformanceMonitor) Option {
	return func(s *Scheduler) { s.monitor = pm }
}

// WithClock 替换时钟与等待函数
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// Scheduler 监控窗口内的单线程轮询调度器
type Scheduler struct {
	instruments []types.Instrument
	analyzer    Analyzer
	notifier    Notifier
	cal         *calendar.Calendar

	cycleDelay      time.Duration
	instrumentDelay time.Duration
	waitPoll        time.Duration

	store   AlertStore
	journal Journal
	monitor *monitor.PerformanceMonitor

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	state  State
	alerts *DailyAlertState
	report *SessionReport
}

func NewScheduler(instruments []types.Instrument, a Analyzer, n Notifier, cal *calendar.Calendar, cfg types.SessionConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		instruments:     instruments,
		analyzer:        a,
		notifier:        n,
		cal:             cal,
		cycleDelay:      cfg.CycleDelay,
		instrumentDelay: cfg.InstrumentDelay,
		waitPoll:        cfg.WaitPoll,
		now:             time.Now,
		sleep:           sleepContext,
	}
	if s.cycleDelay <= 0 {
		s.cycleDelay = 5 * time.Second
	}
	if s.instrumentDelay < 0 {
		s.instrumentDelay = 0
	}
	if s.waitPoll <= 0 {
		s.waitPoll = time.Minute
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State 当前状态
func (s *Scheduler) State() State {
	return s.state
}

// Run 运行一次监控会话直到 DONE。ctx 取消视为正常结束
func (s *Scheduler) Run(ctx context.Context) (*SessionReport, error) {
	if len(s.instruments) == 0 {
		return nil, errors.New("没有可监控的合约")
	}

	now := s.now()
	s.report = &SessionReport{
		RunID:     uuid.NewString(),
		Date:      s.cal.DateKey(now),
		StartedAt: now,
	}
	s.alerts = NewDailyAlertState(s.report.Date)
	s.restoreAlerted(ctx)
	s.setState(StateWaiting)

	zap.L().Info("🚀 调度器启动",
		zap.String("run_id", s.report.RunID),
		zap.String("date", s.report.Date),
		zap.Int("instruments", len(s.instruments)),
		zap.Int("already_alerted", s.alerts.AlertedCount()))

	if !s.cal.IsTradingDay(now) {
		zap.L().Info("📅 今日非交易日，结束", zap.String("date", s.report.Date))
		return s.finish(ReasonNonTradingDay), nil
	}

	for {
		if ctx.Err() != nil {
			return s.finish(ReasonCancelled), nil
		}

		now = s.now()
		s.rollover(ctx, now)

		switch s.cal.Phase(now) {
		case calendar.PhaseBeforeWindow:
			start, _ := s.cal.WindowBounds(now)
			wait := start.Sub(now)
			if wait > s.waitPoll {
				wait = s.waitPoll
			}
			zap.L().Debug("⏳ 等待监控窗口开启",
				zap.Time("window_start", start),
				zap.Duration("sleep", wait))
			if err := s.sleep(ctx, wait); err != nil {
				return s.finish(ReasonCancelled), nil
			}
			continue
		case calendar.PhaseAfterWindow:
			zap.L().Info("🔚 监控窗口已关闭", zap.Time("now", now))
			return s.finish(ReasonWindowClosed), nil
		}

		if len(s.pending()) == 0 {
			return s.finish(ReasonAllAlerted), nil
		}

		s.runCycle(ctx)

		if ctx.Err() != nil {
			return s.finish(ReasonCancelled), nil
		}
		if len(s.pending()) == 0 {
			zap.L().Info("🎯 全部合约已告警")
			return s.finish(ReasonAllAlerted), nil
		}
		if err := s.sleep(ctx, s.cycleDelay); err != nil {
			return s.finish(ReasonCancelled), nil
		}
	}
}

// runCycle 一轮轮询加一次重试
func (s *Scheduler) runCycle(ctx context.Context) {
	s.setState(StatePolling)
	s.report.Cycles++
	s.logStorageStats()

	var retry []types.Instrument
	for i, inst := range s.pending() {
		if i > 0 {
			if err := s.sleep(ctx, s.instrumentDelay); err != nil {
				return
			}
		}
		now := s.now()
		if s.cal.Phase(now) == calendar.PhaseAfterWindow {
			zap.L().Info("⌛ 窗口在轮询中关闭，停止本轮")
			return
		}
		if s.evaluate(ctx, inst, now) {
			retry = append(retry, inst)
		}
	}

	if len(retry) > 0 {
		s.setState(StateRetrying)
		zap.L().Info("🔁 重试本轮取数失败的合约", zap.Int("count", len(retry)))

		for _, inst := range retry {
			if s.alerts.IsAlerted(inst.Symbol) {
				continue
			}
			if err := s.sleep(ctx, s.instrumentDelay); err != nil {
				return
			}
			now := s.now()
			if s.cal.Phase(now) == calendar.PhaseAfterWindow {
				return
			}
			s.report.Retries++
			s.evaluate(ctx, inst, now)
		}
	}

	s.monitor.RecordCycle()
}

// evaluate 评估单个合约，返回是否需要进入重试列表
func (s *Scheduler) evaluate(ctx context.Context, inst types.Instrument, now time.Time) (retry bool) {
	symbol := inst.Symbol

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("💥 合约评估异常", zap.String("symbol", symbol), zap.Any("panic", r))
			s.alerts.MarkFailed(symbol, true)
			s.report.Failures++
			s.monitor.RecordEvaluation(symbol, monitor.ResultFetchError)
			retry = true
		}
	}()

	s.report.Evaluations++
	signal, eval, err := s.analyzer.Analyze(ctx, inst, now)

	if eval != nil && s.journal != nil {
		if jerr := s.journal.RecordEvaluation(ctx, s.report.RunID, eval); jerr != nil {
			zap.L().Warn("⚠️ 评估快照落库失败", zap.String("symbol", symbol), zap.Error(jerr))
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, analyzer.ErrDataUnavailable):
		zap.L().Debug("⏭️ 数据暂不可用，跳过", zap.String("symbol", symbol), zap.Error(err))
		s.alerts.MarkFailed(symbol, false)
		s.monitor.RecordEvaluation(symbol, monitor.ResultUnavailable)
		return false
	default:
		zap.L().Warn("⚠️ 取数失败，加入重试列表", zap.String("symbol", symbol), zap.Error(err))
		s.alerts.MarkFailed(symbol, true)
		s.report.Failures++
		s.monitor.RecordEvaluation(symbol, monitor.ResultFetchError)
		return true
	}

	if s.alerts.LastAttemptFailed(symbol) {
		zap.L().Info("✅ 取数恢复", zap.String("symbol", symbol))
	}
	s.alerts.MarkFailed(symbol, false)

	if signal == nil {
		s.monitor.RecordEvaluation(symbol, monitor.ResultNoSignal)
		return false
	}

	if !s.alerts.MarkAlerted(symbol) {
		return false
	}
	s.report.Signals++
	s.monitor.RecordEvaluation(symbol, monitor.ResultSignal)

	zap.L().Info("🚨 触发交易信号",
		zap.String("symbol", symbol),
		zap.String("signal", string(signal.SignalType)),
		zap.Float64("ltp", signal.Price),
		zap.Float64("poc", signal.POC),
		zap.Float64("atr", signal.ATRValue))

	delivered := s.notifier.Notify(ctx, signal)
	if delivered {
		s.report.Delivered++
	}
	s.monitor.RecordSignal(signal, delivered)

	if s.store != nil {
		if serr := s.store.MarkAlerted(ctx, s.alerts.Date(), symbol); serr != nil {
			zap.L().Warn("⚠️ 告警状态同步失败", zap.String("symbol", symbol), zap.Error(serr))
		}
	}
	if s.journal != nil {
		if jerr := s.journal.RecordSignal(ctx, s.report.RunID, signal, delivered); jerr != nil {
			zap.L().Warn("⚠️ 交易信号落库失败", zap.String("symbol", symbol), zap.Error(jerr))
		}
	}
	return false
}

// pending 当日尚未告警的合约，保持配置顺序
func (s *Scheduler) pending() []types.Instrument {
	out := make([]types.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		if !s.alerts.IsAlerted(inst.Symbol) {
			out = append(out, inst)
		}
	}
	return out
}

// rollover 交易所日期前进时重置当日状态
func (s *Scheduler) rollover(ctx context.Context, now time.Time) {
	date := s.cal.DateKey(now)
	prev := s.alerts.Date()
	if !s.alerts.Rollover(date) {
		return
	}
	zap.L().Info("🌅 日期切换，清空告警状态", zap.String("from", prev), zap.String("to", date))
	s.restoreAlerted(ctx)
}

// restoreAlerted 从外部镜像恢复当日已告警合约
func (s *Scheduler) restoreAlerted(ctx context.Context) {
	if s.store == nil {
		return
	}
	symbols, err := s.store.LoadAlerted(ctx, s.alerts.Date())
	if err != nil {
		zap.L().Warn("⚠️ 读取已告警状态失败", zap.Error(err))
	}
	for _, symbol := range symbols {
		s.alerts.MarkAlerted(symbol)
	}
	if len(symbols) > 0 {
		zap.L().Info("♻️ 恢复当日已告警合约", zap.Strings("symbols", symbols))
	}
}

func (s *Scheduler) logStorageStats() {
	sr, ok := s.store.(statsReporter)
	if !ok {
		return
	}
	stats := sr.GetRedisStats()
	fields := []zap.Field{
		zap.Int("cycle", s.report.Cycles),
		zap.Int("pending", len(s.pending())),
	}
	for _, k := range []string{"redis_enabled", "memory_alerted", "redis_keys"} {
		if v, ok := stats[k]; ok {
			fields = append(fields, zap.Any(k, v))
		}
	}
	zap.L().Debug(fmt.Sprintf("--- 轮询 #%d ---", s.report.Cycles), fields...)
}

func (s *Scheduler) setState(state State) {
	if s.state != state {
		zap.L().Debug("🔄 调度器状态切换", zap.Stringer("from", s.state), zap.Stringer("to", state))
	}
	s.state = state
	s.monitor.SetState(state.String(), stateNames)
}

func (s *Scheduler) finish(reason string) *SessionReport {
	s.setState(StateDone)
	s.report.Reason = reason
	s.report.FinishedAt = s.now()
	s.report.Alerted = s.alerts.Alerted()

	zap.L().Info("🏁 监控会话结束",
		zap.String("run_id", s.report.RunID),
		zap.String("reason", reason),
		zap.Int("cycles", s.report.Cycles),
		zap.Int("evaluations", s.report.Evaluations),
		zap.Int("signals", s.report.Signals),
		zap.Int("delivered", s.report.Delivered),
		zap.Int("failures", s.report.Failures),
		zap.Strings("alerted", s.report.Alerted))
	s.monitor.GenerateReport()
	return s.report
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
