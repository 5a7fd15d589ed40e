package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"alpha15-sentry/pkg/types"
)

// 评估结果标签
const (
	ResultSignal      = "signal"
	ResultNoSignal    = "no_signal"
	ResultUnavailable = "unavailable"
	ResultFetchError  = "fetch_error"
)

// PerformanceMonitor 会话运行指标：Prometheus计数器 + 内存快照
type PerformanceMonitor struct {
	registry *prometheus.Registry

	evaluations    *prometheus.CounterVec
	signals        *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	cycles         prometheus.Counter
	schedulerPhase *prometheus.GaugeVec

	mu      sync.Mutex
	metrics *PerformanceMetrics
}

// PerformanceMetrics 性能指标
type PerformanceMetrics struct {
	StartTime      time.Time                 `json:"start_time"`
	Cycles         int64                     `json:"cycles"`
	Evaluations    int64                     `json:"evaluations"`
	FetchFailures  int64                     `json:"fetch_failures"`
	TotalSignals   int64                     `json:"total_signals"`
	BuySignals     int64                     `json:"buy_signals"`
	SellSignals    int64                     `json:"sell_signals"`
	Delivered      int64                     `json:"delivered"`
	Undelivered    int64                     `json:"undelivered"`
	SymbolStats    map[string]*SymbolMetrics `json:"symbol_stats"`
	LastUpdateTime time.Time                 `json:"last_update_time"`
}

// SymbolMetrics 单个合约的指标
type SymbolMetrics struct {
	Symbol          string       `json:"symbol"`
	Evaluations     int          `json:"evaluations"`
	FetchFailures   int          `json:"fetch_failures"`
	LastSignalTime  time.Time    `json:"last_signal_time"`
	LastSignalType  types.Signal `json:"last_signal_type"`
	LastSignalPrice float64      `json:"last_signal_price"`
}

// NewPerformanceMonitor 创建监控器，使用独立的 registry
func NewPerformanceMonitor() *PerformanceMonitor {
	pm := &PerformanceMonitor{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "alpha15_evaluations_total", Help: "Instrument evaluations by result"},
			[]string{"result"},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "alpha15_signals_total", Help: "Breakout signals accepted"},
			[]string{"symbol", "side"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "alpha15_notifications_total", Help: "Alert deliveries by outcome"},
			[]string{"outcome"},
		),
		cycles: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "alpha15_poll_cycles_total", Help: "Completed polling cycles"},
		),
		schedulerPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "alpha15_scheduler_state", Help: "1 for the scheduler's current state"},
			[]string{"state"},
		),
		metrics: &PerformanceMetrics{
			StartTime:   time.Now(),
			SymbolStats: make(map[string]*SymbolMetrics),
		},
	}
	pm.registry.MustRegister(pm.evaluations, pm.signals, pm.notifications, pm.cycles, pm.schedulerPhase)
	return pm
}

// Registry 暴露给测试与 /metrics
func (pm *PerformanceMonitor) Registry() *prometheus.Registry {
	return pm.registry
}

// Serve 在 addr 上提供 /metrics，后台运行
func (pm *PerformanceMonitor) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("❌ 指标服务异常退出", zap.String("addr", addr), zap.Error(err))
		}
	}()
	zap.L().Info("📊 指标服务已启动", zap.String("addr", addr))
	return srv
}

// RecordEvaluation 记录一次评估结果
func (pm *PerformanceMonitor) RecordEvaluation(symbol, result string) {
	if pm == nil {
		return
	}
	pm.evaluations.WithLabelValues(result).Inc()

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.metrics.Evaluations++
	sm := pm.symbol(symbol)
	sm.Evaluations++
	if result == ResultFetchError {
		pm.metrics.FetchFailures++
		sm.FetchFailures++
	}
	pm.metrics.LastUpdateTime = time.Now()
}

// RecordSignal 记录被接受的信号及投递结果
func (pm *PerformanceMonitor) RecordSignal(signal *types.TradingSignal, delivered bool) {
	if pm == nil || signal == nil {
		return
	}
	pm.signals.WithLabelValues(signal.Symbol, string(signal.SignalType)).Inc()
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	pm.notifications.WithLabelValues(outcome).Inc()

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.metrics.TotalSignals++
	switch signal.SignalType {
	case types.SignalBuy:
		pm.metrics.BuySignals++
	case types.SignalSell:
		pm.metrics.SellSignals++
	}
	if delivered {
		pm.metrics.Delivered++
	} else {
		pm.metrics.Undelivered++
	}
	sm := pm.symbol(signal.Symbol)
	sm.LastSignalTime = signal.SignalTime
	sm.LastSignalType = signal.SignalType
	sm.LastSignalPrice = signal.Price
	pm.metrics.LastUpdateTime = time.Now()
}

// RecordCycle 记录完成一轮轮询
func (pm *PerformanceMonitor) RecordCycle() {
	if pm == nil {
		return
	}
	pm.cycles.Inc()
	pm.mu.Lock()
	pm.metrics.Cycles++
	pm.mu.Unlock()
}

// SetState 标记调度器当前状态
func (pm *PerformanceMonitor) SetState(state string, all []string) {
	if pm == nil {
		return
	}
	for _, s := range all {
		pm.schedulerPhase.WithLabelValues(s).Set(0)
	}
	pm.schedulerPhase.WithLabelValues(state).Set(1)
}

// symbol 调用方需持有 mu
func (pm *PerformanceMonitor) symbol(symbol string) *SymbolMetrics {
	sm := pm.metrics.SymbolStats[symbol]
	if sm == nil {
		sm = &SymbolMetrics{Symbol: symbol}
		pm.metrics.SymbolStats[symbol] = sm
	}
	return sm
}

// GetMetrics 返回指标快照
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	snapshot := *pm.metrics
	snapshot.SymbolStats = make(map[string]*SymbolMetrics, len(pm.metrics.SymbolStats))
	for k, v := range pm.metrics.SymbolStats {
		cp := *v
		snapshot.SymbolStats[k] = &cp
	}
	return snapshot
}

// GetMetricsJSON 获取JSON格式的性能指标
func (pm *PerformanceMonitor) GetMetricsJSON() (string, error) {
	metrics := pm.GetMetrics()
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GenerateReport 输出会话报告到日志
func (pm *PerformanceMonitor) GenerateReport() {
	if pm == nil {
		return
	}
	metrics := pm.GetMetrics()

	zap.L().Info("📈 会话运行报告",
		zap.Duration("run_time", time.Since(metrics.StartTime).Truncate(time.Second)),
		zap.Int64("cycles", metrics.Cycles),
		zap.Int64("evaluations", metrics.Evaluations),
		zap.Int64("fetch_failures", metrics.FetchFailures),
		zap.Int64("total_signals", metrics.TotalSignals),
		zap.Int64("buy_signals", metrics.BuySignals),
		zap.Int64("sell_signals", metrics.SellSignals),
		zap.Int64("delivered", metrics.Delivered),
		zap.Int64("undelivered", metrics.Undelivered))

	for _, sm := range sortedSymbols(metrics) {
		if sm.LastSignalType == types.SignalNone {
			continue
		}
		zap.L().Info("📊 合约信号",
			zap.String("symbol", sm.Symbol),
			zap.String("signal_type", string(sm.LastSignalType)),
			zap.Float64("price", sm.LastSignalPrice),
			zap.Time("signal_time", sm.LastSignalTime),
			zap.Int("evaluations", sm.Evaluations))
	}
}

// FormattedReport 返回文本格式报告
func (pm *PerformanceMonitor) FormattedReport() string {
	metrics := pm.GetMetrics()

	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("📈 Alpha15 会话报告\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "🔄 轮询次数: %d\n", metrics.Cycles)
	fmt.Fprintf(&b, "📊 评估次数: %d (请求失败 %d)\n", metrics.Evaluations, metrics.FetchFailures)
	fmt.Fprintf(&b, "🎯 信号: %d (📈 BUY %d / 📉 SELL %d)\n", metrics.TotalSignals, metrics.BuySignals, metrics.SellSignals)
	fmt.Fprintf(&b, "📨 通知: 成功 %d / 失败 %d\n", metrics.Delivered, metrics.Undelivered)
	b.WriteString(strings.Repeat("-", 60) + "\n")
	for _, sm := range sortedSymbols(metrics) {
		if sm.LastSignalType == types.SignalNone {
			continue
		}
		fmt.Fprintf(&b, "💹 %s: %s @ %.2f %s\n",
			sm.Symbol, sm.LastSignalType, sm.LastSignalPrice, sm.LastSignalTime.Format("15:04:05"))
	}
	b.WriteString(strings.Repeat("=", 60) + "\n")
	return b.String()
}

func sortedSymbols(metrics PerformanceMetrics) []*SymbolMetrics {
	out := make([]*SymbolMetrics, 0, len(metrics.SymbolStats))
	for _, sm := range metrics.SymbolStats {
		out = append(out, sm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
