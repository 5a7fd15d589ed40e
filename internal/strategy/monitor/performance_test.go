package monitor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha15-sentry/pkg/types"
)

// value 读取 registry 中指定标签的指标值
func value(t *testing.T, pm *PerformanceMonitor, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := pm.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m.GetLabel(), labels) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPerformanceMonitor_Counters(t *testing.T) {
	pm := NewPerformanceMonitor()

	pm.RecordEvaluation("A", ResultNoSignal)
	pm.RecordEvaluation("A", ResultFetchError)
	pm.RecordEvaluation("B", ResultSignal)
	pm.RecordSignal(&types.TradingSignal{
		Symbol:     "B",
		SignalType: types.SignalBuy,
		Price:      103,
		SignalTime: time.Date(2025, 8, 28, 9, 31, 0, 0, time.UTC),
	}, true)
	pm.RecordSignal(&types.TradingSignal{Symbol: "C", SignalType: types.SignalSell, Price: 97}, false)
	pm.RecordCycle()

	assert.Equal(t, 1.0, value(t, pm, "alpha15_evaluations_total", map[string]string{"result": ResultFetchError}))
	assert.Equal(t, 1.0, value(t, pm, "alpha15_signals_total", map[string]string{"symbol": "B", "side": "BUY"}))
	assert.Equal(t, 1.0, value(t, pm, "alpha15_notifications_total", map[string]string{"outcome": "failed"}))
	assert.Equal(t, 1.0, value(t, pm, "alpha15_poll_cycles_total", map[string]string{}))

	m := pm.GetMetrics()
	assert.Equal(t, int64(3), m.Evaluations)
	assert.Equal(t, int64(1), m.FetchFailures)
	assert.Equal(t, int64(2), m.TotalSignals)
	assert.Equal(t, int64(1), m.BuySignals)
	assert.Equal(t, int64(1), m.SellSignals)
	assert.Equal(t, int64(1), m.Delivered)
	assert.Equal(t, int64(1), m.Undelivered)
	require.Contains(t, m.SymbolStats, "B")
	assert.Equal(t, types.SignalBuy, m.SymbolStats["B"].LastSignalType)
	assert.Equal(t, 1, m.SymbolStats["A"].FetchFailures)

	report := pm.FormattedReport()
	assert.Contains(t, report, "B: BUY @ 103.00")
	assert.NotContains(t, report, "A: ")
}

func TestPerformanceMonitor_SetState(t *testing.T) {
	pm := NewPerformanceMonitor()
	all := []string{"waiting", "polling", "done"}

	pm.SetState("polling", all)
	pm.SetState("done", all)

	assert.Equal(t, 0.0, value(t, pm, "alpha15_scheduler_state", map[string]string{"state": "polling"}))
	assert.Equal(t, 1.0, value(t, pm, "alpha15_scheduler_state", map[string]string{"state": "done"}))
}

func TestPerformanceMonitor_NilSafe(t *testing.T) {
	var pm *PerformanceMonitor
	assert.NotPanics(t, func() {
		pm.RecordEvaluation("A", ResultSignal)
		pm.RecordSignal(&types.TradingSignal{Symbol: "A"}, true)
		pm.RecordCycle()
		pm.SetState("done", nil)
		pm.GenerateReport()
	})
}

func TestPerformanceMonitor_MetricsEndpoint(t *testing.T) {
	pm := NewPerformanceMonitor()
	pm.RecordEvaluation("A", ResultSignal)

	srv := httptest.NewServer(promhttp.HandlerFor(pm.Registry(), promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `alpha15_evaluations_total{result="signal"} 1`)
}

func TestPerformanceMonitor_JSON(t *testing.T) {
	pm := NewPerformanceMonitor()
	pm.RecordCycle()

	out, err := pm.GetMetricsJSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"cycles": 1`)
}
