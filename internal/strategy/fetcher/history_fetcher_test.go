package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	smartapi "alpha15-sentry/internal/fetcher"
	"alpha15-sentry/internal/retry"
	"alpha15-sentry/pkg/types"
)

type fakeSource struct {
	rows      [][]json.RawMessage
	ltp       float64
	errs      []error
	candleReq []smartapi.CandleRequest
	ltpCalls  int
}

func (f *fakeSource) nextErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeSource) CandleData(_ context.Context, req smartapi.CandleRequest) ([][]json.RawMessage, error) {
	f.candleReq = append(f.candleReq, req)
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.rows, nil
}

func (f *fakeSource) LTP(context.Context, string, string, string) (float64, error) {
	f.ltpCalls++
	if err := f.nextErr(); err != nil {
		return 0, err
	}
	return f.ltp, nil
}

type fakeQuotes struct {
	price   float64
	updated time.Time
	ok      bool
}

func (f fakeQuotes) Quote(string) (float64, time.Time, bool) {
	return f.price, f.updated, f.ok
}

func rawRows(t *testing.T, rows ...[]interface{}) [][]json.RawMessage {
	t.Helper()
	b, err := json.Marshal(rows)
	require.NoError(t, err)
	var out [][]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

var testInstrument = types.Instrument{Symbol: "RELIANCE28AUG25FUT", Token: "1234", TickSize: 0.05, Exchange: "NFO"}

func newFetcher(src CandleSource) *HistoryKlineFetcher {
	loc := time.FixedZone("IST", 5*3600+1800)
	return NewHistoryKlineFetcher(src, loc).WithRetryer(retry.Fixed(3, time.Millisecond))
}

func TestFetchHistoryKlines_Parse(t *testing.T) {
	src := &fakeSource{rows: rawRows(t,
		[]interface{}{"2025-08-27T09:15:00+05:30", 100.0, 102.0, 99.5, 101.5, 12000},
		[]interface{}{"2025-08-27T09:30:00+05:30", "101.5", "103", "101", "102.5", "9000"},
	)}
	f := newFetcher(src)

	from := time.Date(2025, 8, 27, 3, 45, 0, 0, time.UTC)
	klines, err := f.IntradayCandles(context.Background(), testInstrument, from, from.Add(6*time.Hour+15*time.Minute))
	require.NoError(t, err)
	require.Len(t, klines, 2)

	assert.Equal(t, 100.0, klines[0].Open)
	assert.Equal(t, 99.5, klines[0].Low)
	assert.Equal(t, 12000.0, klines[0].Volume)
	assert.Equal(t, types.IntervalFifteenMinute, klines[0].Interval)
	assert.Equal(t, 15*time.Minute, klines[0].CloseTime.Sub(klines[0].OpenTime))
	assert.Equal(t, 103.0, klines[1].High)

	require.Len(t, src.candleReq, 1)
	req := src.candleReq[0]
	assert.Equal(t, "09:15", req.From.Format("15:04"))
	assert.Equal(t, "1234", req.Token)
	assert.Equal(t, "NFO", req.Exchange)
}

func TestFetchHistoryKlines_DailyInterval(t *testing.T) {
	src := &fakeSource{rows: rawRows(t,
		[]interface{}{"2025-08-26T00:00:00+05:30", 100, 105, 95, 101, 1},
	)}
	klines, err := newFetcher(src).DailyCandles(context.Background(), testInstrument, time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, types.IntervalOneDay, src.candleReq[0].Interval)
}

func TestFetchHistoryKlines_RetriesTransientErrors(t *testing.T) {
	src := &fakeSource{
		rows: rawRows(t, []interface{}{"2025-08-27T09:15:00+05:30", 100, 102, 99.5, 101.5, 1}),
		errs: []error{errors.New("connection reset"), &smartapi.HTTPError{StatusCode: http.StatusBadGateway}},
	}
	klines, err := newFetcher(src).IntradayCandles(context.Background(), testInstrument, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Len(t, klines, 1)
	assert.Len(t, src.candleReq, 3)
}

func TestFetchHistoryKlines_GivesUpAfterThreeAttempts(t *testing.T) {
	boom := errors.New("timeout")
	src := &fakeSource{errs: []error{boom, boom, boom, boom}}
	_, err := newFetcher(src).IntradayCandles(context.Background(), testInstrument, time.Now(), time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, src.candleReq, 3)
}

func TestFetchHistoryKlines_NoDataIsNotRetried(t *testing.T) {
	src := &fakeSource{errs: []error{smartapi.ErrNoData}}
	_, err := newFetcher(src).IntradayCandles(context.Background(), testInstrument, time.Now(), time.Now())
	assert.ErrorIs(t, err, types.ErrNoData)
	assert.Len(t, src.candleReq, 1)
}

func TestFetchHistoryKlines_ClientErrorIsNotRetried(t *testing.T) {
	src := &fakeSource{errs: []error{&smartapi.HTTPError{StatusCode: http.StatusBadRequest}}}
	_, err := newFetcher(src).IntradayCandles(context.Background(), testInstrument, time.Now(), time.Now())
	assert.Error(t, err)
	assert.Len(t, src.candleReq, 1)
}

func TestFetchHistoryKlines_InvalidCandle(t *testing.T) {
	src := &fakeSource{rows: rawRows(t,
		[]interface{}{"2025-08-27T09:15:00+05:30", 100, 99, 98, 101, 1},
	)}
	_, err := newFetcher(src).IntradayCandles(context.Background(), testInstrument, time.Now(), time.Now())
	assert.ErrorIs(t, err, types.ErrInvalidCandle)
}

func TestFetchHistoryKlines_OutOfOrder(t *testing.T) {
	src := &fakeSource{rows: rawRows(t,
		[]interface{}{"2025-08-27T09:30:00+05:30", 100, 101, 99, 100, 1},
		[]interface{}{"2025-08-27T09:15:00+05:30", 100, 101, 99, 100, 1},
	)}
	_, err := newFetcher(src).IntradayCandles(context.Background(), testInstrument, time.Now(), time.Now())
	assert.ErrorIs(t, err, types.ErrInvalidCandle)
}

func TestFetchHistoryKlines_MalformedRow(t *testing.T) {
	src := &fakeSource{rows: rawRows(t,
		[]interface{}{"not-a-time", 100, 101, 99, 100, 1},
	)}
	_, err := newFetcher(src).IntradayCandles(context.Background(), testInstrument, time.Now(), time.Now())
	assert.ErrorIs(t, err, types.ErrInvalidCandle)
}

func TestLastTradedPrice_REST(t *testing.T) {
	src := &fakeSource{ltp: 103, errs: []error{errors.New("flaky")}}
	ltp, err := newFetcher(src).LastTradedPrice(context.Background(), testInstrument)
	require.NoError(t, err)
	assert.Equal(t, 103.0, ltp)
	assert.Equal(t, 2, src.ltpCalls)
}

func TestLastTradedPrice_PrefersFreshQuote(t *testing.T) {
	now := time.Date(2025, 8, 28, 4, 1, 0, 0, time.UTC)
	src := &fakeSource{ltp: 103}

	f := newFetcher(src).WithQuoteCache(fakeQuotes{price: 104.5, updated: now.Add(-2 * time.Second), ok: true}, 5*time.Second)
	f.now = func() time.Time { return now }

	ltp, err := f.LastTradedPrice(context.Background(), testInstrument)
	require.NoError(t, err)
	assert.Equal(t, 104.5, ltp)
	assert.Equal(t, 0, src.ltpCalls)
}

func TestLastTradedPrice_StaleQuoteFallsBack(t *testing.T) {
	now := time.Date(2025, 8, 28, 4, 1, 0, 0, time.UTC)
	src := &fakeSource{ltp: 103}

	f := newFetcher(src).WithQuoteCache(fakeQuotes{price: 104.5, updated: now.Add(-time.Minute), ok: true}, 5*time.Second)
	f.now = func() time.Time { return now }

	ltp, err := f.LastTradedPrice(context.Background(), testInstrument)
	require.NoError(t, err)
	assert.Equal(t, 103.0, ltp)
	assert.Equal(t, 1, src.ltpCalls)
}
