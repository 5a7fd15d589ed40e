package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	smartapi "alpha15-sentry/internal/fetcher"
	"alpha15-sentry/internal/retry"
	"alpha15-sentry/pkg/types"
)

// CandleSource SmartAPI 历史K线与LTP接口
type CandleSource interface {
	CandleData(ctx context.Context, req smartapi.CandleRequest) ([][]json.RawMessage, error)
	LTP(ctx context.Context, exchange, tradingSymbol, token string) (float64, error)
}

// QuoteCache 实时推送的最新价缓存
type QuoteCache interface {
	Quote(token string) (price float64, updated time.Time, ok bool)
}

// HistoryKlineFetcher 历史K线与最新价获取器，失败按固定间隔重试
type HistoryKlineFetcher struct {
	source      CandleSource
	retryer     *retry.Retryer
	loc         *time.Location
	quotes      QuoteCache
	maxQuoteAge time.Duration
	now         func() time.Time
}

// NewHistoryKlineFetcher 创建获取器，默认3次尝试、间隔2秒
func NewHistoryKlineFetcher(source CandleSource, loc *time.Location) *HistoryKlineFetcher {
	if loc == nil {
		loc = time.UTC
	}
	return &HistoryKlineFetcher{
		source:  source,
		retryer: retry.Fixed(3, 2*time.Second),
		loc:     loc,
		now:     time.Now,
	}
}

// WithRetryer 替换重试策略
func (h *HistoryKlineFetcher) WithRetryer(r *retry.Retryer) *HistoryKlineFetcher {
	h.retryer = r
	return h
}

// WithQuoteCache 优先使用推送行情，超过 maxAge 的价格回退到REST
func (h *HistoryKlineFetcher) WithQuoteCache(cache QuoteCache, maxAge time.Duration) *HistoryKlineFetcher {
	h.quotes = cache
	h.maxQuoteAge = maxAge
	return h
}

// DailyCandles 获取日K线
func (h *HistoryKlineFetcher) DailyCandles(ctx context.Context, inst types.Instrument, from, to time.Time) ([]*types.KLine, error) {
	return h.FetchHistoryKlines(ctx, inst, types.IntervalOneDay, from, to)
}

// IntradayCandles 获取15分钟K线
func (h *HistoryKlineFetcher) IntradayCandles(ctx context.Context, inst types.Instrument, from, to time.Time) ([]*types.KLine, error) {
	return h.FetchHistoryKlines(ctx, inst, types.IntervalFifteenMinute, from, to)
}

// FetchHistoryKlines 获取历史K线数据并转换为内部格式
func (h *HistoryKlineFetcher) FetchHistoryKlines(ctx context.Context, inst types.Instrument, interval types.Interval, from, to time.Time) ([]*types.KLine, error) {
	req := smartapi.CandleRequest{
		Exchange: inst.Exchange,
		Token:    inst.Token,
		Interval: interval,
		From:     from.In(h.loc),
		To:       to.In(h.loc),
	}

	zap.L().Debug("📊 获取历史K线数据",
		zap.String("symbol", inst.Symbol),
		zap.String("interval", string(interval)),
		zap.String("from", req.From.Format(smartapi.CandleTimeLayout)),
		zap.String("to", req.To.Format(smartapi.CandleTimeLayout)))

	var rows [][]json.RawMessage
	err := h.retryer.Do(ctx, func(attempt uint) error {
		var err error
		rows, err = h.source.CandleData(ctx, req)
		if err != nil {
			h.logAttempt(inst.Symbol, "candles", attempt, err)
		}
		return classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("获取%s K线失败 %s: %w", interval, inst.Symbol, err)
	}

	klines := make([]*types.KLine, 0, len(rows))
	for _, row := range rows {
		kline, err := h.parseCandleRow(inst.Symbol, row, interval)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidCandle, inst.Symbol, err)
		}
		klines = append(klines, kline)
	}

	if err := types.ValidateSeries(klines); err != nil {
		return nil, err
	}

	zap.L().Debug("✅ 历史K线数据获取完成",
		zap.String("symbol", inst.Symbol),
		zap.String("interval", string(interval)),
		zap.Int("received", len(klines)))

	return klines, nil
}

// LastTradedPrice 获取最新成交价
func (h *HistoryKlineFetcher) LastTradedPrice(ctx context.Context, inst types.Instrument) (float64, error) {
	if h.quotes != nil {
		if price, updated, ok := h.quotes.Quote(inst.Token); ok && h.now().Sub(updated) <= h.maxQuoteAge {
			return price, nil
		}
	}

	var ltp float64
	err := h.retryer.Do(ctx, func(attempt uint) error {
		var err error
		ltp, err = h.source.LTP(ctx, inst.Exchange, inst.Symbol, inst.Token)
		if err != nil {
			h.logAttempt(inst.Symbol, "ltp", attempt, err)
		}
		return classify(err)
	})
	if err != nil {
		return 0, fmt.Errorf("获取LTP失败 %s: %w", inst.Symbol, err)
	}
	return ltp, nil
}

func (h *HistoryKlineFetcher) logAttempt(symbol, what string, attempt uint, err error) {
	zap.L().Warn("⚠️ 行情请求失败",
		zap.String("symbol", symbol),
		zap.String("request", what),
		zap.Uint("attempt", attempt+1),
		zap.Uint("max_attempts", h.retryer.Attempts()),
		zap.Error(err))
}

// classify 空数据、未登录、4xx 不重试
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrNoData) || errors.Is(err, smartapi.ErrNotLoggedIn) {
		return retry.Permanent(err)
	}
	var httpErr *smartapi.HTTPError
	if errors.As(err, &httpErr) && !httpErr.Temporary() && httpErr.StatusCode != http.StatusUnauthorized {
		return retry.Permanent(err)
	}
	return err
}

// parseCandleRow 解析 SmartAPI K线格式: [timestamp, open, high, low, close, volume]
func (h *HistoryKlineFetcher) parseCandleRow(symbol string, row []json.RawMessage, interval types.Interval) (*types.KLine, error) {
	if len(row) < 5 {
		return nil, fmt.Errorf("K线数据格式不正确: %d列", len(row))
	}

	var ts string
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return nil, fmt.Errorf("解析时间戳失败: %v", err)
	}
	openTime, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, fmt.Errorf("解析时间戳失败: %v", err)
	}
	openTime = openTime.In(h.loc)

	names := []string{"开盘价", "最高价", "最低价", "收盘价", "成交量"}
	values := make([]float64, 5)
	for i := 1; i < len(row) && i <= 5; i++ {
		v, err := parseNumber(row[i])
		if err != nil {
			return nil, fmt.Errorf("解析%s失败: %v", names[i-1], err)
		}
		values[i-1] = v
	}

	return &types.KLine{
		Symbol:    symbol,
		OpenTime:  openTime,
		CloseTime: openTime.Add(interval.Duration()),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Interval:  interval,
	}, nil
}

// parseNumber 兼容数字与字符串两种编码
func parseNumber(raw json.RawMessage) (float64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	return strconv.ParseFloat(s, 64)
}
