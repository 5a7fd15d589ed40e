package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpha15-sentry/pkg/types"
)

func buySignal() *types.TradingSignal {
	return &types.TradingSignal{
		Symbol:     "RELIANCE28AUG25FUT",
		Exchange:   "NFO",
		SignalType: types.SignalBuy,
		Price:      103,
		POC:        98,
		ATRValue:   3.5,
		FirstOpen:  100,
		FirstHigh:  102,
		FirstLow:   99,
		SignalTime: time.Date(2025, 8, 1, 9, 31, 0, 0, time.UTC),
	}
}

func TestCleanSymbol(t *testing.T) {
	cases := map[string]string{
		"RELIANCE28AUG25FUT":      "RELIANCE",
		"M&M28AUG25FUT":           "M&M",
		"BAJAJ-AUTO25SEP25FUT":    "BAJAJ-AUTO",
		"NIFTY28AUG2524000CE":     "NIFTY",
		"BANKNIFTY28AUG2551000PE": "BANKNIFTY",
		"RELIANCE":                "RELIANCE",
		"RELIANCE-EQ":             "RELIANCE-EQ",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanSymbol(in), in)
	}
}

func TestFormatMessage(t *testing.T) {
	sig := buySignal()
	assert.Equal(t, "BUY : RELIANCE at LTP: 103.00", FormatMessage(sig))

	sig.SignalType = types.SignalSell
	sig.Price = 96.55
	assert.Equal(t, "SELL: RELIANCE at LTP: 96.55", FormatMessage(sig))
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	cn := &ConsoleNotifier{out: &buf}

	require.NoError(t, cn.Send(context.Background(), buySignal()))
	assert.Contains(t, buf.String(), "BUY : RELIANCE at LTP: 103.00")
	assert.Contains(t, buf.String(), "POC: 98.00")
}

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("bot-token", "42", "")
	tn.apiBase = srv.URL

	require.NoError(t, tn.Send(context.Background(), buySignal()))
	assert.Equal(t, "/botbot-token/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "BUY : RELIANCE at LTP: 103.00", got["text"])
}

func TestTelegramNotifier_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("bot-token", "42", "")
	tn.apiBase = srv.URL

	err := tn.Send(context.Background(), buySignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestTelegramNotifier_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("bot-token", "42", "")
	tn.apiBase = srv.URL

	err := tn.Send(context.Background(), buySignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestDingTalkNotifier_SignedRequest(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	var query map[string][]string
	var msg DingTalkMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_ = json.NewDecoder(r.Body).Decode(&msg)
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	dtn := NewDingTalkNotifier(srv.URL+"/robot/send?access_token=abc", "SECret")
	dtn.now = func() time.Time { return fixed }

	require.NoError(t, dtn.Send(context.Background(), buySignal()))

	mac := hmac.New(sha256.New, []byte("SECret"))
	mac.Write([]byte("1700000000123\nSECret"))
	wantSign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, []string{"abc"}, query["access_token"])
	assert.Equal(t, []string{"1700000000123"}, query["timestamp"])
	assert.Equal(t, []string{wantSign}, query["sign"])
	assert.Equal(t, "markdown", msg.MsgType)
	assert.Equal(t, "BUY : RELIANCE at LTP: 103.00", msg.Markdown.Title)
	assert.Contains(t, msg.Markdown.Text, "RELIANCE28AUG25FUT")
}

func TestDingTalkNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
	}))
	defer srv.Close()

	err := NewDingTalkNotifier(srv.URL, "").Send(context.Background(), buySignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "310000")
}

func TestPushPlusNotifier_Send(t *testing.T) {
	var req PushPlusRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(`{"code":200,"msg":"ok","data":"id"}`))
	}))
	defer srv.Close()

	ppn := NewPushPlusNotifier("user-token", "friend")
	ppn.endpoint = srv.URL

	require.NoError(t, ppn.Send(context.Background(), buySignal()))
	assert.Equal(t, "user-token", req.Token)
	assert.Equal(t, "friend", req.To)
	assert.Equal(t, "html", req.Template)
	assert.Equal(t, "BUY : RELIANCE at LTP: 103.00", req.Title)
}

type flakyChannel struct {
	name     string
	failures int32
	calls    atomic.Int32
}

func (f *flakyChannel) Name() string { return f.name }

func (f *flakyChannel) Send(context.Context, *types.TradingSignal) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("boom")
	}
	return nil
}

func newTestDispatcher(channels ...Interface) (*Dispatcher, *bytes.Buffer) {
	d := NewDispatcher(types.NotifyConfig{MaxAttempts: 3, Backoff: time.Millisecond}, channels...)
	var buf bytes.Buffer
	d.fallback = &ConsoleNotifier{out: &buf}
	return d, &buf
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	ch := &flakyChannel{name: "flaky", failures: 2}
	d, fallback := newTestDispatcher(ch)

	assert.True(t, d.Notify(context.Background(), buySignal()))
	assert.Equal(t, int32(3), ch.calls.Load())
	assert.Empty(t, fallback.String())
}

func TestDispatcher_GivesUpAfterThreeAttempts(t *testing.T) {
	ch := &flakyChannel{name: "down", failures: 100}
	d, fallback := newTestDispatcher(ch)

	assert.False(t, d.Notify(context.Background(), buySignal()))
	assert.Equal(t, int32(3), ch.calls.Load())
	assert.Contains(t, fallback.String(), "BUY : RELIANCE")
}

func TestDispatcher_ChannelsIndependent(t *testing.T) {
	down := &flakyChannel{name: "down", failures: 100}
	up := &flakyChannel{name: "up"}
	d, _ := newTestDispatcher(down, up)

	assert.True(t, d.Notify(context.Background(), buySignal()))
	assert.Equal(t, int32(3), down.calls.Load())
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestDispatcher_FixedBackoff(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("t", "c", "")
	tn.apiBase = srv.URL
	d := NewDispatcher(types.NotifyConfig{MaxAttempts: 3, Backoff: 20 * time.Millisecond}, tn)
	d.fallback = &ConsoleNotifier{out: &bytes.Buffer{}}

	assert.False(t, d.Notify(context.Background(), buySignal()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 20*time.Millisecond)
	}
}

func TestNewFromConfig(t *testing.T) {
	channels := NewFromConfig(&types.Config{})
	require.Len(t, channels, 1)
	assert.Equal(t, "console", channels[0].Name())

	channels = NewFromConfig(&types.Config{
		Telegram: types.TelegramConfig{BotToken: "t", ChatID: "c"},
		DingTalk: types.DingTalkConfig{WebhookURL: "http://example.invalid"},
		PushPlus: types.PushPlusConfig{UserToken: "u"},
		Kafka:    types.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "alpha15.signals"},
	})
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	assert.Equal(t, []string{"telegram", "dingtalk", "pushplus", "kafka"}, names)
	assert.NoError(t, NewDispatcher(types.NotifyConfig{}, channels...).Close())
}
