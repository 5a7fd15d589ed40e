package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"alpha15-sentry/pkg/types"
)

const (
	DefaultBaseURL = "https://apiconnect.angelone.in"

	loginPath  = "/rest/auth/angelbroking/user/v1/loginByPassword"
	logoutPath = "/rest/secure/angelbroking/user/v1/logout"
	candlePath = "/rest/secure/angelbroking/historical/v1/getCandleData"
	ltpPath    = "/rest/secure/angelbroking/order/v1/getLtpData"

	// CandleTimeLayout getCandleData 的 fromdate/todate 格式
	CandleTimeLayout = "2006-01-02 15:04"
)

var (
	// ErrNotLoggedIn 尚未建立会话
	ErrNotLoggedIn = errors.New("smartapi session not established")
	// ErrNoData 接口成功但没有返回数据
	ErrNoData = types.ErrNoData
)

// APIError SmartAPI 业务错误（status=false）
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartapi error %s: %s", e.Code, e.Message)
}

// HTTPError 非200响应
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP响应错误: %d %s", e.StatusCode, e.Body)
}

// Temporary 5xx 与 429 可以重试
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Session 登录后获得的令牌
type Session struct {
	ClientCode   string
	JWTToken     string
	RefreshToken string
	FeedToken    string
	LoginAt      time.Time
}

// CandleRequest 历史K线请求
type CandleRequest struct {
	Exchange string
	Token    string
	Interval types.Interval
	From     time.Time
	To       time.Time
}

type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

type loginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

type ltpData struct {
	Exchange      string  `json:"exchange"`
	TradingSymbol string  `json:"tradingsymbol"`
	SymbolToken   string  `json:"symboltoken"`
	LTP           float64 `json:"ltp"`
}

// SmartAPIClient Angel One SmartAPI REST 客户端
type SmartAPIClient struct {
	cfg        types.SmartAPIConfig
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	now        func() time.Time

	mu      sync.RWMutex
	session *Session
}

// NewSmartAPIClient 创建客户端，按网络配置设置超时与代理
func NewSmartAPIClient(cfg types.SmartAPIConfig, networkConfig types.NetworkConfig) *SmartAPIClient {
	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}

	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", networkConfig.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &SmartAPIClient{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: httpClient,
		// getCandleData 官方限制 3次/秒、180次/分钟
		limiter: NewRateLimiter(3, 180, 5000),
		now:     time.Now,
	}
}

// Login 用客户号、PIN和TOTP登录
func (c *SmartAPIClient) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, c.now())
	if err != nil {
		return fmt.Errorf("生成TOTP失败: %w", err)
	}

	payload := map[string]string{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.PIN,
		"totp":       code,
	}

	var data loginData
	if err := c.post(ctx, loginPath, payload, &data, false); err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}
	if data.JWTToken == "" {
		return fmt.Errorf("登录失败: 响应中缺少jwtToken")
	}

	c.mu.Lock()
	c.session = &Session{
		ClientCode:   c.cfg.ClientCode,
		JWTToken:     data.JWTToken,
		RefreshToken: data.RefreshToken,
		FeedToken:    data.FeedToken,
		LoginAt:      c.now(),
	}
	c.mu.Unlock()

	zap.L().Info("✅ SmartAPI登录成功", zap.String("client_code", c.cfg.ClientCode))
	return nil
}

// Logout 注销会话，失败只记录日志
func (c *SmartAPIClient) Logout(ctx context.Context) {
	if _, ok := c.Session(); !ok {
		return
	}
	payload := map[string]string{"clientcode": c.cfg.ClientCode}
	if err := c.post(ctx, logoutPath, payload, nil, true); err != nil {
		zap.L().Warn("⚠️ SmartAPI注销失败", zap.Error(err))
	}

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// Session 返回当前会话
func (c *SmartAPIClient) Session() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// APIKey 用于行情WebSocket鉴权
func (c *SmartAPIClient) APIKey() string {
	return c.cfg.APIKey
}

// CandleData 获取历史K线原始行 [timestamp, open, high, low, close, volume]
func (c *SmartAPIClient) CandleData(ctx context.Context, req CandleRequest) ([][]json.RawMessage, error) {
	payload := map[string]string{
		"exchange":    req.Exchange,
		"symboltoken": req.Token,
		"interval":    string(req.Interval),
		"fromdate":    req.From.Format(CandleTimeLayout),
		"todate":      req.To.Format(CandleTimeLayout),
	}

	var rows [][]json.RawMessage
	if err := c.post(ctx, candlePath, payload, &rows, true); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return rows, nil
}

// LTP 获取最新成交价
func (c *SmartAPIClient) LTP(ctx context.Context, exchange, tradingSymbol, token string) (float64, error) {
	payload := map[string]string{
		"exchange":      exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   token,
	}

	var data *ltpData
	if err := c.post(ctx, ltpPath, payload, &data, true); err != nil {
		return 0, err
	}
	if data == nil {
		return 0, ErrNoData
	}
	return data.LTP, nil
}

// post 发送请求并解析统一响应信封，out 为nil时忽略data
func (c *SmartAPIClient) post(ctx context.Context, path string, payload interface{}, out interface{}, auth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	c.setHeaders(req)

	if auth {
		session, ok := c.Session()
		if !ok {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+session.JWTToken)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	if !env.Status {
		return &APIError{Code: env.ErrorCode, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("解析data失败: %w", err)
	}
	return nil
}

func (c *SmartAPIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Alpha15-Sentry/1.0")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", "127.0.0.1")
	req.Header.Set("X-ClientPublicIP", "127.0.0.1")
	req.Header.Set("X-MACAddress", "00:00:00:00:00:00")
	req.Header.Set("X-PrivateKey", c.cfg.APIKey)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
