package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"alpha15-sentry/pkg/types"
)

// Credentials SmartStream 鉴权信息
type Credentials struct {
	JWTToken   string
	APIKey     string
	ClientCode string
	FeedToken  string
}

type quote struct {
	price   float64
	updated time.Time
}

type tokenList struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

// subscribeRequest SmartStream订阅消息
type subscribeRequest struct {
	CorrelationID string `json:"correlationID"`
	Action        int    `json:"action"`
	Params        struct {
		Mode      int         `json:"mode"`
		TokenList []tokenList `json:"tokenList"`
	} `json:"params"`
}

// Client SmartStream WebSocket客户端，维护最新价缓存
type Client struct {
	endpoint      string
	proxy         string
	creds         Credentials
	conn          *websocket.Conn
	mu            sync.RWMutex
	writeMu       sync.Mutex
	isConnected   bool
	reconnectChan chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
	config        types.StreamConfig
	subscriptions map[string][]string // exchange -> tokens

	quoteMu sync.RWMutex
	quotes  map[string]quote
	now     func() time.Time
}

// NewClient 创建新的WebSocket客户端
func NewClient(endpoint, proxy string, creds Credentials, config types.StreamConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		endpoint:      endpoint,
		proxy:         proxy,
		creds:         creds,
		reconnectChan: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		config:        config,
		subscriptions: make(map[string][]string),
		quotes:        make(map[string]quote),
		now:           time.Now,
	}
}

// Connect 建立WebSocket连接
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dialer := *websocket.DefaultDialer
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return fmt.Errorf("解析代理URL失败: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	header := http.Header{}
	header.Set("Authorization", c.creds.JWTToken)
	header.Set("x-api-key", c.creds.APIKey)
	header.Set("x-client-code", c.creds.ClientCode)
	header.Set("x-feed-token", c.creds.FeedToken)

	conn, _, err := dialer.DialContext(c.ctx, c.endpoint, header)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %w", err)
	}

	c.conn = conn
	c.isConnected = true

	zap.L().Info("✅ WebSocket连接建立成功",
		zap.String("endpoint", c.endpoint),
		zap.String("proxy", c.proxy))

	return nil
}

// Subscribe 订阅一批合约的LTP，重连后自动重新订阅
func (c *Client) Subscribe(instruments []types.Instrument) error {
	byExchange := make(map[string][]string)
	for _, inst := range instruments {
		ex := strings.ToUpper(inst.Exchange)
		byExchange[ex] = append(byExchange[ex], inst.Token)
	}

	c.mu.Lock()
	for ex, tokens := range byExchange {
		c.subscriptions[ex] = append(c.subscriptions[ex], tokens...)
	}
	c.mu.Unlock()

	return c.sendSubscription(byExchange)
}

func (c *Client) sendSubscription(byExchange map[string][]string) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.isConnected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("WebSocket未连接")
	}

	req := subscribeRequest{
		CorrelationID: strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
		Action:        1,
	}
	req.Params.Mode = ModeLTP

	for ex, tokens := range byExchange {
		code, err := exchangeType(ex)
		if err != nil {
			zap.L().Warn("⚠️ 跳过无法订阅的交易所", zap.String("exchange", ex), zap.Error(err))
			continue
		}
		req.Params.TokenList = append(req.Params.TokenList, tokenList{ExchangeType: code, Tokens: tokens})
	}
	if len(req.Params.TokenList) == 0 {
		return nil
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("发送订阅消息失败: %w", err)
	}

	zap.L().Info("📊 已订阅LTP推送",
		zap.String("correlation_id", req.CorrelationID),
		zap.Int("exchanges", len(req.Params.TokenList)))

	return nil
}

// StartReading 开始读取WebSocket数据
func (c *Client) StartReading() {
	go c.readLoop()
	go c.reconnectLoop()
	go c.pingLoop()
}

// readLoop 读取数据循环
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("WebSocket读取panic", zap.Any("error", r))
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-c.ctx.Done():
				return
			}
			continue
		}

		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			zap.L().Error("WebSocket读取消息失败", zap.Error(err))
			c.handleDisconnect(conn)
			continue
		}

		if msgType != websocket.BinaryMessage {
			// pong 或错误信息
			if text := string(message); text != "pong" {
				zap.L().Debug("WebSocket文本消息", zap.String("message", text))
			}
			continue
		}

		tick, err := parseLTPPacket(message)
		if err != nil {
			zap.L().Warn("解析LTP数据失败", zap.Error(err))
			continue
		}
		c.storeQuote(tick)
	}
}

func (c *Client) storeQuote(tick *Tick) {
	c.quoteMu.Lock()
	c.quotes[tick.Token] = quote{price: tick.LTP, updated: c.now()}
	c.quoteMu.Unlock()
}

// Quote 返回合约的最新推送价格及接收时间
func (c *Client) Quote(token string) (float64, time.Time, bool) {
	c.quoteMu.RLock()
	defer c.quoteMu.RUnlock()
	q, ok := c.quotes[token]
	return q.price, q.updated, ok
}

// reconnectLoop 重连循环
func (c *Client) reconnectLoop() {
	reconnectAttempts := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectChan:
			reconnectAttempts++
			if reconnectAttempts > c.config.MaxReconnectAttempts {
				zap.L().Error("达到最大重连次数，停止重连，LTP回退到REST",
					zap.Int("max_attempts", c.config.MaxReconnectAttempts))
				return
			}

			zap.L().Info("尝试重连WebSocket",
				zap.Int("attempt", reconnectAttempts),
				zap.Int("max_attempts", c.config.MaxReconnectAttempts))

			if err := c.Connect(); err != nil {
				zap.L().Error("重连失败", zap.Error(err))
				select {
				case <-time.After(c.config.ReconnectInterval):
				case <-c.ctx.Done():
					return
				}
				c.triggerReconnect()
				continue
			}

			c.mu.RLock()
			subs := make(map[string][]string, len(c.subscriptions))
			for ex, tokens := range c.subscriptions {
				subs[ex] = tokens
			}
			c.mu.RUnlock()

			if err := c.sendSubscription(subs); err != nil {
				zap.L().Error("重新订阅失败", zap.Error(err))
			}

			reconnectAttempts = 0
			zap.L().Info("WebSocket重连成功")
		}
	}
}

// pingLoop 心跳循环，SmartStream 使用文本 "ping"
func (c *Client) pingLoop() {
	interval := c.config.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			isConnected := c.isConnected
			c.mu.RUnlock()

			if !isConnected || conn == nil {
				continue
			}

			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			c.writeMu.Unlock()
			if err != nil {
				zap.L().Error("发送心跳失败", zap.Error(err))
				c.handleDisconnect(conn)
			}
		}
	}
}

// handleDisconnect 处理断线，只处理当前连接，避免重复触发
func (c *Client) handleDisconnect(failed *websocket.Conn) {
	c.mu.Lock()
	if c.conn != failed {
		c.mu.Unlock()
		return
	}
	c.conn.Close()
	c.conn = nil
	c.isConnected = false
	c.mu.Unlock()

	c.triggerReconnect()
}

func (c *Client) triggerReconnect() {
	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

// Close 关闭WebSocket连接
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.isConnected = false
		return err
	}

	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}
