package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"alpha15-sentry/pkg/types"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier 通过 Telegram Bot API 推送纯文本告警
type TelegramNotifier struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier 创建Telegram通知器，proxyURL 可为空
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPIBase,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}
}

func (tn *TelegramNotifier) Name() string { return "telegram" }

func (tn *TelegramNotifier) Send(ctx context.Context, signal *types.TradingSignal) error {
	return tn.sendText(ctx, FormatMessage(signal))
}

// sendText 非200或 ok=false 均视为失败
func (tn *TelegramNotifier) sendText(ctx context.Context, text string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", tn.apiBase, tn.botToken)
	body, err := json.Marshal(map[string]string{
		"chat_id": tn.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Telegram API错误: status %d, body: %s", resp.StatusCode, string(raw))
	}

	var tgResp telegramResponse
	if err := json.Unmarshal(raw, &tgResp); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if !tgResp.OK {
		return fmt.Errorf("Telegram API错误: %s", tgResp.Description)
	}
	return nil
}
