package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"alpha15-sentry/pkg/types"
)

const pushPlusEndpoint = "http://www.pushplus.plus/send"

// PushPlusNotifier PushPlus通知器
type PushPlusNotifier struct {
	userToken  string
	to         string // 好友令牌，多人用逗号分隔
	endpoint   string
	httpClient *http.Client
}

type PushPlusRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
	To       string `json:"to,omitempty"`
}

type PushPlusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

func NewPushPlusNotifier(userToken, to string) *PushPlusNotifier {
	return &PushPlusNotifier{
		userToken: userToken,
		to:        to,
		endpoint:  pushPlusEndpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (ppn *PushPlusNotifier) Name() string { return "pushplus" }

func (ppn *PushPlusNotifier) Send(ctx context.Context, signal *types.TradingSignal) error {
	return ppn.sendPushPlusMessage(ctx, FormatMessage(signal), ppn.buildHTMLContent(signal))
}

func (ppn *PushPlusNotifier) buildHTMLContent(signal *types.TradingSignal) string {
	color := "#00C851"
	if signal.SignalType == types.SignalSell {
		color = "#FF4444"
	}

	return fmt.Sprintf(`
<div style="border: 2px solid %s; border-radius: 10px; padding: 20px; margin: 10px; background-color: #f9f9f9;">
    <h2 style="color: %s; text-align: center; margin-top: 0;">%s %s</h2>
    <div style="background-color: white; padding: 15px; border-radius: 8px; margin: 10px 0;">
        <p><strong>合约:</strong> %s (%s)</p>
        <p><strong>首根K线:</strong> O %s / H %s / L %s</p>
        <p><strong>POC:</strong> %s</p>
        <p><strong>ATR(14):</strong> %s</p>
        <p><strong>信号时间:</strong> <span style="color: #666;">%s</span></p>
    </div>
</div>
`,
		color, color, directionEmoji(signal), FormatMessage(signal),
		signal.Symbol, signal.Exchange,
		FormatPrice(signal.FirstOpen), FormatPrice(signal.FirstHigh), FormatPrice(signal.FirstLow),
		FormatPrice(signal.POC),
		FormatPrice(signal.ATRValue),
		signal.SignalTime.Format("2006-01-02 15:04:05"))
}

func (ppn *PushPlusNotifier) sendPushPlusMessage(ctx context.Context, title, content string) error {
	reqData := PushPlusRequest{
		Token:    ppn.userToken,
		Title:    title,
		Content:  content,
		Template: "html",
		To:       ppn.to,
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return fmt.Errorf("序列化请求数据失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ppn.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ppn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("PushPlus HTTP响应错误: %d", resp.StatusCode)
	}

	var pushResp PushPlusResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if pushResp.Code != 200 {
		return fmt.Errorf("PushPlus API错误: %s", pushResp.Msg)
	}
	return nil
}
