package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"DealPilot/pkg/logger"
)

// WebhookNotifier 以 JSON 形式将告警 POST 到外部地址。
type WebhookNotifier struct {
	URL    string
	client *resty.Client
}

// NewWebhookNotifier 创建 WebhookNotifier，timeout 为 0 时使用 5 秒。
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "dealpilot-alerting")
	return &WebhookNotifier{URL: strings.TrimSpace(url), client: client}
}

// Channel 返回 webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 发送告警。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.client == nil || n.URL == "" {
		logger.L().Warn("WebhookNotifier 未正确配置，跳过发送", slog.String("task_id", event.TaskID))
		return nil
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(event).
		Post(n.URL)
	if err != nil {
		return fmt.Errorf("发送 webhook 告警失败: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode())
	}
	return nil
}
