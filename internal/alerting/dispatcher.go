package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/diegodella1/slackalerts/internal/storage"
)

// Payload 封装单条告警的投递上下文。
type Payload struct {
	Text      string
	Price     decimal.Decimal
	Variation *decimal.Decimal
	Timestamp time.Time
}

// Outcome is the terminal delivery result recorded on the alert event.
// A failed attempt is not retried.
type Outcome struct {
	Attempted bool
	Sent      bool
	Response  string
}

// Dispatcher 定义告警输送接口。
type Dispatcher interface {
	Dispatch(ctx context.Context, target storage.Webhook, payload Payload) Outcome
}

// WebhookDispatcher 通过 HTTP POST 将已渲染的消息发送到外部端点。
type WebhookDispatcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookDispatcher 构造 webhook 投递器。
func NewWebhookDispatcher(timeout time.Duration, logger zerolog.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookDispatcher{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "webhook_dispatcher").Logger(),
	}
}

// Dispatch performs a single delivery attempt against the target and
// reports the outcome. Transport errors and non-2xx responses are
// captured in the outcome rather than returned.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, target storage.Webhook, payload Payload) Outcome {
	body, err := json.Marshal(buildBody(target.Type, payload))
	if err != nil {
		return Outcome{Attempted: true, Response: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Attempted: true, Response: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error().Err(err).Str("url", target.URL).Msg("webhook 投递失败")
		return Outcome{Attempted: true, Response: fmt.Sprintf("send webhook: %v", err)}
	}
	defer resp.Body.Close()

	snippet := readSnippet(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Warn().Int("status", resp.StatusCode).Str("url", target.URL).Msg("webhook 被远端拒绝")
		return Outcome{Attempted: true, Response: fmt.Sprintf("status %d: %s", resp.StatusCode, snippet)}
	}

	d.logger.Info().
		Str("type", target.Type).
		Int("status", resp.StatusCode).
		Msg("告警已发送")
	return Outcome{Attempted: true, Sent: true, Response: resp.Status}
}

// buildBody 按目标类型组装请求体。Slack 额外附带 blocks 版式。
func buildBody(targetType string, payload Payload) any {
	var variation any
	if payload.Variation != nil {
		variation = payload.Variation.InexactFloat64()
	}

	switch targetType {
	case storage.WebhookTypeSlack:
		return map[string]any{
			"text": payload.Text,
			"blocks": []map[string]any{
				{
					"type": "section",
					"text": map[string]string{
						"type": "mrkdwn",
						"text": payload.Text,
					},
				},
				{
					"type": "context",
					"elements": []map[string]string{
						{
							"type": "mrkdwn",
							"text": fmt.Sprintf("Price: $%s | %s UTC", FormatAmount(payload.Price), payload.Timestamp.UTC().Format(time.RFC3339)),
						},
					},
				},
			},
		}
	case storage.WebhookTypeDiscord:
		return map[string]any{
			"content": payload.Text,
		}
	default:
		return map[string]any{
			"text":      payload.Text,
			"price":     payload.Price.InexactFloat64(),
			"variation": variation,
			"timestamp": payload.Timestamp.UTC().Format(time.RFC3339),
		}
	}
}

func readSnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

var _ Dispatcher = (*WebhookDispatcher)(nil)
