package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/diegodella1/slackalerts/internal/storage"
)

// RedisPublisher pushes alert events onto a redis channel so external
// consumers (dashboards, bots) can follow firings without polling.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisPublisher wraps a redis client as an alert publisher.
func NewRedisPublisher(client *redis.Client, channel string, logger zerolog.Logger) *RedisPublisher {
	if channel == "" {
		channel = "alerts_sent"
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "redis_publisher").Logger(),
	}
}

type alertMessage struct {
	ID             string    `json:"id"`
	RuleID         string    `json:"rule_id"`
	RuleName       string    `json:"rule_name"`
	TriggeredAt    time.Time `json:"triggered_at"`
	PriceAtTrigger string    `json:"price_at_trigger"`
	Message        string    `json:"message"`
	WebhookSent    bool      `json:"webhook_sent"`
}

// PublishAlert serialises the event and publishes it best-effort.
func (p *RedisPublisher) PublishAlert(ctx context.Context, event storage.AlertEvent) {
	msg := alertMessage{
		ID:             event.ID.String(),
		RuleID:         event.RuleID.String(),
		RuleName:       event.RuleName,
		TriggeredAt:    event.TriggeredAt,
		PriceAtTrigger: event.PriceAtTrigger.String(),
		Message:        event.Message,
		WebhookSent:    event.WebhookSent,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal alert event")
		return
	}

	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		p.logger.Error().Err(err).Str("channel", p.channel).Msg("failed to publish alert event")
	}
}

var _ Publisher = (*RedisPublisher)(nil)
