package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Condition types a rule can use.
const (
	ConditionPriceAbove    = "price_above"
	ConditionPriceBelow    = "price_below"
	ConditionVariationUp   = "variation_up"
	ConditionVariationDown = "variation_down"
)

// Webhook target types.
const (
	WebhookTypeSlack   = "slack"
	WebhookTypeDiscord = "discord"
	WebhookTypeGeneric = "generic"
)

// ValidConditionType reports whether t is one of the supported condition types.
func ValidConditionType(t string) bool {
	switch t {
	case ConditionPriceAbove, ConditionPriceBelow, ConditionVariationUp, ConditionVariationDown:
		return true
	}
	return false
}

// ValidWebhookType reports whether t is a supported webhook target type.
func ValidWebhookType(t string) bool {
	switch t {
	case WebhookTypeSlack, WebhookTypeDiscord, WebhookTypeGeneric:
		return true
	}
	return false
}

// PriceSample is one persisted observation of the upstream feed. Append-only.
type PriceSample struct {
	ID            int64
	Symbol        string
	Price         decimal.Decimal
	Change        *decimal.Decimal
	ChangePercent *decimal.Decimal
	MarketCap     *decimal.Decimal
	Volume24h     *decimal.Decimal
	Source        string
	CapturedAt    time.Time
	CreatedAt     time.Time
}

// Rule is a user-defined alert condition evaluated against each sample.
type Rule struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	Name            string
	Description     string
	ConditionType   string
	Threshold       decimal.Decimal
	WindowMinutes   int
	MessageTemplate string
	WebhookID       *uuid.UUID
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AlertEvent records one rule firing at one point in time. The delivery
// outcome is written exactly once after the dispatch attempt.
type AlertEvent struct {
	ID              uuid.UUID
	RuleID          uuid.UUID
	RuleName        string
	TriggeredAt     time.Time
	PriceAtTrigger  decimal.Decimal
	Message         string
	WebhookSent     bool
	WebhookResponse *string
	CreatedAt       time.Time
}

// Webhook is a user-managed delivery target.
type Webhook struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	URL       string
	Type      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PollerState is the durable on/off flag consulted by the scheduler loop.
type PollerState struct {
	Enabled   bool
	Interval  time.Duration
	UpdatedAt time.Time
}
