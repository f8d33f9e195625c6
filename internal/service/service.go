package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/diegodella1/slackalerts/internal/alerting"
	"github.com/diegodella1/slackalerts/internal/config"
	"github.com/diegodella1/slackalerts/internal/feed"
	"github.com/diegodella1/slackalerts/internal/metrics"
	"github.com/diegodella1/slackalerts/internal/scheduler"
	"github.com/diegodella1/slackalerts/internal/storage"
)

// Publisher receives alert events as they are created.
type Publisher interface {
	PublishAlert(ctx context.Context, event storage.AlertEvent)
}

// LatestPriceCache keeps the latest sample close at hand. Best-effort.
type LatestPriceCache interface {
	SetLatest(ctx context.Context, sample storage.PriceSample) error
	GetLatest(ctx context.Context) (storage.PriceSample, bool, error)
}

// TriggeredAlert summarises one rule firing within a pass result.
type TriggeredAlert struct {
	RuleID          uuid.UUID `json:"rule_id"`
	Rule            string    `json:"rule"`
	Message         string    `json:"message"`
	WebhookSent     bool      `json:"webhook_sent"`
	WebhookResponse string    `json:"webhook_response,omitempty"`
}

// Result is the structured outcome of one fetch-and-evaluate pass.
type Result struct {
	Price           decimal.Decimal  `json:"price"`
	Change          *decimal.Decimal `json:"change,omitempty"`
	ChangePercent   *decimal.Decimal `json:"change_percent,omitempty"`
	MarketCap       *decimal.Decimal `json:"market_cap,omitempty"`
	Volume24h       *decimal.Decimal `json:"volume_24h,omitempty"`
	TriggeredAlerts []TriggeredAlert `json:"triggered_alerts"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Deps collects the service collaborators. Stores may be nil when the
// database is not configured; the pass then runs against the in-memory
// sample only.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Feed       feed.Fetcher
	Samples    storage.SampleStore
	Rules      storage.RuleStore
	Alerts     storage.AlertStore
	Webhooks   storage.WebhookStore
	Poller     storage.PollerStore
	Locker     storage.AdvisoryLocker
	Cache      LatestPriceCache
	Dispatcher alerting.Dispatcher
	Publisher  Publisher
}

// Service orchestrates fetching, rule evaluation, alert recording, and
// webhook dispatch.
type Service struct {
	deps   Deps
	logger zerolog.Logger

	symbol            string
	alertsOn          bool
	windowSuppression bool
	defaultWebhookURL string
	lockKey           int64
}

// New constructs the alerting service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		deps:              deps,
		logger:            logger.With().Str("component", "service").Logger(),
		symbol:            cfg.Feed.Symbol,
		alertsOn:          cfg.Alerting.Enabled,
		windowSuppression: cfg.Alerting.WindowSuppression,
		defaultWebhookURL: cfg.Alerting.DefaultWebhookURL,
		lockKey:           cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, s.Tick)
}

// Tick executes one scheduled pass, honouring the durable poller flag and
// the advisory lock that serialises concurrent instances.
func (s *Service) Tick(ctx context.Context, bucket time.Time) error {
	if s.deps.Poller != nil {
		state, err := s.deps.Poller.GetPollerState(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to read poller state; proceeding")
		} else if !state.Enabled {
			s.logger.Debug().Time("bucket", bucket).Msg("poller disabled; skipping pass")
			return nil
		}
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip pass because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.RunPass(ctx)
	return err
}

// RunPass performs one synchronous fetch → persist → evaluate → render →
// record → dispatch sequence. Fetch and parse failures abort the pass;
// persistence failures are logged and the pass continues; one rule's
// webhook failure never affects the remaining rules.
func (s *Service) RunPass(ctx context.Context) (Result, error) {
	start := time.Now()

	fetchStart := time.Now()
	snap, err := s.deps.Feed.Fetch(ctx)
	metrics.FeedRequestDuration.Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		status := "fetch_error"
		if isParseFailure(err) {
			status = "parse_error"
		}
		metrics.PassesTotal.WithLabelValues(status).Inc()
		return Result{}, fmt.Errorf("fetch price: %w", err)
	}

	now := time.Now().UTC()
	sample := storage.PriceSample{
		Symbol:        s.symbol,
		Price:         snap.Price,
		Change:        snap.Change,
		ChangePercent: snap.ChangePercent,
		MarketCap:     snap.MarketCap,
		Volume24h:     snap.Volume24h,
		Source:        snap.Source,
		CapturedAt:    snap.CapturedAt,
	}

	if s.deps.Samples != nil {
		if persisted, err := s.deps.Samples.InsertPriceSample(ctx, sample); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist price sample; evaluating in-memory")
		} else {
			sample = persisted
		}
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.SetLatest(ctx, sample); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cache latest price")
		}
	}

	result := Result{
		Price:           snap.Price,
		Change:          snap.Change,
		ChangePercent:   snap.ChangePercent,
		MarketCap:       snap.MarketCap,
		Volume24h:       snap.Volume24h,
		TriggeredAlerts: make([]TriggeredAlert, 0),
		Timestamp:       now,
	}

	s.logger.Info().
		Str("price", snap.Price.String()).
		Msg("price sample recorded")

	if !s.alertsOn || s.deps.Rules == nil {
		metrics.PassesTotal.WithLabelValues("ok").Inc()
		metrics.PassDuration.Observe(time.Since(start).Seconds())
		return result, nil
	}

	rules, err := s.deps.Rules.ListEnabledRules(ctx)
	if err != nil {
		metrics.PassesTotal.WithLabelValues("ok").Inc()
		return result, fmt.Errorf("list enabled rules: %w", err)
	}

	for _, rule := range rules {
		metrics.RulesEvaluated.Inc()

		if !alerting.Evaluate(rule, snap.Price, snap.ChangePercent) {
			continue
		}
		if s.suppressedByWindow(ctx, rule, now) {
			continue
		}

		result.TriggeredAlerts = append(result.TriggeredAlerts, s.fireRule(ctx, rule, snap, now))
		metrics.AlertsTriggered.WithLabelValues(rule.ConditionType).Inc()
	}

	metrics.PassesTotal.WithLabelValues("ok").Inc()
	metrics.PassDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

// fireRule renders, records, and dispatches one firing. Every step is
// best-effort so a failure stays local to this rule.
func (s *Service) fireRule(ctx context.Context, rule storage.Rule, snap feed.Snapshot, now time.Time) TriggeredAlert {
	message := alerting.RenderMessage(rule.MessageTemplate, alerting.RenderContext{
		Price:         snap.Price,
		Threshold:     rule.Threshold,
		ChangePercent: snap.ChangePercent,
		WindowMinutes: rule.WindowMinutes,
		Timestamp:     now,
	})

	event := storage.AlertEvent{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		TriggeredAt:    now,
		PriceAtTrigger: snap.Price,
		Message:        message,
	}

	recorded := false
	if s.deps.Alerts != nil {
		if stored, err := s.deps.Alerts.InsertAlertEvent(ctx, event); err != nil {
			s.logger.Error().Err(err).Str("rule", rule.Name).Msg("failed to persist alert event")
		} else {
			event = stored
			recorded = true
		}
	}

	var outcome alerting.Outcome
	if target := s.resolveWebhook(ctx, rule); target != nil {
		outcome = s.deps.Dispatcher.Dispatch(ctx, *target, alerting.Payload{
			Text:      message,
			Price:     snap.Price,
			Variation: snap.ChangePercent,
			Timestamp: now,
		})
		status := "failed"
		if outcome.Sent {
			status = "sent"
		}
		metrics.WebhookDeliveries.WithLabelValues(target.Type, status).Inc()
	} else {
		metrics.WebhookDeliveries.WithLabelValues("none", "skipped").Inc()
	}

	if outcome.Attempted {
		event.WebhookSent = outcome.Sent
		if outcome.Response != "" {
			response := outcome.Response
			event.WebhookResponse = &response
		}
		if recorded {
			if err := s.deps.Alerts.MarkAlertDelivery(ctx, event.ID, outcome.Sent, outcome.Response); err != nil {
				s.logger.Error().Err(err).Str("rule", rule.Name).Msg("failed to record delivery outcome")
			}
		}
	}

	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishAlert(ctx, event)
	}

	s.logger.Info().
		Str("rule", rule.Name).
		Str("condition", rule.ConditionType).
		Bool("webhook_sent", outcome.Sent).
		Msg("alert triggered")

	return TriggeredAlert{
		RuleID:          rule.ID,
		Rule:            rule.Name,
		Message:         message,
		WebhookSent:     outcome.Sent,
		WebhookResponse: outcome.Response,
	}
}

// suppressedByWindow gates re-firing inside the rule's window when the
// window_suppression option is on. Default behaviour fires every pass.
func (s *Service) suppressedByWindow(ctx context.Context, rule storage.Rule, now time.Time) bool {
	if !s.windowSuppression || s.deps.Alerts == nil || rule.WindowMinutes < 1 {
		return false
	}

	last, ok, err := s.deps.Alerts.LastAlertTime(ctx, rule.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("rule", rule.Name).Msg("failed to read last alert time")
		return false
	}
	if !ok {
		return false
	}

	window := time.Duration(rule.WindowMinutes) * time.Minute
	if now.Sub(last) < window {
		s.logger.Debug().Str("rule", rule.Name).Time("last", last).Msg("alert suppressed inside window")
		return true
	}
	return false
}

// resolveWebhook applies the single resolution order: the rule's explicit
// webhook, then the process-wide default target, then none.
func (s *Service) resolveWebhook(ctx context.Context, rule storage.Rule) *storage.Webhook {
	if rule.WebhookID != nil && s.deps.Webhooks != nil {
		hook, err := s.deps.Webhooks.GetWebhook(ctx, *rule.WebhookID)
		if err != nil {
			s.logger.Error().Err(err).Str("rule", rule.Name).Msg("failed to load rule webhook")
		} else if hook.Active {
			return &hook
		}
	}

	if s.defaultWebhookURL != "" {
		return &storage.Webhook{
			Name:   "default",
			URL:    s.defaultWebhookURL,
			Type:   storage.WebhookTypeSlack,
			Active: true,
		}
	}
	return nil
}

// LatestPrice returns the most recent sample, cache first.
func (s *Service) LatestPrice(ctx context.Context) (storage.PriceSample, error) {
	if s.deps.Cache != nil {
		if sample, ok, err := s.deps.Cache.GetLatest(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("latest price cache read failed")
		} else if ok {
			return sample, nil
		}
	}

	if s.deps.Samples == nil {
		return storage.PriceSample{}, storage.ErrNotConfigured
	}
	return s.deps.Samples.LatestPriceSample(ctx)
}

// RecentAlerts returns the newest alert events.
func (s *Service) RecentAlerts(ctx context.Context, limit int) ([]storage.AlertEvent, error) {
	if s.deps.Alerts == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.deps.Alerts.ListRecentAlerts(ctx, limit)
}

// SetPollerEnabled flips the durable scheduler flag.
func (s *Service) SetPollerEnabled(ctx context.Context, enabled bool) error {
	if s.deps.Poller == nil {
		return storage.ErrNotConfigured
	}
	return s.deps.Poller.SetPollerEnabled(ctx, enabled)
}

// PollerState reads the durable scheduler flag.
func (s *Service) PollerState(ctx context.Context) (storage.PollerState, error) {
	if s.deps.Poller == nil {
		return storage.PollerState{}, storage.ErrNotConfigured
	}
	return s.deps.Poller.GetPollerState(ctx)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func isParseFailure(err error) bool {
	return errors.Is(err, feed.ErrNoPrice)
}
