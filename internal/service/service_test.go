package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/diegodella1/slackalerts/internal/alerting"
	"github.com/diegodella1/slackalerts/internal/config"
	"github.com/diegodella1/slackalerts/internal/feed"
	"github.com/diegodella1/slackalerts/internal/storage"
)

type staticFeed struct {
	text string
}

func (f *staticFeed) Fetch(ctx context.Context) (feed.Snapshot, error) {
	info, err := feed.ParsePriceText(f.text)
	if err != nil {
		return feed.Snapshot{}, err
	}
	return feed.Snapshot{
		Price:         info.Price,
		Change:        info.Change,
		ChangePercent: info.ChangePercent,
		Source:        "test",
		CapturedAt:    time.Now().UTC(),
	}, nil
}

type memoryStore struct {
	mu      sync.Mutex
	samples []storage.PriceSample
	rules   []storage.Rule
	alerts  []storage.AlertEvent
	hooks   map[uuid.UUID]storage.Webhook
}

func newMemoryStore() *memoryStore {
	return &memoryStore{hooks: make(map[uuid.UUID]storage.Webhook)}
}

func (m *memoryStore) InsertPriceSample(_ context.Context, sample storage.PriceSample) (storage.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample.ID = int64(len(m.samples) + 1)
	sample.CreatedAt = time.Now().UTC()
	m.samples = append(m.samples, sample)
	return sample, nil
}

func (m *memoryStore) LatestPriceSample(_ context.Context) (storage.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return storage.PriceSample{}, storage.ErrNotFound
	}
	return m.samples[len(m.samples)-1], nil
}

func (m *memoryStore) ListSamplesBetween(context.Context, time.Time, time.Time) ([]storage.PriceSample, error) {
	return m.samples, nil
}

func (m *memoryStore) ListRecentSamples(context.Context, int) ([]storage.PriceSample, error) {
	return m.samples, nil
}

func (m *memoryStore) CountSamples(context.Context) (int64, error) {
	return int64(len(m.samples)), nil
}

func (m *memoryStore) ListEnabledRules(context.Context) ([]storage.Rule, error) {
	enabled := make([]storage.Rule, 0)
	for _, r := range m.rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}

func (m *memoryStore) CreateRule(_ context.Context, rule storage.Rule) (storage.Rule, error) {
	m.rules = append(m.rules, rule)
	return rule, nil
}

func (m *memoryStore) UpdateRule(_ context.Context, rule storage.Rule) (storage.Rule, error) {
	return rule, nil
}

func (m *memoryStore) DeleteRule(context.Context, uuid.UUID) error { return nil }

func (m *memoryStore) GetRule(context.Context, uuid.UUID) (storage.Rule, error) {
	return storage.Rule{}, storage.ErrNotFound
}

func (m *memoryStore) ListRules(context.Context) ([]storage.Rule, error) { return m.rules, nil }

func (m *memoryStore) InsertAlertEvent(_ context.Context, event storage.AlertEvent) (storage.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.CreatedAt = time.Now().UTC()
	m.alerts = append(m.alerts, event)
	return event, nil
}

func (m *memoryStore) MarkAlertDelivery(_ context.Context, id uuid.UUID, sent bool, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].WebhookSent = sent
			if response != "" {
				m.alerts[i].WebhookResponse = &response
			}
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memoryStore) ListRecentAlerts(context.Context, int) ([]storage.AlertEvent, error) {
	return m.alerts, nil
}

func (m *memoryStore) LastAlertTime(_ context.Context, ruleID uuid.UUID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	found := false
	for _, a := range m.alerts {
		if a.RuleID == ruleID && a.TriggeredAt.After(last) {
			last = a.TriggeredAt
			found = true
		}
	}
	return last, found, nil
}

func (m *memoryStore) CreateWebhook(_ context.Context, hook storage.Webhook) (storage.Webhook, error) {
	m.hooks[hook.ID] = hook
	return hook, nil
}

func (m *memoryStore) UpdateWebhook(_ context.Context, hook storage.Webhook) (storage.Webhook, error) {
	m.hooks[hook.ID] = hook
	return hook, nil
}

func (m *memoryStore) DeleteWebhook(_ context.Context, id uuid.UUID) error {
	delete(m.hooks, id)
	return nil
}

func (m *memoryStore) GetWebhook(_ context.Context, id uuid.UUID) (storage.Webhook, error) {
	hook, ok := m.hooks[id]
	if !ok {
		return storage.Webhook{}, storage.ErrNotFound
	}
	return hook, nil
}

func (m *memoryStore) ListWebhooks(context.Context) ([]storage.Webhook, error) {
	hooks := make([]storage.Webhook, 0, len(m.hooks))
	for _, h := range m.hooks {
		hooks = append(hooks, h)
	}
	return hooks, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Feed:     config.FeedConfig{Symbol: "BTC", BaseURL: "http://example.invalid"},
		Alerting: config.AlertingConfig{Enabled: true, DispatchTimeout: time.Second},
	}
}

func newTestService(cfg *config.Config, store *memoryStore, feedText string) *Service {
	return New(cfg, Deps{
		Feed:       &staticFeed{text: feedText},
		Samples:    store,
		Rules:      store,
		Alerts:     store,
		Webhooks:   store,
		Dispatcher: alerting.NewWebhookDispatcher(time.Second, zerolog.Nop()),
	}, zerolog.Nop())
}

func enabledRule(store *memoryStore, condition, threshold string, webhookID *uuid.UUID) storage.Rule {
	rule := storage.Rule{
		ID:              uuid.New(),
		Name:            condition + " " + threshold,
		ConditionType:   condition,
		Threshold:       decimal.RequireFromString(threshold),
		WindowMinutes:   5,
		MessageTemplate: "BTC Alert: price {{price}}, target {{target}}",
		WebhookID:       webhookID,
		Enabled:         true,
	}
	store.rules = append(store.rules, rule)
	return rule
}

func TestRunPassTriggersAlertAndDeliversWebhook(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemoryStore()
	hook := storage.Webhook{ID: uuid.New(), Name: "ops", URL: srv.URL, Type: storage.WebhookTypeGeneric, Active: true}
	store.hooks[hook.ID] = hook
	enabledRule(store, storage.ConditionPriceAbove, "60000", &hook.ID)

	svc := newTestService(testConfig(), store, "$65000.00 \n 1000.00 [1.56%]")

	result, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	if !result.Price.Equal(decimal.RequireFromString("65000.00")) {
		t.Fatalf("price = %s, want 65000.00", result.Price)
	}
	if len(result.TriggeredAlerts) != 1 {
		t.Fatalf("triggered = %d, want 1", len(result.TriggeredAlerts))
	}
	if !result.TriggeredAlerts[0].WebhookSent {
		t.Fatal("webhook accepted the POST, so webhook_sent should be true")
	}
	if posts != 1 {
		t.Fatalf("webhook POSTs = %d, want 1", posts)
	}

	if len(store.alerts) != 1 {
		t.Fatalf("persisted alerts = %d, want 1", len(store.alerts))
	}
	if !store.alerts[0].PriceAtTrigger.Equal(decimal.RequireFromString("65000.00")) {
		t.Fatalf("price_at_trigger = %s, want 65000.00", store.alerts[0].PriceAtTrigger)
	}
	if !store.alerts[0].WebhookSent {
		t.Fatal("stored alert should carry the delivery outcome")
	}
}

func TestRunPassNoDedupAcrossPasses(t *testing.T) {
	store := newMemoryStore()
	enabledRule(store, storage.ConditionPriceAbove, "60000", nil)

	svc := newTestService(testConfig(), store, "$65000.00 \n 1000.00 [1.56%]")

	for i := 0; i < 2; i++ {
		if _, err := svc.RunPass(context.Background()); err != nil {
			t.Fatalf("pass %d failed: %v", i, err)
		}
	}

	// A still-qualifying rule fires on every pass; re-firing is not
	// deduplicated.
	if len(store.alerts) != 2 {
		t.Fatalf("persisted alerts = %d, want 2", len(store.alerts))
	}
}

func TestRunPassWindowSuppression(t *testing.T) {
	store := newMemoryStore()
	enabledRule(store, storage.ConditionPriceAbove, "60000", nil)

	cfg := testConfig()
	cfg.Alerting.WindowSuppression = true
	svc := newTestService(cfg, store, "$65000.00 \n 1000.00 [1.56%]")

	for i := 0; i < 3; i++ {
		if _, err := svc.RunPass(context.Background()); err != nil {
			t.Fatalf("pass %d failed: %v", i, err)
		}
	}

	if len(store.alerts) != 1 {
		t.Fatalf("persisted alerts = %d, want 1 with window suppression on", len(store.alerts))
	}
}

func TestRunPassParseFailureProducesNothing(t *testing.T) {
	store := newMemoryStore()
	enabledRule(store, storage.ConditionPriceAbove, "0", nil)

	svc := newTestService(testConfig(), store, "maintenance window, back soon")

	if _, err := svc.RunPass(context.Background()); err == nil {
		t.Fatal("a feed string without a dollar amount must fail the pass")
	}

	if len(store.samples) != 0 {
		t.Fatalf("samples = %d, want 0 after a failed pass", len(store.samples))
	}
	if len(store.alerts) != 0 {
		t.Fatalf("alerts = %d, want 0 after a failed pass", len(store.alerts))
	}
}

func TestRunPassNoWebhookNoDefaultStillRecords(t *testing.T) {
	store := newMemoryStore()
	enabledRule(store, storage.ConditionPriceAbove, "60000", nil)

	svc := newTestService(testConfig(), store, "$65000.00 \n 1000.00 [1.56%]")

	result, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	if len(result.TriggeredAlerts) != 1 {
		t.Fatalf("triggered = %d, want 1", len(result.TriggeredAlerts))
	}
	if result.TriggeredAlerts[0].WebhookSent {
		t.Fatal("no target configured, webhook_sent must be false")
	}
	if len(store.alerts) != 1 {
		t.Fatalf("persisted alerts = %d, want 1", len(store.alerts))
	}
	if store.alerts[0].WebhookResponse != nil {
		t.Fatalf("skipped dispatch must not record an error, got %q", *store.alerts[0].WebhookResponse)
	}
}

func TestRunPassDefaultWebhookFallback(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
	}))
	defer srv.Close()

	store := newMemoryStore()
	enabledRule(store, storage.ConditionPriceBelow, "70000", nil)

	cfg := testConfig()
	cfg.Alerting.DefaultWebhookURL = srv.URL
	svc := newTestService(cfg, store, "$65000.00")

	result, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(result.TriggeredAlerts) != 1 || !result.TriggeredAlerts[0].WebhookSent {
		t.Fatalf("default target should receive the alert, got %+v", result.TriggeredAlerts)
	}
	if posts != 1 {
		t.Fatalf("webhook POSTs = %d, want 1", posts)
	}
}

func TestRunPassWebhookFailureIsLocalToRule(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newMemoryStore()
	hook := storage.Webhook{ID: uuid.New(), Name: "broken", URL: srv.URL, Type: storage.WebhookTypeGeneric, Active: true}
	store.hooks[hook.ID] = hook
	enabledRule(store, storage.ConditionPriceAbove, "60000", &hook.ID)
	enabledRule(store, storage.ConditionVariationUp, "1", nil)

	svc := newTestService(testConfig(), store, "$65000.00 \n 1000.00 [1.56%]")

	result, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	if len(result.TriggeredAlerts) != 2 {
		t.Fatalf("triggered = %d, want 2: a failed delivery must not stop later rules", len(result.TriggeredAlerts))
	}
	if result.TriggeredAlerts[0].WebhookSent {
		t.Fatal("502 delivery should be recorded as failed")
	}
	if result.TriggeredAlerts[0].WebhookResponse == "" {
		t.Fatal("failure description should be recorded")
	}
}

func TestVariationRulesSuppressedWithoutPercent(t *testing.T) {
	store := newMemoryStore()
	enabledRule(store, storage.ConditionVariationDown, "1", nil)

	svc := newTestService(testConfig(), store, "$65000.00")

	result, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(result.TriggeredAlerts) != 0 {
		t.Fatalf("variation rule fired without a change percent: %+v", result.TriggeredAlerts)
	}
}

func TestLatestPriceFallsBackToStore(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(testConfig(), store, "$65000.00")

	if _, err := svc.LatestPrice(context.Background()); !storage.IsNotFound(err) {
		t.Fatalf("empty store should report not found, got %v", err)
	}

	if _, err := svc.RunPass(context.Background()); err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	sample, err := svc.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("latest price failed: %v", err)
	}
	if !sample.Price.Equal(decimal.RequireFromString("65000.00")) {
		t.Fatalf("latest price = %s, want 65000.00", sample.Price)
	}
}
