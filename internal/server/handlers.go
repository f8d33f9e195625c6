package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/diegodella1/slackalerts/internal/metrics"
	"github.com/diegodella1/slackalerts/internal/storage"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFetchPrice(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.RunPass(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("fetch-price pass failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"price":            result.Price,
		"change":           result.Change,
		"change_percent":   result.ChangePercent,
		"market_cap":       result.MarketCap,
		"volume_24h":       result.Volume24h,
		"triggered_alerts": result.TriggeredAlerts,
		"timestamp":        result.Timestamp,
	})
}

func (s *Server) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	sample, err := s.svc.LatestPrice(r.Context())
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "no price data available")
			return
		}
		s.logger.Error().Err(err).Msg("latest price read failed")
		writeError(w, http.StatusInternalServerError, "error retrieving price data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"symbol":         sample.Symbol,
		"price":          sample.Price,
		"change":         sample.Change,
		"change_percent": sample.ChangePercent,
		"source":         sample.Source,
		"timestamp":      sample.CapturedAt,
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	alerts, err := s.svc.RecentAlerts(r.Context(), limit)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "database not configured")
			return
		}
		s.logger.Error().Err(err).Msg("list alerts failed")
		writeError(w, http.StatusInternalServerError, "error retrieving alerts")
		return
	}

	out := make([]alertBody, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertBody(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAlertStream follows new alert events as server-sent events.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.bus.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			body, err := json.Marshal(toAlertBody(event))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", body)
			flusher.Flush()
		}
	}
}

type alertBody struct {
	ID              uuid.UUID `json:"id"`
	RuleID          uuid.UUID `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	TriggeredAt     time.Time `json:"triggered_at"`
	PriceAtTrigger  string    `json:"price_at_trigger"`
	Message         string    `json:"message"`
	WebhookSent     bool      `json:"webhook_sent"`
	WebhookResponse *string   `json:"webhook_response,omitempty"`
}

func toAlertBody(a storage.AlertEvent) alertBody {
	return alertBody{
		ID:              a.ID,
		RuleID:          a.RuleID,
		RuleName:        a.RuleName,
		TriggeredAt:     a.TriggeredAt,
		PriceAtTrigger:  a.PriceAtTrigger.StringFixed(2),
		Message:         a.Message,
		WebhookSent:     a.WebhookSent,
		WebhookResponse: a.WebhookResponse,
	}
}

type ruleBody struct {
	ID              uuid.UUID       `json:"id,omitempty"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	ConditionType   string          `json:"condition_type"`
	Threshold       decimal.Decimal `json:"threshold"`
	WindowMinutes   int             `json:"window_minutes"`
	MessageTemplate string          `json:"message_template"`
	WebhookID       *uuid.UUID      `json:"webhook_id,omitempty"`
	Enabled         bool            `json:"enabled"`
}

func toRuleBody(rule storage.Rule) ruleBody {
	return ruleBody{
		ID:              rule.ID,
		Name:            rule.Name,
		Description:     rule.Description,
		ConditionType:   rule.ConditionType,
		Threshold:       rule.Threshold,
		WindowMinutes:   rule.WindowMinutes,
		MessageTemplate: rule.MessageTemplate,
		WebhookID:       rule.WebhookID,
		Enabled:         rule.Enabled,
	}
}

func (b ruleBody) toModel() storage.Rule {
	return storage.Rule{
		ID:              b.ID,
		Name:            b.Name,
		Description:     b.Description,
		ConditionType:   b.ConditionType,
		Threshold:       b.Threshold,
		WindowMinutes:   b.WindowMinutes,
		MessageTemplate: b.MessageTemplate,
		WebhookID:       b.WebhookID,
		Enabled:         b.Enabled,
	}
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	var body ruleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := s.rules.CreateRule(r.Context(), body.toModel())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toRuleBody(rule))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	rules, err := s.rules.ListRules(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list rules failed")
		writeError(w, http.StatusInternalServerError, "error retrieving rules")
		return
	}

	out := make([]ruleBody, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleBody(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "error retrieving rule")
		return
	}
	writeJSON(w, http.StatusOK, toRuleBody(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	var body ruleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.ID = id

	rule, err := s.rules.UpdateRule(r.Context(), body.toModel())
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRuleBody(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	if err := s.rules.DeleteRule(r.Context(), id); err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "error deleting rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type webhookBody struct {
	ID     uuid.UUID `json:"id,omitempty"`
	Name   string    `json:"name"`
	URL    string    `json:"url"`
	Type   string    `json:"type"`
	Active bool      `json:"active"`
}

func toWebhookBody(hook storage.Webhook) webhookBody {
	return webhookBody{ID: hook.ID, Name: hook.Name, URL: hook.URL, Type: hook.Type, Active: hook.Active}
}

func (b webhookBody) toModel() storage.Webhook {
	return storage.Webhook{ID: b.ID, Name: b.Name, URL: b.URL, Type: b.Type, Active: b.Active}
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	var body webhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hook, err := s.webhooks.CreateWebhook(r.Context(), body.toModel())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toWebhookBody(hook))
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	hooks, err := s.webhooks.ListWebhooks(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list webhooks failed")
		writeError(w, http.StatusInternalServerError, "error retrieving webhooks")
		return
	}

	out := make([]webhookBody, 0, len(hooks))
	for _, hook := range hooks {
		out = append(out, toWebhookBody(hook))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	hook, err := s.webhooks.GetWebhook(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "error retrieving webhook")
		return
	}
	writeJSON(w, http.StatusOK, toWebhookBody(hook))
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	var body webhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.ID = id

	hook, err := s.webhooks.UpdateWebhook(r.Context(), body.toModel())
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "webhook not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toWebhookBody(hook))
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	if err := s.webhooks.DeleteWebhook(r.Context(), id); err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "error deleting webhook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePollerStart(w http.ResponseWriter, r *http.Request) {
	s.setPoller(w, r, true)
}

func (s *Server) handlePollerStop(w http.ResponseWriter, r *http.Request) {
	s.setPoller(w, r, false)
}

func (s *Server) setPoller(w http.ResponseWriter, r *http.Request, enabled bool) {
	if err := s.svc.SetPollerEnabled(r.Context(), enabled); err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "database not configured")
			return
		}
		s.logger.Error().Err(err).Msg("poller flag update failed")
		writeError(w, http.StatusInternalServerError, "error updating poller state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handlePollerStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.PollerState(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "database not configured")
			return
		}
		s.logger.Error().Err(err).Msg("poller state read failed")
		writeError(w, http.StatusInternalServerError, "error reading poller state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":    state.Enabled,
		"updated_at": state.UpdatedAt,
	})
}
