package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/diegodella1/slackalerts/internal/config"
	"github.com/diegodella1/slackalerts/internal/events"
	"github.com/diegodella1/slackalerts/internal/service"
	"github.com/diegodella1/slackalerts/internal/storage"
)

// AlertService is the slice of the service the HTTP API depends on.
type AlertService interface {
	RunPass(ctx context.Context) (service.Result, error)
	LatestPrice(ctx context.Context) (storage.PriceSample, error)
	RecentAlerts(ctx context.Context, limit int) ([]storage.AlertEvent, error)
	SetPollerEnabled(ctx context.Context, enabled bool) error
	PollerState(ctx context.Context) (storage.PollerState, error)
}

// Server exposes the polling trigger, price reads, alert history, and the
// rule/webhook CRUD surface over HTTP.
type Server struct {
	svc      AlertService
	rules    storage.RuleStore
	webhooks storage.WebhookStore
	bus      *events.Bus
	logger   zerolog.Logger
	httpSrv  *http.Server
}

// New constructs the HTTP server. rules, webhooks, and bus may be nil; the
// corresponding endpoints then answer 503.
func New(cfg config.ServerConfig, svc AlertService, rules storage.RuleStore, webhooks storage.WebhookStore, bus *events.Bus, logger zerolog.Logger) *Server {
	s := &Server{
		svc:      svc,
		rules:    rules,
		webhooks: webhooks,
		bus:      bus,
		logger:   logger.With().Str("component", "http_server").Logger(),
	}

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/fetch-price", s.instrument("/api/fetch-price", s.handleFetchPrice))
	mux.HandleFunc("GET /api/price/latest", s.instrument("/api/price/latest", s.handleLatestPrice))
	mux.HandleFunc("GET /api/alerts", s.instrument("/api/alerts", s.handleListAlerts))
	mux.HandleFunc("GET /api/alerts/stream", s.handleAlertStream)

	mux.HandleFunc("POST /api/rules", s.instrument("/api/rules", s.handleCreateRule))
	mux.HandleFunc("GET /api/rules", s.instrument("/api/rules", s.handleListRules))
	mux.HandleFunc("GET /api/rules/{id}", s.instrument("/api/rules/{id}", s.handleGetRule))
	mux.HandleFunc("PUT /api/rules/{id}", s.instrument("/api/rules/{id}", s.handleUpdateRule))
	mux.HandleFunc("DELETE /api/rules/{id}", s.instrument("/api/rules/{id}", s.handleDeleteRule))

	mux.HandleFunc("POST /api/webhooks", s.instrument("/api/webhooks", s.handleCreateWebhook))
	mux.HandleFunc("GET /api/webhooks", s.instrument("/api/webhooks", s.handleListWebhooks))
	mux.HandleFunc("GET /api/webhooks/{id}", s.instrument("/api/webhooks/{id}", s.handleGetWebhook))
	mux.HandleFunc("PUT /api/webhooks/{id}", s.instrument("/api/webhooks/{id}", s.handleUpdateWebhook))
	mux.HandleFunc("DELETE /api/webhooks/{id}", s.instrument("/api/webhooks/{id}", s.handleDeleteWebhook))

	mux.HandleFunc("POST /api/poller/start", s.instrument("/api/poller/start", s.handlePollerStart))
	mux.HandleFunc("POST /api/poller/stop", s.instrument("/api/poller/stop", s.handlePollerStop))
	mux.HandleFunc("GET /api/poller", s.instrument("/api/poller", s.handlePollerStatus))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Start runs the listener until the context is cancelled, then shuts down
// gracefully within the given timeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
