package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation pass metrics
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackalerts_passes_total",
			Help: "Total number of fetch-and-evaluate passes",
		},
		[]string{"status"}, // status: ok, fetch_error, parse_error
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slackalerts_pass_duration_seconds",
			Help:    "Duration of one full evaluation pass",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	RulesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slackalerts_rules_evaluated_total",
			Help: "Total number of rule evaluations across all passes",
		},
	)

	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackalerts_alerts_triggered_total",
			Help: "Total number of alert events produced",
		},
		[]string{"condition_type"},
	)

	// Feed metrics
	FeedRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slackalerts_feed_request_duration_seconds",
			Help:    "Upstream feed request latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Webhook delivery metrics
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackalerts_webhook_deliveries_total",
			Help: "Webhook delivery attempts by target type and outcome",
		},
		[]string{"type", "status"}, // status: sent, failed, skipped
	)

	// HTTP API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackalerts_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)
)
