package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debatechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debatechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "debatechat_active_connections",
			Help: "Open websocket connections on this process",
		},
		[]string{"namespace"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debatechat_messages_total",
			Help: "Chat messages received",
		},
		[]string{"rephrased"}, // "true" or "false"
	)

	// Matching metrics
	MatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debatechat_match_attempts_total",
			Help: "Match attempts by outcome",
		},
		[]string{"result"}, // matched, no_candidate, conflict, error
	)

	ChatroomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debatechat_chatrooms_created_total",
			Help: "Total chatrooms created",
		},
	)

	WaitingTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debatechat_waiting_timeouts_total",
			Help: "Users redirected to the no-chat survey",
		},
	)

	// Rephrasing metrics
	RephrasingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debatechat_rephrasing_requests_total",
			Help: "Rephrasing generations by strategy and outcome",
		},
		[]string{"strategy", "result"},
	)

	RephrasingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "debatechat_rephrasing_latency_seconds",
			Help:    "Time to generate all rephrasings for one message",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		},
	)

	// Integrity metrics
	StaleReferences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debatechat_stale_references_total",
			Help: "Client actions dropped for referencing foreign or unknown records",
		},
	)

	IntegrityViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debatechat_integrity_violations_total",
			Help: "Chatrooms found with a member count other than two",
		},
	)
)
