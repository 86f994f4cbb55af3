// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the server.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meddesk_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meddesk_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ChatRepliesTotal counts chat replies by the rule that produced them.
	ChatRepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meddesk_chat_replies_total",
			Help: "Chat replies by kind",
		},
		[]string{"kind"},
	)

	// RateLimitRejectedTotal counts chat messages rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meddesk_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"transport"},
	)

	// SessionsSweptTotal counts rows removed by the session sweeper.
	SessionsSweptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meddesk_sessions_swept_total",
			Help: "Expired rows removed by the sweeper",
		},
		[]string{"kind"},
	)

	// WebSocketConnections tracks open chat WebSocket connections.
	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meddesk_chat_websocket_connections_active",
			Help: "Active chat WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ChatRepliesTotal,
		RateLimitRejectedTotal,
		SessionsSweptTotal,
		WebSocketConnections,
	)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
