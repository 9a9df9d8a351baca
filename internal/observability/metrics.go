package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeAnswered = "answered"
	OutcomeBlocked  = "blocked"
	OutcomeFailed   = "failed"
	OutcomeFallback = "fallback"

	KindAsk = "ask"
	KindRAG = "rag"
)

var (
	// requestsTotal counts gateway requests by kind and outcome
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total gateway requests by kind and outcome",
	}, []string{"kind", "outcome"})

	// requestDuration tracks end-to-end request latency
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Gateway request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"kind"})

	// validatorFailures counts screening calls that failed and were treated as blocked
	validatorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_validator_failures_total",
		Help: "Validator calls that failed and were treated as blocked",
	})

	// activeConnections tracks open WebSocket chat connections
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_websocket_connections",
		Help: "Open WebSocket chat connections",
	})
)

// ObserveRequest records the outcome and latency of one gateway call
func ObserveRequest(kind, outcome string, started time.Time) {
	requestsTotal.WithLabelValues(kind, outcome).Inc()
	requestDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func ValidatorFailed() {
	validatorFailures.Inc()
}

func ConnectionOpened() {
	activeConnections.Inc()
}

func ConnectionClosed() {
	activeConnections.Dec()
}
