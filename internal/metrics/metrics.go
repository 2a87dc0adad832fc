// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrpay",
			Name:      "runs_total",
			Help:      "Payment orchestration runs by terminal outcome",
		},
		[]string{"outcome"},
	)

	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qrpay",
			Name:      "gateway_requests_total",
			Help:      "Gateway HTTP calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qrpay",
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway HTTP call latency by operation",
			Buckets: []float64{
				0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5, 10, 30,
			},
		},
		[]string{"operation"},
	)

	PollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "qrpay",
			Name:      "poll_attempts",
			Help:      "Status poll attempts consumed per run",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 30, 45, 60},
		},
	)
)

func IncRun(outcome string) {
	RunsTotal.WithLabelValues(outcome).Inc()
}

func ObserveGateway(operation, result string, seconds float64) {
	GatewayRequestsTotal.WithLabelValues(operation, result).Inc()
	GatewayRequestDuration.WithLabelValues(operation).Observe(seconds)
}

func ObservePollAttempts(n int) {
	PollAttempts.Observe(float64(n))
}
