// File: internal/infra/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		chatExchangesTotal,
		chatExchangeDuration,
		chatHeartbeatsTotal,
		chatTokensStreamed,
		chatActiveStreams,
	)
}

var (
	chatExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_exchanges_total",
			Help: "Completed query/answer exchanges by outcome.",
		},
		[]string{"transport", "outcome"}, // outcome: completed|stream_error|timeout|disconnected
	)

	chatExchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_exchange_duration_seconds",
			Help:    "Wall time from accepted query to done event.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		},
		[]string{"transport"},
	)

	chatHeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_heartbeats_total",
			Help: "Status events emitted while waiting for retrieval.",
		},
	)

	chatTokensStreamed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_tokens_streamed_total",
			Help: "Token events delivered to clients.",
		},
	)

	chatActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_streams",
			Help: "Exchanges currently in progress.",
		},
	)
)

// -------- Chat exchange helpers --------

func ObserveExchange(transport, outcome string, seconds float64) {
	chatExchangesTotal.WithLabelValues(norm(transport), norm(outcome)).Inc()
	chatExchangeDuration.WithLabelValues(norm(transport)).Observe(seconds)
}

func IncHeartbeat() { chatHeartbeatsTotal.Inc() }

func AddTokensStreamed(n int) { chatTokensStreamed.Add(float64(n)) }

func StreamStarted()  { chatActiveStreams.Inc() }
func StreamFinished() { chatActiveStreams.Dec() }
