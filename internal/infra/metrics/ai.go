package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiFragmentsOut,
		aiCallsLatencyMs,
		aiEmbeddingsTotal,
		aiLimiterWaitMs,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of estimated prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiFragmentsOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_fragments_out",
			Help: "Streamed completion fragments per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "model", "kind", "success"}, // kind: completion|embedding
	)

	aiEmbeddingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_embeddings_total",
			Help: "Embedding requests per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiLimiterWaitMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ai_limiter_wait_ms",
			Help:    "Time spent waiting for an AI concurrency slot.",
			Buckets: []float64{0, 1, 5, 25, 100, 500, 2000, 10000},
		},
	)
)

// ObserveCompletion records one finished streamed completion.
func ObserveCompletion(provider, model string, tokensIn, fragmentsOut, latencyMs int, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiFragmentsOut.WithLabelValues(lbl...).Add(float64(fragmentsOut))
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), "completion", strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func ObserveEmbedding(provider, model string, latencyMs int, success bool) {
	aiEmbeddingsTotal.WithLabelValues(norm(provider), norm(model)).Inc()
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), "embedding", strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func ObserveLimiterWait(ms float64) { aiLimiterWaitMs.Observe(ms) }
