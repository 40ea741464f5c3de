package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(workerJobsTotal, workerQueueDepth, retrievalLatency) }

var (
	workerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_total",
			Help: "Background jobs by final status.",
		},
		[]string{"status"}, // 'completed', 'failed', 'panicked', 'rejected'
	)

	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Jobs waiting for a free worker.",
		},
	)

	retrievalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_retrieval_seconds",
			Help:    "Context retrieval latency by outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"}, // 'ok', 'error', 'empty'
	)
)

func IncWorkerJob(status string) {
	workerJobsTotal.WithLabelValues(norm(status)).Inc()
}

func SetWorkerQueueDepth(n int) { workerQueueDepth.Set(float64(n)) }

func ObserveRetrieval(outcome string, seconds float64) {
	retrievalLatency.WithLabelValues(norm(outcome)).Observe(seconds)
}
