// Package metrics holds the Prometheus instrumentation for both processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes the default registry under /metrics for processes that do
// not carry the full API router, such as the classifier worker.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

var (
	// AnalysesStarted counts dispatched classification jobs.
	AnalysesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepscan_analyses_started_total",
		Help: "Number of classification jobs dispatched to the queue.",
	})

	// AnalysesRejected counts requests rejected before dispatch, by reason.
	AnalysesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscan_analyses_rejected_total",
		Help: "Number of analysis requests rejected before a job was created.",
	}, []string{"reason"})

	// Verdicts counts finished classifications by prediction.
	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscan_verdicts_total",
		Help: "Number of classification verdicts produced, by prediction.",
	}, []string{"prediction"})

	// JobFailures counts jobs that reached the FAILURE state.
	JobFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepscan_job_failures_total",
		Help: "Number of classification jobs that failed.",
	})

	// FramesSampled observes how many frames each video contributed.
	FramesSampled = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepscan_frames_sampled",
		Help:    "Frames sampled per analyzed video.",
		Buckets: prometheus.LinearBuckets(5, 5, 12),
	})

	// EncodeDuration observes the blocking feature-encoding time.
	EncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deepscan_encode_duration_seconds",
		Help:    "Wall time spent encoding frame batches.",
		Buckets: prometheus.DefBuckets,
	})
)
