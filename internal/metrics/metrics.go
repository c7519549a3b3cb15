package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bucket_to_deepgram"

// Pipeline counters (incremented by the session coordinator).
var (
	SnippetsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snippets_completed_total",
		Help:      "Snippets that produced a transcript fragment.",
	})

	SnippetsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snippets_failed_total",
		Help:      "Snippets excluded from transcripts, by failing stage.",
	}, []string{"stage"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time spent per pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms → ~3.4min
	}, []string{"stage"})

	FragmentsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fragments_published_total",
		Help:      "Fragments published to the MQTT feed.",
	})

	FragmentsArchived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fragments_archived_total",
		Help:      "Fragments written to the Postgres archive.",
	})
)

func init() {
	prometheus.MustRegister(
		SnippetsCompleted,
		SnippetsFailed,
		StageDuration,
		FragmentsPublished,
		FragmentsArchived,
	)
}
