// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	feedsIngestedTotal    *prometheus.CounterVec
	episodesUpsertedTotal prometheus.Counter
	episodesSkippedTotal  prometheus.Counter
	jobsWorkedTotal       *prometheus.CounterVec
	contentRowsCleaned    prometheus.Counter
	fetchDurationSeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		feedsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podhaven_feeds_ingested_total",
				Help: "Total number of feeds run through the ingestion pipeline, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		episodesUpsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "podhaven_episodes_upserted_total",
				Help: "Total number of episode rows inserted or updated.",
			},
		)

		episodesSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "podhaven_episodes_skipped_total",
				Help: "Total number of feed items rejected by validation.",
			},
		)

		jobsWorkedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podhaven_jobs_worked_total",
				Help: "Total number of queue jobs worked, labeled by status.",
			},
			[]string{"status"},
		)

		contentRowsCleaned = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "podhaven_content_rows_cleaned_total",
				Help: "Total number of feed content snapshot rows removed by the cleaner.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "podhaven_fetch_duration_seconds",
				Help:    "Histogram of feed fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)
	})
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// FeedIngested records one pipeline run with the given outcome
// ("ingested", "skipped", "fetch_error", or "error").
func FeedIngested(outcome string) {
	Init()
	feedsIngestedTotal.WithLabelValues(outcome).Inc()
}

// EpisodesUpserted adds to the episode row counter.
func EpisodesUpserted(n int) {
	Init()
	episodesUpsertedTotal.Add(float64(n))
}

// EpisodesSkipped adds to the rejected item counter.
func EpisodesSkipped(n int) {
	Init()
	episodesSkippedTotal.Add(float64(n))
}

// JobWorked records one worked job with the given status ("succeeded",
// "errored", or "dead").
func JobWorked(status string) {
	Init()
	jobsWorkedTotal.WithLabelValues(status).Inc()
}

// ContentRowsCleaned adds to the cleaner counter.
func ContentRowsCleaned(n int64) {
	Init()
	contentRowsCleaned.Add(float64(n))
}

// ObserveFetch records the duration of one feed fetch.
func ObserveFetch(d time.Duration) {
	Init()
	fetchDurationSeconds.Observe(d.Seconds())
}
