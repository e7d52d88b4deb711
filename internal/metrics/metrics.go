// Package metrics exposes Prometheus collectors for the extraction
// pipeline.
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
	extractionsTotal        *prometheus.CounterVec
	geocodeRequestsTotal    *prometheus.CounterVec
	geocodeRateLimitSeconds *prometheus.HistogramVec
	ocrCallsTotal           *prometheus.CounterVec
	postsFetchedTotal       prometheus.Counter
	runsTotal               *prometheus.CounterVec
	mergeRowsTotal          *prometheus.CounterVec
	activeWorkers           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; the Observe helpers are no-ops until it runs.
func Init() {
	once.Do(func() {
		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafemap_extractions_total",
				Help: "Total extraction candidates produced, labeled by stage and confidence.",
			},
			[]string{"stage", "confidence"},
		)

		geocodeRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafemap_geocode_requests_total",
				Help: "Total geocoding lookups, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		geocodeRateLimitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cafemap_geocode_rate_limit_delay_seconds",
				Help:    "Histogram of token bucket wait durations before provider calls.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		)

		ocrCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafemap_ocr_calls_total",
				Help: "Total OCR invocations, labeled by engine and outcome.",
			},
			[]string{"engine", "outcome"},
		)

		postsFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cafemap_posts_fetched_total",
				Help: "Total posts collected from the feed.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafemap_runs_total",
				Help: "Total pipeline runs, labeled by status.",
			},
			[]string{"status"},
		)

		mergeRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cafemap_merge_rows_total",
				Help: "Total confirmed review rows processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cafemap_active_workers",
				Help: "Number of workers currently extracting a post.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveExtraction increments the extraction counter.
func ObserveExtraction(stage, confidence string) {
	if extractionsTotal == nil {
		return
	}
	extractionsTotal.WithLabelValues(stage, confidence).Inc()
}

// ObserveGeocode increments the geocode counter.
func ObserveGeocode(provider, outcome string) {
	if geocodeRequestsTotal == nil {
		return
	}
	geocodeRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveGeocodeRateLimitDelay records time spent waiting on the token bucket.
func ObserveGeocodeRateLimitDelay(provider string, d time.Duration) {
	if geocodeRateLimitSeconds == nil {
		return
	}
	geocodeRateLimitSeconds.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveOCR increments the OCR call counter.
func ObserveOCR(engine, outcome string) {
	if ocrCallsTotal == nil {
		return
	}
	ocrCallsTotal.WithLabelValues(engine, outcome).Inc()
}

// AddPostsFetched adds to the fetched-post counter.
func AddPostsFetched(n int) {
	if postsFetchedTotal == nil || n <= 0 {
		return
	}
	postsFetchedTotal.Add(float64(n))
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveMergeRow increments the merge-row counter for the given outcome.
func ObserveMergeRow(outcome string) {
	if mergeRowsTotal == nil {
		return
	}
	mergeRowsTotal.WithLabelValues(outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}
