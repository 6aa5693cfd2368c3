// Package metrics provides Prometheus metrics for sketchweb.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search outcomes.
const (
	OutcomeResults   = "results"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeMalformed = "malformed"
	OutcomeCached    = "cached"
)

var (
	// SearchTotal counts executed searches by source and outcome.
	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sketchweb",
			Name:      "search_total",
			Help:      "Total number of searches",
		},
		[]string{"source", "outcome"},
	)

	// SearchDuration measures repository round trips.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sketchweb",
			Name:      "search_duration_seconds",
			Help:      "Duration of searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// SearchResults observes how many documents a search returned.
	SearchResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sketchweb",
			Name:      "search_results",
			Help:      "Distribution of documents per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"source"},
	)

	// DroppedDocuments counts documents the mapper could not turn into images.
	DroppedDocuments = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sketchweb",
			Name:      "dropped_documents_total",
			Help:      "Documents dropped for lacking a usable image",
		},
	)

	// LiveSessions tracks open websocket search sessions.
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sketchweb",
			Name:      "live_sessions",
			Help:      "Number of open live search sessions",
		},
	)
)

// RecordSearch records one search.
func RecordSearch(source, outcome string, results int, duration float64) {
	SearchTotal.WithLabelValues(source, outcome).Inc()
	SearchDuration.WithLabelValues(source).Observe(duration)
	SearchResults.WithLabelValues(source).Observe(float64(results))
}

// RecordDropped records documents dropped by the result mapper.
func RecordDropped(n int) {
	if n > 0 {
		DroppedDocuments.Add(float64(n))
	}
}
