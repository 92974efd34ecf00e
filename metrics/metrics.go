// Package metrics defines Prometheus metrics for carscout.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carscout"

// Source outcome labels.
const (
	OutcomeOK             = "ok"
	OutcomeEmpty          = "empty"
	OutcomeFetchError     = "fetch_error"
	OutcomeExtractError   = "extract_error"
	OutcomeListingSkipped = "listing_skipped"
)

// Per-source metrics.
var (
	SourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "source_fetch_duration_seconds",
		Help:      "Duration of one source query (render and extract) in seconds.",
		Buckets:   []float64{1, 2.5, 5, 7.5, 10, 15, 20, 30, 45, 60},
	}, []string{"source"})

	SourceQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_queries_total",
		Help:      "Total source queries by outcome.",
	}, []string{"source", "outcome"})

	SourceListingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_listings_total",
		Help:      "Total listings extracted per source.",
	}, []string{"source"})

	ListingsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_skipped_total",
		Help:      "Total listing cards skipped because extraction failed.",
	}, []string{"source"})
)

// Search metrics.
var (
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "searches_total",
		Help:      "Total aggregate searches by result.",
	}, []string{"result"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_duration_seconds",
		Help:      "End-to-end duration of aggregate searches in seconds.",
		Buckets:   []float64{1, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	})
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})
)
