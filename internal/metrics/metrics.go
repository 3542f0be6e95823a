package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripcost_catalog_lookups_total",
		Help: "Vehicle catalog lookups by operation and outcome (hit, miss, suppressed)",
	}, []string{"op", "outcome"})

	CatalogFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripcost_catalog_fetches_total",
		Help: "Vehicle catalog provider fetches by operation and result",
	}, []string{"op", "result"})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripcost_provider_duration_seconds",
		Help:    "Latency of external provider calls",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	}, []string{"provider"})

	ClimateFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripcost_climate_fallbacks_total",
		Help: "Weather lookups that failed open to the mild climate",
	})

	StaleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripcost_stale_results_total",
		Help: "Resolutions dropped because a newer generation superseded them",
	}, []string{"branch"})

	DebouncedCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripcost_debounced_calls_total",
		Help: "Weather lookups coalesced by the debouncer",
	})

	TripsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripcost_trips_computed_total",
		Help: "Trip estimates by result",
	}, []string{"result"})

	TripsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripcost_trips_saved_total",
		Help: "Trip estimates persisted",
	})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tripcost_sessions",
		Help: "Estimation sessions held by the HTTP server",
	})
)
