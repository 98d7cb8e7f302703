// Package metrics provides Prometheus metrics for the card price resolver.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardprice_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Request Queue Metrics
	QueueDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_queue_dispatches_total",
			Help: "Requests sent to the primary provider by outcome",
		},
		[]string{"outcome"}, // "ok", "not_found", "retry", "unavailable"
	)

	QueueFlushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardprice_queue_flushed_total",
			Help: "Queued requests discarded because a newer lookup superseded them",
		},
	)

	QueueDedupTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardprice_queue_dedup_total",
			Help: "Enqueue calls that shared an identical in-flight request",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardprice_queue_depth",
			Help: "Requests waiting for dispatch",
		},
	)

	QueueRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardprice_queue_request_duration_seconds",
			Help:    "Time from enqueue to result, including rate-limit waits",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// Cache Metrics
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_cache_lookups_total",
			Help: "Cache reads by cache name and result",
		},
		[]string{"cache", "result"}, // result: "hit", "miss", "expired"
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardprice_cache_entries",
			Help: "Entries currently held per cache",
		},
		[]string{"cache"},
	)

	CacheSnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_cache_snapshots_total",
			Help: "Cache snapshot writes by cache and result",
		},
		[]string{"cache", "result"}, // "saved", "failed"
	)

	// Lookup Metrics
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_lookups_total",
			Help: "Lookups by strategy and outcome",
		},
		[]string{"strategy", "outcome"}, // outcome: "found", "not_found", "stale", "cached"
	)

	LookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardprice_lookup_duration_seconds",
			Help:    "End-to-end lookup latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"strategy"},
	)

	PrintingMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_printing_matches_total",
			Help: "Printing resolver outcomes by match type",
		},
		[]string{"match_type"}, // "exact", "qualifier", "deep", "substring", "keyword", "set_code", "none"
	)

	// Enrichment Metrics
	EnrichmentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_enrichment_total",
			Help: "Price enrichment outcomes by path and resulting source",
		},
		[]string{"path", "source"},
	)

	SecondaryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_secondary_requests_total",
			Help: "Requests to the secondary pricing provider",
		},
		[]string{"endpoint", "result"},
	)

	// Exchange Rate Metrics
	ExchangeRateLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardprice_exchange_rate_lookups_total",
			Help: "Currency rate lookups by source",
		},
		[]string{"source"}, // "live", "cached", "fallback"
	)

	// Generation Metrics
	GenerationCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardprice_generation_current",
			Help: "Current lookup generation",
		},
	)
)
