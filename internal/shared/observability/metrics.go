package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "validatetest_parse_seconds",
		Help:    "Time spent parsing a document.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language", "mode"})

	ParseErrorNodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validatetest_parse_error_nodes_total",
		Help: "Total number of error nodes produced by parses.",
	}, []string{"language"})

	ReusedNodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "validatetest_reparse_reused_nodes_total",
		Help: "Total number of subtrees reused by incremental reparses.",
	})

	OpenDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "validatetest_open_documents",
		Help: "Number of documents held by the document service.",
	})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "validatetest_query_seconds",
		Help:    "Time spent running a compiled query over a tree.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	QueryCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validatetest_query_cache_lookups_total",
		Help: "Compiled query cache lookups by result.",
	}, []string{"result"})

	HighlightDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "validatetest_highlight_seconds",
		Help:    "Time spent highlighting a document, injections included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	FormatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "validatetest_format_seconds",
		Help:    "Time spent formatting a document.",
		Buckets: prometheus.DefBuckets,
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "validatetest_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	WatcherRechecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validatetest_watcher_rechecks_total",
		Help: "Documents rechecked after a change, by outcome.",
	}, []string{"outcome"})
)
