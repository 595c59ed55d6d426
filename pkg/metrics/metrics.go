// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportRecordsTotal tracks processed import records by outcome
	ImportRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Total number of import records processed by outcome",
		},
		[]string{"source", "outcome"},
	)

	// ImportRecordDuration tracks per-record processing duration in seconds
	ImportRecordDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "record_duration_seconds",
			Help:      "Duration of single-record import processing in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// DetectionRunsTotal tracks duplicate detection runs by status
	DetectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "detection",
			Name:      "runs_total",
			Help:      "Total number of duplicate detection runs by status",
		},
		[]string{"status"},
	)

	// DuplicateGroupsDetected tracks duplicate groups surfaced by detection
	DuplicateGroupsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "detection",
			Name:      "groups_detected_total",
			Help:      "Total number of duplicate groups surfaced by detection runs",
		},
	)

	// DetectionDuration tracks detection run duration in seconds
	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "detection",
			Name:      "run_duration_seconds",
			Help:      "Duration of duplicate detection runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// MergesTotal tracks group merges by strategy
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "groups_total",
			Help:      "Total number of duplicate groups merged by strategy",
		},
		[]string{"strategy"},
	)

	// SearchesTotal tracks directory searches by parsed intent
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Total number of search queries by parsed intent",
		},
		[]string{"intent"},
	)

	// SearchCacheLookups tracks ranked-search cache lookups by result
	SearchCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "search",
			Name:      "cache_lookups_total",
			Help:      "Total number of search cache lookups by result",
		},
		[]string{"result"},
	)

	// RankDuration tracks parse-and-rank duration in seconds
	RankDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "search",
			Name:      "rank_duration_seconds",
			Help:      "Duration of query parsing and ranking in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"intent"},
	)

	// EventsPublished tracks lifecycle events published to Kafka
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of lifecycle events published by type and status",
		},
		[]string{"event_type", "status"},
	)
)

// RecordImport records the outcome of one import record
func RecordImport(source, outcome string, durationSeconds float64) {
	ImportRecordsTotal.WithLabelValues(source, outcome).Inc()
	ImportRecordDuration.Observe(durationSeconds)
}

// RecordDetectionRun records a detection run outcome
func RecordDetectionRun(status string, groupsFound int, durationSeconds float64) {
	DetectionRunsTotal.WithLabelValues(status).Inc()
	DuplicateGroupsDetected.Add(float64(groupsFound))
	DetectionDuration.Observe(durationSeconds)
}

// RecordMerge records a group merge by strategy
func RecordMerge(strategy string) {
	MergesTotal.WithLabelValues(strategy).Inc()
}

// RecordSearch records a search query and its ranking duration
func RecordSearch(intent string, durationSeconds float64) {
	SearchesTotal.WithLabelValues(intent).Inc()
	RankDuration.WithLabelValues(intent).Observe(durationSeconds)
}

// RecordCacheLookup records a search cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	SearchCacheLookups.WithLabelValues(result).Inc()
}

// RecordEventPublished records a lifecycle event publish attempt
func RecordEventPublished(eventType, status string) {
	EventsPublished.WithLabelValues(eventType, status).Inc()
}
