// Package metrics holds the Prometheus instruments of the analytics pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_ingested_total",
			Help: "Events accepted by the ingestion endpoint and enqueued",
		},
		[]string{"event"},
	)

	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_ingest_rejected_total",
			Help: "Ingestion requests rejected before enqueue",
		},
		[]string{"reason"}, // "validation", "enqueue", "decode"
	)

	// Queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analytics_queue_depth",
			Help: "Jobs per queue state",
		},
		[]string{"queue", "state"}, // "waiting", "active", "delayed", "dead"
	)

	QueueMaintenance = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_queue_maintenance_total",
			Help: "Jobs moved by queue maintenance tasks",
		},
		[]string{"queue", "task"}, // "promoted", "reaped"
	)

	// Worker
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_jobs_processed_total",
			Help: "Jobs handled by the event processor by outcome",
		},
		[]string{"outcome"}, // "ok", "dropped", "retried", "dead"
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_job_duration_seconds",
			Help:    "Time spent processing one job",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_store_writes_total",
			Help: "Rows written to the analytics store",
		},
		[]string{"table", "status"},
	)

	// Aggregation
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_query_duration_seconds",
			Help:    "Duration of analytics-store aggregate queries",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"query"},
	)

	QueryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_query_fallbacks_total",
			Help: "Aggregations served from fallback data after an analytics-store failure",
		},
		[]string{"query"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analytics_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// Dedup
	DedupOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_dedup_total",
			Help: "View/read signals by dedup outcome",
		},
		[]string{"kind", "outcome"}, // "counted", "duplicate", "error"
	)

	// Notifications
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analytics_websocket_clients",
			Help: "Connected live counter subscribers",
		},
	)
)

// ObserveQuery records the duration of an analytics-store query
func ObserveQuery(query string, start time.Time) {
	QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}
