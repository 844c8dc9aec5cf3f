/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jukebot"

var (
	// Request lifecycle
	RequestsValidatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_validated_total",
		Help:      "Requests run through the validator, by verdict.",
	}, []string{"verdict"})

	ModerationDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moderation_decisions_total",
		Help:      "Human moderation decisions applied, by decision.",
	}, []string{"decision"})

	ArchivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archived_rows_total",
		Help:      "Rows moved to history, by source table.",
	}, []string{"table"})

	ClearedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleared_rows_total",
		Help:      "Rows blanked because the store refused deletion.",
	}, []string{"table"})

	// Workers
	WorkerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_ticks_total",
		Help:      "Background worker ticks, by worker and result.",
	}, []string{"worker", "result"})

	WorkerTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_tick_duration_seconds",
		Help:      "Background worker tick duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"worker"})

	// Schedule
	ScheduleActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "schedule_active",
		Help:      "1 when playback is inside an active window.",
	})

	ScheduleRefreshErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedule_refresh_errors_total",
		Help:      "Failed schedule window refreshes.",
	})

	// Download pipeline
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloads_total",
		Help:      "Pipeline outcomes per item: cache, downloaded, duplicate, failed.",
	}, []string{"result"})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "download_duration_seconds",
		Help:      "Time spent in the download collaborator.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Items waiting, by queue (work, ready).",
	}, []string{"queue"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Indexed local assets, by index (identity, title).",
	}, []string{"index"})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Redis cache lookups by kind and result (hit, miss).",
	}, []string{"kind", "result"})

	// Playback
	PlaybacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "playbacks_total",
		Help:      "Clips started, by kind (announcement, media, shutdown).",
	}, []string{"kind"})

	SynthesisFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synthesis_failures_total",
		Help:      "Announcements that could not be synthesized.",
	})

	SequencerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sequencer_state",
		Help:      "1 for the current sequencer state.",
	}, []string{"state"})

	SkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skips_total",
		Help:      "Manual skips.",
	})

	// Process
	ProcessCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_cpu_percent",
		Help:      "CPU usage of the engine process.",
	})

	ProcessRSSBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_rss_bytes",
		Help:      "Resident memory of the engine process.",
	})

	ProcessThreads = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_threads",
		Help:      "OS threads of the engine process.",
	})

	// SQL store
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "database_query_duration_seconds",
		Help:      "SQL store statement latency, by operation and table.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "database_errors_total",
		Help:      "Failed SQL store statements.",
	}, []string{"operation"})

	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_connections_open",
		Help:      "Open SQL store connections.",
	})

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_websocket_connections",
		Help:      "Open event stream websockets.",
	})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
