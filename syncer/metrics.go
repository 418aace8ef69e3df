package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_sync_runs_total",
			Help: "Per-kind sync outcomes, labeled ok, error or skipped.",
		},
		[]string{"kind", "status"},
	)

	syncExportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_sync_exported_events_total",
			Help: "Events confirmed in the sink and marked exported.",
		},
		[]string{"kind"},
	)

	syncBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audit_sync_batch_duration_seconds",
			Help:    "Duration of one export unit: sink write plus mark-exported.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	syncPendingEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audit_sync_pending_events",
			Help: "Backlog of unexported events observed after a run.",
		},
		[]string{"kind"},
	)
)
