// Package metrics exposes Prometheus counters for the sync and purge paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the server registers. One instance is shared
// across handlers; label cardinality is bounded by the closed table set and
// error kinds, never by tenant.
type Metrics struct {
	PullsTotal        prometheus.Counter
	PushesTotal       prometheus.Counter
	PushRejections    *prometheus.CounterVec
	MutationsApplied  *prometheus.CounterVec
	PurgesTotal       prometheus.Counter
	PurgedRecords     prometheus.Counter
	GateDenials       *prometheus.CounterVec
	SnapshotSizeBytes prometheus.Histogram
}

// New registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PullsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quillbooks_sync_pulls_total",
			Help: "Full snapshot pulls served.",
		}),
		PushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quillbooks_sync_pushes_total",
			Help: "Mutation push requests accepted.",
		}),
		PushRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quillbooks_sync_push_rejections_total",
			Help: "Mutation push requests rejected, by error kind.",
		}, []string{"kind"}),
		MutationsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quillbooks_mutations_applied_total",
			Help: "Mutations applied, by table.",
		}, []string{"table"}),
		PurgesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quillbooks_purges_total",
			Help: "Transactional data purges executed.",
		}),
		PurgedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "quillbooks_purged_records_total",
			Help: "Records deleted by purges.",
		}),
		GateDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quillbooks_gate_denials_total",
			Help: "Write attempts denied by the license gate, by state.",
		}, []string{"state"}),
		SnapshotSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quillbooks_snapshot_size_bytes",
			Help:    "Size of served snapshots.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}
}
