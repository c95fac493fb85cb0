// Package metrics exposes Strata's Prometheus instrumentation via
// github.com/prometheus/client_golang, grounded on cuemby-warren/pkg/metrics's
// package-level Collector-variable style, replacing docdb/internal/metrics's
// hand-rolled exporter. Strata itself never listens on a port (non-goal:
// network surfaces) — an embedder registers these collectors with its own
// prometheus.Registry and serves /metrics however it likes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_commits_total",
			Help: "Total number of transaction commit attempts by outcome.",
		},
		[]string{"outcome"}, // committed | read_write_conflict | cas_conflict | json_path_conflict | internal
	)

	WALBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_wal_bytes_written_total",
			Help: "Total bytes appended to the write-ahead log.",
		},
	)

	WALFsyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_wal_fsync_duration_seconds",
			Help:    "Latency of WAL segment fsync calls.",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_snapshot_duration_seconds",
			Help:    "Latency of snapshot checkpoint creation.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecoveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_recovery_duration_seconds",
			Help:    "Latency of crash recovery (snapshot load + WAL replay).",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetentionSweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_retention_sweeps_total",
			Help: "Total number of retention/compaction sweeps performed.",
		},
	)

	PrimitiveOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_primitive_operations_total",
			Help: "Total primitive operations by tag and op name.",
		},
		[]string{"primitive", "op"},
	)

	VersionCounter = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_version_counter",
			Help: "Current committed version watermark.",
		},
	)
)

// Collectors returns every collector this package defines, for callers who
// want to register them in bulk with their own registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		CommitsTotal,
		WALBytesWritten,
		WALFsyncDuration,
		SnapshotDuration,
		RecoveryDuration,
		RetentionSweeps,
		PrimitiveOpsTotal,
		VersionCounter,
	}
}

// MustRegister registers every collector with reg, panicking on a
// duplicate-registration error — mirroring prometheus.MustRegister's
// contract, intended for use once at process start.
func MustRegister(reg *prometheus.Registry) {
	for _, c := range Collectors() {
		reg.MustRegister(c)
	}
}
