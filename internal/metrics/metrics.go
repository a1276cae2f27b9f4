// Package metrics instruments the backup/restore/index/rotation
// orchestrators with Prometheus counters and histograms. Because this
// engine is typically invoked once per cron tick and exits, metrics live on
// an explicit Registry a caller constructs and can optionally serve, rather
// than registering into the global default registry at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric this engine updates. cmd/ constructs one
// per process and optionally serves it over HTTP; library code receives it
// (or a nil *Registry, in which case every method is a no-op) rather than
// reaching for global state.
type Registry struct {
	reg *prometheus.Registry

	BackupRuns       *prometheus.CounterVec
	BackupDuration   prometheus.Histogram
	BackupFiles      prometheus.Histogram
	BackupBytes      prometheus.Histogram
	RestoreRuns      *prometheus.CounterVec
	RestoreDuration  prometheus.Histogram
	ReplicationPush  *prometheus.CounterVec
	IndexRefresh     prometheus.Histogram
	KeyRotations     *prometheus.CounterVec
	RetentionDeletes prometheus.Counter
}

// New constructs a Registry backed by a fresh prometheus.Registry (not the
// global default), so multiple Registry instances (e.g. one per test) never
// collide on metric names.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		BackupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openclaw_backup_runs_total",
			Help: "Total backup runs by outcome.",
		}, []string{"outcome"}),
		BackupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openclaw_backup_duration_seconds",
			Help:    "Wall-clock duration of a full backup run.",
			Buckets: prometheus.DefBuckets,
		}),
		BackupFiles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openclaw_backup_files_collected",
			Help:    "Number of files collected per backup run.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		BackupBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openclaw_backup_archive_bytes",
			Help:    "Size in bytes of the produced archive.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12),
		}),
		RestoreRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openclaw_restore_runs_total",
			Help: "Total restore runs by outcome.",
		}, []string{"outcome"}),
		RestoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openclaw_restore_duration_seconds",
			Help:    "Wall-clock duration of a full restore run.",
			Buckets: prometheus.DefBuckets,
		}),
		ReplicationPush: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openclaw_replication_push_total",
			Help: "Per-provider push attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		IndexRefresh: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openclaw_index_refresh_duration_seconds",
			Help:    "Duration of a full cross-provider index refresh.",
			Buckets: prometheus.DefBuckets,
		}),
		KeyRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openclaw_key_rotations_total",
			Help: "Key rotations by outcome.",
		}, []string{"outcome"}),
		RetentionDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openclaw_retention_deletes_total",
			Help: "Total backup entries deleted by the retention pruner.",
		}),
	}

	reg.MustRegister(
		r.BackupRuns, r.BackupDuration, r.BackupFiles, r.BackupBytes,
		r.RestoreRuns, r.RestoreDuration, r.ReplicationPush, r.IndexRefresh,
		r.KeyRotations, r.RetentionDeletes,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for cmd/ to serve via
// promhttp.HandlerFor.
func (r *Registry) Gatherer() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveBackup records one terminal backup outcome. r may be nil, in which
// case this is a no-op, so orchestrators can accept an optional Registry
// without nil-checking at every call site.
func (r *Registry) ObserveBackup(outcome string, seconds float64, files int, archiveBytes int64) {
	if r == nil {
		return
	}
	r.BackupRuns.WithLabelValues(outcome).Inc()
	r.BackupDuration.Observe(seconds)
	if outcome == "success" {
		r.BackupFiles.Observe(float64(files))
		r.BackupBytes.Observe(float64(archiveBytes))
	}
}

// ObserveRestore records one terminal restore outcome.
func (r *Registry) ObserveRestore(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.RestoreRuns.WithLabelValues(outcome).Inc()
	r.RestoreDuration.Observe(seconds)
}

// ObservePush records one per-provider replication push attempt.
func (r *Registry) ObservePush(provider string, ok bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	r.ReplicationPush.WithLabelValues(provider, outcome).Inc()
}

// ObserveIndexRefresh records the duration of a full index refresh.
func (r *Registry) ObserveIndexRefresh(seconds float64) {
	if r == nil {
		return
	}
	r.IndexRefresh.Observe(seconds)
}

// ObserveRotation records one key-rotation outcome.
func (r *Registry) ObserveRotation(ok bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	r.KeyRotations.WithLabelValues(outcome).Inc()
}

// AddRetentionDeletes increments the retention-delete counter by n.
func (r *Registry) AddRetentionDeletes(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.RetentionDeletes.Add(float64(n))
}
