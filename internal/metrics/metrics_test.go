package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBackupCountsRunsByOutcome(t *testing.T) {
	r := New()
	r.ObserveBackup("success", 1.5, 10, 2048)
	r.ObserveBackup("failure", 0.2, 0, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.BackupRuns.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.BackupRuns.WithLabelValues("failure")))
}

func TestObservePushTracksPerProviderOutcome(t *testing.T) {
	r := New()
	r.ObservePush("local", true)
	r.ObservePush("local", false)
	r.ObservePush("remote", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.ReplicationPush.WithLabelValues("local", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.ReplicationPush.WithLabelValues("local", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.ReplicationPush.WithLabelValues("remote", "success")))
}

func TestNilRegistryMethodsAreNoops(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ObserveBackup("success", 1, 1, 1)
		r.ObserveRestore("success", 1)
		r.ObservePush("x", true)
		r.ObserveIndexRefresh(1)
		r.ObserveRotation(true)
		r.AddRetentionDeletes(3)
	})
	assert.Nil(t, r.Gatherer())
}

func TestAddRetentionDeletesIgnoresNonPositive(t *testing.T) {
	r := New()
	r.AddRetentionDeletes(0)
	r.AddRetentionDeletes(-5)
	r.AddRetentionDeletes(2)
	require.Equal(t, float64(2), testutil.ToFloat64(r.RetentionDeletes))
}
