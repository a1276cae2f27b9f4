package notify

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSuccessResetsStreak(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 3)

	require.NoError(t, m.RecordFailure("host", "boom"))
	require.NoError(t, m.RecordFailure("host", "boom again"))
	require.NoError(t, m.RecordSuccess("host", map[string]int{"files": 5}))

	last, ok := m.LastResult()
	require.True(t, ok)
	assert.Equal(t, TypeSuccess, last.Type)
	assert.Equal(t, 0, last.ConsecutiveFailures)
}

func TestRecordFailureIncrementsStreakAndAlertsAtThreshold(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 2)

	require.NoError(t, m.RecordFailure("host", "first"))
	assert.NoFileExists(t, filepath.Join(dir, AlertsFilename))

	require.NoError(t, m.RecordFailure("host", "second"))
	assert.FileExists(t, filepath.Join(dir, AlertsFilename))

	last, ok := m.LastResult()
	require.True(t, ok)
	assert.Equal(t, 2, last.ConsecutiveFailures)
}

func TestStartupCheckReportsOnlyAfterFailure(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 3)

	_, ok := m.StartupCheck()
	assert.False(t, ok, "no result yet should report nothing")

	require.NoError(t, m.RecordSuccess("host", nil))
	_, ok = m.StartupCheck()
	assert.False(t, ok, "a success should not trigger a startup warning")

	require.NoError(t, m.RecordFailure("host", "oops"))
	msg, ok := m.StartupCheck()
	require.True(t, ok)
	assert.Contains(t, msg, "1 backup(s) failed")
}

func TestClearAlertsIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 1)
	require.NoError(t, m.RecordFailure("host", "boom"))
	require.FileExists(t, filepath.Join(dir, AlertsFilename))

	require.NoError(t, m.ClearAlerts())
	require.NoError(t, m.ClearAlerts())
	assert.NoFileExists(t, filepath.Join(dir, AlertsFilename))
}
