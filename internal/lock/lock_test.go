package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".backup.lock")

	h, err := Acquire(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, h.Release())
	assert.NoFileExists(t, path)
}

func TestAcquireFailsWhenLiveLockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".backup.lock")

	body, err := json.Marshal(state{PID: os.Getpid(), StartedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".backup.lock")

	// A PID of 1<<30 is extremely unlikely to be alive on any real system,
	// and started_at is old enough to cross StaleAfter.
	body, err := json.Marshal(state{PID: 1 << 30, StartedAt: time.Now().Add(-time.Hour).UTC()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	h, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestAcquireDoesNotReclaimRecentDeadProcessLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".backup.lock")

	// Dead PID but started_at is recent: staleness requires BOTH
	// conditions, so this must not be reclaimed.
	body, err := json.Marshal(state{PID: 1 << 30, StartedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".backup.lock")
	h, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
}
