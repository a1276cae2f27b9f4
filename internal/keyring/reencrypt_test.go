package keyring

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/backup/internal/manifest"
)

func TestUpdateSidecarKeyIDPreservesEverythingElse(t *testing.T) {
	dir := t.TempDir()
	m := &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Hostname:      "myhost",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Encrypted:     true,
		KeyID:         "aaaaaaaaaaaaaaaa",
		Files:         []manifest.File{{Path: "a.txt", SHA256: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", SizeByte: 5}},
	}
	data, err := m.Marshal()
	require.NoError(t, err)
	sidecarPath := filepath.Join(dir, "backup.manifest.json")
	require.NoError(t, os.WriteFile(sidecarPath, data, 0o600))

	updatedPath, err := updateSidecarKeyID(sidecarPath, "bbbbbbbbbbbbbbbb")
	require.NoError(t, err)

	updatedData, err := os.ReadFile(updatedPath)
	require.NoError(t, err)
	got, err := manifest.Unmarshal(updatedData)
	require.NoError(t, err)

	assert.Equal(t, "bbbbbbbbbbbbbbbb", got.KeyID)
	assert.Equal(t, m.Timestamp, got.Timestamp)
	assert.Equal(t, m.Hostname, got.Hostname)
	assert.Equal(t, m.Files, got.Files)
}
