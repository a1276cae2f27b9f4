package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw/backup/internal/manifest"
	"github.com/openclaw/backup/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSidecar(t *testing.T, root, name string, m *manifest.Manifest) {
	t.Helper()
	data, err := m.Marshal()
	require.NoError(t, err)
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestRefreshFallsBackToManifestScan(t *testing.T) {
	root := t.TempDir()
	p, err := provider.NewLocal(root)
	require.NoError(t, err)

	m := &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Hostname:      "myhost",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Files:         []manifest.File{{Path: "a.txt", SHA256: "0000000000000000000000000000000000000000000000000000000000000000", SizeByte: 10}},
	}
	writeSidecar(t, root, "myhost/myhost-2024-01-02T03-04-05Z.manifest.json", m)

	mgr := NewManager([]provider.Provider{p}, filepath.Join(root, "cache.json"), nil)
	entries, err := mgr.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "myhost/myhost-2024-01-02T03-04-05Z", entries[0].Filename)
	assert.Equal(t, []string{"local"}, entries[0].Providers)
	assert.Equal(t, 1, entries[0].FileCount)
}

func TestGetUsesFreshCacheWithoutRefresh(t *testing.T) {
	root := t.TempDir()
	p, err := provider.NewLocal(root)
	require.NoError(t, err)

	cachePath := filepath.Join(root, "cache.json")
	mgr := NewManager([]provider.Provider{p}, cachePath, nil)
	mgr.writeCache([]Entry{{Timestamp: "2024-01-01T00:00:00Z", Filename: "cached"}})

	entries, err := mgr.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cached", entries[0].Filename)
}

func TestInvalidateRemovesCacheAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	cachePath := filepath.Join(root, "cache.json")
	mgr := NewManager(nil, cachePath, nil)
	mgr.writeCache([]Entry{{Filename: "x"}})

	require.NoError(t, mgr.Invalidate())
	require.NoError(t, mgr.Invalidate())
	assert.NoFileExists(t, cachePath)
}

func TestUnionStringsDeduplicates(t *testing.T) {
	got := unionStrings([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRefreshUsesLightweightIndexFastPathAndWireShape(t *testing.T) {
	root := t.TempDir()
	p, err := provider.NewLocal(root)
	require.NoError(t, err)

	body := `{"last_refreshed":"2024-01-01T00:00:00Z","entries":[{"timestamp":"2024-01-01T00:00:00Z","filename":"myhost/myhost-2024-01-01T00-00-00Z","providers":["local"],"encrypted":false,"size_bytes":5,"file_count":1}]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, LightweightIndexName), []byte(body), 0o644))

	mgr := NewManager([]provider.Provider{p}, filepath.Join(root, "cache.json"), nil)
	entries, err := mgr.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "myhost/myhost-2024-01-01T00-00-00Z", entries[0].Filename)

	// The index we just pushed back as the lightweight object must itself
	// be the wrapped {last_refreshed, entries[]} shape, not a bare array.
	pushed, err := os.ReadFile(filepath.Join(root, LightweightIndexName))
	require.NoError(t, err)
	var doc cacheFile
	require.NoError(t, json.Unmarshal(pushed, &doc))
	require.Len(t, doc.Entries, 1)
}
