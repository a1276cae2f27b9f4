package restore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openclaw/backup/internal/config"
	"github.com/openclaw/backup/internal/manifest"
	"github.com/openclaw/backup/internal/provider"
)

func TestResolveProviderPrefersLocalOverRemote(t *testing.T) {
	opts := &config.Options{
		Destinations: map[string]config.Destination{
			"dual": {Path: t.TempDir(), Remote: "remote:bucket"},
		},
	}
	o := New(opts, t.TempDir(), zap.NewNop(), nil, nil, nil)

	p, err := o.resolveProvider("dual")
	require.NoError(t, err)
	_, isLocal := p.(*provider.Local)
	assert.True(t, isLocal)
}

func TestResolveProviderUnknownDestinationErrors(t *testing.T) {
	o := New(&config.Options{Destinations: map[string]config.Destination{}}, t.TempDir(), nil, nil, nil, nil)
	_, err := o.resolveProvider("missing")
	require.Error(t, err)
}

func TestResolveArchiveByTimestampPrefersEncrypted(t *testing.T) {
	root := t.TempDir()
	p, err := provider.NewLocal(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "host-2024-01-02T03-04-05Z.tar.gz"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "host-2024-01-02T03-04-05Z.tar.gz.age"), []byte("x"), 0o644))

	o := New(&config.Options{}, t.TempDir(), zap.NewNop(), nil, nil, nil)
	ref, err := o.resolveArchive(context.Background(), p, "dest", "2024-01-02T03-04-05Z")
	require.NoError(t, err)
	assert.True(t, ref.Encrypted)
	assert.Equal(t, "host-2024-01-02T03-04-05Z", ref.Filename)
}

func TestResolveArchiveByTimestampNotFoundErrors(t *testing.T) {
	root := t.TempDir()
	p, err := provider.NewLocal(root)
	require.NoError(t, err)

	o := New(&config.Options{}, t.TempDir(), zap.NewNop(), nil, nil, nil)
	_, err = o.resolveArchive(context.Background(), p, "dest", "2099-01-01T00-00-00Z")
	require.Error(t, err)
}

func TestContainsString(t *testing.T) {
	assert.True(t, containsString([]string{"a", "b"}, "b"))
	assert.False(t, containsString([]string{"a", "b"}, "c"))
}

func TestCopyFileModePreservesPermissionsMinusGroupOther(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o777))

	dst := filepath.Join(t.TempDir(), "nested", "dst.txt")
	require.NoError(t, copyFileMode(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestReadEmbeddedManifest(t *testing.T) {
	dir := t.TempDir()
	m := &manifest.Manifest{SchemaVersion: manifest.SchemaVersion, Hostname: "h", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	data, err := m.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644))

	got, err := readEmbeddedManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "h", got.Hostname)
}

func TestCheckVersionAdvisoryWarnsOnMajorMismatch(t *testing.T) {
	o := New(&config.Options{}, t.TempDir(), zap.NewNop(), nil, nil, nil)
	m := &manifest.Manifest{OpenclawVersion: "1.0.0"}

	warning := o.checkVersionAdvisory(m, false)
	if warning == "" {
		t.Skip("current build version matches major 1; advisory only fires on mismatch")
	}
	assert.Contains(t, warning, "major version")
}

func TestCheckVersionAdvisorySuppressed(t *testing.T) {
	o := New(&config.Options{}, t.TempDir(), zap.NewNop(), nil, nil, nil)
	m := &manifest.Manifest{OpenclawVersion: "999.0.0"}
	assert.Equal(t, "", o.checkVersionAdvisory(m, true))
}
