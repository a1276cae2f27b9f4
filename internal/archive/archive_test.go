package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIfSymlinkFollowsTarget(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.txt")
	require.NoError(t, os.WriteFile(real, []byte("x"), 0o644))

	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(real, link))

	resolved, err := resolveIfSymlink(link)
	require.NoError(t, err)
	assert.Equal(t, real, resolved)
}

func TestResolveIfSymlinkPassesThroughRegularFile(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.txt")
	require.NoError(t, os.WriteFile(real, []byte("x"), 0o644))

	resolved, err := resolveIfSymlink(real)
	require.NoError(t, err)
	assert.Equal(t, real, resolved)
}

func TestVerifyExtractedSymlinksRejectsEscape(t *testing.T) {
	outside := t.TempDir()
	outputDir := t.TempDir()

	escapeTarget := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(escapeTarget, []byte("s"), 0o644))

	link := filepath.Join(outputDir, "escape")
	require.NoError(t, os.Symlink(escapeTarget, link))

	err := verifyExtractedSymlinks(outputDir)
	require.Error(t, err)
}

func TestVerifyExtractedSymlinksAllowsInternalTarget(t *testing.T) {
	outputDir := t.TempDir()
	real := filepath.Join(outputDir, "real.txt")
	require.NoError(t, os.WriteFile(real, []byte("x"), 0o644))

	link := filepath.Join(outputDir, "link.txt")
	require.NoError(t, os.Symlink(real, link))

	require.NoError(t, verifyExtractedSymlinks(outputDir))
}
