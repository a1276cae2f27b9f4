package collector

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollectFindsRegularFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")

	files, err := Collect(Config{IncludeRoots: []string{root}})
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.RelativePath)
	}
	sort.Strings(paths)
	base := filepath.Base(root)
	assert.Equal(t, []string{base + "/a.txt", base + "/sub/b.txt"}, paths)
}

func TestCollectAppliesExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "keep")
	writeFile(t, filepath.Join(root, "debug.log"), "skip")
	writeFile(t, filepath.Join(root, "node_modules", "pkg.json"), "skip")

	files, err := Collect(Config{
		IncludeRoots:    []string{root},
		ExcludePatterns: []string{"*.log", "node_modules"},
	})
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.RelativePath))
	}
	assert.Equal(t, []string{"keep.txt"}, names)
}

func TestCollectDetectsSymlinkCycle(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, filepath.Join(sub, "f.txt"), "f")

	loop := filepath.Join(sub, "loop")
	require.NoError(t, os.Symlink(sub, loop))

	files, err := Collect(Config{IncludeRoots: []string{root}})
	require.NoError(t, err)

	var found int
	for _, f := range files {
		if filepath.Base(f.RelativePath) == "f.txt" {
			found++
		}
	}
	assert.Equal(t, 1, found, "cyclic symlink must not cause duplicate or infinite traversal")
}

func TestCollectRejectsEmptyRootSet(t *testing.T) {
	_, err := Collect(Config{})
	require.Error(t, err)
}

func TestCollectSingleFileRoot(t *testing.T) {
	root := t.TempDir()
	filePath := filepath.Join(root, "only.txt")
	writeFile(t, filePath, "content")

	files, err := Collect(Config{IncludeRoots: []string{filePath}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "only.txt", files[0].RelativePath)
}
