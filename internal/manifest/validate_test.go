package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAgainstDirectorySucceedsOnMatch(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.txt", "hello")

	sum, err := hashFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)

	m := &Manifest{SchemaVersion: SchemaVersion, Files: []File{{Path: "a.txt", SHA256: sum}}}

	result, err := ValidateAgainstDirectory(m, dir)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateAgainstDirectoryFailsOnTamper(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.txt", "hello")

	sum, err := hashFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("tampered"), 0o644))

	m := &Manifest{SchemaVersion: SchemaVersion, Files: []File{{Path: "a.txt", SHA256: sum}}}

	result, err := ValidateAgainstDirectory(m, dir)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 1)
}

func TestValidateAgainstDirectoryRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{SchemaVersion: SchemaVersion, Files: []File{{Path: "../escape.txt", SHA256: "0000000000000000000000000000000000000000000000000000000000000000"}}}

	result, err := ValidateAgainstDirectory(m, dir)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 1)
}

func TestValidateAgainstDirectoryRejectsUnsupportedSchema(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{SchemaVersion: 99}
	_, err := ValidateAgainstDirectory(m, dir)
	require.Error(t, err)
}
