package cryptoutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPublicKeyParsesKeygenComment(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.age")
	content := "# created: 2024-01-02T15:04:05Z\n# public key: age1qyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqsxhrlla\nAGE-SECRET-KEY-1EXAMPLE\n"
	require.NoError(t, os.WriteFile(keyPath, []byte(content), 0o600))

	pub, err := ReadPublicKey(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "age1qyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqszqgpqyqsxhrlla", pub)
}

func TestReadPublicKeyParsesBareForm(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.age")
	require.NoError(t, os.WriteFile(keyPath, []byte("Public key: age1examplekey\n"), 0o600))

	pub, err := ReadPublicKey(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "age1examplekey", pub)
}

func TestReadPublicKeyMissingCommentErrors(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.age")
	require.NoError(t, os.WriteFile(keyPath, []byte("AGE-SECRET-KEY-1NOCOMMENT\n"), 0o600))

	_, err := ReadPublicKey(keyPath)
	require.Error(t, err)
}

// fakeKeygen points KeygenBinary at a shell script emitting fixed key
// material, so key-file plumbing is testable without age installed.
func fakeKeygen(t *testing.T, pubkey string) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\necho '# created: 2024-01-02T15:04:05Z'\necho '# public key: " + pubkey + "'\necho 'AGE-SECRET-KEY-1FAKE'\n"
	path := filepath.Join(dir, "age-keygen")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	prev := KeygenBinary
	KeygenBinary = path
	t.Cleanup(func() { KeygenBinary = prev })
}

func TestGenerateKeyFileWritesKeyAndSidecars(t *testing.T) {
	fakeKeygen(t, "age1generated")
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "sub", "key.age")

	pub, err := GenerateKeyFile(context.Background(), keyPath)
	require.NoError(t, err)
	assert.Equal(t, "age1generated", pub)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	sidecar, err := os.ReadFile(filepath.Join(dir, "sub", "backup-pubkey.txt"))
	require.NoError(t, err)
	assert.Equal(t, "age1generated\n", string(sidecar))

	fp, err := os.ReadFile(filepath.Join(dir, "sub", "backup-key-fingerprint.txt"))
	require.NoError(t, err)
	assert.Equal(t, Fingerprint("age1generated")+"\n", string(fp))
}

func TestGenerateKeyFileNeverOverwritesExistingKey(t *testing.T) {
	fakeKeygen(t, "age1generated")
	keyPath := filepath.Join(t.TempDir(), "key.age")

	_, err := GenerateKeyFile(context.Background(), keyPath)
	require.NoError(t, err)
	before, err := os.ReadFile(keyPath)
	require.NoError(t, err)

	_, err = GenerateKeyFile(context.Background(), keyPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	after, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestKeyIDMatchesFingerprintOfPublicKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.age")
	require.NoError(t, os.WriteFile(keyPath, []byte("# public key: age1matchme\nAGE-SECRET-KEY-1X\n"), 0o600))

	id, err := KeyID(keyPath)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint("age1matchme"), id)
	assert.Len(t, id, 16)
}
