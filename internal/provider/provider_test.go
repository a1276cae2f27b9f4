package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRemoteNameRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../escape.tar.gz", "/etc/passwd", "a/../../b"} {
		require.Error(t, ValidateRemoteName(name), name)
	}
}

func TestValidateRemoteNameAllowsNormalNames(t *testing.T) {
	require.NoError(t, ValidateRemoteName("host/host-2024-01-02T03-04-05Z.tar.gz"))
}

func TestFilterArchiveEntriesKeepsRecognizedSuffixesNewestFirst(t *testing.T) {
	in := []string{
		"host-2024-01-01T00-00-00Z.tar.gz",
		"host-2024-02-01T00-00-00Z.tar.gz",
		"host-2024-01-15T00-00-00Z.manifest.json",
		"readme.txt",
	}
	got := filterArchiveEntries(in)
	assert.Equal(t, []string{
		"host-2024-02-01T00-00-00Z.tar.gz",
		"host-2024-01-15T00-00-00Z.manifest.json",
		"host-2024-01-01T00-00-00Z.tar.gz",
	}, got)
}
