package cryptoutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validAgeRecipient encodes a 32-byte payload of repeated 0x09 under the
// "age" human-readable part with a correct bech32 checksum.
const validAgeRecipient = "age1pyysjzgfpyysjzgfpyysjzgfpyysjzgfpyysjzgfpyysjzgfpyyscxl7ka"

func TestBech32DecodeValidAgeRecipient(t *testing.T) {
	hrp, data, err := bech32Decode(validAgeRecipient)
	require.NoError(t, err)
	assert.Equal(t, "age", hrp)
	assert.True(t, bytes.Equal(data, bytes.Repeat([]byte{0x09}, 32)))
}

func TestBech32DecodeRejectsBadChecksum(t *testing.T) {
	corrupted := validAgeRecipient[:len(validAgeRecipient)-1] + "q"
	_, _, err := bech32Decode(corrupted)
	require.Error(t, err)
}

func TestBech32DecodeRejectsMissingSeparator(t *testing.T) {
	_, _, err := bech32Decode("nobodyseparatorhere")
	require.Error(t, err)
}
