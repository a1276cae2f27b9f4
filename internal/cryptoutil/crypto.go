package cryptoutil

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// KeyPair holds a freshly generated age-compatible identity. SecretKey is
// the "AGE-SECRET-KEY-1..." literal as produced by age-keygen; it must be
// written with mode 0o600 and never logged. PublicKey is the "age1..."
// recipient string safe to store alongside manifests.
type KeyPair struct {
	PublicKey string
	SecretKey string
}

// Fingerprint returns the first 16 hex characters of SHA-256(PublicKey),
// used as the short identifier for this key in manifests and log lines
// instead of the full recipient string.
func (k KeyPair) Fingerprint() string {
	return Fingerprint(k.PublicKey)
}

// Fingerprint computes the short identifier for a bare public key string.
func Fingerprint(publicKey string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(publicKey)))
	return hex.EncodeToString(sum[:])[:16]
}

// parseKeygenOutput parses age-keygen's commented output:
//
//	# created: 2024-01-02T15:04:05Z
//	# public key: age1...
//	AGE-SECRET-KEY-1...
func parseKeygenOutput(out []byte) (KeyPair, error) {
	var kp KeyPair
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "# public key:"):
			kp.PublicKey = strings.TrimSpace(strings.TrimPrefix(line, "# public key:"))
		case strings.HasPrefix(line, "AGE-SECRET-KEY-"):
			kp.SecretKey = line
		}
	}
	if kp.SecretKey == "" {
		return KeyPair{}, fmt.Errorf("cryptoutil: age-keygen produced no secret key")
	}
	if kp.PublicKey == "" {
		// Older age-keygen builds omit the "# public key:" comment; derive it
		// from the secret key with the -y flag instead.
		pub, err := runCapture(context.Background(), KeygenBinary, []string{"-y"}, strings.NewReader(kp.SecretKey+"\n"))
		if err != nil {
			return KeyPair{}, fmt.Errorf("cryptoutil: deriving public key: %w", err)
		}
		kp.PublicKey = strings.TrimSpace(string(pub))
	}
	return kp, nil
}

// ValidateRecipient bech32-decodes an age1 recipient string, checks the
// payload is exactly 32 bytes, and confirms it is not one of the well-known
// low-order Curve25519 points (RFC 7748 section 5) that a malformed or
// adversarial key file might contain. This catches a truncated or corrupted
// key before it is handed to a backup run. age itself would also reject it,
// but only after the archive has already been staged.
func ValidateRecipient(publicKey string) error {
	publicKey = strings.TrimSpace(publicKey)
	hrp, payload, err := bech32Decode(publicKey)
	if err != nil {
		return fmt.Errorf("cryptoutil: recipient %q: %w", publicKey, err)
	}
	if hrp != "age" {
		return fmt.Errorf("cryptoutil: %q is not an age1 recipient (hrp %q)", publicKey, hrp)
	}
	if len(payload) != 32 {
		return fmt.Errorf("cryptoutil: recipient %q has a %d-byte payload, want 32", publicKey, len(payload))
	}

	var point [32]byte
	copy(point[:], payload)
	for _, low := range lowOrderPoints {
		if bytes.Equal(point[:], low[:]) {
			return fmt.Errorf("cryptoutil: recipient %q is a known low-order point", publicKey)
		}
	}

	// Exercise the point through an X25519 scalar multiplication so a
	// payload that curve25519 itself rejects (one whose product is the
	// all-zero point) surfaces here rather than deep inside age.
	if _, err := curve25519.X25519(ephemeralScalar(), point[:]); err != nil {
		return fmt.Errorf("cryptoutil: recipient %q failed curve validation: %w", publicKey, err)
	}
	return nil
}

// ephemeralScalar returns a fixed, non-zero scalar (X25519 clamps it
// internally) used only to probe
// a candidate point through curve25519.X25519; it never participates in any
// real key agreement.
func ephemeralScalar() []byte {
	scalar := make([]byte, 32)
	scalar[0] = 1
	scalar[31] = 0x40
	return scalar
}

// lowOrderPoints are the small-subgroup Curve25519 points that a conforming
// implementation must reject; see RFC 7748 section 5 note on contributory
// behaviour.
var lowOrderPoints = [][32]byte{
	{0x00},
	{0x01},
	{0xe0, 0xeb, 0x7a, 0x7c, 0x3b, 0x41, 0xb8, 0xae, 0x16, 0x56, 0xe3, 0xfa, 0xf1, 0x9f, 0xc4, 0x6a,
		0xda, 0x09, 0x8d, 0xeb, 0x9c, 0x32, 0xb1, 0xfd, 0x86, 0x62, 0x05, 0x16, 0x5f, 0x49, 0xb8, 0x00},
}
