package cryptoutil

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateKeyFile runs age-keygen, writes its full stdout to keyPath with
// O_CREAT|O_EXCL and mode 0o600 (atomically failing if the slot is already
// occupied, closing the exists-check-then-write TOCTOU window), and writes
// two best-effort sidecar files alongside it: backup-pubkey.txt and
// backup-key-fingerprint.txt. It returns the parsed public key.
func GenerateKeyFile(ctx context.Context, keyPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return "", fmt.Errorf("cryptoutil: create key directory: %w", err)
	}

	out, err := runCapture(ctx, KeygenBinary, nil, nil)
	if err != nil {
		return "", err
	}

	kp, err := parseKeygenOutput(out)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(keyPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: key already exists at %s: %w", keyPath, err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		return "", fmt.Errorf("cryptoutil: write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("cryptoutil: close key file: %w", err)
	}

	// Sidecars are operator conveniences, not load-bearing; write failures
	// are non-fatal.
	dir := filepath.Dir(keyPath)
	_ = os.WriteFile(filepath.Join(dir, "backup-pubkey.txt"), []byte(kp.PublicKey+"\n"), 0o600)
	_ = os.WriteFile(filepath.Join(dir, "backup-key-fingerprint.txt"), []byte(kp.Fingerprint()+"\n"), 0o600)

	return kp.PublicKey, nil
}

// ReadPublicKey reads a key file and parses its public key, accepting either
// the age-keygen comment form ("# public key: age1...") or a bare
// "Public key: age1..." line some callers may have written by hand. Callers
// that need to confirm the recipient is well-formed before using it (e.g.
// before staging a long-running encryption) should additionally run it
// through ValidateRecipient.
func ReadPublicKey(keyPath string) (string, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: read key file %s: %w", keyPath, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "# public key:"):
			return strings.TrimSpace(strings.TrimPrefix(line, "# public key:")), nil
		case strings.HasPrefix(line, "Public key:"):
			return strings.TrimSpace(strings.TrimPrefix(line, "Public key:")), nil
		}
	}
	return "", fmt.Errorf("cryptoutil: no public key comment found in %s", keyPath)
}

// KeyID reads keyPath and returns the first 16 hex characters of
// SHA-256(public key), the identifier manifests store as key_id.
func KeyID(keyPath string) (string, error) {
	pub, err := ReadPublicKey(keyPath)
	if err != nil {
		return "", err
	}
	return Fingerprint(pub), nil
}

// EncryptFile reads keyPath, extracts its public (recipient) key, and
// invokes age in recipient mode: `-r <pubkey> -o out in`. Using the identity
// flag here would be backwards: encryption always targets a recipient, not
// an identity.
func EncryptFile(ctx context.Context, in, out, keyPath string) error {
	pub, err := ReadPublicKey(keyPath)
	if err != nil {
		return err
	}
	_, err = runCapture(ctx, Binary, []string{"-r", pub, "-o", out, in}, nil)
	return err
}

// DecryptFile invokes age in identity mode: `--decrypt -i <keyPath> -o out in`.
func DecryptFile(ctx context.Context, in, out, keyPath string) error {
	_, err := runCapture(ctx, Binary, []string{"--decrypt", "-i", keyPath, "-o", out, in}, nil)
	return err
}
