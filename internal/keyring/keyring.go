// Package keyring implements key rotation and decryption-key lookup across
// the active key slot and a retired-key archive, built on top of
// internal/cryptoutil's file-oriented primitives.
package keyring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/openclaw/backup/internal/cryptoutil"
	"go.uber.org/zap"
)

// Manager owns one active key file and a directory of retired keys named
// by fingerprint.
type Manager struct {
	KeyPath    string
	RetiredDir string
	Logger     *zap.Logger
}

// NewManager returns a Manager for keyPath, deriving its retired-key
// directory as "<dir(keyPath)>/retired".
func NewManager(keyPath string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		KeyPath:    keyPath,
		RetiredDir: filepath.Join(filepath.Dir(keyPath), "retired"),
		Logger:     logger,
	}
}

// KeyInfo is an observational snapshot of the key slot, used for
// user-facing diagnostics. All failure states are reported through the
// fields; taking a snapshot never fails.
type KeyInfo struct {
	Exists          bool
	Readable        bool
	PubKey          string
	KeyID           string
	RetiredKeyCount int
}

// Info inspects the active key slot and the retired-key directory. A
// missing key yields Exists=false; a present but unparseable key yields
// Exists=true, Readable=false.
func (m *Manager) Info() KeyInfo {
	var info KeyInfo
	if _, err := os.Stat(m.KeyPath); err != nil {
		return info
	}
	info.Exists = true

	if pub, err := cryptoutil.ReadPublicKey(m.KeyPath); err == nil {
		info.Readable = true
		info.PubKey = pub
		info.KeyID = cryptoutil.Fingerprint(pub)
	}

	if entries, err := os.ReadDir(m.RetiredDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				info.RetiredKeyCount++
			}
		}
	}
	return info
}

// FindDecryptionKey resolves a key_id to a usable key file path. It checks
// the currently configured key first, then the fast path
// "<retired-dir>/<key_id>.age", then falls back to scanning the retired
// directory and computing each file's key_id until a match is found. It
// returns "" with no error if nothing matches.
func (m *Manager) FindDecryptionKey(keyID string) (string, error) {
	if currentID, err := cryptoutil.KeyID(m.KeyPath); err == nil && currentID == keyID {
		return m.KeyPath, nil
	}

	fastPath := filepath.Join(m.RetiredDir, keyID+".age")
	if _, err := os.Stat(fastPath); err == nil {
		return fastPath, nil
	}

	entries, err := os.ReadDir(m.RetiredDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("keyring: scan retired dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		candidate := filepath.Join(m.RetiredDir, e.Name())
		id, err := cryptoutil.KeyID(candidate)
		if err != nil {
			continue
		}
		if id == keyID {
			return candidate, nil
		}
	}
	return "", nil
}

// RotateResult reports the outcome of a key rotation.
type RotateResult struct {
	OldKeyID string
	NewKeyID string
	// Reencrypted and Errors are not set by Rotate, which only swaps keys;
	// ReencryptAll reports its own count and errors as return values.
	Reencrypted int
	Errors      []error
}

// Rotate generates a new key, archives the old one under RetiredDir by its
// fingerprint, and atomically installs the new key into the active slot.
// A failure before the rename leaves the old key untouched; a crash after
// it leaves the slot non-empty with the new key in place, never both
// failing and leaving no usable key.
func (m *Manager) Rotate(ctx context.Context) (RotateResult, error) {
	var result RotateResult

	oldID, err := cryptoutil.KeyID(m.KeyPath)
	if err != nil {
		return result, fmt.Errorf("keyring: read current key: %w", err)
	}
	result.OldKeyID = oldID

	tempPath := filepath.Join(filepath.Dir(m.KeyPath), fmt.Sprintf(".key-rotate-%s", uuid.NewString()))
	if _, err := cryptoutil.GenerateKeyFile(ctx, tempPath); err != nil {
		return result, fmt.Errorf("keyring: generate new key: %w", err)
	}

	newID, err := cryptoutil.KeyID(tempPath)
	if err != nil {
		os.Remove(tempPath)
		return result, fmt.Errorf("keyring: read new key: %w", err)
	}
	result.NewKeyID = newID

	if err := os.MkdirAll(m.RetiredDir, 0o700); err != nil {
		os.Remove(tempPath)
		return result, fmt.Errorf("keyring: create retired dir: %w", err)
	}
	retiredPath := filepath.Join(m.RetiredDir, oldID+".age")
	if err := copyKeyFile(m.KeyPath, retiredPath); err != nil {
		os.Remove(tempPath)
		return result, fmt.Errorf("keyring: archive old key: %w", err)
	}

	if err := os.Rename(tempPath, m.KeyPath); err != nil {
		return result, fmt.Errorf("keyring: install new key: %w", err)
	}

	return result, nil
}

func copyKeyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}
