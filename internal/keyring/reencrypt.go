package keyring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openclaw/backup/internal/concurrency"
	"github.com/openclaw/backup/internal/cryptoutil"
	"github.com/openclaw/backup/internal/index"
	"github.com/openclaw/backup/internal/manifest"
	"github.com/openclaw/backup/internal/provider"
	"github.com/openclaw/backup/internal/tempdir"
	"go.uber.org/zap"
)

// ReencryptJob is one (entry, provider) pair to re-key, expanded from the
// cross product of encrypted index entries and the providers holding them.
type ReencryptJob struct {
	Entry    index.Entry
	Provider provider.Provider
}

// ReencryptAll pulls each encrypted entry's archive and sidecar from every
// provider that holds it, decrypts with retiredKeyPath, re-encrypts with
// the newly installed key, and pushes both back with the sidecar's key_id
// updated. Per-job errors are collected and returned alongside the success
// count; a failure on one provider/entry pair never aborts the others,
// matching the rotation step's "the rotation itself still succeeds"
// requirement.
func (m *Manager) ReencryptAll(ctx context.Context, jobs []ReencryptJob, retiredKeyPath string) (int, []error) {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	results := concurrency.MapSettled(jobs, 4, func(job ReencryptJob) (struct{}, error) {
		return struct{}{}, m.reencryptOne(ctx, job, retiredKeyPath)
	})

	var succeeded int
	var errs []error
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("keyring: reencrypt %s on %s: %w", jobs[i].Entry.Filename, jobs[i].Provider.Name(), r.Err))
			continue
		}
		succeeded++
	}
	return succeeded, errs
}

func (m *Manager) reencryptOne(ctx context.Context, job ReencryptJob, retiredKeyPath string) error {
	scratch, err := tempdir.New("", "reencrypt")
	if err != nil {
		return err
	}
	defer scratch.Close()

	archiveName := job.Entry.Filename + ".tar.gz.age"
	sidecarName := job.Entry.Filename + ".manifest.json"

	localArchive := filepath.Join(scratch.Path, "archive.tar.gz.age")
	localSidecar := filepath.Join(scratch.Path, "sidecar.manifest.json")
	if err := job.Provider.Pull(ctx, archiveName, localArchive); err != nil {
		return fmt.Errorf("pull archive: %w", err)
	}
	if err := job.Provider.Pull(ctx, sidecarName, localSidecar); err != nil {
		return fmt.Errorf("pull sidecar: %w", err)
	}

	decrypted := filepath.Join(scratch.Path, "archive.tar.gz")
	if err := cryptoutil.DecryptFile(ctx, localArchive, decrypted, retiredKeyPath); err != nil {
		return fmt.Errorf("decrypt with retired key: %w", err)
	}

	reencrypted := filepath.Join(scratch.Path, "archive.new.tar.gz.age")
	if err := cryptoutil.EncryptFile(ctx, decrypted, reencrypted, m.KeyPath); err != nil {
		return fmt.Errorf("reencrypt with active key: %w", err)
	}

	newKeyID, err := cryptoutil.KeyID(m.KeyPath)
	if err != nil {
		return fmt.Errorf("read active key id: %w", err)
	}
	updatedSidecar, err := updateSidecarKeyID(localSidecar, newKeyID)
	if err != nil {
		return fmt.Errorf("update sidecar key_id: %w", err)
	}

	if err := job.Provider.Push(ctx, reencrypted, archiveName); err != nil {
		return fmt.Errorf("push re-encrypted archive: %w", err)
	}
	if err := job.Provider.Push(ctx, updatedSidecar, sidecarName); err != nil {
		return fmt.Errorf("push updated sidecar: %w", err)
	}
	return nil
}

// updateSidecarKeyID parses the sidecar manifest, stamps its key_id with
// newKeyID (preserving every other field, including timestamp and files, as
// rotation must), and writes the result to a new file next to the original.
func updateSidecarKeyID(sidecarPath, newKeyID string) (string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", err
	}
	m, err := manifest.Unmarshal(data)
	if err != nil {
		return "", err
	}
	m.KeyID = newKeyID

	out := sidecarPath + ".updated"
	body, err := m.Marshal()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(out, body, 0o600); err != nil {
		return "", err
	}
	return out, nil
}
