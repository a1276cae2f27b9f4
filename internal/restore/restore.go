// Package restore implements the restore orchestrator: resolve a backup
// across providers, decrypt it via the keyring, extract with escape
// guards, verify every file's checksum, and copy per-file into the user's
// home directory. The whole archive is materialized and verified before a
// single real file is written; there is no streaming or partial restore.
package restore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/backup/internal/archive"
	"github.com/openclaw/backup/internal/backup"
	"github.com/openclaw/backup/internal/config"
	"github.com/openclaw/backup/internal/cryptoutil"
	"github.com/openclaw/backup/internal/index"
	"github.com/openclaw/backup/internal/keyring"
	"github.com/openclaw/backup/internal/manifest"
	"github.com/openclaw/backup/internal/metrics"
	"github.com/openclaw/backup/internal/pathutil"
	"github.com/openclaw/backup/internal/progress"
	"github.com/openclaw/backup/internal/provider"
	"github.com/openclaw/backup/internal/tempdir"
	"github.com/openclaw/backup/internal/version"
)

// ArchiveRef identifies one resolved backup on a specific provider.
type ArchiveRef struct {
	Filename  string // remote name, without suffix
	Encrypted bool
}

// RunOptions carries the per-invocation parameters for a restore.
type RunOptions struct {
	Source                 string // configured destination name to restore from
	Timestamp              string // optional; empty means "latest"
	DryRun                 bool
	SkipPreBackup          bool
	SuppressVersionWarning bool
}

// Result reports the outcome of one restore run.
type Result struct {
	Timestamp        string
	FileCount        int
	Errors           []string
	PreBackupCreated bool
	DryRun           bool
	VersionWarning   string
}

// Orchestrator runs restores for one configured engine instance.
type Orchestrator struct {
	Options  *config.Options
	Home     string
	Logger   *zap.Logger
	Metrics  *metrics.Registry
	Progress progress.Func
	Keyring  *keyring.Manager
	// Backup, when non-nil, is invoked to take a safety backup before a
	// destructive restore (step 10), scoped to the same provider as the
	// restore source. A nil Backup forces SkipPreBackup semantics.
	Backup *backup.Orchestrator
}

// New constructs an Orchestrator.
func New(opts *config.Options, home string, logger *zap.Logger, m *metrics.Registry, kr *keyring.Manager, backupOrch *backup.Orchestrator) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Options:  opts,
		Home:     home,
		Logger:   logger,
		Metrics:  m,
		Progress: progress.Noop,
		Keyring:  kr,
		Backup:   backupOrch,
	}
}

// Run executes one restore: resolve -> pull -> decrypt -> extract -> verify
// -> (dry-run terminal) -> optional safety backup -> copy.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (result Result, err error) {
	start := time.Now()
	defer func() {
		seconds := time.Since(start).Seconds()
		if err != nil {
			o.Metrics.ObserveRestore("failure", seconds)
			return
		}
		o.Metrics.ObserveRestore("success", seconds)
	}()

	prov, err := o.resolveProvider(opts.Source)
	if err != nil {
		return Result{}, err
	}

	ref, err := o.resolveArchive(ctx, prov, opts.Source, opts.Timestamp)
	if err != nil {
		return Result{}, err
	}

	scratch, err := tempdir.New(o.Options.TempDir, "restore")
	if err != nil {
		return Result{}, err
	}
	defer scratch.Close()

	archivePath, sidecar, err := o.pullArchive(ctx, prov, ref, scratch.Path)
	if err != nil {
		return Result{}, err
	}

	if err := o.emit(progress.Event{Stage: progress.StageExtract, Message: "extracting archive", Path: ref.Filename}); err != nil {
		return Result{}, err
	}

	extractDir := filepath.Join(scratch.Path, "extracted")
	if err := archive.Extract(ctx, archivePath, extractDir, 0); err != nil {
		return Result{}, fmt.Errorf("restore: extract archive: %w", err)
	}

	embedded, err := readEmbeddedManifest(extractDir)
	if err != nil {
		return Result{}, err
	}

	if sidecar != nil {
		if sidecar.Timestamp != embedded.Timestamp || sidecar.Hostname != embedded.Hostname {
			return Result{}, fmt.Errorf("restore: tamper suspicion: sidecar manifest (timestamp=%s, hostname=%s) disagrees with embedded manifest (timestamp=%s, hostname=%s)",
				sidecar.Timestamp, sidecar.Hostname, embedded.Timestamp, embedded.Hostname)
		}
	}

	versionWarning := o.checkVersionAdvisory(embedded, opts.SuppressVersionWarning)

	if err := o.emit(progress.Event{Stage: progress.StageVerify, Message: "verifying checksums", Total: int64(len(embedded.Files))}); err != nil {
		return Result{}, err
	}

	validation, err := manifest.ValidateAgainstDirectory(embedded, extractDir)
	if err != nil {
		return Result{}, fmt.Errorf("restore: %w", err)
	}
	if !validation.Valid {
		return Result{}, fmt.Errorf("restore: integrity check failed, aborting before any file is written: %s", strings.Join(validation.Errors, "; "))
	}

	if opts.DryRun {
		return Result{
			Timestamp:      embedded.Timestamp,
			FileCount:      len(embedded.Files),
			DryRun:         true,
			VersionWarning: versionWarning,
		}, nil
	}

	preBackupCreated := false
	if !opts.SkipPreBackup && o.Backup != nil {
		if _, berr := o.Backup.Run(ctx, backup.RunOptions{Destination: opts.Source}); berr != nil {
			o.Logger.Warn("restore: safety backup before restore failed, proceeding anyway", zap.Error(berr))
		} else {
			preBackupCreated = true
		}
	}

	copyErrors := o.copyFiles(embedded, extractDir)

	return Result{
		Timestamp:        embedded.Timestamp,
		FileCount:        len(embedded.Files),
		Errors:           copyErrors,
		PreBackupCreated: preBackupCreated,
		VersionWarning:   versionWarning,
	}, nil
}

// emit reports a progress event to the caller-supplied reporter. A non-nil
// return aborts the run at this checkpoint, per the progress.Func contract.
func (o *Orchestrator) emit(ev progress.Event) error {
	if o.Progress == nil {
		return nil
	}
	if err := o.Progress(ev); err != nil {
		return fmt.Errorf("restore: aborted by progress callback: %w", err)
	}
	return nil
}

// resolveProvider builds the single provider instance matching a configured
// destination name. If the destination carries both a local path and a
// remote target, the local side is preferred as the restore source.
func (o *Orchestrator) resolveProvider(name string) (provider.Provider, error) {
	dest, ok := o.Options.Destinations[name]
	if !ok {
		return nil, fmt.Errorf("restore: unknown source destination %q", name)
	}
	if dest.Path != "" {
		return provider.NewLocal(dest.Path)
	}
	if dest.Remote != "" {
		return provider.NewRemoteSync(dest.Remote), nil
	}
	return nil, fmt.Errorf("restore: destination %q has neither path nor remote configured", name)
}

// resolveArchive picks the backup to restore: if a timestamp was given,
// list every entry on the provider and prefer an encrypted match, else an
// unencrypted one; otherwise fetch the merged index and pick the newest
// entry this provider holds.
func (o *Orchestrator) resolveArchive(ctx context.Context, prov provider.Provider, sourceName, timestamp string) (ArchiveRef, error) {
	if timestamp != "" {
		names, err := prov.ListAll(ctx)
		if err != nil {
			return ArchiveRef{}, fmt.Errorf("restore: list %s: %w", sourceName, err)
		}
		var ageMatch, plainMatch string
		for _, n := range names {
			if !strings.Contains(n, timestamp) {
				continue
			}
			if strings.HasSuffix(n, ".tar.gz.age") && ageMatch == "" {
				ageMatch = n
			} else if strings.HasSuffix(n, ".tar.gz") && plainMatch == "" {
				plainMatch = n
			}
		}
		switch {
		case ageMatch != "":
			return ArchiveRef{Filename: strings.TrimSuffix(ageMatch, ".tar.gz.age"), Encrypted: true}, nil
		case plainMatch != "":
			return ArchiveRef{Filename: strings.TrimSuffix(plainMatch, ".tar.gz"), Encrypted: false}, nil
		default:
			return ArchiveRef{}, fmt.Errorf("restore: no backup matching timestamp %q found on %s", timestamp, sourceName)
		}
	}

	idx := index.NewManager([]provider.Provider{prov}, "", o.Logger)
	entries, err := idx.Refresh(ctx)
	if err != nil {
		return ArchiveRef{}, fmt.Errorf("restore: refresh index: %w", err)
	}
	for _, e := range entries {
		if containsString(e.Providers, prov.Name()) {
			return ArchiveRef{Filename: e.Filename, Encrypted: e.Encrypted}, nil
		}
	}
	return ArchiveRef{}, fmt.Errorf("restore: no backups found on %s", sourceName)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// pullArchive downloads the archive (and, if encrypted, the sidecar
// manifest plus a decryption) into scratchDir, returning the path to a
// plaintext gzip-tar archive ready for extraction.
func (o *Orchestrator) pullArchive(ctx context.Context, prov provider.Provider, ref ArchiveRef, scratchDir string) (archivePath string, sidecar *manifest.Manifest, err error) {
	suffix := ".tar.gz"
	if ref.Encrypted {
		suffix = ".tar.gz.age"
	}
	remoteArchive := ref.Filename + suffix
	localArchive := filepath.Join(scratchDir, "archive"+suffix)
	if err := prov.Pull(ctx, remoteArchive, localArchive); err != nil {
		return "", nil, fmt.Errorf("restore: pull archive: %w", err)
	}

	if !ref.Encrypted {
		return localArchive, nil, nil
	}

	remoteSidecar := pathutil.SidecarPath(remoteArchive)
	localSidecar := filepath.Join(scratchDir, "sidecar.manifest.json")
	if err := prov.Pull(ctx, remoteSidecar, localSidecar); err != nil {
		return "", nil, fmt.Errorf("restore: pull sidecar manifest: %w", err)
	}
	sidecarData, err := os.ReadFile(localSidecar)
	if err != nil {
		return "", nil, fmt.Errorf("restore: read sidecar manifest: %w", err)
	}
	sidecarManifest, err := manifest.Unmarshal(sidecarData)
	if err != nil {
		return "", nil, fmt.Errorf("restore: parse sidecar manifest: %w", err)
	}

	if o.Keyring == nil {
		return "", nil, fmt.Errorf("restore: no keyring configured to decrypt key_id %s", sidecarManifest.KeyID)
	}
	keyPath, err := o.Keyring.FindDecryptionKey(sidecarManifest.KeyID)
	if err != nil {
		return "", nil, fmt.Errorf("restore: find decryption key: %w", err)
	}
	if keyPath == "" {
		return "", nil, fmt.Errorf("restore: no key found matching key_id %s", sidecarManifest.KeyID)
	}

	decrypted := filepath.Join(scratchDir, "archive.tar.gz")
	if err := cryptoutil.DecryptFile(ctx, localArchive, decrypted, keyPath); err != nil {
		return "", nil, fmt.Errorf("restore: decrypt archive: %w", err)
	}
	return decrypted, sidecarManifest, nil
}

func readEmbeddedManifest(extractDir string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(extractDir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("restore: read embedded manifest.json: %w", err)
	}
	m, err := manifest.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("restore: parse embedded manifest.json: %w", err)
	}
	return m, nil
}

// checkVersionAdvisory compares the manifest's recorded tool major version
// against this build's, returning a non-empty warning string on mismatch.
// It never fails the restore: disaster recovery beats blocked recovery.
func (o *Orchestrator) checkVersionAdvisory(m *manifest.Manifest, suppress bool) string {
	if suppress || m.OpenclawVersion == "" {
		return ""
	}
	backupMajor := version.MajorComponent(m.OpenclawVersion)
	currentMajor := version.MajorComponent(version.OpenclawVersion)
	if backupMajor == "" || currentMajor == "" || backupMajor == currentMajor {
		return ""
	}
	warning := fmt.Sprintf("backup was created with openclaw major version %s, this build is %s; restore proceeding anyway", backupMajor, currentMajor)
	o.Logger.Warn("restore: version advisory", zap.String("backup_version", m.OpenclawVersion), zap.String("current_version", version.OpenclawVersion))
	return warning
}

// copyFiles copies every manifest file from extractDir into the user's
// home, joining both sides through the traversal-safe joiner, creating
// parent directories, and chmod'ing each destination to strip group/other
// bits. Per-file failures are collected; the restore proceeds through the
// rest of the file list regardless.
func (o *Orchestrator) copyFiles(m *manifest.Manifest, extractDir string) []string {
	var errs []string
	for _, f := range m.Files {
		src, err := pathutil.SafeJoin(extractDir, f.Path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		dst, err := pathutil.SafeJoin(o.Home, f.Path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		if err := copyFileMode(src, dst); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.Path, err))
		}
	}
	return errs
}

func copyFileMode(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode()&0o700)
}
