// Package backup implements the backup orchestrator: the state machine that
// composes prerequisite checks, the key gate, collection, disk preflight,
// the lock, manifest/archive building, and replication into one backup run.
// The lock and staging directory are defer-released on every exit path, and
// replication settles every destination before judging the run.
package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/backup/internal/archive"
	"github.com/openclaw/backup/internal/collector"
	"github.com/openclaw/backup/internal/concurrency"
	"github.com/openclaw/backup/internal/config"
	"github.com/openclaw/backup/internal/cryptoutil"
	"github.com/openclaw/backup/internal/diskspace"
	"github.com/openclaw/backup/internal/lock"
	"github.com/openclaw/backup/internal/manifest"
	"github.com/openclaw/backup/internal/metrics"
	"github.com/openclaw/backup/internal/notify"
	"github.com/openclaw/backup/internal/pathutil"
	"github.com/openclaw/backup/internal/progress"
	"github.com/openclaw/backup/internal/provider"
	"github.com/openclaw/backup/internal/tempdir"
)

// namedProvider pairs a destination provider with the configuration name it
// was instantiated from, used for skipped/succeeded/failed reporting. This
// is distinct from provider.Provider.Name(), which identifies the backend
// kind ("local", "remote-sync"), not the operator-chosen destination key.
type namedProvider struct {
	ConfigName string
	Provider   provider.Provider
}

// RunOptions carries per-invocation overrides layered on top of the static
// config.Options.
type RunOptions struct {
	DryRun        bool
	Destination   string // limit replication to this one configured destination, if set
	SkipDiskCheck bool
}

// Result reports the outcome of one backup run.
type Result struct {
	DryRun                bool
	Timestamp             string
	FileCount             int
	TotalBytes            int64
	ArchiveSize           int64
	ArchiveName           string
	SucceededDestinations []string
	SkippedDestinations   []string
	FailedDestinations    []string
}

// Orchestrator runs backups for one configured engine instance.
type Orchestrator struct {
	Options         *config.Options
	Logger          *zap.Logger
	Metrics         *metrics.Registry
	Notify          *notify.Manager
	Progress        progress.Func
	PluginVersion   string
	OpenclawVersion string
	Hostname        string
	LockPath        string
}

// New constructs an Orchestrator. home is the user's home directory, used to
// derive the lock path (<home>/.openclaw/.backup.lock). When opts.Hostname
// is unset the OS hostname is used instead; either way the value is
// sanitized before it becomes a path component.
func New(opts *config.Options, home string, logger *zap.Logger, m *metrics.Registry, n *notify.Manager) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	hostname := opts.Hostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		}
	}
	hostname = pathutil.SanitizeHostname(hostname)

	return &Orchestrator{
		Options:  opts,
		Logger:   logger,
		Metrics:  m,
		Notify:   n,
		Progress: progress.Noop,
		Hostname: hostname,
		LockPath: filepath.Join(home, ".openclaw", ".backup.lock"),
	}
}

// Run executes one backup: READY -> PREREQ_OK -> (KEY_OK) -> COLLECTED ->
// (dry-run terminal) | LOCKED -> MANIFEST_BUILT -> STAGED -> REPLICATED ->
// DONE. Any failed transition releases the lock (if held), removes the temp
// dir (if created), emits a failure notification, and returns the original
// error.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (result Result, err error) {
	start := time.Now()
	defer func() {
		seconds := time.Since(start).Seconds()
		if err != nil {
			o.Metrics.ObserveBackup("failure", seconds, 0, 0)
			if o.Notify != nil {
				o.Notify.RecordFailure(o.Hostname, err.Error())
			}
			return
		}
		if result.DryRun {
			return
		}
		o.Metrics.ObserveBackup("success", seconds, result.FileCount, result.ArchiveSize)
		if o.Notify != nil {
			o.Notify.RecordSuccess(o.Hostname, result)
		}
	}()

	providers, err := o.selectProviders(opts.Destination)
	if err != nil {
		return Result{}, err
	}

	if err := o.checkPrerequisites(providers); err != nil {
		return Result{}, err
	}

	if err := o.emit(progress.Event{Stage: progress.StageScan, Message: "collecting files"}); err != nil {
		return Result{}, err
	}

	keyPath := o.Options.EncryptKeyPath
	if o.Options.Encrypt {
		if err := o.ensureKey(ctx, keyPath); err != nil {
			return Result{}, err
		}
	}

	files, err := o.collect()
	if err != nil {
		return Result{}, err
	}

	var totalBytes int64
	for _, f := range files {
		totalBytes += f.SizeByte
	}

	if opts.DryRun {
		return Result{DryRun: true, FileCount: len(files), TotalBytes: totalBytes}, nil
	}

	if !o.Options.SkipDiskCheck && !opts.SkipDiskCheck {
		stagingRoot := o.Options.TempDir
		if stagingRoot == "" {
			stagingRoot = os.TempDir()
		}
		if err := diskspace.Preflight(ctx, stagingRoot, totalBytes); err != nil {
			return Result{}, err
		}
	}

	handle, err := lock.Acquire(o.LockPath)
	if err != nil {
		return Result{}, err
	}
	defer handle.Release()

	timestamp := time.Now().UTC().Format(time.RFC3339)

	var keyID string
	if o.Options.Encrypt {
		keyID, err = cryptoutil.KeyID(keyPath)
		if err != nil {
			return Result{}, fmt.Errorf("backup: read key id: %w", err)
		}
	}

	if err := o.emit(progress.Event{Stage: progress.StageHash, Message: "hashing files", Total: int64(len(files))}); err != nil {
		return Result{}, err
	}

	m, err := manifest.Build(ctx, files, manifest.BuildOptions{
		PluginVersion:      o.PluginVersion,
		OpenclawVersion:    o.OpenclawVersion,
		Hostname:           o.Hostname,
		Timestamp:          timestamp,
		Encrypted:          o.Options.Encrypt,
		KeyID:              keyID,
		IncludeTranscripts: o.Options.IncludeTranscripts,
		IncludePersistor:   o.Options.IncludePersistor,
	})
	if err != nil {
		return Result{}, fmt.Errorf("backup: build manifest: %w", err)
	}

	staging, err := tempdir.New(o.Options.TempDir, "backup")
	if err != nil {
		return Result{}, err
	}
	defer staging.Close()

	suffix := ".tar.gz"
	if o.Options.Encrypt {
		suffix = ".tar.gz.age"
	}
	filenameTS := pathutil.TimestampForFilename(timestamp)
	baseName := fmt.Sprintf("%s-%s", o.Hostname, filenameTS)
	archiveRemoteName := fmt.Sprintf("%s/%s%s", o.Hostname, baseName, suffix)
	sidecarRemoteName := fmt.Sprintf("%s/%s.manifest.json", o.Hostname, baseName)

	if err := o.emit(progress.Event{Stage: progress.StageArchive, Message: "building archive", Path: archiveRemoteName}); err != nil {
		return Result{}, err
	}

	archivePath := filepath.Join(staging.Path, baseName+suffix)
	createOpts := archive.CreateOptions{TempDir: o.Options.TempDir}
	if o.Options.Encrypt {
		createOpts.KeyPath = keyPath
	}
	if err := archive.Create(ctx, files, m, archivePath, createOpts); err != nil {
		return Result{}, fmt.Errorf("backup: create archive: %w", err)
	}

	sidecarBody, err := m.Marshal()
	if err != nil {
		return Result{}, fmt.Errorf("backup: marshal sidecar manifest: %w", err)
	}
	sidecarPath := filepath.Join(staging.Path, baseName+".manifest.json")
	if err := os.WriteFile(sidecarPath, sidecarBody, 0o600); err != nil {
		return Result{}, fmt.Errorf("backup: write sidecar manifest: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("backup: stat archive: %w", err)
	}

	available, skipped := o.checkAvailability(ctx, providers)
	if len(available) == 0 {
		return Result{}, fmt.Errorf("backup: no destination is available (skipped: %s)", strings.Join(skipped, ", "))
	}

	if err := o.emit(progress.Event{Stage: progress.StageReplicate, Message: fmt.Sprintf("replicating to %d destination(s)", len(available))}); err != nil {
		return Result{}, err
	}

	succeeded, failed := o.replicate(ctx, available, archivePath, archiveRemoteName, sidecarPath, sidecarRemoteName)
	if len(succeeded) == 0 {
		return Result{}, fmt.Errorf("backup: replication failed on every available destination: %s", strings.Join(failed, ", "))
	}

	return Result{
		Timestamp:             timestamp,
		FileCount:             len(files),
		TotalBytes:            totalBytes,
		ArchiveSize:           info.Size(),
		ArchiveName:           archiveRemoteName,
		SucceededDestinations: succeeded,
		SkippedDestinations:   skipped,
		FailedDestinations:    failed,
	}, nil
}

// emit reports a progress event to the caller-supplied reporter. A non-nil
// return aborts the run at this checkpoint, per the progress.Func contract.
func (o *Orchestrator) emit(ev progress.Event) error {
	if o.Progress == nil {
		return nil
	}
	if err := o.Progress(ev); err != nil {
		return fmt.Errorf("backup: aborted by progress callback: %w", err)
	}
	return nil
}

// selectProviders instantiates a namedProvider for every configured
// destination that has a Path, a Remote, or both, limited to destName when
// non-empty.
func (o *Orchestrator) selectProviders(destName string) ([]namedProvider, error) {
	var out []namedProvider
	for name, dest := range o.Options.Destinations {
		if destName != "" && name != destName {
			continue
		}
		if dest.Path != "" {
			p, err := provider.NewLocal(dest.Path)
			if err != nil {
				return nil, fmt.Errorf("backup: destination %q: %w", name, err)
			}
			out = append(out, namedProvider{ConfigName: name, Provider: p})
		}
		if dest.Remote != "" {
			out = append(out, namedProvider{ConfigName: name, Provider: provider.NewRemoteSync(dest.Remote)})
		}
	}
	if destName != "" && len(out) == 0 {
		return nil, fmt.Errorf("backup: unknown destination %q", destName)
	}
	return out, nil
}

// checkPrerequisites verifies the age encryptor is present (when Encrypt is
// set) and that a remote-sync tool is present whenever any provider in the
// subset actually used this run is remote-backed. A missing prerequisite is
// surfaced before any I/O.
func (o *Orchestrator) checkPrerequisites(providers []namedProvider) error {
	if o.Options.Encrypt {
		if _, err := exec.LookPath(cryptoutil.Binary); err != nil {
			return fmt.Errorf("backup: prerequisite missing: %q not found in PATH (install age: https://github.com/FiloSottile/age): %w", cryptoutil.Binary, err)
		}
	}
	for _, np := range providers {
		if _, ok := np.Provider.(*provider.RemoteSync); ok {
			if _, err := exec.LookPath(provider.RemoteSyncBinary); err != nil {
				return fmt.Errorf("backup: prerequisite missing: %q not found in PATH for destination %q: %w", provider.RemoteSyncBinary, np.ConfigName, err)
			}
		}
	}
	return nil
}

// ensureKey generates a key at keyPath if absent, then verifies it is
// readable. Generation emits a warning log including the path and a
// "back this up" instruction, since a lost key makes every encrypted
// backup ever produced with it unrecoverable.
func (o *Orchestrator) ensureKey(ctx context.Context, keyPath string) error {
	if _, err := os.Stat(keyPath); err == nil {
		if _, err := cryptoutil.ReadPublicKey(keyPath); err != nil {
			return fmt.Errorf("backup: existing key at %s is not readable: %w", keyPath, err)
		}
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("backup: stat key %s: %w", keyPath, err)
	}

	if _, err := cryptoutil.GenerateKeyFile(ctx, keyPath); err != nil {
		return fmt.Errorf("backup: generate key: %w", err)
	}
	o.Logger.Warn("backup: generated a new encryption key; back this up somewhere safe, it cannot be recovered if lost",
		zap.String("key_path", keyPath))

	if _, err := cryptoutil.ReadPublicKey(keyPath); err != nil {
		return fmt.Errorf("backup: newly generated key at %s is not readable: %w", keyPath, err)
	}
	return nil
}

func (o *Orchestrator) collect() ([]manifest.CollectedFile, error) {
	files, err := collector.Collect(collector.Config{
		IncludeRoots:    o.Options.Include,
		ExtraRoots:      o.Options.ExtraPaths,
		ExcludePatterns: o.Options.Exclude,
		Logger:          o.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("backup: collect files: %w", err)
	}
	return files, nil
}

// checkAvailability calls Check on every candidate provider, returning the
// available subset and the ConfigNames of those skipped as unavailable.
func (o *Orchestrator) checkAvailability(ctx context.Context, providers []namedProvider) (available []namedProvider, skipped []string) {
	for _, np := range providers {
		ok, err := np.Provider.Check(ctx)
		if !ok {
			o.Logger.Warn("backup: destination unavailable, skipping", zap.String("destination", np.ConfigName), zap.Error(err))
			skipped = append(skipped, np.ConfigName)
			continue
		}
		available = append(available, np)
	}
	return available, skipped
}

// replicate pushes the archive then the sidecar to every available
// provider using settle-all semantics: every push is awaited even if
// others fail. A destination counts as succeeded only if both its archive
// and sidecar push succeed; pushes to different destinations are not
// ordered relative to one another, but archive-then-sidecar within one
// destination always is.
func (o *Orchestrator) replicate(ctx context.Context, providers []namedProvider, archivePath, archiveRemoteName, sidecarPath, sidecarRemoteName string) (succeeded, failed []string) {
	settled := concurrency.MapSettled(providers, 4, func(np namedProvider) (string, error) {
		if err := np.Provider.Push(ctx, archivePath, archiveRemoteName); err != nil {
			return np.ConfigName, fmt.Errorf("push archive: %w", err)
		}
		if err := np.Provider.Push(ctx, sidecarPath, sidecarRemoteName); err != nil {
			return np.ConfigName, fmt.Errorf("push sidecar: %w", err)
		}
		return np.ConfigName, nil
	})

	for i, s := range settled {
		name := providers[i].ConfigName
		if s.Err != nil {
			o.Logger.Warn("backup: replication failed for destination", zap.String("destination", name), zap.Error(s.Err))
			o.Metrics.ObservePush(name, false)
			failed = append(failed, name)
			continue
		}
		o.Metrics.ObservePush(name, true)
		succeeded = append(succeeded, name)
	}
	return succeeded, failed
}
