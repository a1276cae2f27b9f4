// Package archive builds and extracts the gzipped-tar, optionally
// age-encrypted archives this engine ships to providers. Creation stages a
// directory of symlinks and lets tar dereference them; extraction filters
// every entry name through the traversal-safe joiner and re-checks all
// extracted symlink targets afterwards.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/backup/internal/cryptoutil"
	"github.com/openclaw/backup/internal/manifest"
	"github.com/openclaw/backup/internal/pathutil"
	"github.com/openclaw/backup/internal/tempdir"
)

// TarBinary names the external tar executable. A var so tests can swap it.
var TarBinary = "tar"

// DefaultCreateTimeout and DefaultExtractTimeout bound how long a create or
// extract operation may run. When the bound elapses, exec.CommandContext
// kills the running subprocess and the operation fails. Create removes its
// own partial output file; Extract leaves any partially extracted files in
// outputDir for the caller to remove.
const (
	DefaultCreateTimeout  = 5 * time.Minute
	DefaultExtractTimeout = 2 * time.Minute
)

// CreateOptions configures one create_archive invocation.
type CreateOptions struct {
	// KeyPath, when non-empty, names an age key file whose public key
	// receives the archive; the unencrypted stream is piped directly into
	// age's stdin and never touches disk.
	KeyPath string
	Timeout time.Duration
	TempDir string
}

// Create stages files into a scoped directory as symlinks to their real
// paths (resolving the source through its own symlink first, if any, to
// close the TOCTOU window between collection and archival), writes
// manifest.json into the staging root, then tars+gzips the staging
// directory to outputPath, optionally piping through age first.
func Create(ctx context.Context, files []manifest.CollectedFile, m *manifest.Manifest, outputPath string, opts CreateOptions) (err error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCreateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	staging, err := tempdir.New(opts.TempDir, "archive-staging")
	if err != nil {
		return err
	}
	defer staging.Close()

	for _, f := range files {
		real := f.AbsolutePath
		if resolved, lerr := resolveIfSymlink(real); lerr == nil {
			real = resolved
		}
		linkPath := filepath.Join(staging.Path, filepath.FromSlash(f.RelativePath))
		if err := os.MkdirAll(filepath.Dir(linkPath), 0o700); err != nil {
			return fmt.Errorf("archive: create staging parent for %s: %w", f.RelativePath, err)
		}
		if err := os.Symlink(real, linkPath); err != nil {
			return fmt.Errorf("archive: stage symlink for %s: %w", f.RelativePath, err)
		}
	}

	manifestJSON, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging.Path, "manifest.json"), manifestJSON, 0o600); err != nil {
		return fmt.Errorf("archive: write staged manifest: %w", err)
	}

	defer func() {
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	if opts.KeyPath == "" {
		if err := runTarToFile(ctx, staging.Path, outputPath); err != nil {
			return err
		}
		return nil
	}
	return runTarThroughAge(ctx, staging.Path, outputPath, opts.KeyPath)
}

func resolveIfSymlink(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return path, nil
	}
	return filepath.EvalSymlinks(path)
}

// runTarToFile invokes `tar -czhf <out> .` inside dir: -z gzip, -h follow
// symlinks (dereferencing the staging symlinks we just created so the
// archive contains real file content), -f the output path.
func runTarToFile(ctx context.Context, dir, out string) error {
	cmd := exec.CommandContext(ctx, TarBinary, "-czhf", out, ".")
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("archive: tar failed: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// runTarThroughAge tars+gzips dir to stdout and pipes that directly into
// age's stdin, writing ciphertext to out via age's own -o flag. The
// unencrypted stream exists only in the pipe between the two processes.
func runTarThroughAge(ctx context.Context, dir, out, keyPath string) error {
	pub, err := cryptoutil.ReadPublicKey(keyPath)
	if err != nil {
		return err
	}

	tarCmd := exec.CommandContext(ctx, TarBinary, "-czh", ".")
	tarCmd.Dir = dir
	var tarStderr bytes.Buffer
	tarCmd.Stderr = &tarStderr

	pipe, err := tarCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("archive: open tar stdout pipe: %w", err)
	}

	ageCmd := exec.CommandContext(ctx, cryptoutil.Binary, "-r", pub, "-o", out)
	ageCmd.Stdin = pipe
	var ageStderr bytes.Buffer
	ageCmd.Stderr = &ageStderr

	if err := tarCmd.Start(); err != nil {
		return fmt.Errorf("archive: start tar: %w", err)
	}
	if err := ageCmd.Start(); err != nil {
		tarCmd.Process.Kill()
		return fmt.Errorf("archive: start age: %w", err)
	}

	tarErr := tarCmd.Wait()
	ageErr := ageCmd.Wait()

	if tarErr != nil {
		return fmt.Errorf("archive: tar failed: %w\n%s", tarErr, strings.TrimSpace(tarStderr.String()))
	}
	if ageErr != nil {
		return fmt.Errorf("archive: age failed: %w\n%s", ageErr, strings.TrimSpace(ageStderr.String()))
	}
	return nil
}

// Extract creates outputDir and untars archivePath into it, rejecting any
// entry whose name would escape outputDir. archivePath must already be
// plaintext gzip-tar; callers decrypt age-wrapped archives before calling
// Extract. After extraction every symlink found is checked: its realpath
// must lie within outputDir (by prefix, including the trailing separator),
// or the whole extraction is rejected, since a safe entry name can still
// point a symlink somewhere unsafe.
func Extract(ctx context.Context, archivePath, outputDir string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.MkdirAll(outputDir, 0o700); err != nil {
		return fmt.Errorf("archive: create output dir: %w", err)
	}

	names, err := listTarEntries(ctx, archivePath)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := pathutil.SafeJoin(outputDir, name); err != nil {
			return fmt.Errorf("archive: refusing to extract unsafe entry %q: %w", name, err)
		}
	}

	cmd := exec.CommandContext(ctx, TarBinary, "-xzf", archivePath, "-C", outputDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("archive: tar extract failed: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}

	return verifyExtractedSymlinks(outputDir)
}

func listTarEntries(ctx context.Context, archivePath string) ([]string, error) {
	cmd := exec.CommandContext(ctx, TarBinary, "-tzf", archivePath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("archive: tar list failed: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}
	var names []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "." || line == "./" {
			continue
		}
		names = append(names, strings.TrimPrefix(line, "./"))
	}
	return names, nil
}

func verifyExtractedSymlinks(outputDir string) error {
	return filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("archive: unresolved symlink %s: %w", path, err)
		}
		if !pathutil.WithinBase(outputDir, real) {
			return fmt.Errorf("archive: symlink %s escapes %s (target %s)", path, outputDir, real)
		}
		return nil
	})
}

// ReadManifestFromArchive extracts just manifest.json from archivePath
// without materializing the rest of the archive, by asking tar for that
// single entry (stored by Create as "./manifest.json") and extracting it
// into a throwaway temp dir.
func ReadManifestFromArchive(ctx context.Context, archivePath string) (*manifest.Manifest, error) {
	scratch, err := tempdir.New("", "manifest-read")
	if err != nil {
		return nil, err
	}
	defer scratch.Close()

	cmd := exec.CommandContext(ctx, TarBinary, "-xzf", archivePath, "-C", scratch.Path, "./manifest.json")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("archive: extract manifest.json failed: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(filepath.Join(scratch.Path, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("archive: read extracted manifest.json: %w", err)
	}
	return manifest.Unmarshal(data)
}
