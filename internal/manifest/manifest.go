// Package manifest defines the durable archive descriptor embedded in every
// backup and the per-file SHA-256 hashing that builds one. A manifest is
// created once at backup time and never mutated; the sidecar copy next to
// the archive is byte-identical to the embedded one.
package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/openclaw/backup/internal/concurrency"
)

// SchemaVersion is the only manifest schema this engine produces or reads.
// There is no in-place upgrade migration between versions; an unsupported
// version fails validation immediately.
const SchemaVersion = 1

// File is the durable record of one archived file.
type File struct {
	Path     string    `json:"path"`
	SHA256   string    `json:"sha256"`
	SizeByte int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
}

// CollectedFile is a collector-produced intent to archive. It is never
// mutated after creation; the manifest builder and archive builder both
// consume it read-only.
type CollectedFile struct {
	AbsolutePath string
	RelativePath string
	SizeByte     int64
	Modified     time.Time
}

// Manifest is the top-level archive descriptor embedded in every archive
// and mirrored byte-for-byte into the sidecar file next to it.
type Manifest struct {
	SchemaVersion      int    `json:"schema_version"`
	PluginVersion      string `json:"plugin_version"`
	OpenclawVersion    string `json:"openclaw_version,omitempty"`
	Hostname           string `json:"hostname"`
	Timestamp          string `json:"timestamp"`
	Encrypted          bool   `json:"encrypted"`
	KeyID              string `json:"key_id,omitempty"`
	IncludeTranscripts bool   `json:"include_transcripts"`
	IncludePersistor   bool   `json:"include_persistor"`
	Files              []File `json:"files"`
	PersistorExport    any    `json:"persistor_export,omitempty"`
}

// Marshal serializes m as stable, 2-space-indented JSON. Stability here
// means field order follows the struct definition (encoding/json always
// emits struct fields in declaration order), so two manifests with the same
// field values always produce byte-identical output.
func (m Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Unmarshal parses manifest JSON. It does not itself enforce
// ValidateShape; callers that need the invariants checked must call that
// separately, since a caller reading an archive header for display purposes
// may not want a shape error to be fatal.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	return &m, nil
}

var sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidateShape checks the types and formats of every required field
// without touching the filesystem: every File.SHA256 matches
// [0-9a-f]{64}, SchemaVersion is supported, Timestamp parses as RFC-3339
// UTC, and encrypted manifests carry a KeyID.
func ValidateShape(m *Manifest) error {
	if m.SchemaVersion != SchemaVersion {
		return fmt.Errorf("manifest: unsupported schema_version %d", m.SchemaVersion)
	}
	if m.Hostname == "" {
		return fmt.Errorf("manifest: hostname is required")
	}
	if _, err := time.Parse(time.RFC3339, m.Timestamp); err != nil {
		return fmt.Errorf("manifest: timestamp %q is not RFC-3339: %w", m.Timestamp, err)
	}
	if m.Encrypted && m.KeyID == "" {
		return fmt.Errorf("manifest: encrypted manifest is missing key_id")
	}
	if m.KeyID != "" && len(m.KeyID) != 16 {
		return fmt.Errorf("manifest: key_id must be 16 lowercase hex chars, got %q", m.KeyID)
	}

	seen := make(map[string]struct{}, len(m.Files))
	for i, f := range m.Files {
		if f.Path == "" {
			return fmt.Errorf("manifest: files[%d].path is empty", i)
		}
		if _, dup := seen[f.Path]; dup {
			return fmt.Errorf("manifest: files[%d].path %q is duplicated", i, f.Path)
		}
		seen[f.Path] = struct{}{}
		if !sha256Pattern.MatchString(f.SHA256) {
			return fmt.Errorf("manifest: files[%d].sha256 %q does not match [0-9a-f]{64}", i, f.SHA256)
		}
	}
	return nil
}

// Build hashes every collected file with SHA-256, streaming each file
// instead of buffering it whole, and assembles the resulting Manifest.
// Hashing is parallelized across hashConcurrency workers (default 16 when
// <= 0) to overlap disk I/O across files, following the bounded worker-pool
// shape used throughout this engine's concurrency package. Collector order
// is preserved in the output regardless of which goroutine finishes first.
func Build(ctx context.Context, files []CollectedFile, opts BuildOptions) (*Manifest, error) {
	if opts.HashConcurrency <= 0 {
		opts.HashConcurrency = 16
	}

	hashed, err := concurrency.Map(files, opts.HashConcurrency, func(cf CollectedFile) (File, error) {
		select {
		case <-ctx.Done():
			return File{}, ctx.Err()
		default:
		}
		sum, err := hashFile(cf.AbsolutePath)
		if err != nil {
			return File{}, fmt.Errorf("manifest: hashing %s: %w", cf.RelativePath, err)
		}
		return File{
			Path:     cf.RelativePath,
			SHA256:   sum,
			SizeByte: cf.SizeByte,
			Modified: cf.Modified,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		SchemaVersion:      SchemaVersion,
		PluginVersion:      opts.PluginVersion,
		OpenclawVersion:    opts.OpenclawVersion,
		Hostname:           opts.Hostname,
		Timestamp:          opts.Timestamp,
		Encrypted:          opts.Encrypted,
		KeyID:              opts.KeyID,
		IncludeTranscripts: opts.IncludeTranscripts,
		IncludePersistor:   opts.IncludePersistor,
		Files:              hashed,
		PersistorExport:    opts.PersistorExport,
	}
	return m, nil
}

// BuildOptions carries the run-level policy flags and identifiers stamped
// onto a Manifest at build time; Timestamp is fixed by the caller (the
// orchestrator) so it becomes the run's canonical, stable identifier.
type BuildOptions struct {
	PluginVersion      string
	OpenclawVersion    string
	Hostname           string
	Timestamp          string
	Encrypted          bool
	KeyID              string
	IncludeTranscripts bool
	IncludePersistor   bool
	PersistorExport    any
	HashConcurrency    int
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
