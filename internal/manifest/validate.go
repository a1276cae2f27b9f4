package manifest

import (
	"fmt"

	"github.com/openclaw/backup/internal/pathutil"
)

// ValidationResult reports the outcome of validating an extracted directory
// against a Manifest. Valid is true iff every file matched; Errors holds one
// line per mismatch so a caller can report every failure, not just the
// first.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateAgainstDirectory resolves extractDir/files[i].path through the
// traversal-safe joiner, SHA-256s the file, and compares it against the
// recorded hash. An unsupported schema_version fails immediately without
// touching the filesystem. This is the integrity gate restore depends on:
// any mismatch must abort the restore before a single file is copied to the
// user's home directory.
func ValidateAgainstDirectory(m *Manifest, extractDir string) (ValidationResult, error) {
	if m.SchemaVersion != SchemaVersion {
		return ValidationResult{}, fmt.Errorf("manifest: unsupported schema_version %d", m.SchemaVersion)
	}

	var result ValidationResult
	result.Valid = true

	for _, f := range m.Files {
		resolved, err := pathutil.SafeJoin(extractDir, f.Path)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		sum, err := hashFile(resolved)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		if sum != f.SHA256 {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: sha256 mismatch: want %s, got %s", f.Path, f.SHA256, sum))
		}
	}

	return result, nil
}
