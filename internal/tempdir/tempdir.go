// Package tempdir creates owner-only-mode scoped staging directories whose
// removal is guaranteed on every exit path via defer-released handles,
// the same scoped-resource treatment locks and file handles get elsewhere
// in this engine.
package tempdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Scoped is a staging directory that must be released exactly once.
type Scoped struct {
	Path string
}

// New creates a fresh 0o700 directory under root (or the system temp dir if
// root is empty) named with a random UUID so concurrent callers never
// collide, and returns a handle whose Close removes it.
func New(root, prefix string) (*Scoped, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("tempdir: create root %s: %w", root, err)
	}

	name := fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	path := filepath.Join(root, name)
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, fmt.Errorf("tempdir: create staging dir: %w", err)
	}
	// Mkdir applies the process umask; force owner-only explicitly.
	if err := os.Chmod(path, 0o700); err != nil {
		return nil, fmt.Errorf("tempdir: chmod staging dir: %w", err)
	}

	return &Scoped{Path: path}, nil
}

// Close removes the staging directory and everything under it. It is safe
// to call multiple times and safe to call when the directory was already
// removed.
func (s *Scoped) Close() error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := os.RemoveAll(s.Path); err != nil {
		return fmt.Errorf("tempdir: remove %s: %w", s.Path, err)
	}
	return nil
}
