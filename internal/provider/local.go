package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/openclaw/backup/internal/pathutil"
)

// Local replicates to a filesystem directory, scoping every operation to
// Root the same way every other provider scopes to its remote base.
type Local struct {
	Root string
}

var _ Provider = (*Local)(nil)

// NewLocal returns a Local provider rooted at root, creating it if absent.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("provider(local): create root %s: %w", root, err)
	}
	return &Local{Root: root}, nil
}

func (l *Local) Name() string { return "local" }

func (l *Local) resolve(remoteName string) (string, error) {
	if err := ValidateRemoteName(remoteName); err != nil {
		return "", err
	}
	return pathutil.SafeJoin(l.Root, remoteName)
}

func (l *Local) Push(_ context.Context, localPath, remoteName string) error {
	dest, err := l.resolve(remoteName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("provider(local): create destination dir: %w", err)
	}
	return copyFile(localPath, dest)
}

func (l *Local) Pull(_ context.Context, remoteName, localPath string) error {
	src, err := l.resolve(remoteName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("provider(local): create local dir: %w", err)
	}
	return copyFile(src, localPath)
}

func (l *Local) List(_ context.Context) ([]string, error) {
	return l.listDir(l.Root, "")
}

// ListAll walks one level of hostname subdirectories plus the root itself,
// so legacy root-level filenames (written before the hostname-prefixed
// layout existed) remain discoverable alongside current entries.
func (l *Local) ListAll(ctx context.Context) ([]string, error) {
	names, err := l.listDir(l.Root, "")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, fmt.Errorf("provider(local): readdir %s: %w", l.Root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub, err := l.listDir(filepath.Join(l.Root, e.Name()), e.Name()+"/")
		if err != nil {
			return nil, err
		}
		names = append(names, sub...)
	}
	return filterArchiveEntries(names), nil
}

func (l *Local) listDir(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("provider(local): readdir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, prefix+e.Name())
	}
	return filterArchiveEntries(names), nil
}

func (l *Local) Delete(_ context.Context, remoteName string) error {
	path, err := l.resolve(remoteName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("provider(local): delete %s: %w", path, err)
	}
	return nil
}

func (l *Local) Check(_ context.Context) (bool, error) {
	info, err := os.Stat(l.Root)
	if err != nil {
		return false, fmt.Errorf("provider(local): %w", err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("provider(local): %s is not a directory", l.Root)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("provider(local): open source %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("provider(local): create destination %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("provider(local): copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}
