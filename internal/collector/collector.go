// Package collector walks a configured root set into a deduplicated
// CollectedFile sequence: a depth-first traversal with symlink-cycle
// protection and a three-kind exclusion matcher (glob, path-like,
// bare-name).
package collector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openclaw/backup/internal/manifest"
	"go.uber.org/zap"
)

// Config is the root set and exclusion policy for one collection run.
type Config struct {
	IncludeRoots    []string
	ExtraRoots      []string
	ExcludePatterns []string
	Logger          *zap.Logger
}

// Collect walks every root in IncludeRoots and ExtraRoots depth-first,
// applying ExcludePatterns, and returns a deduplicated, lexicographically
// sorted CollectedFile sequence. A directory already visited (by canonical
// path) within this run is never re-entered, which is what makes a symlink
// cycle terminate instead of looping forever.
func Collect(cfg Config) ([]manifest.CollectedFile, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	roots := append(append([]string{}, cfg.IncludeRoots...), cfg.ExtraRoots...)
	if len(roots) == 0 {
		return nil, fmt.Errorf("collector: no roots configured")
	}

	visited := make(map[string]struct{})
	seenRel := make(map[string]struct{})
	var out []manifest.CollectedFile

	for _, root := range roots {
		info, err := os.Lstat(root)
		if err != nil {
			if isSkippablePermError(err) {
				logger.Warn("collector: skipping unreadable root", zap.String("path", root), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("collector: stat root %s: %w", root, err)
		}
		parent := filepath.Dir(filepath.Clean(root))

		if err := walk(root, parent, info, visited, &out, seenRel, cfg.ExcludePatterns, logger); err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out, nil
}

// walk recurses into path. parent is dirname(root) for the root this call
// descends from, fixed for the whole traversal so every RelativePath is
// computed relative to the same anchor regardless of recursion depth.
func walk(path, parent string, info os.FileInfo, visited map[string]struct{}, out *[]manifest.CollectedFile, seenRel map[string]struct{}, excludes []string, logger *zap.Logger) error {
	if isExcluded(path, info.Name(), excludes) {
		return nil
	}

	resolvedInfo := info
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			logger.Warn("collector: symlink target missing, skipping", zap.String("path", path), zap.Error(err))
			return nil
		}
		tInfo, err := os.Stat(target)
		if err != nil {
			logger.Warn("collector: symlink target unreadable, skipping", zap.String("path", path), zap.Error(err))
			return nil
		}
		resolvedInfo = tInfo
		path = target
	}

	if resolvedInfo.IsDir() {
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			real = path
		}
		if _, ok := visited[real]; ok {
			return nil
		}
		visited[real] = struct{}{}

		entries, err := os.ReadDir(path)
		if err != nil {
			if isSkippablePermError(err) {
				logger.Warn("collector: skipping unreadable directory", zap.String("path", path), zap.Error(err))
				return nil
			}
			return fmt.Errorf("collector: readdir %s: %w", path, err)
		}
		for _, entry := range entries {
			childPath := filepath.Join(path, entry.Name())
			childInfo, err := os.Lstat(childPath)
			if err != nil {
				if isSkippablePermError(err) {
					logger.Warn("collector: skipping unreadable entry", zap.String("path", childPath), zap.Error(err))
					continue
				}
				return fmt.Errorf("collector: lstat %s: %w", childPath, err)
			}
			if err := walk(childPath, parent, childInfo, visited, out, seenRel, excludes, logger); err != nil {
				return err
			}
		}
		return nil
	}

	if !resolvedInfo.Mode().IsRegular() {
		return nil
	}

	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return fmt.Errorf("collector: relativize %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)
	if _, dup := seenRel[rel]; dup {
		return nil
	}
	seenRel[rel] = struct{}{}

	*out = append(*out, manifest.CollectedFile{
		AbsolutePath: path,
		RelativePath: rel,
		SizeByte:     resolvedInfo.Size(),
		Modified:     resolvedInfo.ModTime().UTC(),
	})
	return nil
}

func isSkippablePermError(err error) bool {
	return errors.Is(err, os.ErrPermission) || errors.Is(err, fs.ErrPermission)
}

// isExcluded applies the three exclusion-pattern kinds in order: glob
// patterns (containing '*') match against the bare name; path-like
// patterns (containing '/') match the full absolute path as a prefix or
// exact equality; bare-name patterns match any path component.
func isExcluded(path, name string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		switch {
		case strings.Contains(p, "*"):
			if matchGlob(p, name) {
				return true
			}
		case strings.Contains(p, "/"):
			if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+string(filepath.Separator)) {
				return true
			}
		default:
			for _, component := range strings.Split(path, string(filepath.Separator)) {
				if component == p {
					return true
				}
			}
		}
	}
	return false
}
