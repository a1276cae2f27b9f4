// Package provider implements the destination backends archives and
// manifests are replicated to: a local filesystem root and a wrapper around
// an external remote-sync tool. Every remote name is validated against
// traversal before any filesystem or subprocess work happens.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openclaw/backup/internal/pathutil"
)

// Provider is the capability set every destination backend implements.
// Every method may fail; callers that replicate across N providers use
// settle-all semantics (internal/concurrency.MapSettled) rather than
// aborting the whole run on the first provider error.
type Provider interface {
	Name() string
	Push(ctx context.Context, localPath, remoteName string) error
	Pull(ctx context.Context, remoteName, localPath string) error
	List(ctx context.Context) ([]string, error)
	ListAll(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, remoteName string) error
	Check(ctx context.Context) (available bool, err error)
}

// ValidateRemoteName rejects any remote name that would escape the
// provider's base directory once resolved, before any subprocess is
// invoked. Every provider implementation must call this first.
func ValidateRemoteName(remoteName string) error {
	for _, seg := range strings.Split(remoteName, "/") {
		if seg == ".." {
			return fmt.Errorf("provider: rejected remote name %q: path traversal (\"..\" segment)", remoteName)
		}
	}
	if _, err := pathutil.SafeJoin("/", remoteName); err != nil {
		return fmt.Errorf("provider: rejected remote name %q: %w", remoteName, err)
	}
	return nil
}

// filterArchiveEntries keeps only names ending in one of the three
// recognized suffixes and sorts them newest-first lexicographically, which
// is correct here because every filename embeds a sortable
// YYYY-MM-DDTHH-MM-SS timestamp.
func filterArchiveEntries(names []string) []string {
	var out []string
	for _, n := range names {
		if pathutil.IsArchiveName(n) || strings.HasSuffix(n, ".manifest.json") {
			out = append(out, n)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
