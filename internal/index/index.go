// Package index maintains the merged, cross-provider view of available
// backups: a lightweight remote index fast path, a per-provider
// manifest-scan fallback, and a local TTL-bounded cache. Index entries are
// always derived from manifests; the index is never the source of truth.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/backup/internal/concurrency"
	"github.com/openclaw/backup/internal/manifest"
	"github.com/openclaw/backup/internal/metrics"
	"github.com/openclaw/backup/internal/provider"
	"go.uber.org/zap"
)

// LightweightIndexName is the well-known object name the fast path tries
// first on every provider.
const LightweightIndexName = "openclaw-index.json"

// CacheTTL is how long a local cache read is trusted before a refresh is
// required.
const CacheTTL = 5 * time.Minute

// Entry is one row in the merged index: a derived summary of a backup,
// never itself the source of truth (the manifest is).
type Entry struct {
	Timestamp string   `json:"timestamp"`
	Filename  string   `json:"filename"`
	Providers []string `json:"providers"`
	Encrypted bool     `json:"encrypted"`
	SizeByte  int64    `json:"size_bytes"`
	FileCount int      `json:"file_count"`
}

// cacheFile is the on-disk shape of the local cache.
type cacheFile struct {
	LastRefreshed time.Time `json:"last_refreshed"`
	Entries       []Entry   `json:"entries"`
}

// Manager refreshes and caches the merged index across a set of providers.
type Manager struct {
	Providers   []provider.Provider
	CachePath   string
	Concurrency int
	Logger      *zap.Logger
	Metrics     *metrics.Registry
}

// NewManager constructs a Manager with defaults filled in.
func NewManager(providers []provider.Provider, cachePath string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{Providers: providers, CachePath: cachePath, Concurrency: 4, Logger: logger}
}

// Get returns the local cache if it is fresh (younger than CacheTTL),
// otherwise performs a full Refresh.
func (m *Manager) Get(ctx context.Context) ([]Entry, error) {
	if cached, ok := m.readCache(); ok {
		if time.Since(cached.LastRefreshed) < CacheTTL {
			return cached.Entries, nil
		}
	}
	return m.Refresh(ctx)
}

// Refresh queries every provider in parallel (bounded by Concurrency),
// merges their contributions, writes the result to the local cache, and
// best-effort pushes the merged index back to every provider as the
// lightweight index object. A provider push failure does not fail the
// refresh as a whole.
func (m *Manager) Refresh(ctx context.Context) ([]Entry, error) {
	start := time.Now()
	defer func() {
		m.Metrics.ObserveIndexRefresh(time.Since(start).Seconds())
	}()

	workers := m.Concurrency
	if workers <= 0 {
		workers = 4
	}

	settled := concurrency.MapSettled(m.Providers, workers, func(p provider.Provider) ([]Entry, error) {
		return m.refreshProvider(ctx, p)
	})

	merged := make(map[string]*Entry)
	var order []string
	for i, s := range settled {
		name := m.Providers[i].Name()
		if s.Err != nil {
			m.Logger.Warn("index: provider refresh failed", zap.String("provider", name), zap.Error(s.Err))
			continue
		}
		for _, e := range s.Result {
			key := keyFor(e.Filename)
			if existing, ok := merged[key]; ok {
				existing.Providers = unionStrings(existing.Providers, e.Providers)
				continue
			}
			cp := e
			merged[key] = &cp
			order = append(order, key)
		}
	}

	entries := make([]Entry, 0, len(order))
	for _, k := range order {
		entries = append(entries, *merged[k])
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp > entries[j].Timestamp })

	m.writeCache(entries)
	m.pushLightweightIndex(ctx, entries)

	return entries, nil
}

func (m *Manager) refreshProvider(ctx context.Context, p provider.Provider) ([]Entry, error) {
	if entries, ok := m.tryLightweightFetch(ctx, p); ok {
		return entries, nil
	}
	return m.scanManifests(ctx, p)
}

func (m *Manager) tryLightweightFetch(ctx context.Context, p provider.Provider) ([]Entry, bool) {
	tmp, err := os.CreateTemp("", "openclaw-index-*.json")
	if err != nil {
		return nil, false
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := p.Pull(ctx, LightweightIndexName, tmpPath); err != nil {
		return nil, false
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, false
	}
	var doc cacheFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	entries := doc.Entries
	for i := range entries {
		entries[i].Providers = []string{p.Name()}
	}
	return entries, true
}

func (m *Manager) scanManifests(ctx context.Context, p provider.Provider) ([]Entry, error) {
	names, err := p.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: list %s: %w", p.Name(), err)
	}

	var sidecarNames []string
	for _, n := range names {
		if strings.HasSuffix(n, ".manifest.json") {
			sidecarNames = append(sidecarNames, n)
		}
	}

	results := concurrency.MapSettled(sidecarNames, 8, func(name string) (Entry, error) {
		tmp, err := os.CreateTemp("", "openclaw-sidecar-*.json")
		if err != nil {
			return Entry{}, err
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		if err := p.Pull(ctx, name, tmpPath); err != nil {
			return Entry{}, err
		}
		data, err := os.ReadFile(tmpPath)
		if err != nil {
			return Entry{}, err
		}
		mf, err := manifest.Unmarshal(data)
		if err != nil {
			return Entry{}, err
		}

		var total int64
		for _, f := range mf.Files {
			total += f.SizeByte
		}
		return Entry{
			Timestamp: mf.Timestamp,
			Filename:  strings.TrimSuffix(name, ".manifest.json"),
			Providers: []string{p.Name()},
			Encrypted: mf.Encrypted,
			SizeByte:  total,
			FileCount: len(mf.Files),
		}, nil
	})

	var entries []Entry
	for i, s := range results {
		if s.Err != nil {
			m.Logger.Warn("index: sidecar scan failed", zap.String("provider", p.Name()), zap.String("entry", sidecarNames[i]), zap.Error(s.Err))
			continue
		}
		entries = append(entries, s.Result)
	}
	return entries, nil
}

func keyFor(filename string) string {
	base := strings.TrimSuffix(filename, ".age")
	base = strings.TrimSuffix(base, ".tar.gz")
	return base
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := append([]string{}, a...)
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			out = append(out, v)
			seen[v] = struct{}{}
		}
	}
	return out
}

func (m *Manager) readCache() (cacheFile, bool) {
	if m.CachePath == "" {
		return cacheFile{}, false
	}
	data, err := os.ReadFile(m.CachePath)
	if err != nil {
		return cacheFile{}, false
	}
	var c cacheFile
	if err := json.Unmarshal(data, &c); err != nil {
		return cacheFile{}, false
	}
	return c, true
}

func (m *Manager) writeCache(entries []Entry) {
	if m.CachePath == "" {
		return
	}
	c := cacheFile{LastRefreshed: time.Now().UTC(), Entries: entries}
	data, err := json.Marshal(c)
	if err != nil {
		m.Logger.Warn("index: marshal cache failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.CachePath), 0o755); err != nil {
		m.Logger.Warn("index: create cache dir failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(m.CachePath, data, 0o600); err != nil {
		m.Logger.Warn("index: write cache failed", zap.Error(err))
	}
}

func (m *Manager) pushLightweightIndex(ctx context.Context, entries []Entry) {
	doc := cacheFile{LastRefreshed: time.Now().UTC(), Entries: entries}
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp("", "openclaw-index-push-*.json")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return
	}
	tmp.Close()

	for _, p := range m.Providers {
		if err := p.Push(ctx, tmpPath, LightweightIndexName); err != nil {
			m.Logger.Debug("index: best-effort lightweight index push failed", zap.String("provider", p.Name()), zap.Error(err))
		}
	}
}

// Publish pushes entries to every provider as the lightweight index object,
// best-effort, without touching the local cache. The retention pruner uses
// this after deletions so the remote fast path stops reporting entries that
// no longer exist.
func (m *Manager) Publish(ctx context.Context, entries []Entry) {
	m.pushLightweightIndex(ctx, entries)
}

// Invalidate removes the local cache file. A missing file is not an error.
func (m *Manager) Invalidate() error {
	if m.CachePath == "" {
		return nil
	}
	if err := os.Remove(m.CachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("index: invalidate cache: %w", err)
	}
	return nil
}
