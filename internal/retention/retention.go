// Package retention enforces the keep-count pruning policy: refresh the
// cross-provider index, keep the newest N entries, and delete the rest
// from every provider that holds them, archive and sidecar independently.
package retention

import (
	"context"
	"fmt"

	"github.com/openclaw/backup/internal/concurrency"
	"github.com/openclaw/backup/internal/index"
	"github.com/openclaw/backup/internal/metrics"
	"github.com/openclaw/backup/internal/pathutil"
	"github.com/openclaw/backup/internal/provider"
	"go.uber.org/zap"
)

// Result reports the outcome of one prune run.
type Result struct {
	Deleted []index.Entry
	Kept    []index.Entry
	Errors  []error
}

// Pruner owns the index manager and the provider set it deletes from.
type Pruner struct {
	Index     *index.Manager
	Providers map[string]provider.Provider
	Metrics   *metrics.Registry
	Logger    *zap.Logger
}

// NewPruner constructs a Pruner over idx and providers (keyed by provider
// name, matching index.Entry.Providers entries).
func NewPruner(idx *index.Manager, providers map[string]provider.Provider, m *metrics.Registry, logger *zap.Logger) *Pruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{Index: idx, Providers: providers, Metrics: m, Logger: logger}
}

// Prune refreshes the index, keeps the newest keepCount entries (already
// sorted newest-first by the index manager), and deletes the remainder from
// every provider that holds them. After all deletions the surviving entries
// are pushed back to every provider as the lightweight index and the local
// cache is invalidated, so neither the remote fast path nor the next local
// read serves the pre-prune snapshot.
func (p *Pruner) Prune(ctx context.Context, keepCount int) (Result, error) {
	entries, err := p.Index.Refresh(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("retention: refresh index: %w", err)
	}

	if keepCount < 0 {
		keepCount = 0
	}
	if keepCount >= len(entries) {
		return Result{Kept: entries}, nil
	}

	kept := entries[:keepCount]
	toDelete := entries[keepCount:]

	settled := concurrency.MapSettled(toDelete, 4, func(e index.Entry) (index.Entry, error) {
		return e, p.deleteEntry(ctx, e)
	})

	var result Result
	result.Kept = kept
	for i, s := range settled {
		if s.Err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("retention: delete %s: %w", toDelete[i].Filename, s.Err))
			continue
		}
		result.Deleted = append(result.Deleted, s.Result)
	}

	p.Metrics.AddRetentionDeletes(len(result.Deleted))

	// Entries whose deletion failed are still on their providers; keep them
	// in the published index so they remain restorable and re-prunable.
	surviving := append([]index.Entry{}, kept...)
	for i, s := range settled {
		if s.Err != nil {
			surviving = append(surviving, toDelete[i])
		}
	}
	p.Index.Publish(ctx, surviving)

	if err := p.Index.Invalidate(); err != nil {
		p.Logger.Warn("retention: invalidate cache failed", zap.Error(err))
	}

	return result, nil
}

// deleteEntry deletes both the archive and the sidecar manifest for e from
// every provider listed in e.Providers, collecting per-provider errors into
// a single combined error rather than aborting on the first failure.
func (p *Pruner) deleteEntry(ctx context.Context, e index.Entry) error {
	archiveName := e.Filename + ".tar.gz"
	if e.Encrypted {
		archiveName = e.Filename + ".tar.gz.age"
	}
	sidecarName := pathutil.SidecarPath(archiveName)

	var errs []error
	for _, name := range e.Providers {
		prov, ok := p.Providers[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown provider %q", name))
			continue
		}
		if err := prov.Delete(ctx, archiveName); err != nil {
			errs = append(errs, fmt.Errorf("%s: delete archive: %w", name, err))
		}
		if err := prov.Delete(ctx, sidecarName); err != nil {
			errs = append(errs, fmt.Errorf("%s: delete sidecar: %w", name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	combined := errs[0]
	for _, e := range errs[1:] {
		combined = fmt.Errorf("%w; %s", combined, e.Error())
	}
	return combined
}
