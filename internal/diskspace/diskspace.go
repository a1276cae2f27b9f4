// Package diskspace implements the pre-archival disk-space preflight,
// querying the unprivileged-accessible free-space count via gopsutil/v4
// rather than hand-rolling per-platform statfs field selection.
package diskspace

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// SafetyMultiplier and SafetyMargin together define how much headroom
// beyond the raw file-size sum is required: the archive may temporarily
// exist uncompressed plus compressed, plus there must be slack for
// unrelated concurrent disk usage.
const (
	SafetyMultiplier = 2
	SafetyMarginByte = 100 * 1024 * 1024
)

// InsufficientSpaceError reports a preflight failure with MB-rounded,
// human-readable figures.
type InsufficientSpaceError struct {
	NeededMB    uint64
	AvailableMB uint64
	Path        string
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("diskspace: insufficient free space at %s: need ~%d MB, have ~%d MB", e.Path, e.NeededMB, e.AvailableMB)
}

// Needed computes the bytes required to safely stage and archive a set of
// files whose combined size is totalSizeBytes.
func Needed(totalSizeBytes int64) uint64 {
	return uint64(totalSizeBytes)*SafetyMultiplier + SafetyMarginByte
}

// Preflight checks that path's filesystem has enough free space (by the
// unprivileged "available" count, not the root-reserved "free" count) to
// cover Needed(totalSizeBytes). It is a no-op policy check, not a
// correctness guarantee: a concurrent writer can still exhaust the disk
// between this call and the real write.
func Preflight(_ context.Context, path string, totalSizeBytes int64) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("diskspace: querying usage for %s: %w", path, err)
	}

	needed := Needed(totalSizeBytes)
	if usage.Free < needed {
		return &InsufficientSpaceError{
			NeededMB:    needed / (1024 * 1024),
			AvailableMB: usage.Free / (1024 * 1024),
			Path:        path,
		}
	}
	return nil
}
