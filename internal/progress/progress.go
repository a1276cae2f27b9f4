// Package progress defines the single event shape used to report status out
// of the backup and restore orchestrators, so callers supply one reusable callback type instead of a
// bespoke event struct per package.
package progress

// Stage names a coarse phase within an operation. Callers that only want to
// render a spinner can ignore everything but Stage and Message; callers that
// want a progress bar use Current/Total.
type Stage string

const (
	StageScan      Stage = "scan"
	StageHash      Stage = "hash"
	StageArchive   Stage = "archive"
	StageEncrypt   Stage = "encrypt"
	StageReplicate Stage = "replicate"
	StageIndex     Stage = "index"
	StageExtract   Stage = "extract"
	StageVerify    Stage = "verify"
	StageKeyRotate Stage = "key_rotate"
	StagePrune     Stage = "prune"
)

// Event is one progress notification. Current and Total are both zero when
// the stage has no countable unit of work (e.g. acquiring a lock).
type Event struct {
	Stage   Stage
	Message string
	Current int64
	Total   int64

	// Path is the file or provider name the event concerns, when applicable.
	Path string

	// Raw carries the unparsed line from an external subprocess (tar, the
	// age binary, a sync tool) for callers that want to log it verbatim.
	Raw string
}

// Func receives progress events as an operation runs. Returning a non-nil
// error aborts the operation at the next checkpoint, letting a CLI's
// Ctrl-C-triggered cancellation or a UI's "stop" button short-circuit work
// in progress rather than just suppressing further reporting.
type Func func(Event) error

// Noop discards every event. It is the default used by library code that
// has no caller-supplied reporter.
func Noop(Event) error { return nil }
