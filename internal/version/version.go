// Package version holds the process-wide version identifiers this engine
// stamps into every manifest and compares against during restore's version
// advisory check. Values are set via -ldflags at build time; the "dev"
// defaults below are the "dev build" fallback.
package version

import "strings"

// PluginVersion and OpenclawVersion are overridden at build time via
// -ldflags "-X github.com/openclaw/backup/internal/version.PluginVersion=...".
var (
	PluginVersion   = "dev"
	OpenclawVersion = "dev"
)

// MajorComponent returns the leading dot-separated component of a semver-
// like string ("2.3.1" -> "2"), used for the restore orchestrator's
// major-version advisory comparison. Empty input returns ""; input without a
// dot is returned whole ("dev" -> "dev").
func MajorComponent(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return ""
	}
	if idx := strings.IndexByte(v, '.'); idx >= 0 {
		return v[:idx]
	}
	return v
}
