package collector

import "strings"

// maxPatternLength caps exclusion patterns; anything longer is rejected
// before matching.
const maxPatternLength = 500

// matchGlob reports whether name matches pattern, where '*' is the only
// wildcard. It runs in linear time in len(pattern)+len(name) using a
// split-and-scan approach (no backtracking regex engine), so a pattern
// cannot be crafted to cause catastrophic matching behavior.
//
// Consecutive '*'s collapse to one before matching. Patterns longer than
// maxPatternLength are rejected outright (treated as non-matching).
func matchGlob(pattern, name string) bool {
	if len(pattern) > maxPatternLength {
		return false
	}
	pattern = collapseStars(pattern)

	if !strings.Contains(pattern, "*") {
		return pattern == name
	}

	segments := strings.Split(pattern, "*")
	anchoredStart := !strings.HasPrefix(pattern, "*")
	anchoredEnd := !strings.HasSuffix(pattern, "*")

	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if i == 0 && anchoredStart {
			if !strings.HasPrefix(name[pos:], seg) {
				return false
			}
			pos += len(seg)
			continue
		}
		if i == len(segments)-1 && anchoredEnd {
			if !strings.HasSuffix(name[pos:], seg) {
				return false
			}
			continue
		}
		idx := strings.Index(name[pos:], seg)
		if idx < 0 {
			return false
		}
		pos += idx + len(seg)
	}
	return true
}

func collapseStars(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	prevStar := false
	for _, r := range pattern {
		if r == '*' {
			if prevStar {
				continue
			}
			prevStar = true
		} else {
			prevStar = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
