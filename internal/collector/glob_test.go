package collector

import "testing"

func TestMatchGlobLiteral(t *testing.T) {
	if !matchGlob("node_modules", "node_modules") {
		t.Fatal("exact match should succeed")
	}
	if matchGlob("node_modules", "other") {
		t.Fatal("mismatch should fail")
	}
}

func TestMatchGlobPrefixSuffixWildcard(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*.log", "debug.log", true},
		{"*.log", "debug.txt", false},
		{"cache-*", "cache-12345", true},
		{"cache-*", "other-12345", false},
		{"*tmp*", "atmpfile", true},
		{"a**b", "axxxxb", true},
	}
	for _, c := range cases {
		if got := matchGlob(c.pattern, c.name); got != c.want {
			t.Fatalf("matchGlob(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}

func TestMatchGlobRejectsOverlongPattern(t *testing.T) {
	long := make([]byte, maxPatternLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if matchGlob(string(long), "a") {
		t.Fatal("overlong pattern should never match")
	}
}
