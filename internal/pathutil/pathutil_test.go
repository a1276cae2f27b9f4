package pathutil

import "testing"

func TestSafeJoinRejectsTraversal(t *testing.T) {
	cases := []string{"../escape.txt", "a/../../escape.txt", "/etc/passwd"}
	for _, c := range cases {
		if _, err := SafeJoin("/tmp/base", c); err == nil {
			t.Fatalf("SafeJoin(%q) should have rejected traversal", c)
		}
	}
}

func TestSafeJoinAllowsNormalPaths(t *testing.T) {
	got, err := SafeJoin("/tmp/base", "sub", "file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "/tmp/base/sub/file.txt"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWithinBaseTrailingSeparator(t *testing.T) {
	if WithinBase("/foo", "/foo-bar") {
		t.Fatal("/foo-bar must not be considered within /foo")
	}
	if !WithinBase("/foo", "/foo/bar") {
		t.Fatal("/foo/bar must be considered within /foo")
	}
	if !WithinBase("/foo", "/foo") {
		t.Fatal("/foo must be considered within itself")
	}
}

func TestSidecarPath(t *testing.T) {
	cases := map[string]string{
		"host/host-2024-01-02T03-04-05Z.tar.gz":     "host/host-2024-01-02T03-04-05Z.manifest.json",
		"host/host-2024-01-02T03-04-05Z.tar.gz.age": "host/host-2024-01-02T03-04-05Z.manifest.json",
	}
	for in, want := range cases {
		if got := SidecarPath(in); got != want {
			t.Fatalf("SidecarPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeHostname(t *testing.T) {
	if got := SanitizeHostname("my host!@#$.local"); got != "myhost.local" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeHostname("!!!"); got != "unknown-host" {
		t.Fatalf("got %q", got)
	}
}

func TestTimestampForFilename(t *testing.T) {
	got := TimestampForFilename("2024-01-02T15:04:05Z")
	want := "2024-01-02T15-04-05Z"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
