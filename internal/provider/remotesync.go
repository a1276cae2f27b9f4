package provider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RemoteSyncBinary names the external remote-copy CLI (an rclone-compatible
// tool). A var so tests can point it at a fake executable.
var RemoteSyncBinary = "rclone"

// RemoteSync wraps an external sync tool invoked via its copyto/lsf/
// deletefile/lsd subcommands, scoped to a single remote path. Stderr is
// captured on every invocation and included in any non-zero-exit error.
type RemoteSync struct {
	RemotePath string // e.g. "myremote:backups"
}

var _ Provider = (*RemoteSync)(nil)

// NewRemoteSync returns a RemoteSync provider targeting remotePath. It does
// not itself check the tool is installed; callers use Check (or the
// orchestrator's prerequisite gate) for that.
func NewRemoteSync(remotePath string) *RemoteSync {
	return &RemoteSync{RemotePath: remotePath}
}

func (r *RemoteSync) Name() string { return "remote-sync" }

func (r *RemoteSync) joinRemote(remoteName string) (string, error) {
	if err := ValidateRemoteName(remoteName); err != nil {
		return "", err
	}
	return strings.TrimSuffix(r.RemotePath, "/") + "/" + remoteName, nil
}

func (r *RemoteSync) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, RemoteSyncBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("provider(remote-sync): command failed: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (r *RemoteSync) Push(ctx context.Context, localPath, remoteName string) error {
	dest, err := r.joinRemote(remoteName)
	if err != nil {
		return err
	}
	_, err = r.run(ctx, "copyto", localPath, dest)
	return err
}

func (r *RemoteSync) Pull(ctx context.Context, remoteName, localPath string) error {
	src, err := r.joinRemote(remoteName)
	if err != nil {
		return err
	}
	_, err = r.run(ctx, "copyto", src, localPath)
	return err
}

func (r *RemoteSync) List(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "lsf", r.RemotePath)
	if err != nil {
		return nil, err
	}
	return filterArchiveEntries(splitLines(out)), nil
}

// ListAll lists the base path plus one level of subdirectories (hostname
// prefixes), matching the local provider's discovery of legacy root-level
// entries alongside current hostname-scoped ones.
func (r *RemoteSync) ListAll(ctx context.Context) ([]string, error) {
	names, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	dirsOut, err := r.run(ctx, "lsf", "--dirs-only", r.RemotePath)
	if err != nil {
		return nil, err
	}
	for _, d := range splitLines(dirsOut) {
		d = strings.TrimSuffix(d, "/")
		if d == "" {
			continue
		}
		sub, err := r.run(ctx, "lsf", strings.TrimSuffix(r.RemotePath, "/")+"/"+d)
		if err != nil {
			return nil, err
		}
		for _, name := range splitLines(sub) {
			names = append(names, d+"/"+name)
		}
	}
	return filterArchiveEntries(names), nil
}

func (r *RemoteSync) Delete(ctx context.Context, remoteName string) error {
	dest, err := r.joinRemote(remoteName)
	if err != nil {
		return err
	}
	_, err = r.run(ctx, "deletefile", dest)
	return err
}

// Check runs a lightweight directory listing (lsd) against the remote base
// to confirm the tool is installed and the remote is reachable.
func (r *RemoteSync) Check(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(RemoteSyncBinary); err != nil {
		return false, fmt.Errorf("provider(remote-sync): %s not found in PATH: %w", RemoteSyncBinary, err)
	}
	if _, err := r.run(ctx, "lsd", r.RemotePath); err != nil {
		return false, err
	}
	return true, nil
}

func splitLines(b []byte) []string {
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
