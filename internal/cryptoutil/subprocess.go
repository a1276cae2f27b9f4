// Package cryptoutil wraps the external age binary for key generation and
// stream encryption/decryption: build the command, capture stderr into a
// buffer, wrap a non-zero exit with that buffer's contents.
package cryptoutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Binary names the external age executable used for every operation in this
// package. It is a var, not a const, so tests can point it at a fake.
var Binary = "age"

// KeygenBinary names the external age-keygen executable.
var KeygenBinary = "age-keygen"

// runCapture runs name with args, feeding stdin if non-nil and returning
// stdout. Stderr is captured separately so a failure message can include it.
func runCapture(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cryptoutil: %s failed: %w\n%s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
