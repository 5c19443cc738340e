// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
)

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "wrapped context deadline", err: fmt.Errorf("pull failed: %w", context.DeadlineExceeded), want: false},
		{name: "generic error", err: errors.New("requirements.txt not found"), want: false},
		{name: "exit code 1", err: newExitError(t, 1), want: false},

		{name: "exit code 125", err: newExitError(t, 125), want: true},
		{name: "command error with exit code 125", err: &CommandError{Binary: "docker", Args: []string{"pull"}, Err: newExitError(t, 125)}, want: true},

		{name: "OCI runtime error", err: errors.New("OCI runtime error: container_linux.go"), want: true},
		{name: "temporary failure resolving", err: errors.New("Temporary failure resolving 'deb.debian.org'"), want: true},
		{name: "registry TLS timeout", err: errors.New("net/http: TLS handshake timeout"), want: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "overlay mount", err: errors.New("error creating overlay mount to /var/lib/containers"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransientError(tt.err); got != tt.want {
				t.Errorf("IsTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// newExitError creates an *exec.ExitError with the given exit code by running
// a shell that exits with it.
func newExitError(t *testing.T, code int) *exec.ExitError {
	t.Helper()
	err := exec.Command("sh", "-c", fmt.Sprintf("exit %d", code)).Run() //nolint:noctx // test helper

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *exec.ExitError, got %T", err)
	}
	return exitErr
}
