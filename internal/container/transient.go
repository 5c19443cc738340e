// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// transientMarkers are stderr fragments of engine failures that may succeed on retry.
var transientMarkers = []string{
	// Rootless Podman races and OCI runtime errors.
	"ping_group_range",
	"OCI runtime error",
	// Network errors during image pull or package installation inside builds.
	"Temporary failure resolving",
	"Could not resolve host",
	"connection timed out",
	"connection refused",
	"TLS handshake timeout",
	"i/o timeout",
	// Storage driver errors (overlay mount races on rootless Podman).
	"error creating overlay mount",
	"error mounting layer",
}

// IsTransientError reports whether err is a transient container engine error
// that may succeed on retry: network timeouts, registry hiccups, storage driver
// glitches and generic engine errors (exit code 125).
//
// Context cancellation and deadline errors are never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 125 {
		return true
	}

	errStr := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
