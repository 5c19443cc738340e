// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownService is returned for a service name the stack does not declare.
	ErrUnknownService = errors.New("unknown service")

	// ErrDependencyFailed is returned when a dependency never reached its condition.
	ErrDependencyFailed = errors.New("dependency condition not met")
)

type (
	// UnknownServiceError names a service missing from the stack.
	UnknownServiceError struct {
		Service string
		Known   []string
	}

	// DependencyError reports a dependency that did not reach its condition.
	DependencyError struct {
		Service    string
		Dependency string
		Condition  string
		Reason     string
	}
)

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service %q (stack has: %s)", e.Service, strings.Join(e.Known, ", "))
}

// Unwrap returns ErrUnknownService for errors.Is() compatibility.
func (e *UnknownServiceError) Unwrap() error { return ErrUnknownService }

func (e *DependencyError) Error() string {
	return fmt.Sprintf("service %s: dependency %s (%s): %s", e.Service, e.Dependency, e.Condition, e.Reason)
}

// Unwrap returns ErrDependencyFailed for errors.Is() compatibility.
func (e *DependencyError) Unwrap() error { return ErrDependencyFailed }
