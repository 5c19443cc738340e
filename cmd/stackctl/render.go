// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"stackctl/internal/config"
	"stackctl/internal/container"
	"stackctl/internal/dag"
	"stackctl/internal/issue"
	"stackctl/internal/readiness"
	"stackctl/internal/secrets"
	"stackctl/pkg/stackfile"
)

// glamourStyle is the glamour style used for Markdown output.
const glamourStyle = "dark"

// classifyError maps a failure to an issue catalog entry. Errors that already
// carry an entry keep it; zero means no entry applies.
func classifyError(err error) issue.Id {
	if id, ok := issue.IssueOf(err); ok {
		return id
	}

	switch {
	case errors.Is(err, stackfile.ErrStackNotFound):
		return issue.StackfileNotFoundId
	case errors.Is(err, dag.ErrCycle):
		return issue.DependencyCycleId
	case errors.Is(err, stackfile.ErrInvalidStack), errors.Is(err, stackfile.ErrUnsupportedFormat):
		return issue.StackfileInvalidId
	case errors.Is(err, container.ErrEngineNotAvailable):
		return issue.ContainerEngineNotFoundId
	case errors.Is(err, readiness.ErrNotReady):
		return issue.DatabaseNotReadyId
	case errors.Is(err, secrets.ErrSecretUnavailable):
		return issue.SecretUnavailableId
	case errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId
	default:
		return 0
	}
}

// formatErrorForDisplay formats an error for user display. Actionable errors
// list their suggestions; verbose mode adds the full error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderFailure prints the issue catalog entry and the error, then silences
// cobra so the error is not printed twice. Bare exit codes print nothing.
func renderFailure(cmd *cobra.Command, stderr io.Writer, err error, verbose bool) error {
	if err == nil {
		return nil
	}
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return err
	}

	if id := classifyError(err); id != 0 {
		if entry := issue.Get(id); entry != nil {
			if rendered, renderErr := entry.Render(glamourStyle); renderErr == nil {
				fmt.Fprint(stderr, rendered)
			}
		}
	}
	fmt.Fprintf(stderr, "\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))
	return err
}

// renderMarkdown renders md with glamour, falling back to the raw text.
func renderMarkdown(w io.Writer, md string) {
	rendered, err := glamour.Render(md, glamourStyle)
	if err != nil {
		rendered = md
	}
	fmt.Fprint(w, rendered)
}
