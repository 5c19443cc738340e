// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/syntax"
)

func newEnvCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "env SERVICE",
		Short: "Print the effective environment of a service",
		Long: `Print the environment a service container is started with, after
interpolation and secret injection, one KEY=value per line.

Secrets and sensitive-looking keys (passwords, tokens, keys) are redacted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context(), rootFlags, engineOptional)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, verboseOf(s, rootFlags))
			}

			env, err := s.orch.Env(s.stack, args[0])
			if err != nil {
				return renderFailure(cmd, app.stderr, err, s.verbose)
			}

			keys := make([]string, 0, len(env))
			for k := range env {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(app.stdout, "%s=%s\n", k, quoteValue(env[k]))
			}
			return nil
		},
	}
}

// quoteValue shell-quotes values that need it so the output can be sourced.
func quoteValue(v string) string {
	q, err := syntax.Quote(v, syntax.LangBash)
	if err != nil {
		return v
	}
	return q
}
