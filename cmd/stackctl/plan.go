// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what 'up' would do without doing it",
		Long: `Show every step 'up' would take, in order, as a Markdown table.

Run steps show the exact engine command line. Secret values never appear;
a secret that cannot be resolved is listed as its own step. The engine is
not contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context(), rootFlags, engineOptional)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, verboseOf(s, rootFlags))
			}

			plan, err := s.orch.Plan(s.stack)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, s.verbose)
			}
			if raw {
				fmt.Fprint(app.stdout, plan.Markdown())
				return nil
			}
			renderMarkdown(app.stdout, plan.Markdown())
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the Markdown source instead of rendering it")

	return cmd
}
