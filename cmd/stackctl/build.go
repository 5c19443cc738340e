// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "build [SERVICE...]",
		Short: "Build service images without starting them",
		Long: `Build the images of services that declare a build recipe.

Images are tagged from a hash of the recipe, the dependency manifest and the
build context, so an unchanged service is reported as cached. Secrets are
excluded from the build context.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context(), rootFlags, engineRequired)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, verboseOf(s, rootFlags))
			}

			results, err := s.orch.Build(cmd.Context(), s.stack, args, noCache || s.cfg.Build.NoCache)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, s.verbose)
			}
			if len(results) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No service has a build recipe."))
				return nil
			}
			for _, r := range results {
				note := ""
				if r.Cached {
					note = SubtitleStyle.Render(" (cached)")
				}
				fmt.Fprintf(app.stdout, "%s %s → %s%s\n", SuccessStyle.Render("✓"), r.Service, CmdStyle.Render(string(r.Tag)), note)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "rebuild without the layer cache")

	return cmd
}
