// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"stackctl/internal/orchestrator"
)

func newDownCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var opts orchestrator.DownOptions

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the stack",
		Long: `Stop and remove the stack's containers and network.

Named volumes are kept, so the database survives a down/up cycle. Pass
--volumes to delete them and start from an empty database next time.
External volumes are never removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context(), rootFlags, engineRequired)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, verboseOf(s, rootFlags))
			}
			if err := s.orch.Down(cmd.Context(), s.stack, opts); err != nil {
				return renderFailure(cmd, app.stderr, err, s.verbose)
			}

			fmt.Fprintf(app.stdout, "%s Stack %s is down\n", SuccessStyle.Render("✓"), CmdStyle.Render(s.stack.ProjectName()))
			if !opts.RemoveVolumes && len(s.stack.Volumes) > 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("  Volumes kept; use --volumes to remove them."))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.RemoveVolumes, "volumes", false, "remove the stack's named volumes")
	cmd.Flags().BoolVar(&opts.RemoveImages, "rmi", false, "remove images built for the stack")
	cmd.Flags().DurationVar(&opts.StopTimeout, "stop-timeout", orchestrator.DefaultStopTimeout, "grace period before containers are killed")

	return cmd
}
