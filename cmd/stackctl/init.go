// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"stackctl/pkg/stackfile"
)

func newInitCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Create a default stack.yaml in DIR (default .)",
		Long: `Create a default stack.yaml describing an application built from a
Python base image and a postgres database with a named volume, together
with a .env.example and a requirements.txt placeholder.

An existing stack.yaml is kept unless --force is given; the other files
are only written when missing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			written, err := stackfile.WriteSkeleton(dir, force)
			if errors.Is(err, stackfile.ErrFileExists) {
				err = fmt.Errorf("%w; use --force to overwrite", err)
			}
			if err != nil {
				return renderFailure(cmd, app.stderr, err, rootFlags.verbose)
			}

			for _, path := range written {
				if abs, absErr := filepath.Abs(path); absErr == nil {
					path = abs
				}
				fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), path)
			}
			fmt.Fprintln(app.stdout)
			fmt.Fprintln(app.stdout, SubtitleStyle.Render("Next steps:"))
			fmt.Fprintln(app.stdout, "  1. Copy .env.example to .env and set DATABASE_PASSWORD")
			fmt.Fprintln(app.stdout, "  2. Run 'stackctl plan' to review the steps")
			fmt.Fprintln(app.stdout, "  3. Run 'stackctl up --attach app'")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing stack.yaml")

	return cmd
}
