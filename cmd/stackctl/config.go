// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stackctl/internal/config"
)

// newConfigCommand creates the `stackctl config` command tree.
func newConfigCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stackctl configuration",
		Long: `Manage stackctl configuration.

Configuration is stored in:
  - Linux: $XDG_CONFIG_HOME/stackctl/config.cue (~/.config/stackctl/config.cue)
  - macOS: ~/Library/Application Support/stackctl/config.cue
  - Windows: %APPDATA%\stackctl\config.cue

Every key can be overridden with a STACKCTL_ environment variable, for
example STACKCTL_CONTAINER_ENGINE=podman or STACKCTL_READINESS_TIMEOUT=2m.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), rootFlags)
			if err != nil {
				return renderFailure(cmd, app.stderr, err, rootFlags.verbose)
			}
			path, exists, err := config.FilePath(loadOptions(rootFlags))
			if err != nil {
				return renderFailure(cmd, app.stderr, err, rootFlags.verbose)
			}
			showConfig(app.stdout, cfg, path, exists)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.CreateDefaultConfig(rootFlags.configDir, force)
			if err != nil {
				return renderFailure(cmd, app.stderr, fmt.Errorf("failed to create config: %w", err), rootFlags.verbose)
			}
			if !created {
				fmt.Fprintf(app.stdout, "%s Configuration already exists at %s (use --force to overwrite)\n", WarningStyle.Render("!"), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, err := config.FilePath(loadOptions(rootFlags))
			if err != nil {
				return renderFailure(cmd, app.stderr, err, rootFlags.verbose)
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	return cfgCmd
}

func loadOptions(flags *rootFlagValues) config.LoadOptions {
	return config.LoadOptions{ConfigFilePath: flags.configPath, ConfigDirPath: flags.configDir}
}

func showConfig(w io.Writer, cfg *config.Config, path string, exists bool) {
	keyStyle := CmdStyle
	valueStyle := SuccessStyle

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if exists {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), path)
	} else {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("container_engine"), valueStyle.Render(cfg.ContainerEngine.String()))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("stack_file"), valueStyle.Render(cfg.StackFile))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("log_level"), valueStyle.Render(cfg.LogLevel.String()))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("readiness"))
	fmt.Fprintf(w, "  timeout: %s\n", valueStyle.Render(cfg.Readiness.Timeout.String()))
	fmt.Fprintf(w, "  interval: %s\n", valueStyle.Render(cfg.Readiness.Interval.String()))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("build"))
	fmt.Fprintf(w, "  no_cache: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Build.NoCache)))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("ui"))
	fmt.Fprintf(w, "  verbose: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.UI.Verbose)))
}
