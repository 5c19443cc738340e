// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlagValues holds the persistent flags shared by every command.
type rootFlagValues struct {
	file       string
	configPath string
	configDir  string
	verbose    bool
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	root := &cobra.Command{
		Use:   "stackctl",
		Short: "Run a local application stack on Docker or Podman",
		Long: TitleStyle.Render("stackctl") + SubtitleStyle.Render(" - run a local application stack on Docker or Podman") + `

stackctl reads a compose-style stack file (YAML, TOML or CUE), builds the
application image, provisions the database with a named volume and starts
every service in dependency order, waiting for readiness where declared.

` + SubtitleStyle.Render("Examples:") + `
  stackctl init              Create stack.yaml, .env.example and requirements.txt
  stackctl plan              Show what 'up' would do
  stackctl up --attach app   Start the stack and follow the app until it exits
  stackctl status --db       Show service states and the database tables
  stackctl down --volumes    Remove the stack and its data`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.file, "file", "f", "", "stack file (default from config, stack.yaml)")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/stackctl/config.cue)")
	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "config directory")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logs and full error chains")

	root.AddCommand(
		newUpCommand(app, flags),
		newDownCommand(app, flags),
		newBuildCommand(app, flags),
		newStatusCommand(app, flags),
		newPlanCommand(app, flags),
		newEnvCommand(app, flags),
		newInitCommand(app, flags),
		newConfigCommand(app, flags),
	)

	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's exit code.
// This is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}

	// fang overrides root.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
