// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

type (
	// Config holds builder settings.
	Config struct {
		// NoCache rebuilds even when the tagged image exists and disables the
		// engine's layer cache.
		NoCache bool

		// BuildRoot is the parent of temporary build contexts.
		// Default: ~/stackctl-build (see buildRoot).
		BuildRoot string

		// Stdout and Stderr receive engine build output.
		Stdout io.Writer
		Stderr io.Writer

		Logger *log.Logger
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BuildRoot: buildRoot(),
		Stdout:    os.Stderr,
		Stderr:    os.Stderr,
		Logger:    log.New(io.Discard),
	}
}

// WithNoCache returns an Option that sets NoCache on the config.
func WithNoCache(noCache bool) Option {
	return func(c *Config) {
		c.NoCache = noCache
	}
}

// WithBuildRoot returns an Option that sets BuildRoot on the config.
func WithBuildRoot(dir string) Option {
	return func(c *Config) {
		c.BuildRoot = dir
	}
}

// WithOutput returns an Option that routes build output to w.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Config) {
		c.Stdout = stdout
		c.Stderr = stderr
	}
}

// WithLogger returns an Option that sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// buildRoot picks a directory the engine can read. Docker installed via Snap
// cannot see /tmp or hidden directories in $HOME, so a visible directory in
// the home directory comes first.
func buildRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			return filepath.Join(home, "stackctl-build")
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".stackctl-build")
	}
	return filepath.Join(os.TempDir(), "stackctl-build")
}
