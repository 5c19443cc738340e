// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"stackctl/internal/config"
	"stackctl/internal/container"
	"stackctl/internal/imagebuild"
	"stackctl/internal/issue"
	"stackctl/internal/orchestrator"
	"stackctl/internal/secrets"
	"stackctl/pkg/stackfile"
)

type (
	// App wires CLI services and shared dependencies. It is the composition root
	// for the CLI layer; every command handler receives it.
	App struct {
		Config  ConfigProvider
		Engines EngineFactory

		lookupEnv   secrets.LookupEnvFunc
		stackLookup stackfile.LookupFunc
		homeDir     func() (string, error)
		buildRoot   string
		stdout      io.Writer
		stderr      io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config  ConfigProvider
		Engines EngineFactory
		// LookupEnv resolves environment secrets (os.LookupEnv by default).
		LookupEnv secrets.LookupEnvFunc
		// StackLookup resolves ${VAR} references in stack files (process env
		// plus the stack's .env by default).
		StackLookup stackfile.LookupFunc
		HomeDir     func() (string, error)
		// BuildRoot is the parent of temporary build contexts.
		BuildRoot string
		Stdout    io.Writer
		Stderr    io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory returns an available engine, preferring the given type.
	EngineFactory func(preferred container.EngineType) (container.Engine, error)

	// session is the per-invocation state shared by the stack commands.
	session struct {
		cfg     *config.Config
		logger  *log.Logger
		verbose bool
		stack   *stackfile.Stack
		engine  container.Engine
		orch    *orchestrator.Orchestrator
	}

	// engineRequirement tells open whether the command talks to the engine.
	engineRequirement bool
)

const (
	engineRequired engineRequirement = true
	// engineOptional commands only render engine commands; a missing engine
	// falls back to the CLI engine of the configured type.
	engineOptional engineRequirement = false
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Engines == nil {
		deps.Engines = container.NewEngine
	}

	return &App{
		Config:      deps.Config,
		Engines:     deps.Engines,
		lookupEnv:   deps.LookupEnv,
		stackLookup: deps.StackLookup,
		homeDir:     deps.HomeDir,
		buildRoot:   deps.BuildRoot,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
	}, nil
}

// loadConfig loads the user configuration named by the root flags.
func (a *App) loadConfig(ctx context.Context, flags *rootFlagValues) (*config.Config, error) {
	return a.Config.Load(ctx, loadOptions(flags))
}

// newLogger builds the CLI logger. --verbose (or ui.verbose) forces debug.
func (a *App) newLogger(cfg *config.Config, verbose bool) *log.Logger {
	level := cfg.LogLevel.Level()
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "stackctl",
		Level:           level,
	})
}

// open loads config and stack and builds the orchestrator for one command.
func (a *App) open(ctx context.Context, flags *rootFlagValues, need engineRequirement) (*session, error) {
	cfg, err := a.loadConfig(ctx, flags)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, verbose: flags.verbose || cfg.UI.Verbose}
	s.logger = a.newLogger(cfg, s.verbose)

	path := flags.file
	if path == "" {
		path = cfg.StackFile
	}
	if s.stack, err = a.loadStack(path); err != nil {
		return s, err
	}

	if s.engine, err = a.engine(cfg.ContainerEngine, need); err != nil {
		return s, err
	}
	s.logger.Debug("using container engine", "engine", s.engine.Name())

	builderCfg := imagebuild.DefaultConfig()
	builderCfg.Apply(
		imagebuild.WithLogger(s.logger),
		imagebuild.WithNoCache(cfg.Build.NoCache),
		imagebuild.WithOutput(a.stderr, a.stderr),
	)
	if a.buildRoot != "" {
		builderCfg.Apply(imagebuild.WithBuildRoot(a.buildRoot))
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(s.logger),
		orchestrator.WithOutput(a.stdout, a.stderr),
		orchestrator.WithBuilder(imagebuild.NewBuilder(s.engine, builderCfg)),
	}
	if a.lookupEnv != nil {
		opts = append(opts, orchestrator.WithLookupEnv(a.lookupEnv))
	}
	if a.homeDir != nil {
		opts = append(opts, orchestrator.WithHomeDir(a.homeDir))
	}
	s.orch = orchestrator.New(s.engine, opts...)

	return s, nil
}

// loadStack loads and validates the stack file at path.
func (a *App) loadStack(path string) (*stackfile.Stack, error) {
	var opts []stackfile.LoadOption
	if a.stackLookup != nil {
		opts = append(opts, stackfile.WithLookup(a.stackLookup))
	}

	stack, err := stackfile.Load(path, opts...)
	switch {
	case err == nil:
		return stack, nil
	case errors.Is(err, stackfile.ErrStackNotFound):
		return nil, issue.NewErrorContext().
			WithOperation("load stack file").
			WithResource(path).
			WithSuggestion("Run 'stackctl init' to create a default stack.yaml").
			WithSuggestion("Pass --file to use another stack file").
			WithIssue(issue.StackfileNotFoundId).
			Wrap(err).
			BuildError()
	case errors.Is(err, stackfile.ErrInvalidStack), errors.Is(err, stackfile.ErrUnsupportedFormat):
		return nil, issue.NewErrorContext().
			WithOperation("load stack file").
			WithResource(path).
			WithSuggestion("Fix the reported fields and run 'stackctl plan' to check the result").
			WithIssue(classifyError(err)).
			Wrap(err).
			BuildError()
	default:
		return nil, fmt.Errorf("load stack file %s: %w", path, err)
	}
}

// engine resolves the container engine. When the engine is optional and none
// is available, the CLI engine of the preferred type is returned unchecked.
func (a *App) engine(preferred config.ContainerEngine, need engineRequirement) (container.Engine, error) {
	engine, err := a.Engines(container.EngineType(preferred))
	if err == nil {
		return engine, nil
	}
	if need == engineOptional {
		if preferred == config.ContainerEnginePodman {
			return container.NewPodmanEngine(), nil
		}
		return container.NewDockerEngine(), nil
	}
	return nil, issue.NewErrorContext().
		WithOperation("find container engine").
		WithResource(string(preferred)).
		WithSuggestion("Install Docker or Podman and make sure the daemon or socket is running").
		WithSuggestion("Select the installed engine with 'container_engine' in the config or STACKCTL_CONTAINER_ENGINE").
		WithIssue(issue.ContainerEngineNotFoundId).
		Wrap(err).
		BuildError()
}

// upOptions merges config defaults with command flags.
func (s *session) upOptions(noBuild, rebuild bool) orchestrator.UpOptions {
	return orchestrator.UpOptions{
		NoBuild:  noBuild,
		Rebuild:  rebuild || s.cfg.Build.NoCache,
		Timeout:  s.cfg.Readiness.Timeout,
		Interval: s.cfg.Readiness.Interval,
	}
}
