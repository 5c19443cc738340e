// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"stackctl/internal/container"
	"stackctl/internal/imagebuild"
	"stackctl/internal/metrics"
	"stackctl/internal/secrets"
	"stackctl/pkg/stackfile"
)

// DefaultStopTimeout is the grace period before a stopping container is killed.
const DefaultStopTimeout = 10 * time.Second

type (
	// Orchestrator runs stacks on a container engine.
	Orchestrator struct {
		engine    container.Engine
		builder   *imagebuild.Builder
		metrics   *metrics.Recorder
		logger    *log.Logger
		lookupEnv secrets.LookupEnvFunc
		homeDir   func() (string, error)
		stdout    io.Writer
		stderr    io.Writer

		// mu serializes operations that create or remove containers.
		mu sync.Mutex
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)
)

// WithBuilder sets the image builder. The default builds through the same engine
// with imagebuild.DefaultConfig.
func WithBuilder(b *imagebuild.Builder) Option {
	return func(o *Orchestrator) { o.builder = b }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithLookupEnv sets how environment secrets are read from the host.
func WithLookupEnv(fn secrets.LookupEnvFunc) Option {
	return func(o *Orchestrator) { o.lookupEnv = fn }
}

// WithHomeDir sets how ~ is expanded in bind mounts and file secrets.
func WithHomeDir(fn func() (string, error)) Option {
	return func(o *Orchestrator) { o.homeDir = fn }
}

// WithOutput sets where attached service logs are written.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *Orchestrator) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// New creates an Orchestrator for engine.
func New(engine container.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:    engine,
		logger:    log.New(io.Discard),
		lookupEnv: os.LookupEnv,
		homeDir:   os.UserHomeDir,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.builder == nil {
		cfg := imagebuild.DefaultConfig()
		cfg.Logger = o.logger
		o.builder = imagebuild.NewBuilder(engine, cfg)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	return o
}

// Engine returns the container engine.
func (o *Orchestrator) Engine() container.Engine { return o.engine }

// Metrics returns the metrics recorder.
func (o *Orchestrator) Metrics() *metrics.Recorder { return o.metrics }

func (o *Orchestrator) resolver(stack *stackfile.Stack) *secrets.Resolver {
	return secrets.NewResolver(stack, secrets.WithLookupEnv(o.lookupEnv), secrets.WithHomeDir(o.homeDir))
}

// builderFor returns the configured builder, or a copy of it with NoCache set.
func (o *Orchestrator) builderFor(noCache bool) *imagebuild.Builder {
	if !noCache || o.builder.Config().NoCache {
		return o.builder
	}
	cfg := *o.builder.Config()
	cfg.NoCache = true
	return imagebuild.NewBuilder(o.engine, &cfg)
}

func (o *Orchestrator) projectLogger(stack *stackfile.Stack) *log.Logger {
	return o.logger.With("project", stack.ProjectName())
}

func labels(stack *stackfile.Stack, service string) map[string]string {
	l := map[string]string{container.LabelProject: stack.ProjectName()}
	if service != "" {
		l[container.LabelService] = service
	}
	return l
}

func isNotFound(err error) bool {
	return errors.Is(err, container.ErrContainerNotFound)
}

func service(stack *stackfile.Stack, name string) (*stackfile.Service, error) {
	svc, ok := stack.Services[name]
	if !ok {
		return nil, &UnknownServiceError{Service: name, Known: stack.ServiceNames()}
	}
	return svc, nil
}
