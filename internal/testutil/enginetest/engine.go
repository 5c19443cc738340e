// SPDX-License-Identifier: MPL-2.0

package enginetest

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"stackctl/internal/container"
)

var _ container.Engine = (*Engine)(nil)

type (
	// BuildFunc observes Build calls while the build context still exists.
	BuildFunc func(opts container.BuildOptions) error

	// ExecFunc answers Exec calls.
	ExecFunc func(name container.ContainerName, command []string) (*container.RunResult, error)

	// Engine implements container.Engine in memory.
	Engine struct {
		mu sync.Mutex

		name      string
		available bool

		images     map[container.ImageTag]bool
		volumes    map[string]map[string]string
		networks   map[string]bool
		containers map[container.ContainerName]*container.ContainerState

		buildErr  error
		buildFunc BuildFunc
		pullErr   error
		runErrs   map[container.ContainerName]error
		exitCode  map[container.ContainerName]int
		logs      map[container.ContainerName]string
		execFunc  ExecFunc

		events     []string
		BuildCalls []container.BuildOptions
		RunCalls   []container.RunOptions
		ExecCalls  [][]string
	}
)

// New creates an available engine with no images, volumes or containers.
func New() *Engine {
	return &Engine{
		name:       "mock",
		available:  true,
		images:     make(map[container.ImageTag]bool),
		volumes:    make(map[string]map[string]string),
		networks:   make(map[string]bool),
		containers: make(map[container.ContainerName]*container.ContainerState),
		runErrs:    make(map[container.ContainerName]error),
		exitCode:   make(map[container.ContainerName]int),
		logs:       make(map[container.ContainerName]string),
	}
}

// WithName sets the engine name.
func (e *Engine) WithName(name string) *Engine {
	e.name = name
	return e
}

// WithAvailable sets whether the engine is available.
func (e *Engine) WithAvailable(available bool) *Engine {
	e.available = available
	return e
}

// WithImage marks an image as present locally.
func (e *Engine) WithImage(image container.ImageTag) *Engine {
	e.images[image] = true
	return e
}

// WithVolume marks a volume as existing.
func (e *Engine) WithVolume(name string) *Engine {
	e.volumes[name] = map[string]string{}
	return e
}

// WithBuildError makes every Build fail with err.
func (e *Engine) WithBuildError(err error) *Engine {
	e.buildErr = err
	return e
}

// WithBuild sets a function called for every Build. Its error fails the build.
func (e *Engine) WithBuild(fn BuildFunc) *Engine {
	e.buildFunc = fn
	return e
}

// WithPullError makes every Pull fail with err.
func (e *Engine) WithPullError(err error) *Engine {
	e.pullErr = err
	return e
}

// WithRunError makes Run fail with err for the named container.
func (e *Engine) WithRunError(name container.ContainerName, err error) *Engine {
	e.runErrs[name] = err
	return e
}

// WithExitCode sets the code Wait and attached Run report for the named container.
func (e *Engine) WithExitCode(name container.ContainerName, code int) *Engine {
	e.exitCode[name] = code
	return e
}

// WithLogs sets the output Logs writes for the named container.
func (e *Engine) WithLogs(name container.ContainerName, output string) *Engine {
	e.logs[name] = output
	return e
}

// WithExec sets the function answering Exec calls. Without it Exec succeeds.
func (e *Engine) WithExec(fn ExecFunc) *Engine {
	e.execFunc = fn
	return e
}

// Events returns the recorded calls in order, e.g. "run demo-db".
func (e *Engine) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.events)
}

// EventIndex returns the position of the first event equal to ev, or -1.
func (e *Engine) EventIndex(ev string) int {
	return slices.Index(e.Events(), ev)
}

// HasVolume reports whether the named volume exists.
func (e *Engine) HasVolume(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.volumes[name]
	return ok
}

// HasContainer reports whether the named container exists.
func (e *Engine) HasContainer(name container.ContainerName) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.containers[name]
	return ok
}

// RunCall returns the RunOptions of the last Run for the named container.
func (e *Engine) RunCall(name container.ContainerName) (container.RunOptions, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.RunCalls) - 1; i >= 0; i-- {
		if e.RunCalls[i].Name == name {
			return e.RunCalls[i], true
		}
	}
	return container.RunOptions{}, false
}

func (e *Engine) record(format string, args ...any) {
	e.events = append(e.events, fmt.Sprintf(format, args...))
}

// --- container.Engine interface implementation ---

func (e *Engine) Name() string    { return e.name }
func (e *Engine) Available() bool { return e.available }

func (e *Engine) Version(_ context.Context) (string, error) {
	return "mock-1.0.0", nil
}

func (e *Engine) Build(ctx context.Context, opts container.BuildOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("build %s", opts.Tag)
	e.BuildCalls = append(e.BuildCalls, opts)
	if e.buildErr != nil {
		return e.buildErr
	}
	if e.buildFunc != nil {
		if err := e.buildFunc(opts); err != nil {
			return err
		}
	}
	e.images[opts.Tag] = true
	return nil
}

func (e *Engine) Pull(ctx context.Context, image container.ImageTag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("pull %s", image)
	if e.pullErr != nil {
		return e.pullErr
	}
	e.images[image] = true
	return nil
}

func (e *Engine) ImageExists(_ context.Context, image container.ImageTag) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[image], nil
}

func (e *Engine) RemoveImage(_ context.Context, image container.ImageTag, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("rmi %s", image)
	delete(e.images, image)
	return nil
}

func (e *Engine) Run(ctx context.Context, opts container.RunOptions) (*container.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("run %s", opts.Name)
	e.RunCalls = append(e.RunCalls, opts)
	if err := e.runErrs[opts.Name]; err != nil {
		return nil, err
	}
	if _, ok := e.containers[opts.Name]; ok {
		return nil, fmt.Errorf("container name %q is already in use", opts.Name)
	}

	code := e.exitCode[opts.Name]
	state := &container.ContainerState{
		Name:      string(opts.Name),
		Status:    "running",
		Running:   true,
		StartedAt: time.Now(),
	}
	if !opts.Detach {
		state.Status, state.Running, state.ExitCode = "exited", false, code
		if out := e.logs[opts.Name]; out != "" && opts.Stdout != nil {
			_, _ = io.WriteString(opts.Stdout, out)
		}
	}
	if !opts.Remove {
		e.containers[opts.Name] = state
	}
	return &container.RunResult{ContainerID: "id-" + string(opts.Name), ExitCode: state.ExitCode}, nil
}

func (e *Engine) Exec(ctx context.Context, name container.ContainerName, command []string, _ container.ExecOptions) (*container.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.record("exec %s %s", name, strings.Join(command, " "))
	e.ExecCalls = append(e.ExecCalls, slices.Clone(command))
	fn := e.execFunc
	e.mu.Unlock()

	if fn != nil {
		return fn(name, command)
	}
	return &container.RunResult{}, nil
}

func (e *Engine) Stop(_ context.Context, name container.ContainerName, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop %s", name)
	state, ok := e.containers[name]
	if !ok {
		return container.ErrContainerNotFound
	}
	state.Running, state.Status = false, "exited"
	return nil
}

func (e *Engine) Remove(_ context.Context, name container.ContainerName, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("rm %s", name)
	if _, ok := e.containers[name]; !ok {
		return container.ErrContainerNotFound
	}
	delete(e.containers, name)
	return nil
}

func (e *Engine) Inspect(_ context.Context, name container.ContainerName) (*container.ContainerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.containers[name]
	if !ok {
		return nil, container.ErrContainerNotFound
	}
	cp := *state
	return &cp, nil
}

func (e *Engine) Logs(_ context.Context, name container.ContainerName, opts container.LogsOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("logs %s", name)
	if _, ok := e.containers[name]; !ok {
		return container.ErrContainerNotFound
	}
	if out := e.logs[name]; out != "" && opts.Stdout != nil {
		_, _ = io.WriteString(opts.Stdout, out)
	}
	return nil
}

// Wait marks the container exited with its configured exit code.
func (e *Engine) Wait(ctx context.Context, name container.ContainerName) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("wait %s", name)
	state, ok := e.containers[name]
	if !ok {
		return 0, container.ErrContainerNotFound
	}
	state.Running, state.Status, state.ExitCode = false, "exited", e.exitCode[name]
	return state.ExitCode, nil
}

func (e *Engine) VolumeCreate(_ context.Context, name string, labels map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("volume-create %s", name)
	e.volumes[name] = labels
	return nil
}

func (e *Engine) VolumeRemove(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("volume-rm %s", name)
	delete(e.volumes, name)
	return nil
}

func (e *Engine) VolumeExists(_ context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.volumes[name]
	return ok, nil
}

func (e *Engine) NetworkCreate(_ context.Context, name string, _ map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("network-create %s", name)
	e.networks[name] = true
	return nil
}

func (e *Engine) NetworkRemove(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("network-rm %s", name)
	delete(e.networks, name)
	return nil
}

func (e *Engine) NetworkExists(_ context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.networks[name], nil
}
