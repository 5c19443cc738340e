// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"stackctl/internal/issue"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = time.Second
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// VolumeFormatFunc rewrites a volume mount before it is rendered as a -v flag.
	// Podman uses this to add SELinux labels to bind mounts.
	VolumeFormatFunc func(mount VolumeMount) VolumeMount

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the implementation shared by CLI-based container engines.
	// Docker and Podman engines embed this struct; engine-specific methods
	// (Available, Version and the *Exists checks) remain on the concrete types.
	BaseCLIEngine struct {
		name            string
		binaryPath      string
		execCommand     ExecCommandFunc
		volumeFormatter VolumeFormatFunc
		retryAttempts   int
		retryBackoff    time.Duration
	}

	// CommandError is returned when an engine command exits unsuccessfully.
	// Stderr is kept so callers can classify the failure.
	CommandError struct {
		Binary string
		Args   []string
		Stderr string
		Err    error
	}

	// inspectState mirrors the JSON emitted by `inspect --format {{json .State}}`.
	inspectState struct {
		Status    string `json:"Status"`
		Running   bool   `json:"Running"`
		ExitCode  int    `json:"ExitCode"`
		StartedAt string `json:"StartedAt"`
		Health    *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	}
)

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %s %s failed: %v", filepath.Base(e.Binary), strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error { return e.Err }

// --- Option Functions ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithVolumeFormatter sets a custom volume formatter function.
func WithVolumeFormatter(fn VolumeFormatFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.volumeFormatter = fn
	}
}

// WithRetry sets how often transient build and pull failures are retried.
func WithRetry(attempts int, backoff time.Duration) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.retryAttempts = max(attempts, 1)
		e.retryBackoff = backoff
	}
}

// --- Constructor ---

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:      binaryPath,
		execCommand:     exec.CommandContext,
		volumeFormatter: func(v VolumeMount) VolumeMount { return v },
		retryAttempts:   defaultRetryAttempts,
		retryBackoff:    defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// --- Argument Builders ---

// BuildArgs constructs arguments for a build command.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := string(opts.Dockerfile)
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(string(opts.ContextDir), dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", string(opts.Tag))
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	for _, k := range slices.Sorted(maps.Keys(opts.BuildArgs)) {
		args = append(args, "--build-arg", k+"="+opts.BuildArgs[k])
	}

	return append(args, string(opts.ContextDir))
}

// PullArgs constructs arguments for a pull command.
func (e *BaseCLIEngine) PullArgs(image ImageTag) []string {
	return []string{"pull", string(image)}
}

// RunArgs constructs arguments for a run command. Keys are emitted in sorted
// order so that the same options always produce the same command line.
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Detach {
		args = append(args, "-d")
	}

	if opts.Remove {
		args = append(args, "--rm")
	}

	if opts.Name != "" {
		args = append(args, "--name", string(opts.Name))
	}

	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
		for _, alias := range opts.NetworkAliases {
			args = append(args, "--network-alias", alias)
		}
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	if opts.WorkDir != "" {
		args = append(args, "-w", string(opts.WorkDir))
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	// Secret values travel through the engine process environment, never argv.
	for _, k := range slices.Sorted(maps.Keys(opts.SecretEnv)) {
		args = append(args, "-e", k)
	}

	for _, v := range opts.Volumes {
		args = append(args, "-v", e.volumeFormatter(v).String())
	}

	for _, p := range opts.Ports {
		args = append(args, "-p", p.String())
	}

	args = append(args, string(opts.Image))
	return append(args, opts.Command...)
}

// ExecArgs constructs arguments for an exec command.
//
// Generated command: <binary> exec [options] <container> <command...>
func (e *BaseCLIEngine) ExecArgs(name ContainerName, command []string, opts ExecOptions) []string {
	args := []string{"exec"}

	if opts.WorkDir != "" {
		args = append(args, "-w", string(opts.WorkDir))
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	args = append(args, string(name))
	return append(args, command...)
}

// StopArgs constructs arguments for a stop command. The timeout is rounded down
// to whole seconds.
func (e *BaseCLIEngine) StopArgs(name ContainerName, timeout time.Duration) []string {
	return []string{"stop", "-t", strconv.Itoa(int(timeout / time.Second)), string(name)}
}

// RemoveArgs constructs arguments for a container remove command.
func (e *BaseCLIEngine) RemoveArgs(name ContainerName, force bool) []string {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	return append(args, string(name))
}

// RemoveImageArgs constructs arguments for an image remove command.
func (e *BaseCLIEngine) RemoveImageArgs(image ImageTag, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, string(image))
}

// InspectArgs constructs arguments for a container state query.
func (e *BaseCLIEngine) InspectArgs(name ContainerName) []string {
	return []string{"inspect", "--type", "container", "--format", "{{json .State}}", string(name)}
}

// LogsArgs constructs arguments for a logs command.
func (e *BaseCLIEngine) LogsArgs(name ContainerName, opts LogsOptions) []string {
	args := []string{"logs"}
	if opts.Follow {
		args = append(args, "--follow")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	return append(args, string(name))
}

// WaitArgs constructs arguments for a wait command.
func (e *BaseCLIEngine) WaitArgs(name ContainerName) []string {
	return []string{"wait", string(name)}
}

// VolumeCreateArgs constructs arguments for a volume create command.
func (e *BaseCLIEngine) VolumeCreateArgs(name string, labels map[string]string) []string {
	args := []string{"volume", "create"}
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		args = append(args, "--label", k+"="+labels[k])
	}
	return append(args, name)
}

// VolumeRemoveArgs constructs arguments for a volume remove command.
func (e *BaseCLIEngine) VolumeRemoveArgs(name string) []string {
	return []string{"volume", "rm", name}
}

// NetworkCreateArgs constructs arguments for a network create command.
func (e *BaseCLIEngine) NetworkCreateArgs(name string, labels map[string]string) []string {
	args := []string{"network", "create"}
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		args = append(args, "--label", k+"="+labels[k])
	}
	return append(args, name)
}

// NetworkRemoveArgs constructs arguments for a network remove command.
func (e *BaseCLIEngine) NetworkRemoveArgs(name string) []string {
	return []string{"network", "rm", name}
}

// --- Command Execution ---

// CreateCommand creates an exec.Cmd for the given arguments.
// This is useful when the caller needs to customize stdin/stdout/stderr.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandStatus executes a command and returns only the error status.
// Stderr is captured into the returned CommandError.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	_, err := e.RunCommandWithOutput(ctx, args...)
	return err
}

// RunCommandWithOutput executes a command and returns its stdout.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), e.commandError(args, stderr.String(), err)
	}
	return stdout.String(), nil
}

// statusExists runs an existence check. A non-zero exit means "does not exist";
// failing to run the binary at all is an error.
func (e *BaseCLIEngine) statusExists(ctx context.Context, args ...string) (bool, error) {
	err := e.RunCommandStatus(ctx, args...)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

func (e *BaseCLIEngine) commandError(args []string, stderr string, err error) error {
	cmdErr := &CommandError{Binary: e.binaryPath, Args: args, Stderr: strings.TrimSpace(stderr), Err: err}
	if isNoSuchContainer(cmdErr.Stderr) {
		return fmt.Errorf("%w: %w", ErrContainerNotFound, cmdErr)
	}
	return cmdErr
}

// --- Promoted Engine Methods (shared by Docker and Podman) ---

// Build builds an image from a Dockerfile. Transient failures are retried.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	args := e.BuildArgs(opts)
	err := RetryWithBackoff(ctx, e.retryAttempts, e.retryBackoff, func(int) (bool, error) {
		cmd := e.CreateCommand(ctx, args...)
		var stderr bytes.Buffer
		cmd.Stdout = opts.Stdout
		cmd.Stderr = &stderr
		if opts.Stderr != nil {
			cmd.Stderr = io.MultiWriter(&stderr, opts.Stderr)
		}
		if err := cmd.Run(); err != nil {
			cmdErr := e.commandError(args, tail(stderr.String(), 20), err)
			return IsTransientError(cmdErr), cmdErr
		}
		return false, nil
	})
	if err != nil {
		return buildContainerError(e.name, opts, err)
	}
	return nil
}

// Pull pulls an image. Transient failures are retried.
func (e *BaseCLIEngine) Pull(ctx context.Context, image ImageTag) error {
	if err := image.Validate(); err != nil {
		return err
	}
	args := e.PullArgs(image)
	return RetryWithBackoff(ctx, e.retryAttempts, e.retryBackoff, func(int) (bool, error) {
		err := e.RunCommandStatus(ctx, args...)
		return IsTransientError(err), err
	})
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, image ImageTag, force bool) error {
	return e.RunCommandStatus(ctx, e.RemoveImageArgs(image, force)...)
}

// Run runs a container and returns the result.
// In attached mode a non-zero exit code is captured in RunResult.ExitCode (not
// returned as error); only infrastructure failures set RunResult.Error.
// In detached mode any failure to start is returned as an actionable error.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	args := e.RunArgs(opts)
	cmd := e.CreateCommand(ctx, args...)
	if len(opts.SecretEnv) > 0 {
		cmd.Env = cmd.Environ()
		for _, k := range slices.Sorted(maps.Keys(opts.SecretEnv)) {
			cmd.Env = append(cmd.Env, k+"="+opts.SecretEnv[k])
		}
	}

	if opts.Detach {
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, runContainerError(e.name, opts, e.commandError(args[:1], stderr.String(), err))
		}
		return &RunResult{ContainerID: strings.TrimSpace(stdout.String())}, nil
	}

	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	return exitResult(cmd.Run()), nil
}

// Exec runs a command in a running container.
func (e *BaseCLIEngine) Exec(ctx context.Context, name ContainerName, command []string, opts ExecOptions) (*RunResult, error) {
	cmd := e.CreateCommand(ctx, e.ExecArgs(name, command, opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	result := exitResult(cmd.Run())
	result.ContainerID = string(name)
	return result, nil
}

// Stop stops a running container.
func (e *BaseCLIEngine) Stop(ctx context.Context, name ContainerName, timeout time.Duration) error {
	return e.RunCommandStatus(ctx, e.StopArgs(name, timeout)...)
}

// Remove removes a container.
func (e *BaseCLIEngine) Remove(ctx context.Context, name ContainerName, force bool) error {
	return e.RunCommandStatus(ctx, e.RemoveArgs(name, force)...)
}

// Inspect returns the state of a container.
func (e *BaseCLIEngine) Inspect(ctx context.Context, name ContainerName) (*ContainerState, error) {
	out, err := e.RunCommandWithOutput(ctx, e.InspectArgs(name)...)
	if err != nil {
		return nil, err
	}
	return parseInspectState(name, out)
}

// Logs copies container output to opts.Stdout and opts.Stderr.
func (e *BaseCLIEngine) Logs(ctx context.Context, name ContainerName, opts LogsOptions) error {
	args := e.LogsArgs(name, opts)
	cmd := e.CreateCommand(ctx, args...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if err := cmd.Run(); err != nil {
		return e.commandError(args, "", err)
	}
	return nil
}

// Wait blocks until the container exits and returns its exit code.
func (e *BaseCLIEngine) Wait(ctx context.Context, name ContainerName) (int, error) {
	out, err := e.RunCommandWithOutput(ctx, e.WaitArgs(name)...)
	if err != nil {
		return -1, err
	}
	code, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return -1, fmt.Errorf("parse exit code of %s: %w", name, err)
	}
	return code, nil
}

// VolumeCreate creates a named volume.
func (e *BaseCLIEngine) VolumeCreate(ctx context.Context, name string, labels map[string]string) error {
	return e.RunCommandStatus(ctx, e.VolumeCreateArgs(name, labels)...)
}

// VolumeRemove removes a named volume.
func (e *BaseCLIEngine) VolumeRemove(ctx context.Context, name string) error {
	return e.RunCommandStatus(ctx, e.VolumeRemoveArgs(name)...)
}

// NetworkCreate creates a network.
func (e *BaseCLIEngine) NetworkCreate(ctx context.Context, name string, labels map[string]string) error {
	return e.RunCommandStatus(ctx, e.NetworkCreateArgs(name, labels)...)
}

// NetworkRemove removes a network.
func (e *BaseCLIEngine) NetworkRemove(ctx context.Context, name string) error {
	return e.RunCommandStatus(ctx, e.NetworkRemoveArgs(name)...)
}

// --- Helpers ---

func exitResult(err error) *RunResult {
	result := &RunResult{}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Error = err
		}
	}
	return result
}

func parseInspectState(name ContainerName, out string) (*ContainerState, error) {
	var raw inspectState
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &raw); err != nil {
		return nil, fmt.Errorf("parse inspect output for %s: %w", name, err)
	}
	state := &ContainerState{
		Name:     string(name),
		Status:   raw.Status,
		Running:  raw.Running,
		ExitCode: raw.ExitCode,
	}
	if raw.Health != nil {
		state.Health = raw.Health.Status
	}
	if t, err := time.Parse(time.RFC3339Nano, raw.StartedAt); err == nil {
		state.StartedAt = t
	}
	return state, nil
}

func isNoSuchContainer(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no such container") || strings.Contains(s, "no container with name or id")
}

func isPortAllocated(err error) bool {
	s := err.Error()
	return strings.Contains(s, "port is already allocated") || strings.Contains(s, "address already in use")
}

// tail keeps the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// --- Actionable Error Helpers ---

// buildContainerError creates an actionable error for image build failures.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	return issue.NewErrorContext().
		WithOperation("build container image").
		WithResource(string(opts.Tag)).
		WithSuggestions(
			"Check that the dependency manifest and system packages exist for the base image",
			"Ensure the base image is reachable (try: "+engine+" pull <base-image>)",
			"Rebuild without cache: stackctl build --no-cache",
		).
		WithIssue(issue.ImageBuildFailedId).
		Wrap(cause).
		BuildError()
}

// runContainerError creates an actionable error for container start failures.
func runContainerError(engine string, opts RunOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("start container").
		WithResource(string(opts.Name))

	if isPortAllocated(cause) {
		ports := make([]string, 0, len(opts.Ports))
		for _, p := range opts.Ports {
			ports = append(ports, p.String())
		}
		ctx.WithSuggestion("A published port is in use (" + strings.Join(ports, ", ") + "); stop the process holding it").
			WithIssue(issue.PortAllocatedId)
	} else {
		ctx.WithSuggestions(
			"Verify the image exists (try: "+engine+" images)",
			"Check that bind-mounted host paths exist",
		)
	}

	return ctx.Wrap(cause).BuildError()
}
