// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"

	// LabelProject is set on every container, volume and network of a stack.
	LabelProject = "io.stackctl.project"
	// LabelService is set on every container and names its service.
	LabelService = "io.stackctl.service"
)

var (
	// ErrEngineNotAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")

	// ErrContainerNotFound is returned by Inspect, Stop and Wait for an unknown container.
	ErrContainerNotFound = errors.New("no such container")
)

type (
	// Engine defines the container operations stackctl performs.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available checks if the engine is installed and its daemon/service answers.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)

		// Build builds an image from a Dockerfile.
		Build(ctx context.Context, opts BuildOptions) error
		// Pull pulls an image from its registry.
		Pull(ctx context.Context, image ImageTag) error
		// ImageExists checks if an image exists locally.
		ImageExists(ctx context.Context, image ImageTag) (bool, error)
		// RemoveImage removes an image.
		RemoveImage(ctx context.Context, image ImageTag, force bool) error

		// Run creates and starts a container. In detached mode it returns once the
		// container is started; otherwise it blocks until the container exits.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// Exec runs a command in a running container.
		Exec(ctx context.Context, name ContainerName, command []string, opts ExecOptions) (*RunResult, error)
		// Stop stops a running container, killing it after timeout.
		Stop(ctx context.Context, name ContainerName, timeout time.Duration) error
		// Remove removes a container.
		Remove(ctx context.Context, name ContainerName, force bool) error
		// Inspect returns the state of a container, or ErrContainerNotFound.
		Inspect(ctx context.Context, name ContainerName) (*ContainerState, error)
		// Logs copies the container's output to opts.Stdout and opts.Stderr.
		Logs(ctx context.Context, name ContainerName, opts LogsOptions) error
		// Wait blocks until the container exits and returns its exit code.
		Wait(ctx context.Context, name ContainerName) (int, error)

		// VolumeCreate creates a named volume.
		VolumeCreate(ctx context.Context, name string, labels map[string]string) error
		// VolumeRemove removes a named volume.
		VolumeRemove(ctx context.Context, name string) error
		// VolumeExists checks if a named volume exists.
		VolumeExists(ctx context.Context, name string) (bool, error)

		// NetworkCreate creates a bridge network.
		NetworkCreate(ctx context.Context, name string, labels map[string]string) error
		// NetworkRemove removes a network.
		NetworkRemove(ctx context.Context, name string) error
		// NetworkExists checks if a network exists.
		NetworkExists(ctx context.Context, name string) (bool, error)
	}

	// EngineType identifies the container engine type.
	EngineType string

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir HostFilesystemPath
		// Dockerfile is the path to the Dockerfile (relative to ContextDir, or absolute).
		Dockerfile HostFilesystemPath
		// Tag is the image tag.
		Tag ImageTag
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// Labels are image labels.
		Labels map[string]string
		// NoCache disables the build cache.
		NoCache bool
		// Stdout is where to write build output.
		Stdout io.Writer
		// Stderr is where to write build errors.
		Stderr io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run.
		Image ImageTag
		// Name is the container name.
		Name ContainerName
		// Command overrides the image's default command.
		Command []string
		// WorkDir is the working directory inside the container.
		WorkDir MountTargetPath
		// Env contains environment variables.
		Env map[string]string
		// SecretEnv contains environment variables whose values must not appear
		// on the engine command line.
		SecretEnv map[string]string
		// Volumes are bind mounts and named volume mounts.
		Volumes []VolumeMount
		// Ports are published port mappings.
		Ports []PortMapping
		// Network is the network to attach to.
		Network string
		// NetworkAliases are DNS aliases on Network.
		NetworkAliases []string
		// Labels are container labels.
		Labels map[string]string
		// Detach starts the container in the background.
		Detach bool
		// Remove automatically removes the container after exit.
		Remove bool
		// Stdout is where to write standard output (attached runs only).
		Stdout io.Writer
		// Stderr is where to write standard error (attached runs only).
		Stderr io.Writer
	}

	// ExecOptions contains options for running a command in a container.
	ExecOptions struct {
		Env     map[string]string
		WorkDir MountTargetPath
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// LogsOptions contains options for streaming container logs.
	LogsOptions struct {
		// Follow keeps streaming until the container exits or ctx ends.
		Follow bool
		// Tail limits output to the last N lines (0 means all).
		Tail   int
		Stdout io.Writer
		Stderr io.Writer
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ContainerID is the container ID (detached runs only).
		ContainerID string
		// ExitCode is the exit code (attached runs and exec).
		ExitCode int
		// Error contains an infrastructure failure, distinct from a non-zero exit.
		Error error
	}

	// ContainerState is the subset of inspect output stackctl reports.
	ContainerState struct {
		Name string
		// Status is the engine status: created, running, exited, ...
		Status   string
		Running  bool
		ExitCode int
		// Health is the health check status, empty when the image defines none.
		Health    string
		StartedAt time.Time
	}

	// EngineNotAvailableError is returned when no usable container engine exists.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is() compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// Validate returns an error if the build options cannot produce a build command.
func (o BuildOptions) Validate() error {
	var errs []error
	if err := o.ContextDir.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := o.Tag.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate returns an error if any typed field of the run options is invalid.
func (o RunOptions) Validate() error {
	var errs []error
	if err := o.Image.Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.Name != "" {
		if err := o.Name.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if o.WorkDir != "" {
		if err := o.WorkDir.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, v := range o.Volumes {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range o.Ports {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewEngine creates a container engine of the preferred type, falling back to
// the other engine when the preferred one is not available.
func NewEngine(preferredType EngineType) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		if engine := NewPodmanEngine(); engine.Available() {
			return engine, nil
		}
		if engine := NewDockerEngine(); engine.Available() {
			return engine, nil
		}
		return nil, &EngineNotAvailableError{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		if engine := NewDockerEngine(); engine.Available() {
			return engine, nil
		}
		if engine := NewPodmanEngine(); engine.Available() {
			return engine, nil
		}
		return nil, &EngineNotAvailableError{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}
}

// AutoDetectEngine tries to find an available container engine.
func AutoDetectEngine() (Engine, error) {
	// Podman first: more commonly available in rootless setups.
	if podman := NewPodmanEngine(); podman.Available() {
		return podman, nil
	}
	if docker := NewDockerEngine(); docker.Available() {
		return docker, nil
	}
	return nil, &EngineNotAvailableError{
		Engine: "any",
		Reason: "no container engine (podman or docker) is available on this system",
	}
}
