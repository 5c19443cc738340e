// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// podmanBinaryNames lists binaries in preference order.
var podmanBinaryNames = []string{"podman", "podman-remote"}

// PodmanEngine implements the Engine interface using Podman CLI.
// It embeds BaseCLIEngine for common CLI operations.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine.
// On Linux with SELinux enabled, bind mounts are automatically labeled with :z.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	allOpts := append([]BaseCLIEngineOption{
		WithName(string(EngineTypePodman)),
		WithVolumeFormatter(makeSELinuxLabelAdder(isSELinuxEnabled)),
	}, opts...)

	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(findPodmanBinary(), allOpts...),
	}
}

// Name returns the engine name.
func (e *PodmanEngine) Name() string {
	return string(EngineTypePodman)
}

// Available checks if Podman is available.
func (e *PodmanEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(context.Background(), "version", "--format", "{{.Version}}")
	return cmd.Run() == nil
}

// Version returns the Podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get podman version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ImageExists checks if an image exists.
func (e *PodmanEngine) ImageExists(ctx context.Context, image ImageTag) (bool, error) {
	return e.statusExists(ctx, "image", "exists", string(image))
}

// VolumeExists checks if a named volume exists.
func (e *PodmanEngine) VolumeExists(ctx context.Context, name string) (bool, error) {
	return e.statusExists(ctx, "volume", "exists", name)
}

// NetworkExists checks if a network exists.
func (e *PodmanEngine) NetworkExists(ctx context.Context, name string) (bool, error) {
	return e.statusExists(ctx, "network", "exists", name)
}

// findPodmanBinary returns the first podman binary found on PATH, or "".
func findPodmanBinary() string {
	for _, name := range podmanBinaryNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// isSELinuxEnabled checks if SELinux is enforcing.
func isSELinuxEnabled() bool {
	data, err := os.ReadFile("/sys/fs/selinux/enforce")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// makeSELinuxLabelAdder returns a formatter that adds the shared :z label to bind
// mounts when SELinux is enabled. Named volumes and mounts that already carry a
// label are left alone.
func makeSELinuxLabelAdder(selinuxEnabled func() bool) VolumeFormatFunc {
	return func(mount VolumeMount) VolumeMount {
		if mount.SELinux != SELinuxLabelNone || mount.HostPath.IsNamedVolume() || !selinuxEnabled() {
			return mount
		}
		mount.SELinux = SELinuxLabelShared
		return mount
	}
}
