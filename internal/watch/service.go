// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stackctl/internal/container"
	"stackctl/internal/orchestrator"
	"stackctl/pkg/stackfile"
)

// ErrNoSourceTree is returned for a service without a bind-mounted directory.
var ErrNoSourceTree = errors.New("service has no bind-mounted source directory")

// Restarter replaces the container of one service.
type Restarter interface {
	Restart(ctx context.Context, stack *stackfile.Stack, service string, opts orchestrator.UpOptions) error
}

// SourceDir returns the host directory bind-mounted into svc. A mount on the
// service working directory is preferred over other directory mounts.
func SourceDir(stack *stackfile.Stack, svc *stackfile.Service) (string, error) {
	workDir := svc.WorkingDir
	if workDir == "" && svc.Build != nil {
		workDir = svc.Build.WorkDir
	}

	var first string
	for _, spec := range svc.Volumes {
		mount, err := container.ParseVolumeMount(spec)
		if err != nil || mount.HostPath.IsNamedVolume() {
			continue
		}
		src := string(mount.HostPath)
		if strings.HasPrefix(src, "~") {
			continue
		}
		if !filepath.IsAbs(src) {
			src = filepath.Join(stack.Dir, src)
		}
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			continue
		}
		if string(mount.ContainerPath) == workDir {
			return filepath.Clean(src), nil
		}
		if first == "" {
			first = filepath.Clean(src)
		}
	}
	if first == "" {
		return "", fmt.Errorf("%w: %s", ErrNoSourceTree, svc.Name)
	}
	return first, nil
}

// ForService returns a Config that watches the source tree of the named
// service and restarts it on every change. The caller may still set
// Patterns, Ignore, Debounce and Logger.
func ForService(stack *stackfile.Stack, service string, r Restarter, opts orchestrator.UpOptions) (Config, error) {
	svc, ok := stack.Services[service]
	if !ok {
		return Config{}, &orchestrator.UnknownServiceError{Service: service, Known: stack.ServiceNames()}
	}
	dir, err := SourceDir(stack, svc)
	if err != nil {
		return Config{}, err
	}
	return Config{
		BaseDir: dir,
		OnChange: func(ctx context.Context, _ []string) error {
			return r.Restart(ctx, stack, service, opts)
		},
	}, nil
}
