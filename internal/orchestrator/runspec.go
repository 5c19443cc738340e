// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"stackctl/internal/container"
	"stackctl/internal/secrets"
	"stackctl/pkg/stackfile"
)

// runOptions assembles the detached run of svc from its declaration, its image
// and its resolved secrets.
func (o *Orchestrator) runOptions(stack *stackfile.Stack, svc *stackfile.Service, image container.ImageTag, res *secrets.Resolved) (container.RunOptions, error) {
	opts := container.RunOptions{
		Image:          image,
		Name:           container.ContainerName(stack.ContainerName(svc.Name)),
		Command:        svc.Command,
		WorkDir:        container.MountTargetPath(svc.WorkingDir),
		Env:            maps.Clone(map[string]string(svc.Environment)),
		Network:        stack.NetworkName(),
		NetworkAliases: []string{svc.Name},
		Labels:         labels(stack, svc.Name),
		Detach:         true,
	}
	if opts.Env == nil {
		opts.Env = map[string]string{}
	}

	for _, spec := range svc.Volumes {
		mount, err := o.volumeMount(stack, spec)
		if err != nil {
			return opts, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		opts.Volumes = append(opts.Volumes, mount)
	}
	for _, p := range svc.Ports {
		mapping, err := container.ParsePortMapping(p)
		if err != nil {
			return opts, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		opts.Ports = append(opts.Ports, mapping)
	}

	if res != nil {
		opts.Volumes = append(opts.Volumes, res.Mounts...)
		if len(res.Env) > 0 {
			opts.SecretEnv = secrets.Reveal(res.Env)
			// A secret wins over a plain variable of the same name.
			for k := range opts.SecretEnv {
				delete(opts.Env, k)
			}
		}
	}

	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("service %s: %w", svc.Name, err)
	}
	return opts, nil
}

// volumeMount parses a service volume. Named volumes get their engine name and
// bind sources become absolute, relative to the stack directory.
func (o *Orchestrator) volumeMount(stack *stackfile.Stack, spec string) (container.VolumeMount, error) {
	mount, err := container.ParseVolumeMount(spec)
	if err != nil {
		return mount, err
	}
	src := string(mount.HostPath)
	if mount.HostPath.IsNamedVolume() {
		mount.HostPath = container.HostFilesystemPath(stack.VolumeName(src))
		return mount, nil
	}

	switch {
	case src == "~" || strings.HasPrefix(src, "~/"):
		home, err := o.homeDir()
		if err != nil {
			return mount, fmt.Errorf("expand %s: %w", src, err)
		}
		src = filepath.Join(home, strings.TrimPrefix(src, "~"))
	case !filepath.IsAbs(src):
		src = filepath.Join(stack.Dir, src)
	}
	mount.HostPath = container.HostFilesystemPath(filepath.Clean(src))
	return mount, nil
}
