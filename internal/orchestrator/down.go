// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stackctl/internal/container"
	"stackctl/pkg/stackfile"
)

// DownOptions configures Down.
type DownOptions struct {
	// RemoveVolumes also removes the declared volumes. External volumes are kept.
	RemoveVolumes bool
	// RemoveImages also removes images built for the stack.
	RemoveImages bool
	// StopTimeout is the grace period per container (default DefaultStopTimeout).
	StopTimeout time.Duration
}

// Down stops and removes the stack's containers in reverse start order, then
// its network. Containers that do not exist are skipped. Named volumes are
// kept unless opts.RemoveVolumes is set.
func (o *Orchestrator) Down(ctx context.Context, stack *stackfile.Stack, opts DownOptions) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	order, err := stack.Graph().Reverse()
	if err != nil {
		// A cyclic stack never started; still clean up whatever exists.
		order = stack.ServiceNames()
	}
	logger := o.projectLogger(stack)
	logger.Info("stopping stack", "services", order)

	var errs []error
	for _, name := range order {
		if err := o.stopService(ctx, stack, name, opts.StopTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	network := stack.NetworkName()
	if exists, _ := o.engine.NetworkExists(ctx, network); exists { //nolint:errcheck // Error treated as "not found"
		logger.Debug("removing network", "network", network)
		if err := o.engine.NetworkRemove(ctx, network); err != nil {
			errs = append(errs, fmt.Errorf("remove network %s: %w", network, err))
		}
	}

	if opts.RemoveVolumes {
		for _, name := range stack.VolumeNames() {
			if stack.Volumes[name].External {
				continue
			}
			engineName := stack.VolumeName(name)
			if exists, _ := o.engine.VolumeExists(ctx, engineName); !exists { //nolint:errcheck // Error treated as "not found"
				continue
			}
			logger.Info("removing volume", "volume", engineName)
			if err := o.engine.VolumeRemove(ctx, engineName); err != nil {
				errs = append(errs, fmt.Errorf("remove volume %s: %w", engineName, err))
			}
		}
	}

	if opts.RemoveImages {
		errs = append(errs, o.removeImages(ctx, stack)...)
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) stopService(ctx context.Context, stack *stackfile.Stack, name string, timeout time.Duration) error {
	cname := container.ContainerName(stack.ContainerName(name))
	state, err := o.engine.Inspect(ctx, cname)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("inspect %s: %w", cname, err)
	}

	logger := o.projectLogger(stack).With("service", name)
	if state.Running {
		logger.Info("stopping container", "container", cname)
		if err := o.engine.Stop(ctx, cname, timeout); err != nil && !isNotFound(err) {
			return fmt.Errorf("stop %s: %w", cname, err)
		}
	}
	logger.Debug("removing container", "container", cname)
	if err := o.engine.Remove(ctx, cname, true); err != nil && !isNotFound(err) {
		return fmt.Errorf("remove %s: %w", cname, err)
	}
	return nil
}

// removeImages removes the current images of built services.
func (o *Orchestrator) removeImages(ctx context.Context, stack *stackfile.Stack) []error {
	resolver := o.resolver(stack)
	var errs []error
	for _, name := range stack.ServiceNames() {
		svc := stack.Services[name]
		if svc.Build == nil {
			continue
		}
		plan, err := o.builder.Plan(o.buildRequest(stack, resolver, svc))
		if err != nil {
			o.logger.Warn("cannot compute image tag", "service", name, "err", err)
			continue
		}
		if exists, _ := o.engine.ImageExists(ctx, plan.Tag); !exists { //nolint:errcheck // Error treated as "not found"
			continue
		}
		o.logger.Info("removing image", "service", name, "image", plan.Tag)
		if err := o.engine.RemoveImage(ctx, plan.Tag, true); err != nil {
			errs = append(errs, fmt.Errorf("remove image %s: %w", plan.Tag, err))
		}
	}
	return errs
}
