// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"stackctl/internal/container"
	"stackctl/internal/imagebuild"
	"stackctl/internal/issue"
	"stackctl/internal/readiness"
	"stackctl/internal/secrets"
	"stackctl/pkg/stackfile"
)

type (
	// UpOptions configures Up and Restart.
	UpOptions struct {
		// NoBuild uses existing images and fails when a built image is missing.
		NoBuild bool
		// Rebuild builds images even when the tagged image exists.
		Rebuild bool
		// Timeout and Interval are the readiness defaults for services that do
		// not set their own.
		Timeout  time.Duration
		Interval time.Duration
	}

	// upRun carries the state of one Up or Restart.
	upRun struct {
		stack    *stackfile.Stack
		opts     UpOptions
		resolver *secrets.Resolver
		logger   *log.Logger
		// ready records dependencies whose probe already succeeded.
		ready map[string]bool
	}
)

// Up provisions the stack and starts every service in dependency order. A
// dependent is started only once each of its dependencies meets its
// condition. When a dependency never becomes ready, Up returns without
// stopping the services it already started.
func (o *Orchestrator) Up(ctx context.Context, stack *stackfile.Stack, opts UpOptions) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, err := startOrder(stack)
	if err != nil {
		return err
	}
	run := o.newRun(stack, opts)
	run.logger.Info("starting stack", "services", order)

	if err := o.ensureNetwork(ctx, stack); err != nil {
		return err
	}
	if err := o.ensureVolumes(ctx, stack); err != nil {
		return err
	}
	for _, name := range order {
		if err := o.startService(ctx, run, name); err != nil {
			return err
		}
	}
	run.logger.Info("stack started")
	return nil
}

// Restart replaces the container of one service. Its dependencies must
// already be running; their conditions are checked again before the start.
func (o *Orchestrator) Restart(ctx context.Context, stack *stackfile.Stack, name string, opts UpOptions) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := service(stack, name); err != nil {
		return err
	}
	run := o.newRun(stack, opts)
	run.logger.Info("restarting service", "service", name)
	return o.startService(ctx, run, name)
}

func (o *Orchestrator) newRun(stack *stackfile.Stack, opts UpOptions) *upRun {
	return &upRun{
		stack:    stack,
		opts:     opts,
		resolver: o.resolver(stack),
		logger:   o.projectLogger(stack),
		ready:    map[string]bool{},
	}
}

func startOrder(stack *stackfile.Stack) ([]string, error) {
	order, err := stack.StartOrder()
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("order services").
			WithResource(stack.Path).
			WithSuggestion("Remove one depends_on edge of the cycle").
			WithIssue(issue.DependencyCycleId).
			Wrap(err).
			BuildError()
	}
	return order, nil
}

// startService resolves the image, waits on dependencies, then replaces any
// existing container of the service with a fresh detached one.
func (o *Orchestrator) startService(ctx context.Context, run *upRun, name string) error {
	svc, err := service(run.stack, name)
	if err != nil {
		return err
	}
	logger := run.logger.With("service", name)

	image, err := o.ensureImage(ctx, run, svc)
	if err != nil {
		return err
	}
	if err := o.waitDependencies(ctx, run, svc); err != nil {
		return err
	}
	res, err := run.resolver.Resolve(svc)
	if err != nil {
		return err
	}
	opts, err := o.runOptions(run.stack, svc, image, res)
	if err != nil {
		return err
	}

	if err := o.removeContainer(ctx, opts.Name, logger); err != nil {
		return err
	}
	logger.Info("starting container", "container", opts.Name, "image", image)
	if _, err := o.engine.Run(ctx, opts); err != nil {
		return err
	}
	o.metrics.ServiceStarted(name)
	return nil
}

// ensureImage returns the image to run for svc, building or pulling it first
// when needed.
func (o *Orchestrator) ensureImage(ctx context.Context, run *upRun, svc *stackfile.Service) (container.ImageTag, error) {
	if svc.Build == nil {
		image := container.ImageTag(svc.Image)
		exists, _ := o.engine.ImageExists(ctx, image) //nolint:errcheck // Error treated as "not found"
		if exists {
			return image, nil
		}
		run.logger.Info("pulling image", "service", svc.Name, "image", image)
		if err := o.engine.Pull(ctx, image); err != nil {
			return "", issue.NewErrorContext().
				WithOperation("pull image").
				WithResource(string(image)).
				WithSuggestions(
					"Check the image name and tag",
					"Check your network connection and registry credentials",
				).
				Wrap(err).
				BuildError()
		}
		return image, nil
	}

	req := o.buildRequest(run.stack, run.resolver, svc)
	if run.opts.NoBuild {
		plan, err := o.builder.Plan(req)
		if err != nil {
			return "", err
		}
		exists, _ := o.engine.ImageExists(ctx, plan.Tag) //nolint:errcheck // Error treated as "not found"
		if !exists {
			return "", issue.NewErrorContext().
				WithOperation("find image").
				WithResource(string(plan.Tag)).
				WithSuggestions(
					"Build the image first: stackctl build "+svc.Name,
					"Or run stackctl up without --no-build",
				).
				WithIssue(issue.ImageBuildFailedId).
				Wrap(fmt.Errorf("image %s of service %s is not built", plan.Tag, svc.Name)).
				BuildError()
		}
		return plan.Tag, nil
	}

	result, err := o.builderFor(run.opts.Rebuild).Build(ctx, req)
	if err != nil {
		return "", err
	}
	o.metrics.ImageBuilt(svc.Name, result.Cached)
	return result.Tag, nil
}

func (o *Orchestrator) buildRequest(stack *stackfile.Stack, resolver *secrets.Resolver, svc *stackfile.Service) imagebuild.Request {
	return imagebuild.Request{
		Project:  stack.ProjectName(),
		Service:  svc.Name,
		Recipe:   svc.Build,
		StackDir: stack.Dir,
		Exclude:  resolver.FileSecretPaths(),
	}
}

// waitDependencies blocks until every dependency of svc meets its condition.
func (o *Orchestrator) waitDependencies(ctx context.Context, run *upRun, svc *stackfile.Service) error {
	for _, depName := range svc.DependsOn.Names() {
		dep := run.stack.Services[depName]
		cond := svc.DependsOn[depName].Condition
		depContainer := container.ContainerName(run.stack.ContainerName(depName))
		fail := func(reason string) error {
			return &DependencyError{Service: svc.Name, Dependency: depName, Condition: string(cond), Reason: reason}
		}

		switch cond {
		case stackfile.ConditionCompleted:
			run.logger.Info("waiting for dependency to complete", "service", svc.Name, "dependency", depName)
			code, err := o.engine.Wait(ctx, depContainer)
			if err != nil {
				return fail(err.Error())
			}
			if code != 0 {
				return fail(fmt.Sprintf("exited with status %d", code))
			}

		case stackfile.ConditionHealthy:
			if err := o.waitHealthy(ctx, run, dep); err != nil {
				return err
			}

		default:
			if _, err := o.engine.Inspect(ctx, depContainer); err != nil {
				if isNotFound(err) {
					return fail("container " + string(depContainer) + " does not exist")
				}
				return fail(err.Error())
			}
		}
	}
	return nil
}

// waitHealthy polls the readiness probe of dep once per run.
func (o *Orchestrator) waitHealthy(ctx context.Context, run *upRun, dep *stackfile.Service) error {
	if run.ready[dep.Name] {
		return nil
	}
	res, err := run.resolver.Resolve(dep)
	if err != nil {
		return err
	}
	probe, err := readiness.ForService(run.stack, dep, resolvedEnv(dep, res), o.engine)
	if err != nil {
		return err
	}
	if probe == nil {
		run.ready[dep.Name] = true
		return nil
	}

	opts := readiness.Options{
		Service:  dep.Name,
		Timeout:  run.opts.Timeout,
		Interval: run.opts.Interval,
		Logger:   run.logger,
		OnAttempt: func(ready bool) {
			o.metrics.ReadinessAttempt(dep.Name, ready)
		},
	}
	if t := dep.Readiness.Timeout.Std(); t > 0 {
		opts.Timeout = t
	}
	if i := dep.Readiness.Interval.Std(); i > 0 {
		opts.Interval = i
	}

	run.logger.Info("waiting for service to become ready", "service", dep.Name, "probe", probe.String())
	start := time.Now()
	err = readiness.Wait(ctx, probe, opts)
	o.metrics.ReadinessWaited(dep.Name, time.Since(start))
	if err != nil {
		if !readiness.IsNotReady(err) {
			return err
		}
		depContainer := run.stack.ContainerName(dep.Name)
		return issue.NewErrorContext().
			WithOperation("wait for service readiness").
			WithResource(dep.Name).
			WithSuggestions(
				"Inspect the service logs: "+o.engine.Name()+" logs "+depContainer,
				"Raise the readiness timeout: stackctl up --timeout 2m",
				"Services already started are still running; stop them with: stackctl down",
			).
			WithIssue(issue.DatabaseNotReadyId).
			Wrap(err).
			BuildError()
	}
	run.ready[dep.Name] = true
	run.logger.Info("service ready", "service", dep.Name, "waited", time.Since(start).Round(time.Millisecond))
	return nil
}

// ensureNetwork creates the project network unless it exists.
func (o *Orchestrator) ensureNetwork(ctx context.Context, stack *stackfile.Stack) error {
	name := stack.NetworkName()
	exists, err := o.engine.NetworkExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check network %s: %w", name, err)
	}
	if exists {
		return nil
	}
	o.projectLogger(stack).Debug("creating network", "network", name)
	if err := o.engine.NetworkCreate(ctx, name, labels(stack, "")); err != nil {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

// ensureVolumes creates declared volumes that do not exist yet. External
// volumes must already exist.
func (o *Orchestrator) ensureVolumes(ctx context.Context, stack *stackfile.Stack) error {
	logger := o.projectLogger(stack)
	for _, name := range stack.VolumeNames() {
		vol := stack.Volumes[name]
		engineName := stack.VolumeName(name)
		exists, err := o.engine.VolumeExists(ctx, engineName)
		if err != nil {
			return fmt.Errorf("check volume %s: %w", engineName, err)
		}
		if exists {
			logger.Debug("reusing volume", "volume", engineName)
			continue
		}
		if vol.External {
			return issue.NewErrorContext().
				WithOperation("find external volume").
				WithResource(engineName).
				WithSuggestion("Create it first: " + o.engine.Name() + " volume create " + engineName).
				Wrap(fmt.Errorf("external volume %s does not exist", engineName)).
				BuildError()
		}

		volLabels := labels(stack, "")
		for k, v := range vol.Labels {
			volLabels[k] = v
		}
		logger.Info("creating volume", "volume", engineName)
		if err := o.engine.VolumeCreate(ctx, engineName, volLabels); err != nil {
			return fmt.Errorf("create volume %s: %w", engineName, err)
		}
	}
	return nil
}

// removeContainer removes a leftover container with the given name.
func (o *Orchestrator) removeContainer(ctx context.Context, name container.ContainerName, logger *log.Logger) error {
	if _, err := o.engine.Inspect(ctx, name); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("inspect %s: %w", name, err)
	}
	logger.Debug("removing existing container", "container", name)
	if err := o.engine.Remove(ctx, name, true); err != nil && !isNotFound(err) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
