// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"fmt"

	"stackctl/internal/container"
	"stackctl/pkg/stackfile"
)

// Attach streams the logs of a started service until it exits and returns its
// exit code.
func (o *Orchestrator) Attach(ctx context.Context, stack *stackfile.Stack, name string) (int, error) {
	if _, err := service(stack, name); err != nil {
		return 0, err
	}
	cname := container.ContainerName(stack.ContainerName(name))
	o.projectLogger(stack).Debug("attaching", "service", name, "container", cname)

	err := o.engine.Logs(ctx, cname, container.LogsOptions{Follow: true, Stdout: o.stdout, Stderr: o.stderr})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("stream logs of %s: %w", cname, err)
	}
	code, err := o.engine.Wait(ctx, cname)
	if err != nil {
		return 0, fmt.Errorf("wait for %s: %w", cname, err)
	}
	o.projectLogger(stack).Info("service exited", "service", name, "exit_code", code)
	return code, nil
}
