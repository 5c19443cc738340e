// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"fmt"

	"stackctl/internal/container"
	"stackctl/pkg/stackfile"
)

// StateNotCreated is the State of a service without a container.
const StateNotCreated = "not created"

// ServiceStatus is the runtime state of one service.
type ServiceStatus struct {
	Service   string
	Container string
	// State is the engine status (running, exited, ...) or StateNotCreated.
	State    string
	Running  bool
	ExitCode int
	// Health is the engine health status, empty when the image defines none.
	Health string
	Ports  []string
}

// Status reports the state of every service in start order.
func (o *Orchestrator) Status(ctx context.Context, stack *stackfile.Stack) ([]ServiceStatus, error) {
	order, err := stack.StartOrder()
	if err != nil {
		order = stack.ServiceNames()
	}

	statuses := make([]ServiceStatus, 0, len(order))
	for _, name := range order {
		cname := stack.ContainerName(name)
		st := ServiceStatus{
			Service:   name,
			Container: cname,
			State:     StateNotCreated,
			Ports:     []string(stack.Services[name].Ports),
		}
		state, err := o.engine.Inspect(ctx, container.ContainerName(cname))
		switch {
		case err == nil:
			st.State, st.Running, st.ExitCode, st.Health = state.Status, state.Running, state.ExitCode, state.Health
		case !isNotFound(err):
			return nil, fmt.Errorf("inspect %s: %w", cname, err)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
