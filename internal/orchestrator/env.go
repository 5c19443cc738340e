// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"maps"
	"slices"

	"stackctl/internal/secrets"
	"stackctl/pkg/stackfile"
)

// Env returns the environment a service is started with. Values of
// environment secrets and of sensitive keys are masked.
func (o *Orchestrator) Env(stack *stackfile.Stack, name string) (map[string]string, error) {
	svc, err := service(stack, name)
	if err != nil {
		return nil, err
	}
	res, err := o.resolver(stack).Resolve(svc)
	if err != nil {
		return nil, err
	}

	env := plainEnv(svc)
	secretKeys := slices.Sorted(maps.Keys(res.Env))
	for _, k := range secretKeys {
		env[k] = res.Env[k].String()
	}
	return secrets.Redact(env, secretKeys...), nil
}

// ServiceEnv returns the environment a service is started with, secret values
// included. Callers must not print it.
func (o *Orchestrator) ServiceEnv(stack *stackfile.Stack, name string) (map[string]string, error) {
	svc, err := service(stack, name)
	if err != nil {
		return nil, err
	}
	res, err := o.resolver(stack).Resolve(svc)
	if err != nil {
		return nil, err
	}
	return resolvedEnv(svc, res), nil
}

// resolvedEnv merges the plain environment of svc with its environment
// secrets. A secret wins over a plain variable of the same name.
func resolvedEnv(svc *stackfile.Service, res *secrets.Resolved) map[string]string {
	env := plainEnv(svc)
	if res != nil {
		maps.Copy(env, secrets.Reveal(res.Env))
	}
	return env
}

func plainEnv(svc *stackfile.Service) map[string]string {
	env := maps.Clone(map[string]string(svc.Environment))
	if env == nil {
		env = map[string]string{}
	}
	return env
}
