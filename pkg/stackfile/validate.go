// SPDX-License-Identifier: MPL-2.0

package stackfile

import (
	"errors"
	"fmt"

	"stackctl/internal/container"
)

// ErrInvalidStack is the sentinel wrapped by every validation and parse error.
var ErrInvalidStack = errors.New("invalid stack")

// ValidationError describes one problem found in a stack.
type ValidationError struct {
	// Field locates the problem, e.g. "services.app.depends_on".
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap returns ErrInvalidStack and the underlying cause, if any.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidStack, e.Err}
	}
	return []error{ErrInvalidStack}
}

// Validate checks the stack and returns every problem joined with errors.Join.
func (s *Stack) Validate() error {
	var errs []error
	add := func(field, msg string, err error) {
		errs = append(errs, &ValidationError{Field: field, Message: msg, Err: err})
	}

	if len(s.Services) == 0 {
		add("services", "at least one service is required", nil)
	}

	for _, name := range s.ServiceNames() {
		svc := s.Services[name]
		field := "services." + name

		if err := container.ContainerName(s.ContainerName(name)).Validate(); err != nil {
			add(field, "invalid service name", err)
		}
		if svc.Image == "" && svc.Build == nil {
			add(field, "either image or build is required", nil)
		}
		if b := svc.Build; b != nil && b.Dockerfile == "" && b.BaseImage == "" {
			add(field+".build", "base_image is required unless a dockerfile is given", nil)
		}

		for _, dep := range svc.DependsOn.Names() {
			if _, ok := s.Services[dep]; !ok {
				add(field+".depends_on", fmt.Sprintf("unknown service %q", dep), nil)
				continue
			}
			switch c := svc.DependsOn[dep].Condition; c {
			case ConditionStarted, ConditionHealthy, ConditionCompleted:
			default:
				add(field+".depends_on."+dep, fmt.Sprintf("unknown condition %q", c), nil)
			}
		}

		for _, p := range svc.Ports {
			if _, err := container.ParsePortMapping(p); err != nil {
				add(field+".ports", fmt.Sprintf("invalid port mapping %q", p), err)
			}
		}

		for _, v := range svc.Volumes {
			mount, err := container.ParseVolumeMount(v)
			if err != nil {
				add(field+".volumes", fmt.Sprintf("invalid volume %q", v), err)
				continue
			}
			if mount.HostPath.IsNamedVolume() {
				if _, ok := s.Volumes[string(mount.HostPath)]; !ok {
					add(field+".volumes", fmt.Sprintf("named volume %q is not declared in top-level volumes", mount.HostPath), nil)
				}
			}
		}

		if r := svc.Readiness; r != nil {
			switch r.Type {
			case ReadinessPostgres, ReadinessTCP, ReadinessNone:
			case ReadinessExec:
				if len(r.Command) == 0 {
					add(field+".readiness", "exec readiness requires a command", nil)
				}
			default:
				add(field+".readiness", fmt.Sprintf("unknown readiness type %q", r.Type), nil)
			}
			if r.Port < 0 || r.Port > 65535 {
				add(field+".readiness", fmt.Sprintf("invalid port %d", r.Port), nil)
			}
		}

		for _, ref := range svc.Secrets {
			if _, ok := s.Secrets[ref.Source]; !ok {
				add(field+".secrets", fmt.Sprintf("unknown secret %q", ref.Source), nil)
			}
		}
	}

	for _, name := range sortedKeys(s.Secrets) {
		sec := s.Secrets[name]
		switch {
		case sec.File != "" && sec.Environment != "":
			add("secrets."+name, "file and environment are mutually exclusive", nil)
		case sec.File == "" && sec.Environment == "":
			add("secrets."+name, "one of file or environment is required", nil)
		}
	}

	if _, err := s.StartOrder(); err != nil {
		add("services", "invalid depends_on graph", err)
	}

	return errors.Join(errs...)
}
