// SPDX-License-Identifier: MPL-2.0

package stackfile

import (
	"path"
	"strings"
)

const (
	// DefaultBuildWorkDir is the image working directory when neither the
	// recipe nor the service names one.
	DefaultBuildWorkDir = "/app"
	// SecretsMountDir is where file secrets are mounted when no target is given.
	SecretsMountDir = "/run/secrets"
	// PostgresPort is the container port probed by the implicit postgres probe.
	PostgresPort = 5432
)

func (s *Stack) applyDefaults() {
	if s.Services == nil {
		s.Services = map[string]*Service{}
	}
	for name, v := range s.Volumes {
		if v == nil {
			s.Volumes[name] = &Volume{}
		}
	}
	for name, sec := range s.Secrets {
		if sec == nil {
			s.Secrets[name] = &Secret{}
		}
	}

	for name, svc := range s.Services {
		if svc == nil {
			svc = &Service{}
			s.Services[name] = svc
		}
		svc.Name = name
		if svc.Readiness == nil && IsPostgresImage(svc.Image) {
			svc.Readiness = &Readiness{Type: ReadinessPostgres}
		}
		if svc.Readiness != nil && svc.Readiness.Port == 0 && svc.Readiness.Type == ReadinessPostgres {
			svc.Readiness.Port = PostgresPort
		}
		if b := svc.Build; b != nil {
			if b.Context == "" {
				b.Context = "."
			}
			if b.WorkDir == "" {
				b.WorkDir = svc.WorkingDir
			}
			if b.WorkDir == "" {
				b.WorkDir = DefaultBuildWorkDir
			}
		}
		for i := range svc.Secrets {
			ref := &svc.Secrets[i]
			if ref.Target != "" {
				continue
			}
			sec := s.Secrets[ref.Source]
			switch {
			case sec == nil:
			case sec.Environment != "":
				ref.Target = strings.ToUpper(ref.Source)
			default:
				ref.Target = path.Join(SecretsMountDir, ref.Source)
			}
		}
	}

	// Dependency conditions depend on the probes set above.
	for _, svc := range s.Services {
		for dep, d := range svc.DependsOn {
			if d.Condition != "" {
				continue
			}
			d.Condition = ConditionStarted
			if target := s.Services[dep]; target != nil && target.HasProbe() {
				d.Condition = ConditionHealthy
			}
			svc.DependsOn[dep] = d
		}
	}
}
