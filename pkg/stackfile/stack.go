// SPDX-License-Identifier: MPL-2.0

package stackfile

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"stackctl/internal/dag"
)

const (
	// ConditionStarted waits only for the dependency's container to be started.
	ConditionStarted Condition = "service_started"
	// ConditionHealthy waits for the dependency's readiness probe to succeed.
	ConditionHealthy Condition = "service_healthy"
	// ConditionCompleted waits for the dependency to exit with status 0.
	ConditionCompleted Condition = "service_completed_successfully"

	ReadinessPostgres ReadinessType = "postgres"
	ReadinessTCP      ReadinessType = "tcp"
	ReadinessExec     ReadinessType = "exec"
	ReadinessNone     ReadinessType = "none"

	defaultProjectName = "stackctl"
)

type (
	// Stack is a parsed stack file.
	Stack struct {
		Name     string              `json:"name,omitempty"`
		Services map[string]*Service `json:"services"`
		Volumes  map[string]*Volume  `json:"volumes,omitempty"`
		Secrets  map[string]*Secret  `json:"secrets,omitempty"`

		// Path is the file the stack was loaded from; Dir is its directory.
		// Relative paths in the stack resolve against Dir.
		Path string `json:"-"`
		Dir  string `json:"-"`
	}

	// Service is one independently startable container.
	Service struct {
		Name        string       `json:"-"`
		Image       string       `json:"image,omitempty"`
		Build       *BuildRecipe `json:"build,omitempty"`
		WorkingDir  string       `json:"working_dir,omitempty"`
		Command     StringList   `json:"command,omitempty"`
		Environment Environment  `json:"environment,omitempty"`
		Ports       StringList   `json:"ports,omitempty"`
		Volumes     []string     `json:"volumes,omitempty"`
		DependsOn   DependsOn    `json:"depends_on,omitempty"`
		Readiness   *Readiness   `json:"readiness,omitempty"`
		Secrets     []SecretRef  `json:"secrets,omitempty"`
	}

	// BuildRecipe describes how the service image is built. Without Dockerfile,
	// a Dockerfile is generated from BaseImage, SystemPackages, Requirements,
	// Entrypoint, WorkDir and Env.
	BuildRecipe struct {
		Context        string      `json:"context,omitempty"`
		Dockerfile     string      `json:"dockerfile,omitempty"`
		BaseImage      string      `json:"base_image,omitempty"`
		Requirements   string      `json:"requirements,omitempty"`
		SystemPackages []string    `json:"system_packages,omitempty"`
		Entrypoint     StringList  `json:"entrypoint,omitempty"`
		WorkDir        string      `json:"workdir,omitempty"`
		Env            Environment `json:"env,omitempty"`
	}

	// Condition is the state a dependency must reach before a dependent starts.
	Condition string

	// Dependency is one depends_on entry.
	Dependency struct {
		Condition Condition `json:"condition,omitempty"`
	}

	// ReadinessType selects a readiness probe implementation.
	ReadinessType string

	// Readiness configures how a service is probed for readiness.
	Readiness struct {
		Type ReadinessType `json:"type"`
		// Timeout and Interval override the global readiness settings.
		Timeout  Duration `json:"timeout,omitempty"`
		Interval Duration `json:"interval,omitempty"`
		// Command is the exec probe command.
		Command StringList `json:"command,omitempty"`
		// Port is the container port probed by tcp and postgres probes.
		Port int `json:"port,omitempty"`
	}

	// Volume is a top-level named volume declaration.
	Volume struct {
		// External volumes are never created or removed by stackctl and are used
		// under their own name, without the project prefix.
		External bool              `json:"external,omitempty"`
		Labels   map[string]string `json:"labels,omitempty"`
	}

	// Secret is a top-level secret declaration. Exactly one source is set.
	Secret struct {
		// File is a host path, relative to the stack directory or starting with ~.
		File string `json:"file,omitempty"`
		// Environment is the name of a host environment variable.
		Environment string `json:"environment,omitempty"`
	}

	// SecretRef attaches a declared secret to a service.
	SecretRef struct {
		Source string `json:"source"`
		// Target is the container path for file secrets or the variable name for
		// environment secrets. File secrets default to /run/secrets/<source>.
		Target   string `json:"target,omitempty"`
		Optional bool   `json:"optional,omitempty"`
	}

	// Duration is a time.Duration written as a Go duration string ("60s").
	Duration time.Duration
)

// ProjectName returns the stack name, or the sanitized name of the stack directory.
func (s *Stack) ProjectName() string {
	if name := sanitizeProjectName(s.Name); name != "" {
		return name
	}
	if name := sanitizeProjectName(filepath.Base(s.Dir)); name != "" {
		return name
	}
	return defaultProjectName
}

// ContainerName returns the container name of a service: <project>-<service>.
func (s *Stack) ContainerName(service string) string {
	return s.ProjectName() + "-" + service
}

// NetworkName returns the project network name: <project>_default.
func (s *Stack) NetworkName() string {
	return s.ProjectName() + "_default"
}

// VolumeName returns the engine-level name of a declared volume.
func (s *Stack) VolumeName(name string) string {
	if v := s.Volumes[name]; v != nil && v.External {
		return name
	}
	return s.ProjectName() + "_" + name
}

// ServiceNames returns the service names in lexical order.
func (s *Stack) ServiceNames() []string {
	return sortedKeys(s.Services)
}

// VolumeNames returns the declared volume names in lexical order.
func (s *Stack) VolumeNames() []string {
	return sortedKeys(s.Volumes)
}

// Graph returns the dependency graph. Edges point from a dependency to its
// dependent; unknown dependencies are skipped (Validate reports them).
func (s *Stack) Graph() *dag.Graph {
	g := dag.New()
	for _, name := range s.ServiceNames() {
		g.AddNode(name)
	}
	for _, name := range s.ServiceNames() {
		for _, dep := range s.Services[name].DependsOn.Names() {
			if _, ok := s.Services[dep]; ok {
				g.AddEdge(dep, name)
			}
		}
	}
	return g
}

// StartOrder returns the services in dependency order.
func (s *Stack) StartOrder() ([]string, error) {
	return s.Graph().TopologicalSort()
}

// HasProbe reports whether the service has an active readiness probe.
func (svc *Service) HasProbe() bool {
	return svc.Readiness != nil && svc.Readiness.Type != "" && svc.Readiness.Type != ReadinessNone
}

// Names returns the dependency names in lexical order.
func (d DependsOn) Names() []string {
	return sortedKeys(d)
}

// IsPostgresImage reports whether image refers to the official postgres image
// (any tag or registry prefix).
func IsPostgresImage(image string) bool {
	repo := image
	if i := strings.LastIndex(repo, "/"); i >= 0 {
		repo = repo[i+1:]
	}
	if i := strings.IndexAny(repo, ":@"); i >= 0 {
		repo = repo[:i]
	}
	return repo == "postgres"
}

func sanitizeProjectName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "_-")
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
