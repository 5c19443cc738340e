// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"stackctl/internal/container"
	"stackctl/internal/readiness"
	"stackctl/pkg/stackfile"
)

const (
	ActionNetwork ActionKind = "network"
	ActionVolume  ActionKind = "volume"
	ActionBuild   ActionKind = "build"
	ActionPull    ActionKind = "pull"
	ActionWait    ActionKind = "wait"
	ActionSecret  ActionKind = "secret"
	ActionRun     ActionKind = "run"
)

type (
	// ActionKind names a step of a plan.
	ActionKind string

	// Action is one step Up would take.
	Action struct {
		Kind    ActionKind
		Service string
		// Target is the network, volume, image or container the step acts on.
		Target string
		Detail string
	}

	// Plan lists the steps of Up in order.
	Plan struct {
		Project string
		Engine  string
		Actions []Action
	}

	// commandLiner is implemented by CLI engines, which can show the exact
	// command they would run.
	commandLiner interface {
		BinaryPath() string
		RunArgs(opts container.RunOptions) []string
	}
)

// Plan resolves what Up would do without touching the engine. Secret values
// never appear in it; a secret that cannot be resolved is reported as a step.
func (o *Orchestrator) Plan(stack *stackfile.Stack) (*Plan, error) {
	order, err := startOrder(stack)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Project: stack.ProjectName(), Engine: o.engine.Name()}
	add := func(a Action) { plan.Actions = append(plan.Actions, a) }

	add(Action{Kind: ActionNetwork, Target: stack.NetworkName(), Detail: "create if missing"})
	for _, name := range stack.VolumeNames() {
		detail := "create if missing"
		if stack.Volumes[name].External {
			detail = "external, must exist"
		}
		add(Action{Kind: ActionVolume, Target: stack.VolumeName(name), Detail: detail})
	}

	resolver := o.resolver(stack)
	for _, name := range order {
		svc := stack.Services[name]

		image := container.ImageTag(svc.Image)
		if svc.Build != nil {
			bp, err := o.builder.Plan(o.buildRequest(stack, resolver, svc))
			if err != nil {
				return nil, err
			}
			image = bp.Tag
			add(Action{Kind: ActionBuild, Service: name, Target: string(image),
				Detail: "context " + bp.ContextDir + ", skipped when the tag exists"})
		} else {
			add(Action{Kind: ActionPull, Service: name, Target: string(image), Detail: "pull if missing"})
		}

		for _, dep := range svc.DependsOn.Names() {
			add(o.waitAction(stack, name, dep, svc.DependsOn[dep].Condition))
		}

		res, err := resolver.Resolve(svc)
		if err != nil {
			add(Action{Kind: ActionSecret, Service: name, Detail: err.Error()})
			res = nil
		}
		opts, err := o.runOptions(stack, svc, image, res)
		if err != nil {
			return nil, err
		}
		add(Action{Kind: ActionRun, Service: name, Target: string(opts.Name), Detail: o.commandLine(opts)})
	}
	return plan, nil
}

func (o *Orchestrator) waitAction(stack *stackfile.Stack, service, dep string, cond stackfile.Condition) Action {
	a := Action{Kind: ActionWait, Service: service, Target: dep, Detail: string(cond)}
	if cond != stackfile.ConditionHealthy {
		return a
	}
	// An unresolvable secret is reported by the run step of dep.
	svc := stack.Services[dep]
	env := map[string]string(svc.Environment)
	if res, err := o.resolver(stack).Resolve(svc); err == nil {
		env = resolvedEnv(svc, res)
	}
	probe, err := readiness.ForService(stack, svc, env, o.engine)
	switch {
	case err != nil:
		a.Detail += ": " + err.Error()
	case probe != nil:
		a.Detail += ": " + probe.String()
	}
	return a
}

// commandLine renders the engine invocation for opts. Secret variables show
// by name only.
func (o *Orchestrator) commandLine(opts container.RunOptions) string {
	if cl, ok := o.engine.(commandLiner); ok {
		return quoteArgs(append([]string{o.engine.Name()}, cl.RunArgs(opts)...))
	}
	return fmt.Sprintf("%s run %s (%d env, %d secret env, %d volumes, %d ports)",
		o.engine.Name(), opts.Image, len(opts.Env), len(opts.SecretEnv), len(opts.Volumes), len(opts.Ports))
}

func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			q = fmt.Sprintf("%q", a)
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " ")
}

// Markdown renders the plan as a Markdown document.
func (p *Plan) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Plan for `%s` on %s\n\n", p.Project, p.Engine)
	sb.WriteString("| # | Action | Service | Target | Details |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for i, a := range p.Actions {
		detail := cell(a.Detail)
		if a.Kind == ActionRun {
			detail = code(a.Detail)
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n", i+1, a.Kind, cell(a.Service), code(a.Target), detail)
	}
	return sb.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func code(s string) string {
	if s == "" {
		return ""
	}
	return "`" + cell(s) + "`"
}
