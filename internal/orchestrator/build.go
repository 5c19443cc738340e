// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"

	"stackctl/internal/container"
	"stackctl/pkg/stackfile"
)

// BuildResult is the image of one built service.
type BuildResult struct {
	Service string
	Tag     container.ImageTag
	Cached  bool
}

// Build builds the images of the named services, or of every service with a
// build recipe when names is empty. Services without a recipe are skipped.
func (o *Orchestrator) Build(ctx context.Context, stack *stackfile.Stack, names []string, noCache bool) ([]BuildResult, error) {
	if len(names) == 0 {
		names = stack.ServiceNames()
	}
	builder := o.builderFor(noCache)
	resolver := o.resolver(stack)

	var results []BuildResult
	for _, name := range names {
		svc, err := service(stack, name)
		if err != nil {
			return results, err
		}
		if svc.Build == nil {
			o.projectLogger(stack).Debug("no build recipe, skipping", "service", name)
			continue
		}
		res, err := builder.Build(ctx, o.buildRequest(stack, resolver, svc))
		if err != nil {
			return results, err
		}
		o.metrics.ImageBuilt(name, res.Cached)
		results = append(results, BuildResult{Service: name, Tag: res.Tag, Cached: res.Cached})
	}
	return results, nil
}
