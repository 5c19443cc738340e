// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"stackctl/internal/container"
	"stackctl/internal/issue"
	"stackctl/pkg/stackfile"
)

const (
	dockerfileName   = "Dockerfile"
	dockerignoreName = ".dockerignore"
)

var (
	// ErrManifestNotFound is returned when the recipe's dependency manifest is missing.
	ErrManifestNotFound = errors.New("dependency manifest not found")
	// ErrContextNotFound is returned when the build context directory is missing.
	ErrContextNotFound = errors.New("build context not found")
)

type (
	// Builder builds service images through a container engine.
	Builder struct {
		engine container.Engine
		config *Config
	}

	// Request identifies the image to build.
	Request struct {
		Project string
		Service string
		Recipe  *stackfile.BuildRecipe
		// StackDir resolves relative recipe paths.
		StackDir string
		// Exclude lists host paths that must stay out of the build context,
		// typically file secrets.
		Exclude []string
	}

	// Plan is a fully resolved build that has not run yet.
	Plan struct {
		Tag        container.ImageTag
		ContextDir string
		Dockerfile string
		Ignore     *IgnoreSet
		// Manifest is the manifest path relative to ContextDir, empty when none.
		Manifest string
	}

	// Result describes a built or reused image.
	Result struct {
		Tag container.ImageTag
		// Cached is true when an image with the same tag already existed.
		Cached bool
	}
)

// NewBuilder creates a Builder.
func NewBuilder(engine container.Engine, cfg *Config) *Builder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Builder{engine: engine, config: cfg}
}

// Config returns the builder's configuration.
func (b *Builder) Config() *Config {
	return b.config
}

// Plan resolves the Dockerfile, ignore set and tag of a request. It fails with
// an actionable error when the context or the manifest is missing, before the
// engine is involved.
func (b *Builder) Plan(req Request) (*Plan, error) {
	if req.Recipe == nil {
		return nil, fmt.Errorf("service %s has no build recipe", req.Service)
	}

	contextDir := resolvePath(req.StackDir, req.Recipe.Context)
	if info, err := os.Stat(contextDir); err != nil || !info.IsDir() {
		return nil, planError(req, contextDir, fmt.Errorf("%w: %s", ErrContextNotFound, contextDir),
			"Check build.context in the stack file; it is relative to the stack file directory")
	}

	ignore, err := NewIgnoreSet(contextDir, req.Exclude)
	if err != nil {
		return nil, err
	}

	plan := &Plan{ContextDir: contextDir, Ignore: ignore}
	h := sha256.New()

	if req.Recipe.Dockerfile != "" {
		path := resolvePath(contextDir, req.Recipe.Dockerfile)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, planError(req, path, err, "Check build.dockerfile in the stack file")
		}
		plan.Dockerfile = string(data)
	} else {
		if req.Recipe.Requirements != "" {
			manifestPath := resolvePath(contextDir, req.Recipe.Requirements)
			manifestHash, err := FileHash(manifestPath)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					err = fmt.Errorf("%w: %s", ErrManifestNotFound, manifestPath)
				}
				return nil, planError(req, manifestPath, err,
					"Create "+req.Recipe.Requirements+" in the build context (it may be empty)",
					"Or remove build.requirements from the stack file")
			}
			rel, err := filepath.Rel(contextDir, manifestPath)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return nil, planError(req, manifestPath, fmt.Errorf("manifest %s is outside the build context", manifestPath),
					"Move the manifest into the build context")
			}
			plan.Manifest = filepath.ToSlash(rel)
			h.Write([]byte("manifest:" + manifestHash + "\n"))
		}
		plan.Dockerfile = GenerateDockerfile(req.Recipe, plan.Manifest)
	}
	h.Write([]byte("dockerfile:" + plan.Dockerfile + "\n"))

	treeHash, err := ContextHash(contextDir, ignore)
	if err != nil {
		return nil, fmt.Errorf("failed to hash build context: %w", err)
	}
	h.Write([]byte("context:" + treeHash + "\n"))

	plan.Tag = ImageTag(req.Project, req.Service, hex.EncodeToString(h.Sum(nil))[:12])
	if err := plan.Tag.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Build builds the image for req, or reuses it when the tag already exists
// and NoCache is off.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	plan, err := b.Plan(req)
	if err != nil {
		return nil, err
	}
	logger := b.config.Logger.With("service", req.Service, "tag", plan.Tag)

	if !b.config.NoCache {
		exists, _ := b.engine.ImageExists(ctx, plan.Tag) //nolint:errcheck // Error treated as "not found"
		if exists {
			logger.Debug("image up to date")
			return &Result{Tag: plan.Tag, Cached: true}, nil
		}
	}

	buildCtx, cleanup, err := b.prepareBuildContext(plan)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger.Info("building image")
	opts := container.BuildOptions{
		ContextDir: container.HostFilesystemPath(buildCtx),
		Dockerfile: container.HostFilesystemPath(filepath.Join(buildCtx, dockerfileName)),
		Tag:        plan.Tag,
		Labels: map[string]string{
			container.LabelProject: req.Project,
			container.LabelService: req.Service,
		},
		NoCache: b.config.NoCache,
		Stdout:  b.config.Stdout,
		Stderr:  b.config.Stderr,
	}
	if err := b.engine.Build(ctx, opts); err != nil {
		return nil, err
	}
	return &Result{Tag: plan.Tag}, nil
}

// ImageTag returns the tag of a built service image.
func ImageTag(project, service, hash string) container.ImageTag {
	return container.ImageTag(fmt.Sprintf("%s-%s:%s", project, service, hash))
}

// prepareBuildContext copies the filtered context into a temporary directory
// and writes the Dockerfile and .dockerignore next to it.
func (b *Builder) prepareBuildContext(plan *Plan) (dir string, cleanup func(), err error) {
	if err := os.MkdirAll(b.config.BuildRoot, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create build root: %w", err)
	}
	tmpDir, err := os.MkdirTemp(b.config.BuildRoot, "ctx-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup = func() {
		_ = os.RemoveAll(tmpDir) // Cleanup temp dir; error non-critical
	}

	if err := copyContext(plan.ContextDir, tmpDir, plan.Ignore); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to copy build context: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, dockerfileName), []byte(plan.Dockerfile), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, dockerignoreName), []byte(plan.Ignore.Contents()), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write .dockerignore: %w", err)
	}
	return tmpDir, cleanup, nil
}

func planError(req Request, resource string, cause error, suggestions ...string) error {
	return issue.NewErrorContext().
		WithOperation("prepare image build for " + req.Service).
		WithResource(resource).
		WithSuggestions(suggestions...).
		WithIssue(issue.ImageBuildFailedId).
		Wrap(cause).
		BuildError()
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
