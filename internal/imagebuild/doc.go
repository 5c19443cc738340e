// SPDX-License-Identifier: MPL-2.0

// Package imagebuild turns a stack build recipe into a container image.
//
// A Dockerfile is generated from the recipe (base image, system packages,
// dependency manifest, entrypoint), the recipe context is copied into a
// temporary build context without ignored files, and the engine builds it.
// Images are tagged <project>-<service>:<hash12>, where the hash covers the
// Dockerfile, the manifest and the context tree, so an unchanged recipe is a
// cache hit and no build runs:
//
//	builder := imagebuild.NewBuilder(engine, imagebuild.DefaultConfig())
//	result, err := builder.Build(ctx, imagebuild.Request{Project: "ocr", Service: "app", ...})
//	// result.Tag is the image to run
//
// Host files backing file secrets and .env files never enter the build context.
package imagebuild
