// SPDX-License-Identifier: MPL-2.0

// Package enginetest provides an in-memory container.Engine for tests.
//
// The fake records every call in order and keeps just enough state (images,
// volumes, networks, containers) for idempotency checks to behave like a real
// engine. It is a separate package so that imagebuild, readiness and
// orchestrator tests can share it without importing each other.
//
// # Usage
//
//	import "stackctl/internal/testutil/enginetest"
//
//	engine := enginetest.New().WithImage("postgres:16")
//	// ... exercise code ...
//	if !slices.Contains(engine.Events(), "run demo-db") { ... }
package enginetest
