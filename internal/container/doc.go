// SPDX-License-Identifier: MPL-2.0

// Package container provides a unified abstraction layer for container engines (Docker/Podman).
//
// The Engine interface covers everything stackctl needs to provision a stack: image build and
// pull, detached container runs, exec, stop/remove, inspect, logs, and named volume and network
// management. DockerEngine and PodmanEngine both embed BaseCLIEngine, which owns argument
// construction (pure *Args methods) and command execution through an injectable ExecCommandFunc.
//
// Engine selection uses NewEngine(EngineType) with automatic fallback to the other engine, or
// AutoDetectEngine() for preference-less detection (Podman is tried first).
//
// Every resource created for a stack carries the LabelProject label, and containers also carry
// LabelService, so that teardown can find them without a state file.
package container
