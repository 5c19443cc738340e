// SPDX-License-Identifier: MPL-2.0

// Package orchestrator provisions a stack on a container engine: it builds or
// pulls images, creates the project network and volumes, and starts services
// in dependency order, gating dependents on their dependencies' conditions.
//
// An Orchestrator serializes Up, Restart and Down, so a file watcher may call
// Restart while Up is attached to a service.
package orchestrator
