// SPDX-License-Identifier: MPL-2.0

// Package stackfile loads and validates stack files: compose-style descriptions
// of services, named volumes and secrets.
//
// YAML (.yaml, .yml), TOML (.toml) and CUE (.cue) are accepted. Whatever the
// format, a document is first decoded into a generic tree, interpolated
// (${VAR}, ${VAR:-default}, $VAR) against the process environment and a .env
// file next to the stack file, and only then decoded into a Stack. Defaults are
// applied last: implicit postgres readiness probes and dependency conditions.
package stackfile
