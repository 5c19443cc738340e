// SPDX-License-Identifier: MPL-2.0

// Package secrets resolves the secrets a service references at start time.
//
// File secrets become read-only bind mounts; environment secrets are read from
// the host environment and injected into the container environment. Resolved
// values are wrapped in Value, which never prints its content, and Redact masks
// sensitive entries of an environment map before it is logged or shown.
package secrets
