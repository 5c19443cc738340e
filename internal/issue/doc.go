// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown troubleshooting
// guides for stackctl.
//
// An ActionableError names the operation that failed, the resource involved, and a
// short list of suggestions. Errors that map to a well-known failure mode also carry
// an Id, which the CLI uses to render the matching catalog entry with glamour.
package issue
