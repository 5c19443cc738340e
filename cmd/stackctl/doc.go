// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the stackctl CLI commands.
//
// The root command is built by NewRootCommand from an App, the composition
// root holding the config provider, the container engine factory and the
// output streams. Handlers load the stack, build an orchestrator and render
// results with lipgloss; failures are rendered together with the matching
// issue catalog entry before the error reaches fang.
package cmd
