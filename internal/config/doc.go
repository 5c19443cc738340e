// SPDX-License-Identifier: MPL-2.0

// Package config handles the stackctl user configuration using Viper with CUE as the file format.
//
// Configuration is loaded from $XDG_CONFIG_HOME/stackctl/config.cue (~/.config/stackctl on
// Linux, ~/Library/Application Support/stackctl on macOS, %APPDATA%\stackctl on Windows).
// Files are validated against the embedded config_schema.cue before being merged over the
// defaults, and every key can be overridden with a STACKCTL_ environment variable
// (STACKCTL_READINESS_TIMEOUT=2m overrides readiness.timeout).
package config
