// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces ConfigDir's platform lookup when set. The CLI sets
// it from --config-dir; tests use it because os.UserHomeDir does not honor HOME
// on every platform.
var configDirOverride string

// Reset clears the config directory override.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride makes ConfigDir return dir.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
