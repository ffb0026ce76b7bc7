//go:build linux

package config

import (
	"os"
	"path/filepath"
)

// GetConfigPath returns $XDG_CONFIG_HOME/wg-tunnel/config.yaml, falling
// back to the binary's directory.
func GetConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "wg-tunnel", FileName)
	}
	return besideExecutable()
}

func defaultInterfaceName() string {
	return "wg0"
}
