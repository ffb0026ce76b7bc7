//go:build linux

package logger

import (
	"os"
	"path/filepath"
)

// getLogDir returns $XDG_STATE_HOME/wg-tunnel, or ~/.local/state/wg-tunnel.
func getLogDir() string {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "wg-tunnel")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "wg-tunnel")
	}
	return exeDir()
}
