//go:build darwin

package logger

import (
	"os"
	"path/filepath"
)

// getLogDir returns ~/Library/Logs/wg-tunnel, which stays writable when the
// binary lives in a signed .app bundle and shows up in Console.app.
func getLogDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Logs", "wg-tunnel")
	}
	return exeDir()
}
