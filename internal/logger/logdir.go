package logger

import (
	"os"
	"path/filepath"
)

// exeDir is the last-resort log directory.
func exeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
