package config

import (
	"os"
	"path/filepath"
)

// FileName is the configuration file looked up by GetConfigPath.
const FileName = "config.yaml"

// besideExecutable returns FileName in the directory of the running
// binary, or in the working directory when that cannot be determined.
func besideExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		return FileName
	}
	return filepath.Join(filepath.Dir(exe), FileName)
}
