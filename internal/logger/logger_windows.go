//go:build windows

package logger

// getLogDir keeps the log beside the binary, like the config file.
func getLogDir() string {
	return exeDir()
}
