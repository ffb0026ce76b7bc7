//go:build darwin

package config

// GetConfigPath returns the file beside the binary; inside an .app bundle
// that is Contents/MacOS/.
func GetConfigPath() string {
	return besideExecutable()
}

// The kernel only accepts "utun" and picks the unit itself.
func defaultInterfaceName() string {
	return "utun"
}
