//go:build windows

package config

// GetConfigPath returns the file beside the binary, keeping installs
// portable.
func GetConfigPath() string {
	return besideExecutable()
}

// Name of the wintun adapter shown in network settings.
func defaultInterfaceName() string {
	return "WgTunnel"
}
