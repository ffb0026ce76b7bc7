// Package config handles loading, saving, and validation of the wg-tunnel
// configuration file.
package config

// Backend modes.
const (
	ModeUserspace = "userspace"
	ModeKernel    = "kernel"
)

// WireGuard device log levels.
const (
	LogLevelSilent  = "silent"
	LogLevelError   = "error"
	LogLevelVerbose = "verbose"
)

// CurrentVersion is the schema version written by DefaultConfig.
const CurrentVersion = 1

// Config represents the main configuration structure.
type Config struct {
	Version int     `yaml:"version"`
	Backend Backend `yaml:"backend"`
	Log     Log     `yaml:"log"`

	// Tunnel is the connect payload, keyed by the same field names hosts
	// send (clientPrivateKey, serverAddress, ...). It is validated when the
	// tunnel is brought up, not when the file is loaded.
	Tunnel map[string]any `yaml:"tunnel,omitempty"`
}

// Backend selects how the WireGuard device is run.
type Backend struct {
	Mode      string `yaml:"mode"`
	Interface string `yaml:"interface"`
	LogLevel  string `yaml:"log_level"`
}

// Log configures the log file. An empty path uses the platform default.
type Log struct {
	Path string `yaml:"path,omitempty"`
}

// DefaultConfig returns a configuration with an empty tunnel section.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Backend: Backend{
			Mode:      ModeUserspace,
			Interface: defaultInterfaceName(),
			LogLevel:  LogLevelError,
		},
	}
}
