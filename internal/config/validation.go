package config

import (
	"fmt"
	"strings"
)

// Validate validates the configuration. The tunnel payload is checked
// separately by tunnelcfg.Validate.
func (c *Config) Validate() error {
	if c.Version < 1 || c.Version > CurrentVersion {
		return fmt.Errorf("unsupported config version %d", c.Version)
	}

	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	return nil
}

// Validate validates backend configuration.
func (b *Backend) Validate() error {
	switch b.Mode {
	case ModeUserspace, ModeKernel:
	default:
		return fmt.Errorf("unknown mode %q (want %s or %s)", b.Mode, ModeUserspace, ModeKernel)
	}

	if b.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if strings.ContainsAny(b.Interface, "/\\ \t") {
		return fmt.Errorf("invalid interface name %q", b.Interface)
	}

	switch b.LogLevel {
	case "", LogLevelSilent, LogLevelError, LogLevelVerbose:
	default:
		return fmt.Errorf("unknown log_level %q", b.LogLevel)
	}
	return nil
}
