package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Manager loads the configuration file and hands out its sections.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	path   string
}

// NewManager creates a manager for the file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the file the manager reads.
func (m *Manager) Path() string {
	return m.path
}

// Load reads and validates the file. A missing file is written with
// DefaultConfig so the user has something to edit.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := writeConfig(m.path, cfg); err != nil {
			return err
		}
		m.set(cfg)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	// Fields absent from the file keep their defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", m.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.path, err)
	}
	m.set(cfg)
	return nil
}

func (m *Manager) set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// Get returns the loaded configuration, or nil before Load.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Tunnel returns a copy of the tunnel payload.
func (m *Manager) Tunnel() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil
	}
	return maps.Clone(m.config.Tunnel)
}

// writeConfig writes cfg through a temporary file so a crash never leaves
// a truncated config behind. The file may hold a private key: 0600.
func writeConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil && os.PathSeparator == '/' {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
