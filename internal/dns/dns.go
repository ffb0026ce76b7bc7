// Package dns points the system resolver at the tunnel's DNS servers while
// a kernel-mode tunnel is up.
package dns

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/user/wg-tunnel/internal/procutil"
)

// Manager applies and reverts resolver settings for one interface.
type Manager struct {
	mu      sync.Mutex
	iface   string
	servers []netip.Addr
	saved   []string
	active  bool

	run func(name string, args ...string) ([]byte, error)
}

// NewManager creates a new DNS manager.
func NewManager() *Manager {
	return &Manager{run: procutil.Output}
}

// Configure makes servers the resolvers for iface. An empty list leaves
// the system untouched.
func (m *Manager) Configure(iface string, servers []netip.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(servers) == 0 {
		return nil
	}
	if m.active {
		return fmt.Errorf("DNS already configured for %s", m.iface)
	}

	m.iface = iface
	m.servers = servers
	if err := m.apply(); err != nil {
		m.restore()
		return fmt.Errorf("failed to set DNS on %s: %w", iface, err)
	}
	m.active = true
	return nil
}

// Reset restores the resolver settings Configure replaced.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return nil
	}
	err := m.restore()
	m.active = false
	m.saved = nil
	return err
}

// Servers returns the servers currently applied, or nil.
func (m *Manager) Servers() []netip.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return nil
	}
	return append([]netip.Addr(nil), m.servers...)
}

func (m *Manager) exec(name string, args ...string) error {
	if out, err := m.run(name, args...); err != nil {
		return &procutil.CommandError{
			Args:   append([]string{name}, args...),
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return nil
}

func addrStrings(addrs []netip.Addr) []string {
	s := make([]string, len(addrs))
	for i, a := range addrs {
		s[i] = a.String()
	}
	return s
}
