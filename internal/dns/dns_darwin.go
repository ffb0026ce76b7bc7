//go:build darwin

package dns

import (
	"fmt"
	"strings"
)

// apply sets the servers on the primary network service. utun interfaces
// are not network services, so the primary one is changed and restored.
func (m *Manager) apply() error {
	service := m.primaryNetworkService()
	if service == "" {
		return fmt.Errorf("no primary network service found")
	}

	m.saved = nil
	if out, err := m.run("networksetup", "-getdnsservers", service); err == nil {
		output := strings.TrimSpace(string(out))
		if !strings.Contains(output, "There aren't any DNS Servers") {
			for _, line := range strings.Split(output, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					m.saved = append(m.saved, line)
				}
			}
		}
	}

	args := append([]string{"-setdnsservers", service}, addrStrings(m.servers)...)
	if err := m.exec("networksetup", args...); err != nil {
		return err
	}
	m.flushCache()
	return nil
}

func (m *Manager) restore() error {
	service := m.primaryNetworkService()
	if service == "" {
		return nil
	}

	args := []string{"-setdnsservers", service}
	if len(m.saved) > 0 {
		args = append(args, m.saved...)
	} else {
		args = append(args, "empty")
	}
	err := m.exec("networksetup", args...)
	m.flushCache()
	return err
}

func (m *Manager) primaryNetworkService() string {
	out, err := m.run("networksetup", "-listallnetworkservices")
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "An asterisk") {
			continue
		}
		// Return first non-disabled service
		if !strings.HasPrefix(line, "*") {
			return line
		}
	}
	return ""
}

func (m *Manager) flushCache() {
	m.run("dscacheutil", "-flushcache")
	m.run("killall", "-HUP", "mDNSResponder")
}
