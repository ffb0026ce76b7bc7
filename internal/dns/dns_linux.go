//go:build linux

package dns

// apply configures systemd-resolved for the interface and makes it the
// default route for lookups.
func (m *Manager) apply() error {
	args := append([]string{"dns", m.iface}, addrStrings(m.servers)...)
	if err := m.exec("resolvectl", args...); err != nil {
		return err
	}
	return m.exec("resolvectl", "domain", m.iface, "~.")
}

func (m *Manager) restore() error {
	return m.exec("resolvectl", "revert", m.iface)
}
