//go:build windows

package dns

import "fmt"

// apply sets static resolvers on the tunnel interface, per address family.
func (m *Manager) apply() error {
	var v4, v6 []string
	for _, a := range m.servers {
		if a.Is4() || a.Is4In6() {
			v4 = append(v4, a.Unmap().String())
		} else {
			v6 = append(v6, a.String())
		}
	}

	for _, f := range []struct {
		family  string
		servers []string
	}{{"ipv4", v4}, {"ipv6", v6}} {
		family := f.family
		for i, server := range f.servers {
			var err error
			if i == 0 {
				err = m.exec("netsh", "interface", family, "set", "dnsservers",
					fmt.Sprintf("name=%s", m.iface), "source=static",
					fmt.Sprintf("address=%s", server), "validate=no")
			} else {
				err = m.exec("netsh", "interface", family, "add", "dnsservers",
					fmt.Sprintf("name=%s", m.iface),
					fmt.Sprintf("address=%s", server), "validate=no")
			}
			if err != nil {
				return err
			}
		}
	}

	m.exec("ipconfig", "/flushdns")
	return nil
}

func (m *Manager) restore() error {
	var firstErr error
	for _, family := range []string{"ipv4", "ipv6"} {
		err := m.exec("netsh", "interface", family, "set", "dnsservers",
			fmt.Sprintf("name=%s", m.iface), "source=dhcp")
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
