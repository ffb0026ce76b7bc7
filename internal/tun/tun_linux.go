//go:build linux

package tun

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/user/wg-tunnel/internal/procutil"
)

// Linux interface names are limited to IFNAMSIZ-1 bytes.
const maxNameLen = 15

func normalizeInterfaceName(name string) string {
	if len(name) > maxNameLen {
		return name[:maxNameLen]
	}
	return name
}

func prepare() error { return nil }

// assignIP assigns an IP address to the adapter (Linux).
func (a *Adapter) assignIP(prefix netip.Prefix) error {
	if err := procutil.Run("ip", "addr", "add", prefix.String(), "dev", a.name); err != nil {
		return fmt.Errorf("failed to set IP address: %w", err)
	}
	return nil
}

// Up brings the adapter up (Linux).
func (a *Adapter) Up() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return fmt.Errorf("adapter not created")
	}

	if err := procutil.Run("ip", "link", "set", "dev", a.name, "mtu", strconv.Itoa(a.mtu), "up"); err != nil {
		return fmt.Errorf("failed to bring interface up: %w", err)
	}

	a.isUp = true
	return nil
}

// Down brings the adapter down (Linux).
func (a *Adapter) Down() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return nil
	}

	// The interface may already be gone with the device.
	procutil.Run("ip", "link", "set", "dev", a.name, "down")

	a.isUp = false
	return nil
}
