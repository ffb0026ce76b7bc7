//go:build windows

package tun

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/user/wg-tunnel/internal/procutil"
	wintundll "github.com/user/wg-tunnel/resources"
)

// normalizeInterfaceName returns the name as-is on Windows (no restrictions).
func normalizeInterfaceName(name string) string {
	return name
}

// prepare makes sure the wintun driver DLL can be loaded.
func prepare() error {
	return wintundll.Ensure()
}

// assignIP assigns an IP address to the adapter (Windows).
func (a *Adapter) assignIP(prefix netip.Prefix) error {
	var err error
	if prefix.Addr().Is4() {
		mask := net.CIDRMask(prefix.Bits(), 32)
		err = procutil.Run("netsh", "interface", "ipv4", "set", "address",
			fmt.Sprintf("name=%s", a.name),
			"source=static",
			fmt.Sprintf("address=%s", prefix.Addr()),
			fmt.Sprintf("mask=%s", net.IP(mask).String()),
			"gateway=none",
		)
	} else {
		err = procutil.Run("netsh", "interface", "ipv6", "add", "address",
			fmt.Sprintf("interface=%s", a.name),
			fmt.Sprintf("address=%s", prefix),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to set IP address: %w", err)
	}
	return nil
}

// Up brings the adapter up (Windows).
func (a *Adapter) Up() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return fmt.Errorf("adapter not created")
	}

	if err := procutil.Run("netsh", "interface", "ipv4", "set", "subinterface",
		a.name, "mtu="+strconv.Itoa(a.mtu), "store=active"); err != nil {
		return fmt.Errorf("failed to set MTU: %w", err)
	}
	if err := procutil.Run("netsh", "interface", "set", "interface",
		a.name, "admin=enable"); err != nil {
		return fmt.Errorf("failed to bring interface up: %w", err)
	}

	a.isUp = true
	return nil
}

// Down brings the adapter down (Windows).
func (a *Adapter) Down() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return nil
	}

	procutil.Run("netsh", "interface", "set", "interface", a.name, "admin=disable")

	a.isUp = false
	return nil
}
