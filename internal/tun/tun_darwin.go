//go:build darwin

package tun

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/user/wg-tunnel/internal/procutil"
)

// normalizeInterfaceName maps any requested name to a utun name. macOS only
// allows "utun" (kernel picks the unit) or "utunN".
func normalizeInterfaceName(name string) string {
	if unit, ok := strings.CutPrefix(name, "utun"); ok {
		if unit == "" {
			return name
		}
		if _, err := strconv.ParseUint(unit, 10, 16); err == nil {
			return name
		}
	}
	return "utun"
}

func prepare() error { return nil }

// assignIP assigns an IP address to the adapter (macOS).
func (a *Adapter) assignIP(prefix netip.Prefix) error {
	addr := prefix.Addr()

	var args []string
	if addr.Is4() {
		// utun is point-to-point; use the first host of the subnet as peer
		peer := prefix.Masked().Addr().Next()
		if !prefix.Contains(peer) || peer == addr {
			peer = addr
		}
		args = []string{a.name, "inet", addr.String(), peer.String(), "alias"}
	} else {
		args = []string{a.name, "inet6", addr.String(), "prefixlen", strconv.Itoa(prefix.Bits()), "alias"}
	}
	if err := procutil.Run("ifconfig", args...); err != nil {
		return fmt.Errorf("failed to set IP address: %w", err)
	}

	// Subnet route; the host route already exists for /32 and /128.
	if prefix.Bits() < addr.BitLen() {
		family := "-inet"
		if addr.Is6() {
			family = "-inet6"
		}
		procutil.Run("route", "-q", "-n", "add", family, prefix.Masked().String(), "-interface", a.name)
	}
	return nil
}

// Up brings the adapter up (macOS).
func (a *Adapter) Up() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return fmt.Errorf("adapter not created")
	}

	if err := procutil.Run("ifconfig", a.name, "mtu", strconv.Itoa(a.mtu), "up"); err != nil {
		return fmt.Errorf("failed to bring interface up: %w", err)
	}

	a.isUp = true
	return nil
}

// Down brings the adapter down (macOS).
func (a *Adapter) Down() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return nil
	}

	procutil.Run("ifconfig", a.name, "down")

	a.isUp = false
	return nil
}
