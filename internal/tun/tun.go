// Package tun manages the kernel TUN interface a WireGuard device runs on
// when the backend is not in userspace mode.
package tun

import (
	"fmt"
	"net/netip"
	"sync"

	"golang.zx2c4.com/wireguard/tun"
)

// DefaultMTU is used when the tunnel configuration leaves the MTU unset.
const DefaultMTU = 1420

// Config represents TUN adapter configuration.
type Config struct {
	Name string
	MTU  int
}

// Adapter represents a TUN adapter.
type Adapter struct {
	mu     sync.Mutex
	name   string
	mtu    int
	device tun.Device
	addrs  []netip.Prefix
	isUp   bool
}

// New creates an adapter. Nothing is created on the system until Create.
func New(cfg Config) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "wg0"
	}
	if cfg.MTU == 0 {
		cfg.MTU = DefaultMTU
	}
	return &Adapter{
		name: normalizeInterfaceName(cfg.Name),
		mtu:  cfg.MTU,
	}
}

// Create creates the TUN device and returns it.
func (a *Adapter) Create() (tun.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device != nil {
		return nil, fmt.Errorf("adapter %s already created", a.name)
	}
	if err := prepare(); err != nil {
		return nil, err
	}

	device, err := tun.CreateTUN(a.name, a.mtu)
	if err != nil {
		return nil, fmt.Errorf("failed to create TUN device %s: %w", a.name, err)
	}
	a.device = device

	// The OS may pick the final name (utunN on macOS).
	if realName, err := device.Name(); err == nil {
		a.name = realName
	}
	return device, nil
}

// Configure assigns prefix to the interface.
func (a *Adapter) Configure(prefix netip.Prefix) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return fmt.Errorf("adapter not created")
	}
	if !prefix.IsValid() {
		return fmt.Errorf("invalid interface address %v", prefix)
	}
	if err := a.assignIP(prefix); err != nil {
		return err
	}
	a.addrs = append(a.addrs, prefix)
	return nil
}

// Close closes and destroys the adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.device != nil {
		err = a.device.Close()
		a.device = nil
	}
	a.addrs = nil
	a.isUp = false
	return err
}

// Device returns the underlying TUN device, or nil before Create.
func (a *Adapter) Device() tun.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// MTU returns the MTU.
func (a *Adapter) MTU() int {
	return a.mtu
}

// Addresses returns the prefixes assigned by Configure.
func (a *Adapter) Addresses() []netip.Prefix {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]netip.Prefix(nil), a.addrs...)
}

// IsUp returns whether the adapter is up.
func (a *Adapter) IsUp() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isUp
}
