// Package wireguard implements backend.Backend on top of wireguard-go. It
// sequences device calls only; the protocol itself is wireguard-go's.
package wireguard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"sync"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"
	"golang.zx2c4.com/wireguard/tun/netstack"

	"github.com/user/wg-tunnel/internal/backend"
	"github.com/user/wg-tunnel/internal/dns"
	"github.com/user/wg-tunnel/internal/logger"
	tunpkg "github.com/user/wg-tunnel/internal/tun"
	"github.com/user/wg-tunnel/internal/tunnelcfg"
)

// Mode selects where packets leave the tunnel.
type Mode string

const (
	// ModeUserspace runs the interface on a gVisor netstack inside the
	// process. It needs no privileges.
	ModeUserspace Mode = "userspace"

	// ModeKernel creates a system TUN interface.
	ModeKernel Mode = "kernel"
)

// Log levels accepted by Options.LogLevel.
const (
	LogLevelSilent  = "silent"
	LogLevelError   = "error"
	LogLevelVerbose = "verbose"
)

// Resolver looks up the addresses of an endpoint host.
type Resolver func(ctx context.Context, host string) ([]netip.Addr, error)

// Options configures a Backend.
type Options struct {
	Mode     Mode
	LogLevel string
	Logf     logger.Logf

	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver

	// Bind defaults to conn.NewDefaultBind.
	Bind func() conn.Bind
}

// Backend drives a single wireguard-go device.
type Backend struct {
	opts Options
	logf logger.Logf

	mu     sync.Mutex
	active *instance
}

// instance is one running device and the interface under it.
type instance struct {
	tunnel   backend.Tunnel
	dev      *device.Device
	adapter  *tunpkg.Adapter
	dns      *dns.Manager
	net      *netstack.Net
	endpoint netip.AddrPort
	stopping bool

	// Interface settings the device was created with. Changing any of
	// them needs a new device.
	address    netip.Prefix
	mtu        int
	dnsServers []netip.Addr
}

func (inst *instance) matches(cfg *tunnelcfg.Config) bool {
	return inst.address == cfg.Address &&
		inst.mtu == effectiveMTU(cfg) &&
		slices.Equal(inst.dnsServers, cfg.DNS)
}

func effectiveMTU(cfg *tunnelcfg.Config) int {
	if cfg.MTU == 0 {
		return tunpkg.DefaultMTU
	}
	return cfg.MTU
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend. No device exists until the first SetState(Up).
func New(opts Options) (*Backend, error) {
	switch opts.Mode {
	case "":
		opts.Mode = ModeUserspace
	case ModeUserspace, ModeKernel:
	default:
		return nil, fmt.Errorf("unknown backend mode %q", opts.Mode)
	}
	if opts.Logf == nil {
		opts.Logf = logger.Discard
	}
	if opts.Resolver == nil {
		opts.Resolver = func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		}
	}
	if opts.Bind == nil {
		opts.Bind = conn.NewDefaultBind
	}
	return &Backend{
		opts: opts,
		logf: logger.WithPrefix(opts.Logf, "wireguard: "),
	}, nil
}

// Mode returns the mode the backend was created with.
func (b *Backend) Mode() Mode {
	return b.opts.Mode
}

// SetState implements backend.Backend.
func (b *Backend) SetState(ctx context.Context, t backend.Tunnel, desired backend.State, cfg *tunnelcfg.Config) (backend.State, error) {
	switch desired {
	case backend.StateUp:
		if cfg == nil {
			return b.currentState(), fmt.Errorf("no configuration to bring %s up", t.Name())
		}
		return b.up(ctx, t, cfg)
	case backend.StateDown:
		return b.down(t)
	default:
		return b.currentState(), fmt.Errorf("cannot move tunnel to %s", desired)
	}
}

// GetState implements backend.Backend. A running device is queried so a
// broken IPC channel surfaces as an error.
func (b *Backend) GetState(ctx context.Context, t backend.Tunnel) (backend.State, error) {
	b.mu.Lock()
	inst := b.active
	b.mu.Unlock()

	if inst == nil {
		return backend.StateDown, nil
	}
	if _, err := inst.dev.IpcGet(); err != nil {
		return backend.StateUp, fmt.Errorf("query device: %w", err)
	}
	return backend.StateUp, nil
}

// Stats returns the peer counters of the running device.
func (b *Backend) Stats() (Stats, error) {
	b.mu.Lock()
	inst := b.active
	b.mu.Unlock()

	if inst == nil {
		return Stats{}, fmt.Errorf("tunnel is down")
	}
	ipc, err := inst.dev.IpcGet()
	if err != nil {
		return Stats{}, fmt.Errorf("query device: %w", err)
	}
	return parseStats(ipc)
}

// Net returns the userspace network stack of the running tunnel, or nil in
// kernel mode or while down. Its DialContext sends traffic through the
// tunnel.
func (b *Backend) Net() *netstack.Net {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return nil
	}
	return b.active.net
}

// Close brings the device down.
func (b *Backend) Close() error {
	b.mu.Lock()
	inst := b.active
	b.active = nil
	if inst != nil {
		inst.stopping = true
	}
	b.mu.Unlock()

	if inst != nil {
		b.teardown(inst)
	}
	return nil
}

func (b *Backend) currentState() backend.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != nil {
		return backend.StateUp
	}
	return backend.StateDown
}

func (b *Backend) up(ctx context.Context, t backend.Tunnel, cfg *tunnelcfg.Config) (backend.State, error) {
	endpoint, err := b.resolveEndpoint(ctx, cfg.Endpoint)
	if err != nil {
		return b.currentState(), err
	}
	uapi := uapiConfig(cfg, endpoint)

	b.mu.Lock()
	inst := b.active
	b.mu.Unlock()

	restarted := false
	if inst != nil && !inst.matches(cfg) {
		b.logf("interface settings for %s changed, restarting device", t.Name())
		b.mu.Lock()
		if b.active == inst {
			b.active = nil
		}
		inst.stopping = true
		b.mu.Unlock()
		b.teardown(inst)
		inst, restarted = nil, true
	}

	// Already running: apply the new peer configuration in place.
	if inst != nil {
		if err := inst.dev.IpcSet(uapi); err != nil {
			return backend.StateUp, fmt.Errorf("reconfigure device: %w", err)
		}
		if inst.dns != nil {
			inst.dns.Reset()
			if err := inst.dns.Configure(inst.adapter.Name(), cfg.DNS); err != nil {
				b.logf("reconfigure DNS for %s: %v", t.Name(), err)
			}
		}
		inst.endpoint = endpoint
		b.logf("reconfigured %s, peer %s", t.Name(), endpoint)
		t.OnStateChange(backend.StateUp)
		return backend.StateUp, nil
	}

	inst, err = b.start(t, cfg, endpoint, uapi)
	if err != nil {
		if restarted {
			t.OnStateChange(backend.StateDown)
		}
		return backend.StateDown, err
	}

	b.mu.Lock()
	b.active = inst
	b.mu.Unlock()

	go b.monitor(inst)

	b.logf("%s up in %s mode, peer %s", t.Name(), b.opts.Mode, endpoint)
	t.OnStateChange(backend.StateUp)
	return backend.StateUp, nil
}

func (b *Backend) start(t backend.Tunnel, cfg *tunnelcfg.Config, endpoint netip.AddrPort, uapi string) (*instance, error) {
	mtu := effectiveMTU(cfg)
	inst := &instance{
		tunnel:     t,
		endpoint:   endpoint,
		address:    cfg.Address,
		mtu:        mtu,
		dnsServers: slices.Clone(cfg.DNS),
	}

	var tunDevice tun.Device
	switch b.opts.Mode {
	case ModeKernel:
		inst.adapter = tunpkg.New(tunpkg.Config{Name: t.Name(), MTU: mtu})
		dev, err := inst.adapter.Create()
		if err != nil {
			return nil, err
		}
		if err := inst.adapter.Configure(cfg.Address); err != nil {
			inst.adapter.Close()
			return nil, fmt.Errorf("failed to configure adapter: %w", err)
		}
		tunDevice = dev
	default:
		dev, tnet, err := netstack.CreateNetTUN([]netip.Addr{cfg.Address.Addr()}, cfg.DNS, mtu)
		if err != nil {
			return nil, fmt.Errorf("failed to create netstack interface: %w", err)
		}
		tunDevice, inst.net = dev, tnet
	}

	inst.dev = device.NewDevice(tunDevice, b.opts.Bind(), b.deviceLogger(t.Name()))

	if err := inst.dev.IpcSet(uapi); err != nil {
		b.teardown(inst)
		return nil, fmt.Errorf("failed to apply config: %w", err)
	}
	if err := inst.dev.Up(); err != nil {
		b.teardown(inst)
		return nil, fmt.Errorf("failed to bring device up: %w", err)
	}
	if inst.adapter != nil {
		if err := inst.adapter.Up(); err != nil {
			b.teardown(inst)
			return nil, fmt.Errorf("failed to bring adapter up: %w", err)
		}
		inst.dns = dns.NewManager()
		if err := inst.dns.Configure(inst.adapter.Name(), cfg.DNS); err != nil {
			b.teardown(inst)
			return nil, err
		}
	}
	return inst, nil
}

func (b *Backend) down(t backend.Tunnel) (backend.State, error) {
	b.mu.Lock()
	inst := b.active
	b.active = nil
	if inst != nil {
		inst.stopping = true
	}
	b.mu.Unlock()

	if inst == nil {
		return backend.StateDown, nil
	}

	b.teardown(inst)
	b.logf("%s down", t.Name())
	t.OnStateChange(backend.StateDown)
	return backend.StateDown, nil
}

func (b *Backend) teardown(inst *instance) {
	if inst.dns != nil {
		if err := inst.dns.Reset(); err != nil {
			b.logf("restore DNS: %v", err)
		}
	}
	if inst.dev != nil {
		// Closes the TUN device too.
		inst.dev.Close()
	}
	if inst.adapter != nil {
		inst.adapter.Down()
		inst.adapter.Close()
	}
}

// monitor reports a device that closed on its own, e.g. because the TUN
// interface was removed underneath it.
func (b *Backend) monitor(inst *instance) {
	<-inst.dev.Wait()

	b.mu.Lock()
	unexpected := !inst.stopping && b.active == inst
	if unexpected {
		b.active = nil
	}
	b.mu.Unlock()

	if unexpected {
		b.logf("device for %s closed unexpectedly", inst.tunnel.Name())
		if inst.dns != nil {
			inst.dns.Reset()
		}
		if inst.adapter != nil {
			inst.adapter.Close()
		}
		inst.tunnel.OnStateChange(backend.StateDown)
	}
}

func (b *Backend) resolveEndpoint(ctx context.Context, endpoint string) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid endpoint port %q: %w", portStr, err)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(addr, uint16(port)), nil
	}

	addrs, err := b.opts.Resolver(ctx, host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("failed to resolve server %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, fmt.Errorf("no IP addresses found for %s", host)
	}
	// Prefer IPv4; not every network routes v6.
	addr := addrs[0]
	for _, a := range addrs {
		if a.Unmap().Is4() {
			addr = a
			break
		}
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(port)), nil
}

func (b *Backend) deviceLogger(name string) *device.Logger {
	logf := logger.WithPrefix(b.opts.Logf, "("+name+") ")
	l := &device.Logger{
		Verbosef: device.DiscardLogf,
		Errorf:   device.DiscardLogf,
	}
	switch b.opts.LogLevel {
	case LogLevelSilent:
	case LogLevelVerbose:
		l.Verbosef = logf
		l.Errorf = logf
	default:
		l.Errorf = logf
	}
	return l
}
