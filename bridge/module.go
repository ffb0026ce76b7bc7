package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/wg-tunnel/internal/backend"
	"github.com/user/wg-tunnel/internal/core"
	"github.com/user/wg-tunnel/internal/logger"
	"github.com/user/wg-tunnel/internal/permission"
	"github.com/user/wg-tunnel/internal/protocols/wireguard"
)

const logTag = "WgTunnel"

// Module is the object the host holds. All methods return immediately.
type Module struct {
	ctrl *core.Controller
	gate *permission.Gate
	logf logger.Logf
}

// NewModule creates a module whose tunnel runs on a userspace WireGuard
// device named name.
func NewModule(host Host, name string) *Module {
	logf := func(format string, args ...any) {
		host.Log(logTag, fmt.Sprintf(format, args...))
	}
	factory := func() (backend.Backend, error) {
		return wireguard.New(wireguard.Options{Mode: wireguard.ModeUserspace, Logf: logf})
	}
	return newModule(host, name, factory, logf)
}

func newModule(host Host, name string, factory backend.Factory, logf logger.Logf) *Module {
	gate := permission.NewGate(hostPlatform{host: host}, logf)
	session := backend.NewSession(name, factory, gate, logf)
	ctrl := core.New(session, gate, logf)
	ctrl.SetStatusListener(func(status core.StatusPayload) {
		if b, err := json.Marshal(status); err == nil {
			host.OnStatusChanged(string(b))
		}
	})
	return &Module{ctrl: ctrl, gate: gate, logf: logf}
}

// Initialize creates the tunnel backend.
func (m *Module) Initialize(p Promise) {
	m.run("initialize", core.CodeInit, p, func(ctx context.Context) (any, error) {
		return nil, m.ctrl.Initialize(ctx)
	})
}

// RequestVpnPermission resolves true once the user has consented.
func (m *Module) RequestVpnPermission(p Promise) {
	m.run("requestVpnPermission", core.CodePermission, p, func(ctx context.Context) (any, error) {
		return m.ctrl.RequestVPNPermission(ctx)
	})
}

// GenerateKeys resolves {"privateKey", "publicKey"}.
func (m *Module) GenerateKeys(p Promise) {
	m.run("generateKeys", core.CodeKeygen, p, func(context.Context) (any, error) {
		return m.ctrl.GenerateKeys()
	})
}

// Connect validates the JSON tunnel configuration and brings the tunnel up.
func (m *Module) Connect(config string, p Promise) {
	m.run("connect", core.CodeConnect, p, func(ctx context.Context) (any, error) {
		raw, err := decodePayload(config)
		if err != nil {
			return nil, &core.Error{Code: core.CodeConnect, Message: "Invalid tunnel configuration", Err: err}
		}
		return nil, m.ctrl.Connect(ctx, raw)
	})
}

// Disconnect brings the tunnel down.
func (m *Module) Disconnect(p Promise) {
	m.run("disconnect", core.CodeDisconnect, p, func(ctx context.Context) (any, error) {
		return nil, m.ctrl.Disconnect(ctx)
	})
}

// GetStatus resolves {"isConnected", "tunnelState", "error"?}. It never rejects.
func (m *Module) GetStatus(p Promise) {
	m.run("getStatus", "", p, func(ctx context.Context) (any, error) {
		return m.ctrl.GetStatus(ctx), nil
	})
}

// OnActivityResult delivers the consent dialog result. It returns false if
// requestCode does not belong to a pending request.
func (m *Module) OnActivityResult(requestCode, resultCode int32) bool {
	return m.gate.OnActivityResult(int(requestCode), int(resultCode))
}

// Close brings the tunnel down and releases the backend.
func (m *Module) Close() error {
	return m.ctrl.Close()
}

// run executes fn on its own goroutine and settles p with its outcome.
// code is used for errors that carry none, including panics. p is settled
// at most once, even if the host's Resolve or Reject panics.
func (m *Module) run(name string, code core.Code, p Promise, fn func(ctx context.Context) (any, error)) {
	go func() {
		done := false
		defer func() {
			if r := recover(); r != nil {
				m.logf("panic in %s: %v", name, r)
				if !done {
					p.Reject(string(code), fmt.Sprintf("internal error: %v", r))
				}
			}
		}()

		result, err := fn(context.Background())
		if err != nil {
			c := code
			var e *core.Error
			if errors.As(err, &e) {
				c = e.Code
			}
			done = true
			p.Reject(string(c), err.Error())
			return
		}

		b, err := json.Marshal(result)
		if err != nil {
			done = true
			p.Reject(string(code), fmt.Sprintf("encode %s result: %v", name, err))
			return
		}
		done = true
		p.Resolve(string(b))
	}()
}

// decodePayload parses a JSON object, keeping numbers as json.Number so
// integer fields are not rounded through float64.
func decodePayload(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("configuration must be a JSON object")
	}
	return raw, nil
}
