// Package backend owns the lifetime of the single tunnel registered with a
// WireGuard backend and serializes every state change sent to it.
package backend

import (
	"context"

	"github.com/user/wg-tunnel/internal/tunnelcfg"
)

// State represents the tunnel state.
type State int

const (
	StateUninitialized State = iota
	StateDown
	StateUp
	// StateError is only ever reported by a status query that failed; no
	// backend is ever in this state.
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDown:
		return "down"
	case StateUp:
		return "up"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Wire returns the host-facing name of the state.
func (s State) Wire() string {
	switch s {
	case StateUp:
		return "ACTIVE"
	case StateError:
		return "ERROR"
	default:
		return "INACTIVE"
	}
}

// Tunnel is the handle a backend knows the tunnel by.
type Tunnel interface {
	// Name identifies the tunnel (interface name) to the backend.
	Name() string

	// OnStateChange is called by the backend whenever the tunnel state
	// changes, including changes the session did not request.
	OnStateChange(State)
}

// Backend performs the actual key exchange and packet transport.
// SetState is never called concurrently for the same tunnel.
type Backend interface {
	// SetState moves tunnel to the desired state using cfg and returns the
	// state the backend ended in. On failure the returned state is the
	// backend's actual state, not the requested one.
	SetState(ctx context.Context, tunnel Tunnel, desired State, cfg *tunnelcfg.Config) (State, error)

	// GetState reports the backend's current state for tunnel.
	GetState(ctx context.Context, tunnel Tunnel) (State, error)
}

// Closer is implemented by backends that hold OS resources.
type Closer interface {
	Close() error
}

// Factory creates the backend on first initialization.
type Factory func() (Backend, error)

// PermissionChecker reports whether the OS has granted VPN permission.
// It must never prompt the user.
type PermissionChecker interface {
	Granted() (bool, error)
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func() (bool, error)

// Granted implements PermissionChecker.
func (f PermissionFunc) Granted() (bool, error) { return f() }

// StateChange represents a state change event.
type StateChange struct {
	State State
}
