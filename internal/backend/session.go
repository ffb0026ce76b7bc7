package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/wg-tunnel/internal/logger"
	"github.com/user/wg-tunnel/internal/tunnelcfg"
)

var (
	// ErrNotInitialized is returned when the tunnel is driven out of order,
	// e.g. deactivated before it was ever activated.
	ErrNotInitialized = errors.New("tunnel not initialized")

	// ErrPermissionNotGranted is returned by Activate when the OS has not
	// granted VPN permission. The session never prompts for it.
	ErrPermissionNotGranted = errors.New("VPN permission not granted")
)

// DefaultName is the tunnel name used when none is configured.
const DefaultName = "wg0"

// Status is a point-in-time view of the tunnel.
type Status struct {
	State State
	Error string
}

// IsConnected reports whether the tunnel is up.
func (s Status) IsConnected() bool {
	return s.State == StateUp
}

// Session owns one backend and the one tunnel registered with it. It is
// itself the Tunnel handed to the backend.
type Session struct {
	// opMu serializes Initialize, Activate, Deactivate and Close.
	opMu sync.Mutex

	mu      sync.RWMutex
	name    string
	factory Factory
	perm    PermissionChecker
	logf    logger.Logf
	backend Backend
	handle  Tunnel
	config  *tunnelcfg.Config
	state   State

	changesMu sync.Mutex
	changes   chan StateChange
	closed    bool
}

// NewSession creates a session that builds its backend with factory on
// first use and consults perm before every activation.
func NewSession(name string, factory Factory, perm PermissionChecker, logf logger.Logf) *Session {
	if name == "" {
		name = DefaultName
	}
	if logf == nil {
		logf = logger.Discard
	}
	return &Session{
		name:    name,
		factory: factory,
		perm:    perm,
		logf:    logger.WithPrefix(logf, "session["+name+"]: "),
		state:   StateUninitialized,
		changes: make(chan StateChange, 16),
	}
}

// Name implements Tunnel.
func (s *Session) Name() string {
	return s.name
}

// OnStateChange implements Tunnel. Backends call it for every transition,
// including ones the session did not ask for.
func (s *Session) OnStateChange(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != state {
		s.logf("state %s -> %s", prev, state)
	}

	s.changesMu.Lock()
	defer s.changesMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.changes <- StateChange{State: state}:
	default:
		// Channel full, drop the event
	}
}

// StateChanges returns a channel of state change notifications. It is
// closed by Close.
func (s *Session) StateChanges() <-chan StateChange {
	return s.changes
}

// State returns the last state recorded by the session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Handle returns the registered tunnel handle, or nil before the first
// activation.
func (s *Session) Handle() Tunnel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Initialize creates the backend if it does not exist yet. Calling it again
// is a no-op.
func (s *Session) Initialize(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.initializeLocked()
}

func (s *Session) initializeLocked() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		return nil
	}
	if s.factory == nil {
		return fmt.Errorf("create backend: no backend factory configured")
	}
	be, err := s.factory()
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	s.backend = be
	if s.state == StateUninitialized {
		s.state = StateDown
	}
	s.logf("backend initialized")
	return nil
}

// Activate brings the tunnel up with cfg. The backend is created if needed,
// the handle is registered on the first call and reused afterwards.
func (s *Session) Activate(ctx context.Context, cfg tunnelcfg.Config) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.initializeLocked(); err != nil {
		return err
	}

	if s.perm != nil {
		granted, err := s.perm.Granted()
		if err != nil {
			return fmt.Errorf("check VPN permission: %w", err)
		}
		if !granted {
			return ErrPermissionNotGranted
		}
	}

	s.mu.Lock()
	if s.handle == nil {
		s.handle = s
		s.logf("registered tunnel handle")
	}
	s.config = &cfg
	be, handle := s.backend, s.handle
	s.mu.Unlock()

	s.logf("activating: %s", cfg.String())
	state, err := be.SetState(ctx, handle, StateUp, &cfg)

	s.mu.Lock()
	s.state = state
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		s.logf("activation failed, backend reports %s: %v", state, err)
		return fmt.Errorf("backend failed to bring tunnel up (%s): %w", snapshot, err)
	}
	if state != StateUp {
		return fmt.Errorf("backend reported %s after activation (%s)", state, snapshot)
	}
	return nil
}

// Deactivate brings the tunnel down. It requires a prior Activate.
func (s *Session) Deactivate(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	be, handle, cfg := s.backend, s.handle, s.config
	snapshot := s.snapshotLocked()
	s.mu.RUnlock()

	if be == nil || handle == nil || cfg == nil {
		return fmt.Errorf("%w (%s)", ErrNotInitialized, snapshot)
	}

	s.logf("deactivating")
	state, err := be.SetState(ctx, handle, StateDown, cfg)

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("backend failed to bring tunnel down: %w", err)
	}
	return nil
}

// Status queries the backend. It never fails: a missing backend or handle
// reads as down, and a failing query is reported as StateError.
func (s *Session) Status(ctx context.Context) Status {
	s.mu.RLock()
	be, handle := s.backend, s.handle
	s.mu.RUnlock()

	if be == nil || handle == nil {
		return Status{State: StateDown}
	}

	state, err := be.GetState(ctx, handle)
	if err != nil {
		return Status{State: StateError, Error: err.Error()}
	}
	if state == StateUninitialized {
		state = StateDown
	}
	return Status{State: state}
}

// Close releases the backend and closes the state change channel. A closed
// session can be initialized again but no longer emits state changes.
func (s *Session) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	be := s.backend
	s.backend = nil
	s.handle = nil
	s.config = nil
	s.state = StateUninitialized
	s.mu.Unlock()

	var err error
	if closer, ok := be.(Closer); ok {
		err = closer.Close()
	}

	s.changesMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.changes)
	}
	s.changesMu.Unlock()

	return err
}

func (s *Session) snapshotLocked() string {
	return fmt.Sprintf("backend=%t handle=%t config=%t", s.backend != nil, s.handle != nil, s.config != nil)
}
