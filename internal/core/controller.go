// Package core provides the tunnel lifecycle controller: the single API
// hosts use to initialize, permit, connect, disconnect and query a tunnel.
package core

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/wg-tunnel/internal/backend"
	"github.com/user/wg-tunnel/internal/keys"
	"github.com/user/wg-tunnel/internal/logger"
	"github.com/user/wg-tunnel/internal/permission"
	"github.com/user/wg-tunnel/internal/tunnelcfg"
)

// Controller sequences permission, validation and backend calls for one
// tunnel. Initialize, Connect and Disconnect run one at a time in arrival
// order; GetStatus and GenerateKeys never wait for them.
type Controller struct {
	session *backend.Session
	gate    *permission.Gate
	logf    logger.Logf

	// ops admits one backend-affecting operation at a time.
	ops *semaphore.Weighted

	mu       sync.RWMutex
	listener StatusListener
}

// New creates a controller over session and gate. The session should use
// gate as its PermissionChecker.
func New(session *backend.Session, gate *permission.Gate, logf logger.Logf) *Controller {
	if logf == nil {
		logf = logger.Discard
	}
	c := &Controller{
		session: session,
		gate:    gate,
		logf:    logger.WithPrefix(logf, "controller: "),
		ops:     semaphore.NewWeighted(1),
	}
	logger.SafeGo("statusWatch", c.watch)
	return c
}

// SetStatusListener sets a callback that will be called on every state change.
func (c *Controller) SetStatusListener(listener StatusListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// Initialize creates the tunnel backend. Calling it again is a no-op.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.ops.Acquire(ctx, 1); err != nil {
		return newError(CodeInit, "Initialization was not started", err)
	}
	defer c.ops.Release(1)

	if err := c.session.Initialize(ctx); err != nil {
		c.logf("initialize failed: %v", err)
		return newError(CodeInit, "Failed to initialize tunnel backend", err)
	}
	return nil
}

// RequestVPNPermission obtains the OS VPN permission, showing the consent
// UI if needed. Concurrent callers share one consent request.
func (c *Controller) RequestVPNPermission(ctx context.Context) (bool, error) {
	granted, err := c.gate.Request(ctx)
	switch {
	case err == nil:
		return granted, nil
	case errors.Is(err, permission.ErrNoForeground):
		return false, newError(CodeNoActivity, "Activity doesn't exist", err)
	case errors.Is(err, permission.ErrPermissionDenied):
		return false, newError(CodePermissionDenied, "VPN permission denied", err)
	default:
		c.logf("permission request failed: %v", err)
		return false, newError(CodePermission, "Failed to request VPN permission", err)
	}
}

// GenerateKeys returns a fresh key pair. It touches no shared state.
func (c *Controller) GenerateKeys() (keys.KeyPair, error) {
	kp, err := keys.Generate()
	if err != nil {
		return keys.KeyPair{}, newError(CodeKeygen, "Failed to generate keys", err)
	}
	return kp, nil
}

// Connect validates raw and brings the tunnel up with it. Validation
// failures never reach the backend.
func (c *Controller) Connect(ctx context.Context, raw map[string]any) error {
	if err := c.ops.Acquire(ctx, 1); err != nil {
		return newError(CodeConnect, "Connect was not started", err)
	}
	defer c.ops.Release(1)

	cfg, err := tunnelcfg.Validate(raw)
	if err != nil {
		c.logf("rejected configuration: %v", err)
		return newError(CodeConnect, "Invalid tunnel configuration", err)
	}

	if err := c.session.Activate(ctx, cfg); err != nil {
		c.logf("connect failed: %v", err)
		if errors.Is(err, backend.ErrPermissionNotGranted) {
			return newError(CodeConnect, "VPN permission not granted", err)
		}
		return newError(CodeConnect, "Failed to bring tunnel up", err)
	}
	c.logf("connected to %s", cfg.Endpoint)
	return nil
}

// Disconnect brings the tunnel down. It fails unless a Connect reached the
// backend before.
func (c *Controller) Disconnect(ctx context.Context) error {
	if err := c.ops.Acquire(ctx, 1); err != nil {
		return newError(CodeDisconnect, "Disconnect was not started", err)
	}
	defer c.ops.Release(1)

	if err := c.session.Deactivate(ctx); err != nil {
		if errors.Is(err, backend.ErrNotInitialized) {
			return newError(CodeDisconnect, "Tunnel not initialized", err)
		}
		c.logf("disconnect failed: %v", err)
		return newError(CodeDisconnect, "Failed to bring tunnel down", err)
	}
	c.logf("disconnected")
	return nil
}

// GetStatus reports the tunnel status. It never fails; a failing backend
// query is reported as the ERROR state.
func (c *Controller) GetStatus(ctx context.Context) StatusPayload {
	return statusFrom(c.session.Status(ctx))
}

// Close waits for in-flight operations and releases the backend.
func (c *Controller) Close() error {
	if err := c.ops.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.ops.Release(1)
	return c.session.Close()
}
