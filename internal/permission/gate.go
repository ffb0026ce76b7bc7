// Package permission wraps the OS VPN-consent flow into a single request
// whose asynchronous result is correlated back to every waiting caller.
package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/wg-tunnel/internal/logger"
)

var (
	// ErrNoForeground is returned when no activity can host the consent UI.
	ErrNoForeground = errors.New("no foreground activity to request VPN permission")

	// ErrPermissionDenied is returned when the user declines the consent UI.
	ErrPermissionDenied = errors.New("VPN permission denied")
)

// Result codes delivered by the platform, matching Android's Activity
// result constants.
const (
	ResultOK       = -1
	ResultCanceled = 0
)

// DefaultRequestCode tags consent requests dispatched by a Gate.
const DefaultRequestCode = 0x5647 // "VG"

// Intent is an opaque consent request produced by the platform.
type Intent any

// Activity is a foreground UI context able to show the consent dialog.
// StartForResult must not block on the user; the outcome is delivered later
// through Gate.OnActivityResult with the same request code.
type Activity interface {
	StartForResult(intent Intent, requestCode int) error
}

// Platform is the OS VPN-permission primitive.
type Platform interface {
	// Prepare returns a nil Intent when permission is already granted.
	Prepare() (Intent, error)

	// Foreground returns the activity in front, or nil if there is none.
	Foreground() Activity
}

// pending is the completion token for one dispatched consent request.
type pending struct {
	code    int
	done    chan struct{}
	granted bool
	err     error
	waiters int
}

// Gate serializes consent requests. While one request is awaiting its
// result, further callers join it and receive the same outcome.
type Gate struct {
	platform    Platform
	requestCode int
	logf        logger.Logf

	mu      sync.Mutex
	pending *pending
}

// NewGate creates a Gate over platform.
func NewGate(platform Platform, logf logger.Logf) *Gate {
	if logf == nil {
		logf = logger.Discard
	}
	return &Gate{
		platform:    platform,
		requestCode: DefaultRequestCode,
		logf:        logger.WithPrefix(logf, "permission: "),
	}
}

// RequestCode returns the code the gate tags its requests with.
func (g *Gate) RequestCode() int {
	return g.requestCode
}

// Granted re-queries the platform without prompting.
func (g *Gate) Granted() (bool, error) {
	intent, err := g.platform.Prepare()
	if err != nil {
		return false, err
	}
	return intent == nil, nil
}

// Pending reports whether a consent request is awaiting its result.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// waiting returns how many callers share the pending request.
func (g *Gate) waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return 0
	}
	return g.pending.waiters
}

// Request obtains VPN permission. It resolves true immediately when the
// platform reports permission as already granted; otherwise it dispatches
// the consent UI (or joins the request already in flight) and waits for the
// result. If ctx ends first the caller stops waiting but the request stays
// pending for the others.
func (g *Gate) Request(ctx context.Context) (bool, error) {
	g.mu.Lock()
	p := g.pending
	if p != nil {
		p.waiters++
		g.mu.Unlock()
		g.logf("joining in-flight request %d", p.code)
		return g.wait(ctx, p)
	}

	activity := g.platform.Foreground()
	if activity == nil {
		g.mu.Unlock()
		return false, ErrNoForeground
	}

	intent, err := g.platform.Prepare()
	if err != nil {
		g.mu.Unlock()
		return false, fmt.Errorf("prepare VPN permission: %w", err)
	}
	if intent == nil {
		g.mu.Unlock()
		return true, nil
	}

	p = &pending{code: g.requestCode, done: make(chan struct{}), waiters: 1}
	g.pending = p
	g.mu.Unlock()

	g.logf("dispatching consent request %d", p.code)
	if err := activity.StartForResult(intent, p.code); err != nil {
		g.resolve(p, false, fmt.Errorf("launch VPN consent: %w", err))
		<-p.done
		return p.granted, p.err
	}

	return g.wait(ctx, p)
}

func (g *Gate) wait(ctx context.Context, p *pending) (bool, error) {
	select {
	case <-p.done:
		return p.granted, p.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// OnActivityResult delivers the platform's consent result. It returns false
// when requestCode does not belong to the pending request.
func (g *Gate) OnActivityResult(requestCode, resultCode int) bool {
	g.mu.Lock()
	p := g.pending
	g.mu.Unlock()

	if p == nil || p.code != requestCode {
		g.logf("ignoring result for request %d", requestCode)
		return false
	}

	if resultCode == ResultOK {
		return g.resolve(p, true, nil)
	}
	return g.resolve(p, false, ErrPermissionDenied)
}

// resolve completes p once and returns the gate to idle.
func (g *Gate) resolve(p *pending, granted bool, err error) bool {
	g.mu.Lock()
	if g.pending != p {
		g.mu.Unlock()
		return false
	}
	g.pending = nil
	g.mu.Unlock()

	p.granted, p.err = granted, err
	close(p.done)
	g.logf("request %d resolved for %d caller(s): granted=%t", p.code, p.waiters, granted)
	return true
}
