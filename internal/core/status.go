package core

import "github.com/user/wg-tunnel/internal/backend"

// StatusPayload is the tunnel status reported to hosts.
type StatusPayload struct {
	IsConnected bool   `json:"isConnected"`
	TunnelState string `json:"tunnelState"`
	Error       string `json:"error,omitempty"`
}

// StatusListener is a callback invoked when the tunnel state changes.
type StatusListener func(status StatusPayload)

func statusFrom(st backend.Status) StatusPayload {
	return StatusPayload{
		IsConnected: st.IsConnected(),
		TunnelState: st.State.Wire(),
		Error:       st.Error,
	}
}

// watch forwards session state changes to the status listener until the
// session is closed.
func (c *Controller) watch() {
	for change := range c.session.StateChanges() {
		c.broadcastStatus(statusFrom(backend.Status{State: change.State}))
	}
}

func (c *Controller) broadcastStatus(status StatusPayload) {
	c.mu.RLock()
	listener := c.listener
	c.mu.RUnlock()
	if listener != nil {
		listener(status)
	}
}
