// Package bridge exposes the tunnel controller to a mobile host runtime
// through gomobile. Every operation is asynchronous and reports through a
// Promise; payloads cross the boundary as JSON strings.
package bridge

import (
	_ "golang.org/x/mobile/bind"
)

// Promise is implemented by the host and settled exactly once per call.
type Promise interface {
	// Resolve settles the call with a JSON result ("null" for no value).
	Resolve(result string)

	// Reject settles the call with a stable error code and a message.
	Reject(code, message string)
}

// Host is the platform side of the binding, implemented by the app.
type Host interface {
	// NeedsConsent reports whether the OS requires the VPN consent dialog
	// (VpnService.prepare returned an intent).
	NeedsConsent() (bool, error)

	// HasForeground reports whether an activity can show the dialog.
	HasForeground() bool

	// StartConsent launches the consent dialog. The result must be passed
	// to Module.OnActivityResult with the same request code.
	StartConsent(requestCode int32) error

	// OnStatusChanged receives the status JSON after every state change.
	OnStatusChanged(status string)

	// Log writes a diagnostic line to the platform log.
	Log(tag, line string)
}
