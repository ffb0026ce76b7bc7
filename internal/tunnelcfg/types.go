// Package tunnelcfg turns an untyped tunnel payload into a validated,
// immutable tunnel descriptor.
package tunnelcfg

import (
	"fmt"
	"net/netip"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Payload field names. They are part of the host contract and must not be
// renamed.
const (
	FieldClientPrivateKey    = "clientPrivateKey"
	FieldClientAddress       = "clientAddress"
	FieldDNS                 = "dns"
	FieldMTU                 = "mtu"
	FieldServerPublicKey     = "serverPublicKey"
	FieldPresharedKey        = "presharedKey"
	FieldPersistentKeepalive = "persistentKeepalive"
	FieldServerAddress       = "serverAddress"
	FieldServerPort          = "serverPort"
	FieldAllowedIPs          = "allowedIPs"
)

const (
	MinMTU = 1280
	MaxMTU = 65535
)

// DefaultRoute is the allowed network used when the payload names none.
var DefaultRoute = netip.MustParsePrefix("0.0.0.0/0")

// Config is a validated tunnel descriptor. Only Validate builds one, so a
// Config in hand always satisfies every field rule.
type Config struct {
	PrivateKey          wgtypes.Key
	Address             netip.Prefix
	DNS                 []netip.Addr
	MTU                 int // 0 when unset
	PeerPublicKey       wgtypes.Key
	PresharedKey        *wgtypes.Key
	PersistentKeepalive int // seconds, 0 disables
	Endpoint            string
	AllowedIPs          []netip.Prefix
}

// PublicKey returns the public half of the client key.
func (c *Config) PublicKey() wgtypes.Key {
	return c.PrivateKey.PublicKey()
}

// Host returns the endpoint host without the port.
func (c *Config) Host() string {
	host, _, _ := splitEndpoint(c.Endpoint)
	return host
}

// String describes the config without exposing private key material.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "address=%s peer=%s endpoint=%s", c.Address, c.PeerPublicKey, c.Endpoint)
	if c.MTU != 0 {
		fmt.Fprintf(&b, " mtu=%d", c.MTU)
	}
	if len(c.DNS) > 0 {
		fmt.Fprintf(&b, " dns=%v", c.DNS)
	}
	if c.PresharedKey != nil {
		b.WriteString(" psk=set")
	}
	fmt.Fprintf(&b, " allowed_ips=%v", c.AllowedIPs)
	return b.String()
}

// ValidationError reports the first payload field that failed validation.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Reason, e.Value)
}

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

func invalid(field string, value any, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}
