package tunnelcfg

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Validate builds a Config from raw. Rules are applied in a fixed order and
// the first failure is returned as a *ValidationError naming the field.
// Validate has no side effects.
func Validate(raw map[string]any) (Config, error) {
	var cfg Config
	var err error

	if cfg.PrivateKey, err = requireKey(raw, FieldClientPrivateKey, true); err != nil {
		return Config{}, err
	}

	address, ok, err := optionalString(raw, FieldClientAddress)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, missing(FieldClientAddress)
	}
	if cfg.Address, err = netip.ParsePrefix(address); err != nil {
		return Config{}, invalid(FieldClientAddress, address, "expected address/prefix-length like 10.0.0.2/32")
	}

	if cfg.DNS, err = parseDNS(raw[FieldDNS]); err != nil {
		return Config{}, err
	}

	if v, present := raw[FieldMTU]; present && v != nil {
		mtu, err := intInRange(FieldMTU, v, MinMTU, MaxMTU)
		if err != nil {
			return Config{}, err
		}
		cfg.MTU = mtu
	}

	if cfg.PeerPublicKey, err = requireKey(raw, FieldServerPublicKey, false); err != nil {
		return Config{}, err
	}

	if s, ok, err := optionalString(raw, FieldPresharedKey); err != nil {
		return Config{}, err
	} else if ok {
		psk, err := wgtypes.ParseKey(s)
		if err != nil {
			return Config{}, invalid(FieldPresharedKey, redact(s), "must be a base64-encoded 32-byte key")
		}
		cfg.PresharedKey = &psk
	}

	if v, present := raw[FieldPersistentKeepalive]; present && v != nil {
		if cfg.PersistentKeepalive, err = intInRange(FieldPersistentKeepalive, v, 0, math.MaxUint16); err != nil {
			return Config{}, err
		}
	}

	if cfg.Endpoint, err = parseEndpoint(raw); err != nil {
		return Config{}, err
	}

	if cfg.AllowedIPs, err = parseAllowedIPs(raw[FieldAllowedIPs]); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// requireKey decodes a mandatory WireGuard key. Secret keys are never
// echoed back in the error.
func requireKey(raw map[string]any, field string, secret bool) (wgtypes.Key, error) {
	s, ok, err := optionalString(raw, field)
	if err != nil {
		return wgtypes.Key{}, err
	}
	if !ok {
		return wgtypes.Key{}, missing(field)
	}
	key, err := wgtypes.ParseKey(s)
	if err != nil {
		var shown any = s
		if secret {
			shown = redact(s)
		}
		return wgtypes.Key{}, invalid(field, shown, "must be a base64-encoded 32-byte key")
	}
	return key, nil
}

// optionalString returns (value, true) for a non-empty string, ("", false)
// for an absent, nil or empty value, and an error for any other type.
func optionalString(raw map[string]any, field string) (string, bool, error) {
	v, present := raw[field]
	if !present || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, invalid(field, v, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, nil
	}
	return s, true, nil
}

func parseDNS(v any) ([]netip.Addr, error) {
	if v == nil {
		return nil, nil
	}
	entries, ok := asList(v)
	if !ok {
		return nil, invalid(FieldDNS, v, "must be a list of addresses")
	}

	var servers []netip.Addr
	for _, entry := range entries {
		s, ok := entry.(string)
		if !ok {
			// Non-string entries are tolerated and dropped.
			continue
		}
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil {
			return nil, invalid(FieldDNS, s, "not a valid IP address")
		}
		servers = append(servers, addr)
	}
	return servers, nil
}

func parseEndpoint(raw map[string]any) (string, error) {
	host, ok, err := optionalString(raw, FieldServerAddress)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", missing(FieldServerAddress)
	}

	pv, present := raw[FieldServerPort]
	if !present || pv == nil {
		return "", missing(FieldServerPort)
	}
	port, err := intInRange(FieldServerPort, pv, 1, math.MaxUint16)
	if err != nil {
		return "", err
	}

	endpoint := net.JoinHostPort(host, strconv.Itoa(port))
	if _, _, err := splitEndpoint(endpoint); err != nil {
		return "", invalid(FieldServerAddress, host, "%v", err)
	}
	return endpoint, nil
}

// splitEndpoint parses host:port, accepting IP literals and DNS names.
func splitEndpoint(endpoint string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid endpoint port %q", portStr)
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return host, uint16(port), nil
	}
	if !isHostname(host) {
		return "", 0, fmt.Errorf("not an IP address or host name")
	}
	return host, uint16(port), nil
}

func isHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	return true
}

func parseAllowedIPs(v any) ([]netip.Prefix, error) {
	if v == nil {
		return []netip.Prefix{DefaultRoute}, nil
	}
	entries, ok := asList(v)
	if !ok {
		return nil, invalid(FieldAllowedIPs, v, "must be a list of CIDR networks")
	}

	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		s, ok := entry.(string)
		if !ok {
			return nil, invalid(FieldAllowedIPs, entry, "entries must be CIDR strings")
		}
		prefix, err := netip.ParsePrefix(strings.TrimSpace(s))
		if err != nil {
			return nil, invalid(FieldAllowedIPs, s, "not a valid CIDR network")
		}
		prefixes = append(prefixes, prefix)
	}
	if len(prefixes) == 0 {
		return []netip.Prefix{DefaultRoute}, nil
	}
	return prefixes, nil
}

// asList accepts the sequence shapes produced by JSON, YAML and Go callers.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func intInRange(field string, v any, lo, hi int64) (int, error) {
	n, ok := toInt(v)
	if !ok {
		return 0, invalid(field, v, "must be an integer")
	}
	if n < lo || n > hi {
		return 0, invalid(field, v, "must be between %d and %d", lo, hi)
	}
	return int(n), nil
}

// toInt accepts any Go integer, an integral float (JSON numbers decode to
// float64) or a json.Number.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	default:
		return 0, false
	}
}

func uintToInt(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func redact(s string) string {
	return fmt.Sprintf("<redacted, %d chars>", len(s))
}
