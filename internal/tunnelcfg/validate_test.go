package tunnelcfg

import (
	"encoding/json"
	"errors"
	"net/netip"
	"reflect"
	"strings"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func mustKey(t *testing.T) string {
	t.Helper()
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	return k.String()
}

func validPayload(t *testing.T) map[string]any {
	t.Helper()
	return map[string]any{
		FieldClientPrivateKey: mustKey(t),
		FieldClientAddress:    "10.0.0.2/32",
		FieldServerPublicKey:  mustKey(t),
		FieldServerAddress:    "203.0.113.5",
		FieldServerPort:       51820,
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	return verr.Field
}

func TestValidateMinimalPayload(t *testing.T) {
	raw := validPayload(t)
	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if want := []netip.Prefix{netip.MustParsePrefix("0.0.0.0/0")}; !reflect.DeepEqual(cfg.AllowedIPs, want) {
		t.Errorf("AllowedIPs = %v, want %v", cfg.AllowedIPs, want)
	}
	if cfg.MTU != 0 {
		t.Errorf("MTU = %d, want unset", cfg.MTU)
	}
	if cfg.Endpoint != "203.0.113.5:51820" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Address != netip.MustParsePrefix("10.0.0.2/32") {
		t.Errorf("Address = %v", cfg.Address)
	}
	if cfg.PresharedKey != nil {
		t.Errorf("PresharedKey should be nil")
	}
	if cfg.PrivateKey.String() != raw[FieldClientPrivateKey] {
		t.Errorf("private key round trip mismatch")
	}
}

func TestValidateMissingRequiredFields(t *testing.T) {
	for _, field := range []string{
		FieldClientPrivateKey,
		FieldClientAddress,
		FieldServerPublicKey,
		FieldServerAddress,
		FieldServerPort,
	} {
		t.Run(field, func(t *testing.T) {
			raw := validPayload(t)
			delete(raw, field)
			_, err := Validate(raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := fieldOf(t, err); got != field {
				t.Errorf("error names %q, want %q", got, field)
			}
		})
	}
}

func TestValidateMTUBoundaries(t *testing.T) {
	tests := []struct {
		mtu any
		ok  bool
	}{
		{1279, false},
		{1280, true},
		{65535, true},
		{65536, false},
		{float64(1420), true},
		{1420.5, false},
		{json.Number("1400"), true},
		{"1400", false},
		{nil, true},
	}
	for _, tt := range tests {
		raw := validPayload(t)
		raw[FieldMTU] = tt.mtu
		cfg, err := Validate(raw)
		if tt.ok && err != nil {
			t.Errorf("mtu %v: unexpected error %v", tt.mtu, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("mtu %v: expected error, got cfg.MTU=%d", tt.mtu, cfg.MTU)
				continue
			}
			if got := fieldOf(t, err); got != FieldMTU {
				t.Errorf("mtu %v: error names %q", tt.mtu, got)
			}
		}
	}
}

func TestValidateMTUErrorNamesValue(t *testing.T) {
	raw := validPayload(t)
	raw[FieldMTU] = 65536
	_, err := Validate(raw)
	if err == nil || !strings.Contains(err.Error(), "65536") {
		t.Fatalf("error should name the offending value, got %v", err)
	}
}

func TestValidateAllowedIPs(t *testing.T) {
	def := []netip.Prefix{DefaultRoute}

	for name, v := range map[string]any{
		"absent": nil,
		"empty":  []any{},
		"typed":  []string{},
	} {
		raw := validPayload(t)
		if v != nil {
			raw[FieldAllowedIPs] = v
		}
		cfg, err := Validate(raw)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !reflect.DeepEqual(cfg.AllowedIPs, def) {
			t.Errorf("%s: AllowedIPs = %v, want %v", name, cfg.AllowedIPs, def)
		}
	}

	raw := validPayload(t)
	raw[FieldAllowedIPs] = []any{"10.0.0.0/8", "fd00::/64"}
	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.AllowedIPs) != 2 || cfg.AllowedIPs[1] != netip.MustParsePrefix("fd00::/64") {
		t.Errorf("AllowedIPs = %v", cfg.AllowedIPs)
	}

	for _, bad := range []any{
		[]any{"10.0.0.0/8", "not-a-cidr"},
		[]any{"10.0.0.1"},
		[]any{42},
		"0.0.0.0/0",
	} {
		raw := validPayload(t)
		raw[FieldAllowedIPs] = bad
		_, err := Validate(raw)
		if err == nil {
			t.Errorf("allowedIPs %v: expected error", bad)
			continue
		}
		if got := fieldOf(t, err); got != FieldAllowedIPs {
			t.Errorf("allowedIPs %v: error names %q", bad, got)
		}
	}
}

func TestValidateDNS(t *testing.T) {
	raw := validPayload(t)
	raw[FieldDNS] = []any{"1.1.1.1", nil, 53, "2606:4700:4700::1111"}
	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := []netip.Addr{netip.MustParseAddr("1.1.1.1"), netip.MustParseAddr("2606:4700:4700::1111")}
	if !reflect.DeepEqual(cfg.DNS, want) {
		t.Errorf("DNS = %v, want %v", cfg.DNS, want)
	}

	raw = validPayload(t)
	raw[FieldDNS] = []any{"1.1.1.1", "dns.example"}
	_, err = Validate(raw)
	if err == nil {
		t.Fatal("expected error for unparsable dns entry")
	}
	if !strings.Contains(err.Error(), "dns.example") {
		t.Errorf("error should name the entry: %v", err)
	}
}

func TestValidateKeys(t *testing.T) {
	raw := validPayload(t)
	raw[FieldClientPrivateKey] = "c2hvcnQ="
	_, err := Validate(raw)
	if got := fieldOf(t, err); got != FieldClientPrivateKey {
		t.Fatalf("error names %q", got)
	}
	if strings.Contains(err.Error(), "c2hvcnQ=") {
		t.Errorf("private key leaked into error: %v", err)
	}

	raw = validPayload(t)
	raw[FieldServerPublicKey] = "!!!"
	_, err = Validate(raw)
	if got := fieldOf(t, err); got != FieldServerPublicKey {
		t.Fatalf("error names %q", got)
	}

	raw = validPayload(t)
	psk := mustKey(t)
	raw[FieldPresharedKey] = psk
	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.PresharedKey == nil || cfg.PresharedKey.String() != psk {
		t.Errorf("PresharedKey not decoded")
	}

	raw[FieldPresharedKey] = "bogus"
	_, err = Validate(raw)
	if got := fieldOf(t, err); got != FieldPresharedKey {
		t.Fatalf("error names %q", got)
	}
}

func TestValidateRuleOrder(t *testing.T) {
	// Every field is wrong; the private key is checked first.
	raw := map[string]any{
		FieldClientPrivateKey: "x",
		FieldClientAddress:    "x",
		FieldMTU:              1,
		FieldServerPort:       0,
	}
	_, err := Validate(raw)
	if got := fieldOf(t, err); got != FieldClientPrivateKey {
		t.Fatalf("first failure names %q", got)
	}

	raw = validPayload(t)
	raw[FieldMTU] = 10
	delete(raw, FieldServerPublicKey)
	_, err = Validate(raw)
	if got := fieldOf(t, err); got != FieldMTU {
		t.Fatalf("mtu should be reported before serverPublicKey, got %q", got)
	}
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		host    string
		port    any
		want    string
		wantErr string
	}{
		{"vpn.example.com", 51820, "vpn.example.com:51820", ""},
		{"2001:db8::1", 443, "[2001:db8::1]:443", ""},
		{"203.0.113.5", float64(1), "203.0.113.5:1", ""},
		{"203.0.113.5", 0, "", FieldServerPort},
		{"203.0.113.5", 65536, "", FieldServerPort},
		{"203.0.113.5", "51820", "", FieldServerPort},
		{"bad host!", 51820, "", FieldServerAddress},
	}
	for _, tt := range tests {
		raw := validPayload(t)
		raw[FieldServerAddress] = tt.host
		raw[FieldServerPort] = tt.port
		cfg, err := Validate(raw)
		if tt.wantErr != "" {
			if err == nil {
				t.Errorf("%s:%v: expected error", tt.host, tt.port)
				continue
			}
			if got := fieldOf(t, err); got != tt.wantErr {
				t.Errorf("%s:%v: error names %q, want %q", tt.host, tt.port, got, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s:%v: %v", tt.host, tt.port, err)
			continue
		}
		if cfg.Endpoint != tt.want {
			t.Errorf("Endpoint = %q, want %q", cfg.Endpoint, tt.want)
		}
	}
}

func TestValidatePersistentKeepalive(t *testing.T) {
	raw := validPayload(t)
	raw[FieldPersistentKeepalive] = 25
	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.PersistentKeepalive != 25 {
		t.Errorf("PersistentKeepalive = %d", cfg.PersistentKeepalive)
	}

	raw[FieldPersistentKeepalive] = -1
	if _, err := Validate(raw); fieldOf(t, err) != FieldPersistentKeepalive {
		t.Errorf("negative keepalive accepted")
	}
}

func TestValidateDeterministic(t *testing.T) {
	raw := validPayload(t)
	raw[FieldDNS] = []any{"9.9.9.9"}
	raw[FieldAllowedIPs] = []any{"10.0.0.0/8"}

	first, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Validate(raw)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}

	raw[FieldMTU] = 9
	_, err1 := Validate(raw)
	_, err2 := Validate(raw)
	if err1 == nil || err1.Error() != err2.Error() {
		t.Errorf("errors differ: %v vs %v", err1, err2)
	}
}

func TestConfigStringRedactsKeys(t *testing.T) {
	raw := validPayload(t)
	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if strings.Contains(cfg.String(), raw[FieldClientPrivateKey].(string)) {
		t.Errorf("String() leaks the private key: %s", cfg.String())
	}
	if cfg.Host() != "203.0.113.5" {
		t.Errorf("Host() = %q", cfg.Host())
	}
}
