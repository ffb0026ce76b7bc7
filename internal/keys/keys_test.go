package keys

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestGenerateDistinctPairs(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.PrivateKey == b.PrivateKey || a.PublicKey == b.PublicKey {
		t.Fatalf("two calls returned the same key material")
	}

	for _, s := range []string{a.PrivateKey, a.PublicKey, b.PrivateKey, b.PublicKey} {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			t.Fatalf("%q is not base64: %v", s, err)
		}
		if len(raw) != 32 {
			t.Fatalf("%q decodes to %d bytes", s, len(raw))
		}
	}
}

func TestGeneratePublicMatchesPrivate(t *testing.T) {
	pair, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pub, err := PublicKey(pair.PrivateKey)
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if pub != pair.PublicKey {
		t.Errorf("derived %s, generated %s", pub, pair.PublicKey)
	}
}

func TestGenerateFromIsClamped(t *testing.T) {
	pair, err := GenerateFrom(bytes.NewReader(bytes.Repeat([]byte{0xff}, 32)))
	if err != nil {
		t.Fatalf("GenerateFrom: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(pair.PrivateKey)
	if raw[0]&7 != 0 || raw[31]&128 != 0 || raw[31]&64 == 0 {
		t.Errorf("private key not clamped: %x", raw)
	}
}

func TestGenerateFromShortRead(t *testing.T) {
	if _, err := GenerateFrom(bytes.NewReader(make([]byte, 8))); err == nil {
		t.Fatal("expected error on short entropy source")
	}
}

func TestPublicKeyInvalid(t *testing.T) {
	_, err := PublicKey("not-a-key")
	if !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("got %v, want ErrInvalidPrivateKey", err)
	}
}
