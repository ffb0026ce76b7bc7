// Package keys generates and derives WireGuard (Curve25519) key pairs.
package keys

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// ErrInvalidPrivateKey is returned when a private key cannot be decoded.
var ErrInvalidPrivateKey = errors.New("invalid WireGuard private key")

// KeyPair is a base64-encoded WireGuard key pair. Nothing here persists it.
type KeyPair struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// Generate returns a fresh key pair read from crypto/rand.
func Generate() (KeyPair, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom builds a key pair from 32 bytes of r.
func GenerateFrom(r io.Reader) (KeyPair, error) {
	var private wgtypes.Key
	if _, err := io.ReadFull(r, private[:]); err != nil {
		return KeyPair{}, fmt.Errorf("read random bytes: %w", err)
	}
	clamp(&private)

	public, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("derive public key: %w", err)
	}
	pub, err := wgtypes.NewKey(public)
	if err != nil {
		return KeyPair{}, fmt.Errorf("derive public key: %w", err)
	}

	return KeyPair{
		PrivateKey: private.String(),
		PublicKey:  pub.String(),
	}, nil
}

// PublicKey derives the base64 public key for a base64 private key.
func PublicKey(privateKey string) (string, error) {
	key, err := wgtypes.ParseKey(privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key.PublicKey().String(), nil
}

// clamp applies the X25519 scalar clamping WireGuard expects of private keys.
func clamp(k *wgtypes.Key) {
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
}
