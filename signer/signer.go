// Package signer implements the SignerProvider capability of spec.md §9:
// sign an opaque message with an already-derived address key. Used for
// (a) the T&C message before registration and (b) the donation payload
// (spec.md §4.8).
//
// Key material itself is out of scope (spec.md §1): Provider wraps a
// key handle the caller already holds. Signing uses btcsuite/btcd's
// secp256k1 ECDSA implementation, the teacher's own wallet/address
// signing dependency, rather than golang.org/x/crypto/nacl/sign (not in
// the teacher's tree) or a hand-rolled scheme.
package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
)

// Provider is the capability injected into the registration and
// donation flows.
type Provider interface {
	// Sign returns a hex-encoded signature over message, suitable for
	// the Mine API's {signature} path segments.
	Sign(message []byte) (signature string, err error)

	// PublicKey returns the hex-encoded compressed public key
	// corresponding to this signer's key, for POST /register/....
	PublicKey() string
}

// ECDSASigner signs with a secp256k1 private key via btcec.
type ECDSASigner struct {
	priv *btcec.PrivateKey
}

// NewECDSASigner wraps an already-derived secp256k1 private key.
func NewECDSASigner(priv *btcec.PrivateKey) *ECDSASigner {
	return &ECDSASigner{priv: priv}
}

// NewECDSASignerFromHex parses a hex-encoded secp256k1 private key, the
// key-handle shape a worker's config would carry (spec.md §1: key
// generation itself is out of scope, only the signing contract).
func NewECDSASignerFromHex(hexKey string) (*ECDSASigner, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: decode key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), raw)
	return &ECDSASigner{priv: priv}, nil
}

func (s *ECDSASigner) Sign(message []byte) (string, error) {
	digest := sha256.Sum256(message)
	sig, err := s.priv.Sign(digest[:])
	if err != nil {
		return "", fmt.Errorf("signer: sign: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

func (s *ECDSASigner) PublicKey() string {
	return hex.EncodeToString(s.priv.PubKey().SerializeCompressed())
}

var _ Provider = (*ECDSASigner)(nil)
