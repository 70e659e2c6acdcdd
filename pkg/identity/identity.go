// Package identity implements the cryptographic identity primitives of the
// IoP network: Ed25519 key pairs, SHA256-derived network identifiers and the
// signing scheme used by every authenticated protocol request.
//
// A network identifier is the SHA256 digest of an Ed25519 public key. Every
// participant (hosted identity, peer server, this server itself) is addressed
// by an identifier of this shape, so the type is shared across the whole
// codebase.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// NetworkIDSize is the length of a network identifier in bytes.
	NetworkIDSize = sha256.Size

	// PublicKeySize is the length of an Ed25519 public key in bytes.
	PublicKeySize = ed25519.PublicKeySize

	// PrivateKeySize is the length of an Ed25519 private key in bytes.
	PrivateKeySize = ed25519.PrivateKeySize

	// SignatureSize is the length of an Ed25519 signature in bytes.
	SignatureSize = ed25519.SignatureSize
)

// NetworkID is the 32-byte identifier of a network participant,
// computed as SHA256 of the participant's Ed25519 public key.
type NetworkID [NetworkIDSize]byte

// FromPublicKey derives the network identifier of a public key.
func FromPublicKey(pub ed25519.PublicKey) NetworkID {
	return sha256.Sum256(pub)
}

// NetworkIDFromBytes converts a raw 32-byte slice into a NetworkID.
// Returns an error if the slice has the wrong length.
func NetworkIDFromBytes(b []byte) (NetworkID, error) {
	var id NetworkID
	if len(b) != NetworkIDSize {
		return id, fmt.Errorf("network id must be %d bytes, got %d", NetworkIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseNetworkID decodes a hex-encoded network identifier.
func ParseNetworkID(s string) (NetworkID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NetworkID{}, fmt.Errorf("invalid network id %q: %w", s, err)
	}
	return NetworkIDFromBytes(b)
}

// Bytes returns the identifier as a byte slice.
func (id NetworkID) Bytes() []byte {
	return id[:]
}

// Hex returns the lowercase hex encoding of the identifier.
func (id NetworkID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer and returns the hex encoding.
func (id NetworkID) String() string {
	return id.Hex()
}

// IsZero reports whether the identifier is all zeroes.
func (id NetworkID) IsZero() bool {
	return id == NetworkID{}
}

// Equal reports whether two identifiers are the same.
func (id NetworkID) Equal(other NetworkID) bool {
	return id == other
}

// KeyPair holds an Ed25519 key pair together with its derived
// network identifier.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh random Ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// KeyPairFromPrivateKey rebuilds a key pair from a stored private key.
func KeyPairFromPrivateKey(priv ed25519.PrivateKey) (*KeyPair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("private key does not carry an ed25519 public key")
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// NetworkID returns the identifier derived from the public key.
func (kp *KeyPair) NetworkID() NetworkID {
	return FromPublicKey(kp.PublicKey)
}

// Sign signs the SHA256 digest of payload with the private key.
// This is the canonical signing scheme of the wire protocol: signatures
// always cover the digest of the serialized message body, never the raw
// bytes themselves.
func (kp *KeyPair) Sign(payload []byte) []byte {
	return SignPayload(kp.PrivateKey, payload)
}

// SignPayload signs the SHA256 digest of payload.
func SignPayload(priv ed25519.PrivateKey, payload []byte) []byte {
	digest := sha256.Sum256(payload)
	return ed25519.Sign(priv, digest[:])
}

// VerifyPayload reports whether signature is a valid Ed25519 signature of
// the SHA256 digest of payload under the given public key. Malformed keys
// or signatures verify as false, never panic.
func VerifyPayload(pub ed25519.PublicKey, payload, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	digest := sha256.Sum256(payload)
	return ed25519.Verify(pub, digest[:], signature)
}

// VerifyRaw reports whether signature is a valid Ed25519 signature over the
// raw bytes of data (no digest step). Used for challenge verification where
// the challenge itself is already a fixed-size random value.
func VerifyRaw(pub ed25519.PublicKey, data, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, signature)
}

// SignRaw signs the raw bytes of data (no digest step).
func SignRaw(priv ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(priv, data)
}

// PublicKeysEqual compares two public keys in constant-structure form.
func PublicKeysEqual(a, b ed25519.PublicKey) bool {
	return bytes.Equal(a, b)
}
