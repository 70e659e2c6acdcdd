package identity

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// Text codecs shared by the protocol surface and the CLI. Identifiers travel
// as raw bytes on the wire; these encodings are for logs, config files and
// the content-addressable network, which addresses records in base58.

// EncodeHex returns the lowercase hex encoding of b.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex decodes a hex string.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// EncodeBase58 returns the Bitcoin-alphabet base58 encoding of b.
func EncodeBase58(b []byte) string {
	return base58.Encode(b)
}

// DecodeBase58 decodes a base58 string.
func DecodeBase58(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 %q: %w", s, err)
	}
	return b, nil
}

// EncodeBase64URL returns the unpadded URL-safe base64 encoding of b.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64URL decodes an unpadded URL-safe base64 string.
func DecodeBase64URL(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64url %q: %w", s, err)
	}
	return b, nil
}
