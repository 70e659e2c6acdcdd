package store

import (
	"bytes"
	"crypto/ed25519"

	"github.com/iop-labs/profiled/pkg/identity"
)

// issuerMatches reports whether the SHA256-derived network id of issuerKey
// equals issuerID.
func issuerMatches(issuerKey []byte, issuerID []byte) bool {
	if len(issuerKey) != identity.PublicKeySize {
		return false
	}
	id := identity.FromPublicKey(ed25519.PublicKey(issuerKey))
	return bytes.Equal(id.Bytes(), issuerID)
}
