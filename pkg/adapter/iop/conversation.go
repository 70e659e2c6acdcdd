package iop

import (
	"crypto/ed25519"

	"github.com/iop-labs/profiled/pkg/identity"
)

// conversationState is the per-connection authentication state. Transitions
// only ever move forward: Fresh → Started → one of the authenticated states,
// depending on the role.
type conversationState int

const (
	// stateFresh allows only Ping, ListRoles and StartConversation.
	stateFresh conversationState = iota

	// stateStarted holds after the key/challenge exchange; the client has
	// not yet proven possession of its key.
	stateStarted

	// stateVerifiedNonCustomer grants identity-scoped queries and hosting
	// registration on the non-customer role.
	stateVerifiedNonCustomer

	// stateCheckedInCustomer grants profile management to the hosted
	// identity that checked in on the customer role.
	stateCheckedInCustomer

	// stateVerifiedNeighbor grants replication requests on the sr-neighbor
	// role.
	stateVerifiedNeighbor
)

func (s conversationState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateStarted:
		return "started"
	case stateVerifiedNonCustomer:
		return "verified-non-customer"
	case stateCheckedInCustomer:
		return "checked-in-customer"
	case stateVerifiedNeighbor:
		return "verified-neighbor"
	default:
		return "unknown"
	}
}

// authenticated reports whether the client has proven possession of its key;
// the idle read timeout is relaxed once it has.
func (s conversationState) authenticated() bool {
	return s >= stateVerifiedNonCustomer
}

// conversation is the authentication state of one connection. It is owned by
// the connection's serve goroutine and never shared.
type conversation struct {
	state conversationState

	// clientPub and clientID are set by StartConversation.
	clientPub ed25519.PublicKey
	clientID  identity.NetworkID

	// serverChallenge is what VerifyIdentity/CheckIn must echo inside a
	// signed body.
	serverChallenge []byte

	version []byte
}
