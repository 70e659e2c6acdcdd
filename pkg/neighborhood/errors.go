package neighborhood

import "errors"

// Sentinel errors of the replication fabric.
var (
	// ErrBadProfileSignature signals a replicated profile whose signature
	// does not verify; one bad record aborts the whole operation.
	ErrBadProfileSignature = errors.New("replicated profile signature does not verify")

	// ErrBatchTooLarge signals a shared profile batch above the wire cap.
	ErrBatchTooLarge = errors.New("shared profile batch too large")

	// ErrPeerRejected signals a peer that answered ErrorRejected; the
	// pairing is terminal, no retry.
	ErrPeerRejected = errors.New("peer rejected the request")

	// ErrPeerBusy signals a peer that answered ErrorBusy or
	// ErrorQuotaExceeded; the action retries with backoff.
	ErrPeerBusy = errors.New("peer is busy")

	// ErrPeerFailure signals a transport failure or an unexpected status;
	// the action retries with backoff.
	ErrPeerFailure = errors.New("peer request failed")

	// ErrConversation signals a broken conversation handshake: bad server
	// signature, challenge mismatch or version disagreement.
	ErrConversation = errors.New("conversation handshake failed")

	// ErrUnknownPeer signals a replication push from a server this one
	// never paired with.
	ErrUnknownPeer = errors.New("peer is not a known neighbor")
)
