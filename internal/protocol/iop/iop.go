// Package iop implements the IoP profile server wire protocol: framing,
// message types, canonical encoding and the per-connection message builder.
//
// Every frame on the wire is:
//
//	magic(1 byte, 0x0B) || length(4 bytes, little-endian) || body(protobuf)
//
// where body is an encoded Message envelope. The envelope carries a 32-bit
// message id and exactly one of four payloads: a client request, a response
// to a client request, a server-initiated request (update notification), or
// the client's response to a server-initiated request. Ids of client requests
// are chosen by the client and echoed in responses; ids of server-initiated
// requests come from the connection's Builder and live in their own
// monotonically increasing space.
//
// The message types are hand-written against protowire (see internal/
// protocol/wire) rather than protoc-generated: the schema is small and the
// canonical byte encoding matters, because profile and request signatures
// are computed over these exact bytes.
package iop

import "fmt"

const (
	// FrameMagic is the first byte of every frame.
	FrameMagic byte = 0x0B

	// FrameHeaderSize is the size of the frame header in bytes
	// (magic + 4-byte little-endian payload length).
	FrameHeaderSize = 5

	// MaxMessageSize is the maximum allowed payload size of a single frame.
	// Oversized frames terminate the connection with a protocol violation.
	MaxMessageSize = 1 << 20

	// ProtocolViolationMessageID is the well-known message id carried by
	// the ErrorProtocolViolation response a server sends before closing a
	// misbehaving connection. Violations are not tied to any request id,
	// so a reserved id is used instead.
	ProtocolViolationMessageID uint32 = 0x0BADC0DE
)

// ProtocolVersion is the semantic version of the protocol this package
// implements, in the 3-byte wire form (major, minor, patch).
var ProtocolVersion = []byte{1, 0, 0}

// Status is the result code carried by every response.
type Status uint32

// Protocol statuses. The set is exhaustive: handlers translate every internal
// error to the nearest status, and nothing else crosses the wire.
const (
	StatusOk Status = iota + 1
	StatusErrorProtocolViolation
	StatusErrorUnsupported
	StatusErrorBadRole
	StatusErrorBadConversationState
	StatusErrorInvalidSignature
	StatusErrorInvalidValue
	StatusErrorQuotaExceeded
	StatusErrorAlreadyExists
	StatusErrorNotFound
	StatusErrorUninitialized
	StatusErrorRejected
	StatusErrorBusy
	StatusErrorInternal
)

// String returns the canonical status name.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusErrorProtocolViolation:
		return "ErrorProtocolViolation"
	case StatusErrorUnsupported:
		return "ErrorUnsupported"
	case StatusErrorBadRole:
		return "ErrorBadRole"
	case StatusErrorBadConversationState:
		return "ErrorBadConversationState"
	case StatusErrorInvalidSignature:
		return "ErrorInvalidSignature"
	case StatusErrorInvalidValue:
		return "ErrorInvalidValue"
	case StatusErrorQuotaExceeded:
		return "ErrorQuotaExceeded"
	case StatusErrorAlreadyExists:
		return "ErrorAlreadyExists"
	case StatusErrorNotFound:
		return "ErrorNotFound"
	case StatusErrorUninitialized:
		return "ErrorUninitialized"
	case StatusErrorRejected:
		return "ErrorRejected"
	case StatusErrorBusy:
		return "ErrorBusy"
	case StatusErrorInternal:
		return "ErrorInternal"
	default:
		return fmt.Sprintf("Status(%d)", uint32(s))
	}
}

// IsOk reports whether the status signals success.
func (s Status) IsOk() bool {
	return s == StatusOk
}

// Transient reports whether a client may retry the identical request.
// Everything else is permanent or conversation-terminating.
func (s Status) Transient() bool {
	return s == StatusErrorBusy || s == StatusErrorInternal
}

// Role identifies one of the server's listening interfaces. Each role is a
// separate port with its own request/state matrix.
type Role uint32

const (
	// RolePrimary is the plaintext port serving only the role listing.
	RolePrimary Role = iota + 1

	// RoleNonCustomer is the TLS port for identity-scoped, non-hosting
	// queries and hosting registration.
	RoleNonCustomer

	// RoleCustomer is the TLS port on which a hosted identity checks in
	// and manages its own profile.
	RoleCustomer

	// RoleSrNeighbor is the TLS port peer servers use for neighborhood
	// initialization and profile replication.
	RoleSrNeighbor
)

// String returns the role name used in logs and configuration.
func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleNonCustomer:
		return "non-customer"
	case RoleCustomer:
		return "customer"
	case RoleSrNeighbor:
		return "sr-neighbor"
	default:
		return fmt.Sprintf("Role(%d)", uint32(r))
	}
}

// Encrypted reports whether the role's listener requires TLS.
func (r Role) Encrypted() bool {
	return r != RolePrimary
}

// VersionString formats a 3-byte wire version as "major.minor.patch".
func VersionString(v []byte) string {
	if len(v) != 3 {
		return fmt.Sprintf("invalid(%x)", v)
	}
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// ValidVersion reports whether v is a well-formed, nonzero wire version.
func ValidVersion(v []byte) bool {
	return len(v) == 3 && (v[0] != 0 || v[1] != 0 || v[2] != 0)
}

// SelectVersion picks the protocol version to answer with from the versions
// a client offered in StartConversation. The server currently speaks exactly
// one version, so selection is a membership test.
func SelectVersion(supported [][]byte) ([]byte, bool) {
	for _, v := range supported {
		if len(v) == 3 && v[0] == ProtocolVersion[0] && v[1] == ProtocolVersion[1] && v[2] == ProtocolVersion[2] {
			return ProtocolVersion, true
		}
	}
	return nil, false
}
