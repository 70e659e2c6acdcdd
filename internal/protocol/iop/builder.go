package iop

import (
	"crypto/ed25519"
	"sync/atomic"
	"time"

	"github.com/iop-labs/profiled/pkg/identity"
)

// Builder constructs outgoing messages for one connection.
//
// Client-initiated requests echo the client's message id; server-initiated
// requests (update notifications) draw ids from the builder's own
// monotonically increasing space. A builder is safe for concurrent use.
type Builder struct {
	nextID atomic.Uint32
}

// NewBuilder returns a builder whose server-initiated id space starts at 1.
func NewBuilder() *Builder {
	return &Builder{}
}

// NextID allocates the next server-initiated message id.
func (b *Builder) NextID() uint32 {
	return b.nextID.Add(1)
}

// ResponseMessage builds a response message echoing the request's id.
func ResponseMessage(requestID uint32, status Status, resp *Response) *Message {
	if resp == nil {
		resp = &Response{}
	}
	resp.Status = status
	return &Message{ID: requestID, Response: resp}
}

// OkResponse builds a successful conversation response, signing the payload
// with the server key. StartConversation responses prove key possession this
// way; on every other payload the signature lets clients detect tampering.
func OkResponse(requestID uint32, priv ed25519.PrivateKey, conv *ConversationResponse) *Message {
	conv.Signature = identity.SignPayload(priv, conv.PayloadBytes())
	return &Message{
		ID:       requestID,
		Response: &Response{Status: StatusOk, Conversation: conv},
	}
}

// ErrorResponse builds a bare error response with no payload.
func ErrorResponse(requestID uint32, status Status) *Message {
	return &Message{ID: requestID, Response: &Response{Status: status}}
}

// InvalidValueResponse builds an ErrorInvalidValue response naming the
// offending field.
func InvalidValueResponse(requestID uint32, details string) *Message {
	return &Message{
		ID:       requestID,
		Response: &Response{Status: StatusErrorInvalidValue, Details: details},
	}
}

// ProtocolViolationResponse builds the terminal response sent before closing
// a misbehaving connection. Violations are not tied to a request, so the
// message carries the reserved violation id.
func ProtocolViolationResponse() *Message {
	return &Message{
		ID:       ProtocolViolationMessageID,
		Response: &Response{Status: StatusErrorProtocolViolation},
	}
}

// SingleOkResponse builds a successful single (conversation-less) response.
func SingleOkResponse(requestID uint32, single *SingleResponse) *Message {
	single.Version = ProtocolVersion
	return &Message{
		ID:       requestID,
		Response: &Response{Status: StatusOk, Single: single},
	}
}

// PongResponse answers a ping, echoing the payload and reporting the server
// clock in unix milliseconds.
func PongResponse(requestID uint32, payload []byte) *Message {
	return SingleOkResponse(requestID, &SingleResponse{
		Ping: &PingResponse{Payload: payload, Clock: uint64(time.Now().UnixMilli())},
	})
}

// SignedRequest builds a signed conversation request message with the given
// id. Used by the neighborhood client and server-initiated update pushes.
func SignedRequest(id uint32, priv ed25519.PrivateKey, conv *ConversationRequest) *Message {
	conv.Signature = identity.SignPayload(priv, conv.PayloadBytes())
	return &Message{ID: id, Request: &Request{Conversation: conv}}
}

// ServerRequest builds a signed server-initiated request with an id from the
// builder's own space.
func (b *Builder) ServerRequest(priv ed25519.PrivateKey, conv *ConversationRequest) *Message {
	conv.Signature = identity.SignPayload(priv, conv.PayloadBytes())
	return &Message{ID: b.NextID(), ServerRequest: &Request{Conversation: conv}}
}

// VerifyRequestSignature checks a conversation request's signature against
// the sender's public key. The covered bytes are the payload exactly as
// received.
func VerifyRequestSignature(pub ed25519.PublicKey, req *ConversationRequest) bool {
	return identity.VerifyPayload(pub, req.PayloadBytes(), req.Signature)
}
