package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for protocol and storage operations. Protocol-level keys
// use the "iop." prefix; storage and peer keys use their own.
const (
	AttrClientAddr = "client.address"

	AttrRole              = "iop.role"
	AttrRequest           = "iop.request"
	AttrMessageID         = "iop.message_id"
	AttrConversationState = "iop.conversation_state"
	AttrStatus            = "iop.status"
	AttrIdentityID        = "iop.identity_id"

	AttrPeerID        = "peer.server_id"
	AttrPeerDirection = "peer.direction" // "neighbor" or "follower"
	AttrActionType    = "peer.action_type"
	AttrBatchSize     = "peer.batch_size"

	AttrStoreOperation = "store.operation"
	AttrImageHash      = "image.hash"
)

// Span name roots. Request spans are named "iop.<request>", peer spans
// "peer.<operation>", maintenance spans "maintenance.<job>".
const (
	SpanRequest = "iop.request"

	SpanPeerInitialization = "peer.initialization"
	SpanPeerAction         = "peer.action"
	SpanPeerSnapshot       = "peer.snapshot"

	SpanRecordRefresh = "maintenance.record_refresh"
)

// ClientAddr returns an attribute for the remote address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Role returns an attribute for the serving role.
func Role(role string) attribute.KeyValue {
	return attribute.String(AttrRole, role)
}

// Request returns an attribute for the request type name.
func Request(name string) attribute.KeyValue {
	return attribute.String(AttrRequest, name)
}

// MessageID returns an attribute for the wire message id.
func MessageID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrMessageID, int64(id))
}

// ConversationState returns an attribute for the conversation state.
func ConversationState(state string) attribute.KeyValue {
	return attribute.String(AttrConversationState, state)
}

// Status returns an attribute for the response status.
func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// IdentityID returns an attribute for an identity's network id.
func IdentityID(id []byte) attribute.KeyValue {
	return attribute.String(AttrIdentityID, fmt.Sprintf("%x", id))
}

// PeerID returns an attribute for a peer server's network id.
func PeerID(id []byte) attribute.KeyValue {
	return attribute.String(AttrPeerID, fmt.Sprintf("%x", id))
}

// PeerDirection returns an attribute distinguishing neighbor and follower
// queues.
func PeerDirection(direction string) attribute.KeyValue {
	return attribute.String(AttrPeerDirection, direction)
}

// ActionType returns an attribute for a replication action type.
func ActionType(t string) attribute.KeyValue {
	return attribute.String(AttrActionType, t)
}

// BatchSize returns an attribute for a replication batch size.
func BatchSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, n)
}

// StoreOperation returns an attribute for a persistence operation.
func StoreOperation(op string) attribute.KeyValue {
	return attribute.String(AttrStoreOperation, op)
}

// ImageHash returns an attribute for a content-addressed image.
func ImageHash(hash []byte) attribute.KeyValue {
	return attribute.String(AttrImageHash, fmt.Sprintf("%x", hash))
}

// StartRequestSpan starts a span for one protocol request.
func StartRequestSpan(ctx context.Context, role, request string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Role(role), Request(request)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "iop."+request, trace.WithAttributes(allAttrs...))
}

// StartPeerSpan starts a span for one peer replication operation.
func StartPeerSpan(ctx context.Context, operation string, peerID []byte, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{PeerID(peerID)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "peer."+operation, trace.WithAttributes(allAttrs...))
}
