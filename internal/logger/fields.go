package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so the output stays
// queryable across the IoP protocol surface, the location adapter and the
// operational HTTP endpoint.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyProtocol  = "protocol"   // Protocol surface: iop, loc, http
	KeyOperation = "operation"  // Request type name: HostingAgreement, ProfileSearch, etc.
	KeyMessageID = "message_id" // Protocol message id
	KeyStatus    = "status"     // Response status name
	KeyVersion   = "version"    // Semantic protocol version

	// ========================================================================
	// Conversation & Connection
	// ========================================================================
	KeyRole         = "role"          // Listening role: primary, non-customer, customer, sr-neighbor
	KeyState        = "state"         // Conversation state
	KeyClientIP     = "client_ip"     // Client IP address
	KeyClientPort   = "client_port"   // Client source port
	KeyConnectionID = "connection_id" // Connection identifier

	// ========================================================================
	// Identity & Profile
	// ========================================================================
	KeyIdentityID   = "identity_id"   // Hex network identifier (SHA256 of public key)
	KeyIdentityType = "identity_type" // Identity type string
	KeyProfileName  = "profile_name"  // Profile display name
	KeyProfileType  = "profile_type"  // Profile type string
	KeyPublicKey    = "public_key"    // Hex-encoded Ed25519 public key
	KeyHostedCount  = "hosted_count"  // Number of identities currently hosted

	// ========================================================================
	// Search
	// ========================================================================
	KeyNameFilter = "name_filter" // Wildcard name expression
	KeyTypeFilter = "type_filter" // Wildcard type expression
	KeyRadius     = "radius"      // Search radius in metres
	KeyLatitude   = "latitude"    // Latitude in degrees
	KeyLongitude  = "longitude"   // Longitude in degrees
	KeyMaxResults = "max_results" // Result set ceiling
	KeyMatches    = "matches"     // Number of matching profiles

	// ========================================================================
	// Neighborhood & Action Queues
	// ========================================================================
	KeyNeighborID = "neighbor_id" // Hex network identifier of the peer server
	KeyDirection  = "direction"   // Queue direction: follower, neighbor
	KeyAction     = "action"      // Queued action kind
	KeyActionID   = "action_id"   // Queued action row id
	KeyQueueLen   = "queue_len"   // Pending actions for a target
	KeyBatch      = "batch"       // Profiles in an initialization batch
	KeyFailures   = "failures"    // Consecutive delivery failures
	KeyBackoff    = "backoff"     // Current retry delay

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeySize       = "size"        // Payload size in bytes
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Image Store
	// ========================================================================
	KeyImageHash = "image_hash" // Hex SHA256 of the image bytes
	KeyStoreType = "store_type" // Store type: filesystem, s3
	KeyBucket    = "bucket"     // S3 bucket name
	KeyKey       = "key"        // Object key in cloud storage
	KeyRegion    = "region"     // Cloud region

	// ========================================================================
	// Relational Store
	// ========================================================================
	KeyDriver     = "driver"      // Database driver: sqlite, postgres
	KeySettingKey = "setting_key" // Settings table key

	// ========================================================================
	// Location Service & Content Network
	// ========================================================================
	KeyService  = "service"  // Registered service type on the location server
	KeyDistance = "distance" // Distance in metres
	KeyCID      = "cid"      // Content identifier of the published contact record
	KeySequence = "sequence" // IPNS-style record sequence number

	// ========================================================================
	// Maintenance
	// ========================================================================
	KeyJob     = "job"     // Maintenance job name
	KeyExpired = "expired" // Rows removed by an expiration pass
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Protocol returns a slog.Attr for the protocol surface (iop, loc, http)
func Protocol(proto string) slog.Attr {
	return slog.String(KeyProtocol, proto)
}

// Operation returns a slog.Attr for the request type name
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// MessageID returns a slog.Attr for a protocol message id
func MessageID(id uint32) slog.Attr {
	return slog.Any(KeyMessageID, id)
}

// Status returns a slog.Attr for a response status name
func Status(name string) slog.Attr {
	return slog.String(KeyStatus, name)
}

// Version returns a slog.Attr for a semantic protocol version
func Version(v string) slog.Attr {
	return slog.String(KeyVersion, v)
}

// Role returns a slog.Attr for the listening role
func Role(role string) slog.Attr {
	return slog.String(KeyRole, role)
}

// State returns a slog.Attr for the conversation state
func State(state string) slog.Attr {
	return slog.String(KeyState, state)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for client source port
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// ConnectionID returns a slog.Attr for connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// IdentityID returns a slog.Attr for a network identifier (formatted as hex)
func IdentityID(id []byte) slog.Attr {
	return slog.String(KeyIdentityID, fmt.Sprintf("%x", id))
}

// IdentityIDHex returns a slog.Attr for a network identifier already in hex
func IdentityIDHex(id string) slog.Attr {
	return slog.String(KeyIdentityID, id)
}

// IdentityType returns a slog.Attr for an identity type string
func IdentityType(t string) slog.Attr {
	return slog.String(KeyIdentityType, t)
}

// ProfileName returns a slog.Attr for a profile display name
func ProfileName(name string) slog.Attr {
	return slog.String(KeyProfileName, name)
}

// ProfileType returns a slog.Attr for a profile type string
func ProfileType(t string) slog.Attr {
	return slog.String(KeyProfileType, t)
}

// PublicKey returns a slog.Attr for an Ed25519 public key (formatted as hex)
func PublicKey(key []byte) slog.Attr {
	return slog.String(KeyPublicKey, fmt.Sprintf("%x", key))
}

// HostedCount returns a slog.Attr for the number of hosted identities
func HostedCount(n int64) slog.Attr {
	return slog.Int64(KeyHostedCount, n)
}

// NameFilter returns a slog.Attr for a wildcard name expression
func NameFilter(expr string) slog.Attr {
	return slog.String(KeyNameFilter, expr)
}

// TypeFilter returns a slog.Attr for a wildcard type expression
func TypeFilter(expr string) slog.Attr {
	return slog.String(KeyTypeFilter, expr)
}

// Radius returns a slog.Attr for a search radius in metres
func Radius(m uint32) slog.Attr {
	return slog.Any(KeyRadius, m)
}

// Latitude returns a slog.Attr for a latitude in degrees
func Latitude(deg float64) slog.Attr {
	return slog.Float64(KeyLatitude, deg)
}

// Longitude returns a slog.Attr for a longitude in degrees
func Longitude(deg float64) slog.Attr {
	return slog.Float64(KeyLongitude, deg)
}

// MaxResults returns a slog.Attr for a result set ceiling
func MaxResults(n uint32) slog.Attr {
	return slog.Any(KeyMaxResults, n)
}

// Matches returns a slog.Attr for the number of matching profiles
func Matches(n int) slog.Attr {
	return slog.Int(KeyMatches, n)
}

// NeighborID returns a slog.Attr for a peer server identifier (formatted as hex)
func NeighborID(id []byte) slog.Attr {
	return slog.String(KeyNeighborID, fmt.Sprintf("%x", id))
}

// Direction returns a slog.Attr for a queue direction
func Direction(d string) slog.Attr {
	return slog.String(KeyDirection, d)
}

// Action returns a slog.Attr for a queued action kind
func Action(kind string) slog.Attr {
	return slog.String(KeyAction, kind)
}

// ActionID returns a slog.Attr for a queued action row id
func ActionID(id uint64) slog.Attr {
	return slog.Uint64(KeyActionID, id)
}

// QueueLen returns a slog.Attr for pending actions on a target
func QueueLen(n int) slog.Attr {
	return slog.Int(KeyQueueLen, n)
}

// Batch returns a slog.Attr for the profile count of an initialization batch
func Batch(n int) slog.Attr {
	return slog.Int(KeyBatch, n)
}

// Failures returns a slog.Attr for consecutive delivery failures
func Failures(n int) slog.Attr {
	return slog.Int(KeyFailures, n)
}

// Backoff returns a slog.Attr for the current retry delay
func Backoff(d string) slog.Attr {
	return slog.String(KeyBackoff, d)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Size returns a slog.Attr for a payload size in bytes
func Size(n int) slog.Attr {
	return slog.Int(KeySize, n)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// ImageHash returns a slog.Attr for an image hash (formatted as hex)
func ImageHash(hash []byte) slog.Attr {
	return slog.String(KeyImageHash, fmt.Sprintf("%x", hash))
}

// StoreType returns a slog.Attr for an image store type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Bucket returns a slog.Attr for an S3 bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key in cloud storage
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for a cloud region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// Driver returns a slog.Attr for a database driver name
func Driver(name string) slog.Attr {
	return slog.String(KeyDriver, name)
}

// SettingKey returns a slog.Attr for a settings table key
func SettingKey(k string) slog.Attr {
	return slog.String(KeySettingKey, k)
}

// Service returns a slog.Attr for a registered location service type
func Service(t string) slog.Attr {
	return slog.String(KeyService, t)
}

// Distance returns a slog.Attr for a distance in metres
func Distance(m float64) slog.Attr {
	return slog.Float64(KeyDistance, m)
}

// CID returns a slog.Attr for a published contact record content id
func CID(cid string) slog.Attr {
	return slog.String(KeyCID, cid)
}

// Sequence returns a slog.Attr for a record sequence number
func Sequence(seq uint64) slog.Attr {
	return slog.Uint64(KeySequence, seq)
}

// Job returns a slog.Attr for a maintenance job name
func Job(name string) slog.Attr {
	return slog.String(KeyJob, name)
}

// Expired returns a slog.Attr for rows removed by an expiration pass
func Expired(n int64) slog.Attr {
	return slog.Int64(KeyExpired, n)
}
