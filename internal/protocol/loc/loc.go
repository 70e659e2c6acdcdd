// Package loc implements the wire dialect of the external location service.
//
// The location service speaks its own length-prefixed protobuf protocol,
// unrelated to the profile protocol: frames carry a plain little-endian
// length header with no magic byte, messages are unsigned, and either side
// may initiate a request. The server pushes NeighbourhoodChanged
// notifications over the long-lived GetNeighbourNodes subscription.
package loc

// MaxMessageSize bounds one frame body. Neighborhood notifications are
// small; the cap only guards against a corrupt length header.
const MaxMessageSize = 256 * 1024

// FrameHeaderSize is the length of the frame header: a 4-byte little-endian
// body size.
const FrameHeaderSize = 4

// Status is the result code of a location-service response.
type Status uint32

// Location-service statuses.
const (
	StatusOk                Status = 1
	StatusErrorUnsupported  Status = 2
	StatusErrorInvalidValue Status = 3
	StatusErrorInternal     Status = 4
)

// IsOk reports whether the status is a success.
func (s Status) IsOk() bool { return s == StatusOk }

// ServiceType tags one registered service of a node.
type ServiceType uint32

// Service types this server registers with the location service.
const (
	ServiceTypePrimary    ServiceType = 1
	ServiceTypeSrNeighbor ServiceType = 2
)

// Message is the location-service envelope. Exactly one of Request and
// Response is set; notifications travel as server-initiated requests and are
// acknowledged like any other.
type Message struct {
	ID       uint32    // field 1
	Request  *Request  // field 2
	Response *Response // field 3
}

// Request wraps the request payloads; exactly one field is set.
type Request struct {
	RegisterService      *RegisterServiceRequest           // field 1
	DeregisterService    *DeregisterServiceRequest         // field 2
	GetNeighbourNodes    *GetNeighbourNodesRequest         // field 3
	NeighbourhoodChanged *NeighbourhoodChangedNotification // field 4, server→client
}

// Response carries a status plus an optional payload.
type Response struct {
	Status            Status                     // field 1
	Details           string                     // field 2
	GetNeighbourNodes *GetNeighbourNodesResponse // field 3
}

// GPSLocation is a position in 1e6-scaled degrees, matching the coordinate
// encoding of the profile protocol.
type GPSLocation struct {
	Latitude  int32 // field 1, sint32
	Longitude int32 // field 2, sint32
}

// ServiceInfo announces one reachable service of a node.
type ServiceInfo struct {
	Type ServiceType // field 1
	Port uint32      // field 2
}

// RegisterServiceRequest announces this node's services and position.
type RegisterServiceRequest struct {
	NodeID   []byte         // field 1, SHA256 of the node's public key
	Location *GPSLocation   // field 2
	Services []*ServiceInfo // field 3
}

// DeregisterServiceRequest withdraws this node's registration.
type DeregisterServiceRequest struct {
	NodeID []byte // field 1
}

// GetNeighbourNodesRequest fetches the current neighborhood. With
// KeepAliveAndSendUpdates the connection stays open and the service pushes
// NeighbourhoodChanged notifications as the neighborhood evolves.
type GetNeighbourNodesRequest struct {
	KeepAliveAndSendUpdates bool // field 1
}

// GetNeighbourNodesResponse returns the neighborhood at subscription time.
type GetNeighbourNodesResponse struct {
	Nodes []*NodeInfo // field 1
}

// NodeInfo is the contact record of one neighborhood node.
type NodeInfo struct {
	NodeID    []byte         // field 1
	IPAddress string         // field 2
	Location  *GPSLocation   // field 3
	Services  []*ServiceInfo // field 4
}

// ServicePort returns the advertised port of the given service type, or
// (0, false) when the node does not expose it.
func (n *NodeInfo) ServicePort(t ServiceType) (uint32, bool) {
	for _, s := range n.Services {
		if s.Type == t {
			return s.Port, true
		}
	}
	return 0, false
}

// NeighbourhoodChangedNotification carries a batch of neighborhood deltas.
type NeighbourhoodChangedNotification struct {
	Changes []*NeighbourhoodChange // field 1
}

// NeighbourhoodChange is one delta; exactly one field is set. Updated nodes
// reuse the AddedNode shape: the receiver treats both as upsert.
type NeighbourhoodChange struct {
	AddedNode     *NodeInfo // field 1
	UpdatedNode   *NodeInfo // field 2
	RemovedNodeID []byte    // field 3
}
