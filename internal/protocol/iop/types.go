package iop

// Message is the envelope of every frame. Exactly one of the four payload
// fields is set:
//
//   - Request: a client-initiated request; ID chosen by the client.
//   - Response: the server's answer to a Request; ID echoes the request.
//   - ServerRequest: a server-initiated request (update notification);
//     ID allocated from the connection Builder's own id space.
//   - ServerResponse: the client's answer to a ServerRequest.
type Message struct {
	ID             uint32    // field 1
	Request        *Request  // field 2
	Response       *Response // field 3
	ServerRequest  *Request  // field 4
	ServerResponse *Response // field 5
}

// Request carries either a single (conversation-less) request or a
// conversation request.
type Request struct {
	Single       *SingleRequest       // field 1
	Conversation *ConversationRequest // field 2
}

// SingleRequest is a request served without conversation state. It carries
// its own protocol version because no version negotiation has happened yet.
type SingleRequest struct {
	Version []byte // field 1, 3-byte semver

	Ping      *PingRequest      // field 10
	ListRoles *ListRolesRequest // field 11
}

// ConversationRequest is a request bound to the connection's conversation.
// Signature is the sender's Ed25519 signature over the SHA256 digest of the
// encoded payload message (the single non-nil field below). StartConversation
// is the only payload allowed to travel unsigned.
type ConversationRequest struct {
	Signature []byte // field 1

	Start                            *StartConversationRequest                 // field 10
	VerifyIdentity                   *VerifyIdentityRequest                    // field 11
	CheckIn                          *CheckInRequest                           // field 12
	HostingAgreement                 *HostingAgreementRequest                  // field 13
	UpdateProfile                    *UpdateProfileRequest                     // field 14
	CancelHosting                    *CancelHostingRequest                     // field 15
	GetProfileInformation            *GetProfileInformationRequest             // field 16
	ProfileSearch                    *ProfileSearchRequest                     // field 17
	ProfileSearchPart                *ProfileSearchPartRequest                 // field 18
	AddRelatedIdentity               *AddRelatedIdentityRequest                // field 19
	RemoveRelatedIdentity            *RemoveRelatedIdentityRequest             // field 20
	GetIdentityRelationships         *GetIdentityRelationshipsRequest          // field 21
	StartNeighborhoodInitialization  *StartNeighborhoodInitializationRequest   // field 22
	FinishNeighborhoodInitialization *FinishNeighborhoodInitializationRequest  // field 23
	NeighborhoodSharedProfileUpdate  *NeighborhoodSharedProfileUpdateRequest   // field 24
	StopNeighborhoodUpdates          *StopNeighborhoodUpdatesRequest           // field 25

	// rawPayload preserves the payload bytes exactly as received, so
	// signature verification covers what the peer actually signed rather
	// than a re-encoding.
	rawPayload []byte
}

// Response answers a Request or ServerRequest. Status is always set;
// Details optionally names the offending value on ErrorInvalidValue.
type Response struct {
	Status  Status // field 1
	Details string // field 2

	Single       *SingleResponse       // field 3
	Conversation *ConversationResponse // field 4
}

// SingleResponse answers a SingleRequest.
type SingleResponse struct {
	Version []byte // field 1

	Ping      *PingResponse      // field 10
	ListRoles *ListRolesResponse // field 11
}

// ConversationResponse answers a ConversationRequest. Signature is the
// server's Ed25519 signature over the SHA256 digest of the encoded payload;
// for StartConversation this covers the echoed client challenge and thereby
// proves possession of the server's key.
type ConversationResponse struct {
	Signature []byte // field 1

	Start                            *StartConversationResponse                // field 10
	VerifyIdentity                   *VerifyIdentityResponse                   // field 11
	CheckIn                          *CheckInResponse                          // field 12
	HostingAgreement                 *HostingAgreementResponse                 // field 13
	UpdateProfile                    *UpdateProfileResponse                    // field 14
	CancelHosting                    *CancelHostingResponse                    // field 15
	GetProfileInformation            *GetProfileInformationResponse            // field 16
	ProfileSearch                    *ProfileSearchResponse                    // field 17
	ProfileSearchPart                *ProfileSearchPartResponse                // field 18
	AddRelatedIdentity               *AddRelatedIdentityResponse               // field 19
	RemoveRelatedIdentity            *RemoveRelatedIdentityResponse            // field 20
	GetIdentityRelationships         *GetIdentityRelationshipsResponse         // field 21
	StartNeighborhoodInitialization  *StartNeighborhoodInitializationResponse  // field 22
	FinishNeighborhoodInitialization *FinishNeighborhoodInitializationResponse // field 23
	NeighborhoodSharedProfileUpdate  *NeighborhoodSharedProfileUpdateResponse  // field 24
	StopNeighborhoodUpdates          *StopNeighborhoodUpdatesResponse          // field 25
}

// ============================================================================
// Single requests
// ============================================================================

// PingRequest checks liveness; the payload is echoed back.
type PingRequest struct {
	Payload []byte // field 1
}

// PingResponse echoes the ping payload and reports the server clock
// (unix milliseconds).
type PingResponse struct {
	Payload []byte // field 1
	Clock   uint64 // field 2
}

// ListRolesRequest asks which roles this server exposes on which ports.
type ListRolesRequest struct{}

// ListRolesResponse enumerates the server's listening roles.
type ListRolesResponse struct {
	Roles []*ServerRoleInfo // field 1
}

// ServerRoleInfo describes one listening role.
type ServerRoleInfo struct {
	Role  uint32 // field 1, Role enum value
	Port  uint32 // field 2
	IsTLS bool   // field 3
}

// ============================================================================
// Conversation setup
// ============================================================================

// StartConversationRequest opens a conversation: the client offers protocol
// versions, its public key and a 32-byte challenge for the server to sign.
type StartConversationRequest struct {
	SupportedVersions [][]byte // field 1
	PublicKey         []byte   // field 2
	ClientChallenge   []byte   // field 3
}

// StartConversationResponse completes the key/challenge exchange: the server
// picks a version, presents its public key, echoes the client challenge
// (covered by the response signature) and issues its own challenge.
type StartConversationResponse struct {
	Version         []byte // field 1
	PublicKey       []byte // field 2
	ClientChallenge []byte // field 3
	Challenge       []byte // field 4
}

// VerifyIdentityRequest authenticates the conversation identity on the
// non-customer and sr-neighbor roles by returning the server's challenge
// inside a signed body.
type VerifyIdentityRequest struct {
	Challenge []byte // field 1
}

// VerifyIdentityResponse acknowledges authentication.
type VerifyIdentityResponse struct{}

// CheckInRequest authenticates a hosted identity on the customer role.
// Checking in evicts any previous live customer connection of the identity.
type CheckInRequest struct {
	Challenge []byte // field 1
}

// CheckInResponse acknowledges the check-in.
type CheckInResponse struct{}

// ============================================================================
// Hosting lifecycle
// ============================================================================

// HostingAgreementRequest reserves a hosting slot for the conversation
// identity. The embedded public key must match the conversation's.
type HostingAgreementRequest struct {
	IdentityPublicKey []byte // field 1
	IdentityType      string // field 2
}

// HostingAgreementResponse reports when the agreement takes effect
// (unix milliseconds).
type HostingAgreementResponse struct {
	ValidFrom uint64 // field 1
}

// UpdateProfileRequest applies a field-masked profile delta. Each Set* flag
// gates the field after it. ProfileSignature is the identity's signature over
// the canonical encoding of the resulting ProfileInformation; it becomes the
// stored profile signature that peers re-verify.
type UpdateProfileRequest struct {
	SetVersion bool   // field 1
	Version    []byte // field 2

	SetName bool   // field 3
	Name    string // field 4

	SetType bool   // field 5
	Type    string // field 6

	SetLocation bool  // field 7
	Latitude    int32 // field 8, degrees * 1e6
	Longitude   int32 // field 9, degrees * 1e6

	SetExtraData bool   // field 10
	ExtraData    string // field 11

	SetProfileImage  bool   // field 12
	ProfileImageHash []byte // field 13, SHA256 of ProfileImage; empty clears
	ProfileImage     []byte // field 14

	SetThumbnailImage  bool   // field 15
	ThumbnailImageHash []byte // field 16
	ThumbnailImage     []byte // field 17

	NoPropagation bool // field 18

	ProfileSignature []byte // field 19
}

// UpdateProfileResponse acknowledges the update.
type UpdateProfileResponse struct{}

// CancelHostingRequest terminates the hosting agreement of the checked-in
// identity. NewHostingServerNetworkID optionally records where the identity
// moved, for redirects.
type CancelHostingRequest struct {
	NewHostingServerNetworkID []byte // field 1
}

// CancelHostingResponse acknowledges the cancellation.
type CancelHostingResponse struct{}

// GetProfileInformationRequest fetches the signed profile of an identity
// hosted on this server, optionally with its image payloads.
type GetProfileInformationRequest struct {
	IdentityNetworkID     []byte // field 1
	IncludeProfileImage   bool   // field 2
	IncludeThumbnailImage bool   // field 3
}

// GetProfileInformationResponse returns the signed profile. For a cancelled
// identity that moved, IsHosted is false and HostingServerNetworkID points
// at the new host.
type GetProfileInformationResponse struct {
	IsHosted               bool           // field 1
	IsOnline               bool           // field 2
	HostingServerNetworkID []byte         // field 3
	Profile                *SignedProfile // field 4
	ProfileImage           []byte         // field 5
	ThumbnailImage         []byte         // field 6
}

// ============================================================================
// Profiles
// ============================================================================

// ProfileInformation is the canonical signed form of a profile. Its Marshal
// output is the byte sequence profile signatures cover, so field order and
// encoding here are part of the protocol.
type ProfileInformation struct {
	Version            []byte // field 1, 3-byte semver
	PublicKey          []byte // field 2
	Name               string // field 3, ≤64 bytes UTF-8
	Type               string // field 4, ≤64 bytes
	Latitude           int32  // field 5, degrees * 1e6
	Longitude          int32  // field 6, degrees * 1e6
	ExtraData          string // field 7, ≤200 bytes
	ProfileImageHash   []byte // field 8, SHA256 or empty
	ThumbnailImageHash []byte // field 9, SHA256 or empty
}

// SignedProfile couples a profile with its identity's signature over the
// profile's canonical encoding.
type SignedProfile struct {
	Profile   *ProfileInformation // field 1
	Signature []byte              // field 2
}

// ============================================================================
// Search
// ============================================================================

// ProfileSearchRequest runs a combined local + neighbor profile search.
// Empty filter strings match everything; Radius 0 disables the location
// filter.
type ProfileSearchRequest struct {
	IncludeHostedOnly      bool   // field 1
	IncludeThumbnailImages bool   // field 2
	MaxResponseRecordCount uint32 // field 3, ≤100
	MaxTotalRecordCount    uint32 // field 4, ≤1000
	Type                   string // field 5, wildcard expression
	Name                   string // field 6, wildcard expression
	Latitude               int32  // field 7
	Longitude              int32  // field 8
	Radius                 uint32 // field 9, metres
	ExtraData              string // field 10, regular expression
}

// ProfileSearchResponse returns the first page of results. When more than
// MaxResponseRecordCount profiles matched, ContinuationToken addresses the
// server-side result set for ProfileSearchPart follow-ups.
type ProfileSearchResponse struct {
	TotalRecordCount       uint32          // field 1
	MaxResponseRecordCount uint32          // field 2
	Results                []*SearchResult // field 3
	ContinuationToken      []byte          // field 4
}

// SearchResult is one search hit: a signed profile plus where it lives.
type SearchResult struct {
	IsHosted               bool           // field 1
	HostingServerNetworkID []byte         // field 2, owner when not hosted here
	Profile                *SignedProfile // field 3
	ThumbnailImage         []byte         // field 4
}

// ProfileSearchPartRequest fetches a slice of a previous search's cached
// result set.
type ProfileSearchPartRequest struct {
	ContinuationToken []byte // field 1
	RecordIndex       uint32 // field 2
	RecordCount       uint32 // field 3
}

// ProfileSearchPartResponse returns the requested result slice.
type ProfileSearchPartResponse struct {
	RecordIndex uint32          // field 1
	Results     []*SearchResult // field 2
}

// ============================================================================
// Relationship cards
// ============================================================================

// RelationshipCard asserts a typed relationship between an issuer and a
// recipient identity over a validity window. CardID is the SHA256 digest of
// the card's canonical encoding with CardID itself left empty.
type RelationshipCard struct {
	CardID             []byte // field 1
	Version            []byte // field 2
	IssuerPublicKey    []byte // field 3
	RecipientPublicKey []byte // field 4
	Type               string // field 5
	ValidFrom          uint64 // field 6, unix milliseconds
	ValidTo            uint64 // field 7
}

// AddRelatedIdentityRequest applies a relationship card to the checked-in
// identity under an application-chosen id. The conversation signature doubles
// as the recipient's signature of record.
type AddRelatedIdentityRequest struct {
	ApplicationID   []byte            // field 1
	Card            *RelationshipCard // field 2
	IssuerSignature []byte            // field 3
}

// AddRelatedIdentityResponse acknowledges the card.
type AddRelatedIdentityResponse struct{}

// RemoveRelatedIdentityRequest removes a previously applied card.
type RemoveRelatedIdentityRequest struct {
	ApplicationID []byte // field 1
}

// RemoveRelatedIdentityResponse acknowledges the removal.
type RemoveRelatedIdentityResponse struct{}

// GetIdentityRelationshipsRequest queries the relationship cards applied to
// an identity, optionally filtered by type or issuer.
type GetIdentityRelationshipsRequest struct {
	IdentityNetworkID []byte // field 1
	IncludeInvalid    bool   // field 2
	Type              string // field 3, wildcard expression
	IssuerNetworkID   []byte // field 4
}

// GetIdentityRelationshipsResponse lists the matching relations.
type GetIdentityRelationshipsResponse struct {
	Relations []*IdentityRelation // field 1
}

// IdentityRelation is one stored relationship card with both signatures.
type IdentityRelation struct {
	ApplicationID      []byte            // field 1
	Card               *RelationshipCard // field 2
	IssuerSignature    []byte            // field 3
	RecipientSignature []byte            // field 4
}

// ============================================================================
// Neighborhood replication
// ============================================================================

// StartNeighborhoodInitializationRequest asks a neighbor to stream its
// hosted profile set. The requester announces its own ports so the neighbor
// can register it as a follower.
type StartNeighborhoodInitializationRequest struct {
	PrimaryPort    uint32 // field 1
	SrNeighborPort uint32 // field 2
	Latitude       int32  // field 3
	Longitude      int32  // field 4
}

// StartNeighborhoodInitializationResponse accepts the initialization.
type StartNeighborhoodInitializationResponse struct{}

// FinishNeighborhoodInitializationRequest closes the stream; the receiver
// commits the transferred profiles atomically.
type FinishNeighborhoodInitializationRequest struct{}

// FinishNeighborhoodInitializationResponse acknowledges the commit.
type FinishNeighborhoodInitializationResponse struct{}

// NeighborhoodSharedProfileUpdateRequest carries a batch of profile updates,
// both during initialization (add items only, ≤1000 per batch) and for
// incremental replication afterwards.
type NeighborhoodSharedProfileUpdateRequest struct {
	Items []*SharedProfileUpdateItem // field 1
}

// NeighborhoodSharedProfileUpdateResponse acknowledges a batch.
type NeighborhoodSharedProfileUpdateResponse struct{}

// SharedProfileUpdateItem is one replication operation; exactly one field
// is set.
type SharedProfileUpdateItem struct {
	Add     *SharedProfileAddItem        // field 1
	Change  *SharedProfileChangeItem     // field 2
	Delete  *SharedProfileDeleteItem     // field 3
	Refresh *SharedProfileRefreshAllItem // field 4
}

// SharedProfileAddItem replicates a newly initialized profile.
type SharedProfileAddItem struct {
	Profile *SignedProfile // field 1
}

// SharedProfileChangeItem replicates a profile update.
type SharedProfileChangeItem struct {
	Profile *SignedProfile // field 1
}

// SharedProfileDeleteItem replicates a profile removal.
type SharedProfileDeleteItem struct {
	IdentityNetworkID []byte // field 1
}

// SharedProfileRefreshAllItem renews the follower's lease on the sender's
// full hosted identity set.
type SharedProfileRefreshAllItem struct {
	IdentityNetworkIDs [][]byte // field 1
}

// StopNeighborhoodUpdatesRequest tells a neighbor to drop the sender from
// its follower set.
type StopNeighborhoodUpdatesRequest struct{}

// StopNeighborhoodUpdatesResponse acknowledges the removal.
type StopNeighborhoodUpdatesResponse struct{}
