package iop

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/iop-labs/profiled/internal/protocol/wire"
)

// Encoding is deterministic: fields are emitted in ascending field-number
// order with canonical varints, so Marshal output doubles as the canonical
// form used for signatures. Every message type encodes with proto3 presence
// rules (zero scalars omitted, set sub-messages always emitted).

// Marshal encodes the message envelope.
func (m *Message) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, m.ID)
	if m.Request != nil {
		buf = wire.AppendMessage(buf, 2, m.Request.Marshal())
	}
	if m.Response != nil {
		buf = wire.AppendMessage(buf, 3, m.Response.Marshal())
	}
	if m.ServerRequest != nil {
		buf = wire.AppendMessage(buf, 4, m.ServerRequest.Marshal())
	}
	if m.ServerResponse != nil {
		buf = wire.AppendMessage(buf, 5, m.ServerResponse.Marshal())
	}
	return buf
}

// Marshal encodes the request wrapper.
func (r *Request) Marshal() []byte {
	var buf []byte
	if r.Single != nil {
		buf = wire.AppendMessage(buf, 1, r.Single.Marshal())
	}
	if r.Conversation != nil {
		buf = wire.AppendMessage(buf, 2, r.Conversation.Marshal())
	}
	return buf
}

// Marshal encodes a single request.
func (r *SingleRequest) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.Version)
	if r.Ping != nil {
		buf = wire.AppendMessage(buf, 10, r.Ping.Marshal())
	}
	if r.ListRoles != nil {
		buf = wire.AppendMessage(buf, 11, r.ListRoles.Marshal())
	}
	return buf
}

// Marshal encodes a conversation request: signature field first, then the
// payload message under its own field number.
func (r *ConversationRequest) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.Signature)
	num, body := r.payloadField()
	if num != 0 {
		buf = wire.AppendMessage(buf, num, body)
	}
	return buf
}

// payloadField returns the field number and encoded body of the request's
// payload, or (0, nil) when no payload is set.
func (r *ConversationRequest) payloadField() (protowire.Number, []byte) {
	switch {
	case r.Start != nil:
		return 10, r.Start.Marshal()
	case r.VerifyIdentity != nil:
		return 11, r.VerifyIdentity.Marshal()
	case r.CheckIn != nil:
		return 12, r.CheckIn.Marshal()
	case r.HostingAgreement != nil:
		return 13, r.HostingAgreement.Marshal()
	case r.UpdateProfile != nil:
		return 14, r.UpdateProfile.Marshal()
	case r.CancelHosting != nil:
		return 15, r.CancelHosting.Marshal()
	case r.GetProfileInformation != nil:
		return 16, r.GetProfileInformation.Marshal()
	case r.ProfileSearch != nil:
		return 17, r.ProfileSearch.Marshal()
	case r.ProfileSearchPart != nil:
		return 18, r.ProfileSearchPart.Marshal()
	case r.AddRelatedIdentity != nil:
		return 19, r.AddRelatedIdentity.Marshal()
	case r.RemoveRelatedIdentity != nil:
		return 20, r.RemoveRelatedIdentity.Marshal()
	case r.GetIdentityRelationships != nil:
		return 21, r.GetIdentityRelationships.Marshal()
	case r.StartNeighborhoodInitialization != nil:
		return 22, r.StartNeighborhoodInitialization.Marshal()
	case r.FinishNeighborhoodInitialization != nil:
		return 23, r.FinishNeighborhoodInitialization.Marshal()
	case r.NeighborhoodSharedProfileUpdate != nil:
		return 24, r.NeighborhoodSharedProfileUpdate.Marshal()
	case r.StopNeighborhoodUpdates != nil:
		return 25, r.StopNeighborhoodUpdates.Marshal()
	default:
		return 0, nil
	}
}

// PayloadBytes returns the canonical bytes signatures cover: the payload
// exactly as received for decoded requests, or the deterministic encoding
// for locally built ones.
func (r *ConversationRequest) PayloadBytes() []byte {
	if r.rawPayload != nil {
		return r.rawPayload
	}
	_, body := r.payloadField()
	return body
}

// PayloadName returns the request type name for logging, metrics and the
// state matrix.
func (r *ConversationRequest) PayloadName() string {
	switch {
	case r.Start != nil:
		return "StartConversation"
	case r.VerifyIdentity != nil:
		return "VerifyIdentity"
	case r.CheckIn != nil:
		return "CheckIn"
	case r.HostingAgreement != nil:
		return "HostingAgreement"
	case r.UpdateProfile != nil:
		return "UpdateProfile"
	case r.CancelHosting != nil:
		return "CancelHosting"
	case r.GetProfileInformation != nil:
		return "GetProfileInformation"
	case r.ProfileSearch != nil:
		return "ProfileSearch"
	case r.ProfileSearchPart != nil:
		return "ProfileSearchPart"
	case r.AddRelatedIdentity != nil:
		return "AddRelatedIdentity"
	case r.RemoveRelatedIdentity != nil:
		return "RemoveRelatedIdentity"
	case r.GetIdentityRelationships != nil:
		return "GetIdentityRelationshipsInformation"
	case r.StartNeighborhoodInitialization != nil:
		return "StartNeighborhoodInitialization"
	case r.FinishNeighborhoodInitialization != nil:
		return "FinishNeighborhoodInitialization"
	case r.NeighborhoodSharedProfileUpdate != nil:
		return "NeighborhoodSharedProfileUpdate"
	case r.StopNeighborhoodUpdates != nil:
		return "StopNeighborhoodUpdates"
	default:
		return "Unknown"
	}
}

// Marshal encodes the response wrapper.
func (r *Response) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, uint32(r.Status))
	buf = wire.AppendString(buf, 2, r.Details)
	if r.Single != nil {
		buf = wire.AppendMessage(buf, 3, r.Single.Marshal())
	}
	if r.Conversation != nil {
		buf = wire.AppendMessage(buf, 4, r.Conversation.Marshal())
	}
	return buf
}

// Marshal encodes a single response.
func (r *SingleResponse) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.Version)
	if r.Ping != nil {
		buf = wire.AppendMessage(buf, 10, r.Ping.Marshal())
	}
	if r.ListRoles != nil {
		buf = wire.AppendMessage(buf, 11, r.ListRoles.Marshal())
	}
	return buf
}

// Marshal encodes a conversation response.
func (r *ConversationResponse) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.Signature)
	num, body := r.payloadField()
	if num != 0 {
		buf = wire.AppendMessage(buf, num, body)
	}
	return buf
}

// payloadField returns the field number and encoded body of the response's
// payload, or (0, nil) when no payload is set.
func (r *ConversationResponse) payloadField() (protowire.Number, []byte) {
	switch {
	case r.Start != nil:
		return 10, r.Start.Marshal()
	case r.VerifyIdentity != nil:
		return 11, r.VerifyIdentity.Marshal()
	case r.CheckIn != nil:
		return 12, r.CheckIn.Marshal()
	case r.HostingAgreement != nil:
		return 13, r.HostingAgreement.Marshal()
	case r.UpdateProfile != nil:
		return 14, r.UpdateProfile.Marshal()
	case r.CancelHosting != nil:
		return 15, r.CancelHosting.Marshal()
	case r.GetProfileInformation != nil:
		return 16, r.GetProfileInformation.Marshal()
	case r.ProfileSearch != nil:
		return 17, r.ProfileSearch.Marshal()
	case r.ProfileSearchPart != nil:
		return 18, r.ProfileSearchPart.Marshal()
	case r.AddRelatedIdentity != nil:
		return 19, r.AddRelatedIdentity.Marshal()
	case r.RemoveRelatedIdentity != nil:
		return 20, r.RemoveRelatedIdentity.Marshal()
	case r.GetIdentityRelationships != nil:
		return 21, r.GetIdentityRelationships.Marshal()
	case r.StartNeighborhoodInitialization != nil:
		return 22, r.StartNeighborhoodInitialization.Marshal()
	case r.FinishNeighborhoodInitialization != nil:
		return 23, r.FinishNeighborhoodInitialization.Marshal()
	case r.NeighborhoodSharedProfileUpdate != nil:
		return 24, r.NeighborhoodSharedProfileUpdate.Marshal()
	case r.StopNeighborhoodUpdates != nil:
		return 25, r.StopNeighborhoodUpdates.Marshal()
	default:
		return 0, nil
	}
}

// PayloadBytes returns the canonical bytes the response signature covers.
func (r *ConversationResponse) PayloadBytes() []byte {
	_, body := r.payloadField()
	return body
}

// ============================================================================
// Single requests
// ============================================================================

// Marshal encodes the ping request.
func (r *PingRequest) Marshal() []byte {
	return wire.AppendBytes(nil, 1, r.Payload)
}

// Marshal encodes the ping response.
func (r *PingResponse) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.Payload)
	return wire.AppendUvarint(buf, 2, r.Clock)
}

// Marshal encodes the role listing request.
func (r *ListRolesRequest) Marshal() []byte { return nil }

// Marshal encodes the role listing response.
func (r *ListRolesResponse) Marshal() []byte {
	var buf []byte
	for _, role := range r.Roles {
		buf = wire.AppendMessage(buf, 1, role.Marshal())
	}
	return buf
}

// Marshal encodes one role descriptor.
func (r *ServerRoleInfo) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, r.Role)
	buf = wire.AppendUint32(buf, 2, r.Port)
	return wire.AppendBool(buf, 3, r.IsTLS)
}

// ============================================================================
// Conversation setup
// ============================================================================

// Marshal encodes the conversation opener.
func (r *StartConversationRequest) Marshal() []byte {
	var buf []byte
	for _, v := range r.SupportedVersions {
		buf = wire.AppendBytes(buf, 1, v)
	}
	buf = wire.AppendBytes(buf, 2, r.PublicKey)
	return wire.AppendBytes(buf, 3, r.ClientChallenge)
}

// Marshal encodes the conversation opener response.
func (r *StartConversationResponse) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.Version)
	buf = wire.AppendBytes(buf, 2, r.PublicKey)
	buf = wire.AppendBytes(buf, 3, r.ClientChallenge)
	return wire.AppendBytes(buf, 4, r.Challenge)
}

// Marshal encodes the identity verification request.
func (r *VerifyIdentityRequest) Marshal() []byte {
	return wire.AppendBytes(nil, 1, r.Challenge)
}

// Marshal encodes the identity verification response.
func (r *VerifyIdentityResponse) Marshal() []byte { return nil }

// Marshal encodes the check-in request.
func (r *CheckInRequest) Marshal() []byte {
	return wire.AppendBytes(nil, 1, r.Challenge)
}

// Marshal encodes the check-in response.
func (r *CheckInResponse) Marshal() []byte { return nil }

// ============================================================================
// Hosting lifecycle
// ============================================================================

// Marshal encodes the hosting agreement request.
func (r *HostingAgreementRequest) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.IdentityPublicKey)
	return wire.AppendString(buf, 2, r.IdentityType)
}

// Marshal encodes the hosting agreement response.
func (r *HostingAgreementResponse) Marshal() []byte {
	return wire.AppendUvarint(nil, 1, r.ValidFrom)
}

// Marshal encodes the profile update request.
func (r *UpdateProfileRequest) Marshal() []byte {
	buf := wire.AppendBool(nil, 1, r.SetVersion)
	buf = wire.AppendBytes(buf, 2, r.Version)
	buf = wire.AppendBool(buf, 3, r.SetName)
	buf = wire.AppendString(buf, 4, r.Name)
	buf = wire.AppendBool(buf, 5, r.SetType)
	buf = wire.AppendString(buf, 6, r.Type)
	buf = wire.AppendBool(buf, 7, r.SetLocation)
	buf = wire.AppendSint32(buf, 8, r.Latitude)
	buf = wire.AppendSint32(buf, 9, r.Longitude)
	buf = wire.AppendBool(buf, 10, r.SetExtraData)
	buf = wire.AppendString(buf, 11, r.ExtraData)
	buf = wire.AppendBool(buf, 12, r.SetProfileImage)
	buf = wire.AppendBytes(buf, 13, r.ProfileImageHash)
	buf = wire.AppendBytes(buf, 14, r.ProfileImage)
	buf = wire.AppendBool(buf, 15, r.SetThumbnailImage)
	buf = wire.AppendBytes(buf, 16, r.ThumbnailImageHash)
	buf = wire.AppendBytes(buf, 17, r.ThumbnailImage)
	buf = wire.AppendBool(buf, 18, r.NoPropagation)
	return wire.AppendBytes(buf, 19, r.ProfileSignature)
}

// Marshal encodes the profile update response.
func (r *UpdateProfileResponse) Marshal() []byte { return nil }

// Marshal encodes the hosting cancellation request.
func (r *CancelHostingRequest) Marshal() []byte {
	return wire.AppendBytes(nil, 1, r.NewHostingServerNetworkID)
}

// Marshal encodes the hosting cancellation response.
func (r *CancelHostingResponse) Marshal() []byte { return nil }

// Marshal encodes the profile information request.
func (r *GetProfileInformationRequest) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.IdentityNetworkID)
	buf = wire.AppendBool(buf, 2, r.IncludeProfileImage)
	return wire.AppendBool(buf, 3, r.IncludeThumbnailImage)
}

// Marshal encodes the profile information response.
func (r *GetProfileInformationResponse) Marshal() []byte {
	buf := wire.AppendBool(nil, 1, r.IsHosted)
	buf = wire.AppendBool(buf, 2, r.IsOnline)
	buf = wire.AppendBytes(buf, 3, r.HostingServerNetworkID)
	if r.Profile != nil {
		buf = wire.AppendMessage(buf, 4, r.Profile.Marshal())
	}
	buf = wire.AppendBytes(buf, 5, r.ProfileImage)
	return wire.AppendBytes(buf, 6, r.ThumbnailImage)
}

// ============================================================================
// Profiles
// ============================================================================

// Marshal encodes the canonical profile form. These bytes are what profile
// signatures cover.
func (p *ProfileInformation) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, p.Version)
	buf = wire.AppendBytes(buf, 2, p.PublicKey)
	buf = wire.AppendString(buf, 3, p.Name)
	buf = wire.AppendString(buf, 4, p.Type)
	buf = wire.AppendSint32(buf, 5, p.Latitude)
	buf = wire.AppendSint32(buf, 6, p.Longitude)
	buf = wire.AppendString(buf, 7, p.ExtraData)
	buf = wire.AppendBytes(buf, 8, p.ProfileImageHash)
	return wire.AppendBytes(buf, 9, p.ThumbnailImageHash)
}

// Marshal encodes a signed profile.
func (p *SignedProfile) Marshal() []byte {
	var buf []byte
	if p.Profile != nil {
		buf = wire.AppendMessage(buf, 1, p.Profile.Marshal())
	}
	return wire.AppendBytes(buf, 2, p.Signature)
}

// ============================================================================
// Search
// ============================================================================

// Marshal encodes the search request.
func (r *ProfileSearchRequest) Marshal() []byte {
	buf := wire.AppendBool(nil, 1, r.IncludeHostedOnly)
	buf = wire.AppendBool(buf, 2, r.IncludeThumbnailImages)
	buf = wire.AppendUint32(buf, 3, r.MaxResponseRecordCount)
	buf = wire.AppendUint32(buf, 4, r.MaxTotalRecordCount)
	buf = wire.AppendString(buf, 5, r.Type)
	buf = wire.AppendString(buf, 6, r.Name)
	buf = wire.AppendSint32(buf, 7, r.Latitude)
	buf = wire.AppendSint32(buf, 8, r.Longitude)
	buf = wire.AppendUint32(buf, 9, r.Radius)
	return wire.AppendString(buf, 10, r.ExtraData)
}

// Marshal encodes the search response.
func (r *ProfileSearchResponse) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, r.TotalRecordCount)
	buf = wire.AppendUint32(buf, 2, r.MaxResponseRecordCount)
	for _, res := range r.Results {
		buf = wire.AppendMessage(buf, 3, res.Marshal())
	}
	return wire.AppendBytes(buf, 4, r.ContinuationToken)
}

// Marshal encodes one search result.
func (r *SearchResult) Marshal() []byte {
	buf := wire.AppendBool(nil, 1, r.IsHosted)
	buf = wire.AppendBytes(buf, 2, r.HostingServerNetworkID)
	if r.Profile != nil {
		buf = wire.AppendMessage(buf, 3, r.Profile.Marshal())
	}
	return wire.AppendBytes(buf, 4, r.ThumbnailImage)
}

// Marshal encodes the search continuation request.
func (r *ProfileSearchPartRequest) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.ContinuationToken)
	buf = wire.AppendUint32(buf, 2, r.RecordIndex)
	return wire.AppendUint32(buf, 3, r.RecordCount)
}

// Marshal encodes the search continuation response.
func (r *ProfileSearchPartResponse) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, r.RecordIndex)
	for _, res := range r.Results {
		buf = wire.AppendMessage(buf, 2, res.Marshal())
	}
	return buf
}

// ============================================================================
// Relationship cards
// ============================================================================

// Marshal encodes a relationship card. With CardID empty this is the
// canonical form the card id digest and issuer signature cover.
func (c *RelationshipCard) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, c.CardID)
	buf = wire.AppendBytes(buf, 2, c.Version)
	buf = wire.AppendBytes(buf, 3, c.IssuerPublicKey)
	buf = wire.AppendBytes(buf, 4, c.RecipientPublicKey)
	buf = wire.AppendString(buf, 5, c.Type)
	buf = wire.AppendUvarint(buf, 6, c.ValidFrom)
	return wire.AppendUvarint(buf, 7, c.ValidTo)
}

// Marshal encodes the card application request.
func (r *AddRelatedIdentityRequest) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.ApplicationID)
	if r.Card != nil {
		buf = wire.AppendMessage(buf, 2, r.Card.Marshal())
	}
	return wire.AppendBytes(buf, 3, r.IssuerSignature)
}

// Marshal encodes the card application response.
func (r *AddRelatedIdentityResponse) Marshal() []byte { return nil }

// Marshal encodes the card removal request.
func (r *RemoveRelatedIdentityRequest) Marshal() []byte {
	return wire.AppendBytes(nil, 1, r.ApplicationID)
}

// Marshal encodes the card removal response.
func (r *RemoveRelatedIdentityResponse) Marshal() []byte { return nil }

// Marshal encodes the relationships query.
func (r *GetIdentityRelationshipsRequest) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.IdentityNetworkID)
	buf = wire.AppendBool(buf, 2, r.IncludeInvalid)
	buf = wire.AppendString(buf, 3, r.Type)
	return wire.AppendBytes(buf, 4, r.IssuerNetworkID)
}

// Marshal encodes the relationships response.
func (r *GetIdentityRelationshipsResponse) Marshal() []byte {
	var buf []byte
	for _, rel := range r.Relations {
		buf = wire.AppendMessage(buf, 1, rel.Marshal())
	}
	return buf
}

// Marshal encodes one stored relation.
func (r *IdentityRelation) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.ApplicationID)
	if r.Card != nil {
		buf = wire.AppendMessage(buf, 2, r.Card.Marshal())
	}
	buf = wire.AppendBytes(buf, 3, r.IssuerSignature)
	return wire.AppendBytes(buf, 4, r.RecipientSignature)
}

// ============================================================================
// Neighborhood replication
// ============================================================================

// Marshal encodes the initialization opener.
func (r *StartNeighborhoodInitializationRequest) Marshal() []byte {
	buf := wire.AppendUint32(nil, 1, r.PrimaryPort)
	buf = wire.AppendUint32(buf, 2, r.SrNeighborPort)
	buf = wire.AppendSint32(buf, 3, r.Latitude)
	return wire.AppendSint32(buf, 4, r.Longitude)
}

// Marshal encodes the initialization acceptance.
func (r *StartNeighborhoodInitializationResponse) Marshal() []byte { return nil }

// Marshal encodes the initialization finish request.
func (r *FinishNeighborhoodInitializationRequest) Marshal() []byte { return nil }

// Marshal encodes the initialization finish response.
func (r *FinishNeighborhoodInitializationResponse) Marshal() []byte { return nil }

// Marshal encodes a profile update batch.
func (r *NeighborhoodSharedProfileUpdateRequest) Marshal() []byte {
	var buf []byte
	for _, item := range r.Items {
		buf = wire.AppendMessage(buf, 1, item.Marshal())
	}
	return buf
}

// Marshal encodes a batch acknowledgement.
func (r *NeighborhoodSharedProfileUpdateResponse) Marshal() []byte { return nil }

// Marshal encodes one replication item.
func (i *SharedProfileUpdateItem) Marshal() []byte {
	var buf []byte
	switch {
	case i.Add != nil:
		buf = wire.AppendMessage(buf, 1, i.Add.Marshal())
	case i.Change != nil:
		buf = wire.AppendMessage(buf, 2, i.Change.Marshal())
	case i.Delete != nil:
		buf = wire.AppendMessage(buf, 3, i.Delete.Marshal())
	case i.Refresh != nil:
		buf = wire.AppendMessage(buf, 4, i.Refresh.Marshal())
	}
	return buf
}

// Marshal encodes a profile add item.
func (i *SharedProfileAddItem) Marshal() []byte {
	var buf []byte
	if i.Profile != nil {
		buf = wire.AppendMessage(buf, 1, i.Profile.Marshal())
	}
	return buf
}

// Marshal encodes a profile change item.
func (i *SharedProfileChangeItem) Marshal() []byte {
	var buf []byte
	if i.Profile != nil {
		buf = wire.AppendMessage(buf, 1, i.Profile.Marshal())
	}
	return buf
}

// Marshal encodes a profile delete item.
func (i *SharedProfileDeleteItem) Marshal() []byte {
	return wire.AppendBytes(nil, 1, i.IdentityNetworkID)
}

// Marshal encodes a refresh item.
func (i *SharedProfileRefreshAllItem) Marshal() []byte {
	var buf []byte
	for _, id := range i.IdentityNetworkIDs {
		buf = wire.AppendBytes(buf, 1, id)
	}
	return buf
}

// Marshal encodes the follower removal request.
func (r *StopNeighborhoodUpdatesRequest) Marshal() []byte { return nil }

// Marshal encodes the follower removal response.
func (r *StopNeighborhoodUpdatesResponse) Marshal() []byte { return nil }
