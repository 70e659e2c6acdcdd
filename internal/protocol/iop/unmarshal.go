package iop

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/iop-labs/profiled/internal/protocol/wire"
)

// Unmarshal decodes a message envelope. Payload bytes of conversation
// requests are retained verbatim for signature verification.
func (m *Message) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			m.ID, err = d.Uint32()
		case 2:
			m.Request = &Request{}
			err = unmarshalField(d, m.Request)
		case 3:
			m.Response = &Response{}
			err = unmarshalField(d, m.Response)
		case 4:
			m.ServerRequest = &Request{}
			err = unmarshalField(d, m.ServerRequest)
		case 5:
			m.ServerResponse = &Response{}
			err = unmarshalField(d, m.ServerResponse)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// unmarshaler is any message that decodes itself from protobuf bytes.
type unmarshaler interface {
	Unmarshal([]byte) error
}

// unmarshalField consumes an embedded message field and decodes it into dst.
func unmarshalField(d *wire.Decoder, dst unmarshaler) error {
	body, err := d.RawBytes()
	if err != nil {
		return err
	}
	return dst.Unmarshal(body)
}

// Unmarshal decodes the request wrapper.
func (r *Request) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Single = &SingleRequest{}
			err = unmarshalField(d, r.Single)
		case 2:
			r.Conversation = &ConversationRequest{}
			err = unmarshalField(d, r.Conversation)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a single request.
func (r *SingleRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Version, err = d.Bytes()
		case 10:
			r.Ping = &PingRequest{}
			err = unmarshalField(d, r.Ping)
		case 11:
			r.ListRoles = &ListRolesRequest{}
			err = unmarshalField(d, r.ListRoles)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a conversation request, preserving the payload bytes
// exactly as received so signature verification covers what the peer signed.
func (r *ConversationRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		if num == 1 {
			r.Signature, err = d.Bytes()
			if err != nil {
				return err
			}
			continue
		}
		if num < 10 || num > 25 {
			if err := d.Skip(num, typ); err != nil {
				return err
			}
			continue
		}
		body, err := d.Bytes()
		if err != nil {
			return err
		}
		if r.rawPayload != nil {
			return fmt.Errorf("conversation request carries more than one payload")
		}
		r.rawPayload = body
		if err := r.decodePayload(num, body); err != nil {
			return err
		}
	}
	return nil
}

// decodePayload decodes the payload field num into the matching request type.
func (r *ConversationRequest) decodePayload(num protowire.Number, body []byte) error {
	switch num {
	case 10:
		r.Start = &StartConversationRequest{}
		return r.Start.Unmarshal(body)
	case 11:
		r.VerifyIdentity = &VerifyIdentityRequest{}
		return r.VerifyIdentity.Unmarshal(body)
	case 12:
		r.CheckIn = &CheckInRequest{}
		return r.CheckIn.Unmarshal(body)
	case 13:
		r.HostingAgreement = &HostingAgreementRequest{}
		return r.HostingAgreement.Unmarshal(body)
	case 14:
		r.UpdateProfile = &UpdateProfileRequest{}
		return r.UpdateProfile.Unmarshal(body)
	case 15:
		r.CancelHosting = &CancelHostingRequest{}
		return r.CancelHosting.Unmarshal(body)
	case 16:
		r.GetProfileInformation = &GetProfileInformationRequest{}
		return r.GetProfileInformation.Unmarshal(body)
	case 17:
		r.ProfileSearch = &ProfileSearchRequest{}
		return r.ProfileSearch.Unmarshal(body)
	case 18:
		r.ProfileSearchPart = &ProfileSearchPartRequest{}
		return r.ProfileSearchPart.Unmarshal(body)
	case 19:
		r.AddRelatedIdentity = &AddRelatedIdentityRequest{}
		return r.AddRelatedIdentity.Unmarshal(body)
	case 20:
		r.RemoveRelatedIdentity = &RemoveRelatedIdentityRequest{}
		return r.RemoveRelatedIdentity.Unmarshal(body)
	case 21:
		r.GetIdentityRelationships = &GetIdentityRelationshipsRequest{}
		return r.GetIdentityRelationships.Unmarshal(body)
	case 22:
		r.StartNeighborhoodInitialization = &StartNeighborhoodInitializationRequest{}
		return r.StartNeighborhoodInitialization.Unmarshal(body)
	case 23:
		r.FinishNeighborhoodInitialization = &FinishNeighborhoodInitializationRequest{}
		return r.FinishNeighborhoodInitialization.Unmarshal(body)
	case 24:
		r.NeighborhoodSharedProfileUpdate = &NeighborhoodSharedProfileUpdateRequest{}
		return r.NeighborhoodSharedProfileUpdate.Unmarshal(body)
	case 25:
		r.StopNeighborhoodUpdates = &StopNeighborhoodUpdatesRequest{}
		return r.StopNeighborhoodUpdates.Unmarshal(body)
	}
	return nil
}

// Unmarshal decodes the response wrapper.
func (r *Response) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			var v uint32
			v, err = d.Uint32()
			r.Status = Status(v)
		case 2:
			r.Details, err = d.String()
		case 3:
			r.Single = &SingleResponse{}
			err = unmarshalField(d, r.Single)
		case 4:
			r.Conversation = &ConversationResponse{}
			err = unmarshalField(d, r.Conversation)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a single response.
func (r *SingleResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Version, err = d.Bytes()
		case 10:
			r.Ping = &PingResponse{}
			err = unmarshalField(d, r.Ping)
		case 11:
			r.ListRoles = &ListRolesResponse{}
			err = unmarshalField(d, r.ListRoles)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a conversation response.
func (r *ConversationResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		if num == 1 {
			r.Signature, err = d.Bytes()
			if err != nil {
				return err
			}
			continue
		}
		if num < 10 || num > 25 {
			if err := d.Skip(num, typ); err != nil {
				return err
			}
			continue
		}
		body, err := d.Bytes()
		if err != nil {
			return err
		}
		if err := r.decodePayload(num, body); err != nil {
			return err
		}
	}
	return nil
}

// decodePayload decodes the payload field num into the matching response type.
func (r *ConversationResponse) decodePayload(num protowire.Number, body []byte) error {
	switch num {
	case 10:
		r.Start = &StartConversationResponse{}
		return r.Start.Unmarshal(body)
	case 11:
		r.VerifyIdentity = &VerifyIdentityResponse{}
		return r.VerifyIdentity.Unmarshal(body)
	case 12:
		r.CheckIn = &CheckInResponse{}
		return r.CheckIn.Unmarshal(body)
	case 13:
		r.HostingAgreement = &HostingAgreementResponse{}
		return r.HostingAgreement.Unmarshal(body)
	case 14:
		r.UpdateProfile = &UpdateProfileResponse{}
		return r.UpdateProfile.Unmarshal(body)
	case 15:
		r.CancelHosting = &CancelHostingResponse{}
		return r.CancelHosting.Unmarshal(body)
	case 16:
		r.GetProfileInformation = &GetProfileInformationResponse{}
		return r.GetProfileInformation.Unmarshal(body)
	case 17:
		r.ProfileSearch = &ProfileSearchResponse{}
		return r.ProfileSearch.Unmarshal(body)
	case 18:
		r.ProfileSearchPart = &ProfileSearchPartResponse{}
		return r.ProfileSearchPart.Unmarshal(body)
	case 19:
		r.AddRelatedIdentity = &AddRelatedIdentityResponse{}
		return r.AddRelatedIdentity.Unmarshal(body)
	case 20:
		r.RemoveRelatedIdentity = &RemoveRelatedIdentityResponse{}
		return r.RemoveRelatedIdentity.Unmarshal(body)
	case 21:
		r.GetIdentityRelationships = &GetIdentityRelationshipsResponse{}
		return r.GetIdentityRelationships.Unmarshal(body)
	case 22:
		r.StartNeighborhoodInitialization = &StartNeighborhoodInitializationResponse{}
		return r.StartNeighborhoodInitialization.Unmarshal(body)
	case 23:
		r.FinishNeighborhoodInitialization = &FinishNeighborhoodInitializationResponse{}
		return r.FinishNeighborhoodInitialization.Unmarshal(body)
	case 24:
		r.NeighborhoodSharedProfileUpdate = &NeighborhoodSharedProfileUpdateResponse{}
		return r.NeighborhoodSharedProfileUpdate.Unmarshal(body)
	case 25:
		r.StopNeighborhoodUpdates = &StopNeighborhoodUpdatesResponse{}
		return r.StopNeighborhoodUpdates.Unmarshal(body)
	}
	return nil
}

// ============================================================================
// Single requests
// ============================================================================

// Unmarshal decodes the ping request.
func (r *PingRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Payload, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the ping response.
func (r *PingResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Payload, err = d.Bytes()
		case 2:
			r.Clock, err = d.Uvarint()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the role listing request.
func (r *ListRolesRequest) Unmarshal(data []byte) error {
	return skipAll(data)
}

// Unmarshal decodes the role listing response.
func (r *ListRolesResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			role := &ServerRoleInfo{}
			if err = unmarshalField(d, role); err == nil {
				r.Roles = append(r.Roles, role)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes one role descriptor.
func (r *ServerRoleInfo) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Role, err = d.Uint32()
		case 2:
			r.Port, err = d.Uint32()
		case 3:
			r.IsTLS, err = d.Bool()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// skipAll validates an empty-bodied message, tolerating unknown fields.
func skipAll(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		if err := d.Skip(num, typ); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Conversation setup
// ============================================================================

// Unmarshal decodes the conversation opener.
func (r *StartConversationRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			var v []byte
			if v, err = d.Bytes(); err == nil {
				r.SupportedVersions = append(r.SupportedVersions, v)
			}
		case 2:
			r.PublicKey, err = d.Bytes()
		case 3:
			r.ClientChallenge, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the conversation opener response.
func (r *StartConversationResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Version, err = d.Bytes()
		case 2:
			r.PublicKey, err = d.Bytes()
		case 3:
			r.ClientChallenge, err = d.Bytes()
		case 4:
			r.Challenge, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the identity verification request.
func (r *VerifyIdentityRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Challenge, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the identity verification response.
func (r *VerifyIdentityResponse) Unmarshal(data []byte) error { return skipAll(data) }

// Unmarshal decodes the check-in request.
func (r *CheckInRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Challenge, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the check-in response.
func (r *CheckInResponse) Unmarshal(data []byte) error { return skipAll(data) }

// ============================================================================
// Hosting lifecycle
// ============================================================================

// Unmarshal decodes the hosting agreement request.
func (r *HostingAgreementRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.IdentityPublicKey, err = d.Bytes()
		case 2:
			r.IdentityType, err = d.String()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the hosting agreement response.
func (r *HostingAgreementResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.ValidFrom, err = d.Uvarint()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the profile update request.
func (r *UpdateProfileRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.SetVersion, err = d.Bool()
		case 2:
			r.Version, err = d.Bytes()
		case 3:
			r.SetName, err = d.Bool()
		case 4:
			r.Name, err = d.String()
		case 5:
			r.SetType, err = d.Bool()
		case 6:
			r.Type, err = d.String()
		case 7:
			r.SetLocation, err = d.Bool()
		case 8:
			r.Latitude, err = d.Sint32()
		case 9:
			r.Longitude, err = d.Sint32()
		case 10:
			r.SetExtraData, err = d.Bool()
		case 11:
			r.ExtraData, err = d.String()
		case 12:
			r.SetProfileImage, err = d.Bool()
		case 13:
			r.ProfileImageHash, err = d.Bytes()
		case 14:
			r.ProfileImage, err = d.Bytes()
		case 15:
			r.SetThumbnailImage, err = d.Bool()
		case 16:
			r.ThumbnailImageHash, err = d.Bytes()
		case 17:
			r.ThumbnailImage, err = d.Bytes()
		case 18:
			r.NoPropagation, err = d.Bool()
		case 19:
			r.ProfileSignature, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the profile update response.
func (r *UpdateProfileResponse) Unmarshal(data []byte) error { return skipAll(data) }

// Unmarshal decodes the hosting cancellation request.
func (r *CancelHostingRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.NewHostingServerNetworkID, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the hosting cancellation response.
func (r *CancelHostingResponse) Unmarshal(data []byte) error { return skipAll(data) }

// Unmarshal decodes the profile information request.
func (r *GetProfileInformationRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.IdentityNetworkID, err = d.Bytes()
		case 2:
			r.IncludeProfileImage, err = d.Bool()
		case 3:
			r.IncludeThumbnailImage, err = d.Bool()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the profile information response.
func (r *GetProfileInformationResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.IsHosted, err = d.Bool()
		case 2:
			r.IsOnline, err = d.Bool()
		case 3:
			r.HostingServerNetworkID, err = d.Bytes()
		case 4:
			r.Profile = &SignedProfile{}
			err = unmarshalField(d, r.Profile)
		case 5:
			r.ProfileImage, err = d.Bytes()
		case 6:
			r.ThumbnailImage, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Profiles
// ============================================================================

// Unmarshal decodes the canonical profile form.
func (p *ProfileInformation) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			p.Version, err = d.Bytes()
		case 2:
			p.PublicKey, err = d.Bytes()
		case 3:
			p.Name, err = d.String()
		case 4:
			p.Type, err = d.String()
		case 5:
			p.Latitude, err = d.Sint32()
		case 6:
			p.Longitude, err = d.Sint32()
		case 7:
			p.ExtraData, err = d.String()
		case 8:
			p.ProfileImageHash, err = d.Bytes()
		case 9:
			p.ThumbnailImageHash, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a signed profile.
func (p *SignedProfile) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			p.Profile = &ProfileInformation{}
			err = unmarshalField(d, p.Profile)
		case 2:
			p.Signature, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Search
// ============================================================================

// Unmarshal decodes the search request.
func (r *ProfileSearchRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.IncludeHostedOnly, err = d.Bool()
		case 2:
			r.IncludeThumbnailImages, err = d.Bool()
		case 3:
			r.MaxResponseRecordCount, err = d.Uint32()
		case 4:
			r.MaxTotalRecordCount, err = d.Uint32()
		case 5:
			r.Type, err = d.String()
		case 6:
			r.Name, err = d.String()
		case 7:
			r.Latitude, err = d.Sint32()
		case 8:
			r.Longitude, err = d.Sint32()
		case 9:
			r.Radius, err = d.Uint32()
		case 10:
			r.ExtraData, err = d.String()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the search response.
func (r *ProfileSearchResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.TotalRecordCount, err = d.Uint32()
		case 2:
			r.MaxResponseRecordCount, err = d.Uint32()
		case 3:
			res := &SearchResult{}
			if err = unmarshalField(d, res); err == nil {
				r.Results = append(r.Results, res)
			}
		case 4:
			r.ContinuationToken, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes one search result.
func (r *SearchResult) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.IsHosted, err = d.Bool()
		case 2:
			r.HostingServerNetworkID, err = d.Bytes()
		case 3:
			r.Profile = &SignedProfile{}
			err = unmarshalField(d, r.Profile)
		case 4:
			r.ThumbnailImage, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the search continuation request.
func (r *ProfileSearchPartRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.ContinuationToken, err = d.Bytes()
		case 2:
			r.RecordIndex, err = d.Uint32()
		case 3:
			r.RecordCount, err = d.Uint32()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the search continuation response.
func (r *ProfileSearchPartResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.RecordIndex, err = d.Uint32()
		case 2:
			res := &SearchResult{}
			if err = unmarshalField(d, res); err == nil {
				r.Results = append(r.Results, res)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Relationship cards
// ============================================================================

// Unmarshal decodes a relationship card.
func (c *RelationshipCard) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			c.CardID, err = d.Bytes()
		case 2:
			c.Version, err = d.Bytes()
		case 3:
			c.IssuerPublicKey, err = d.Bytes()
		case 4:
			c.RecipientPublicKey, err = d.Bytes()
		case 5:
			c.Type, err = d.String()
		case 6:
			c.ValidFrom, err = d.Uvarint()
		case 7:
			c.ValidTo, err = d.Uvarint()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the card application request.
func (r *AddRelatedIdentityRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.ApplicationID, err = d.Bytes()
		case 2:
			r.Card = &RelationshipCard{}
			err = unmarshalField(d, r.Card)
		case 3:
			r.IssuerSignature, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the card application response.
func (r *AddRelatedIdentityResponse) Unmarshal(data []byte) error { return skipAll(data) }

// Unmarshal decodes the card removal request.
func (r *RemoveRelatedIdentityRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.ApplicationID, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the card removal response.
func (r *RemoveRelatedIdentityResponse) Unmarshal(data []byte) error { return skipAll(data) }

// Unmarshal decodes the relationships query.
func (r *GetIdentityRelationshipsRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.IdentityNetworkID, err = d.Bytes()
		case 2:
			r.IncludeInvalid, err = d.Bool()
		case 3:
			r.Type, err = d.String()
		case 4:
			r.IssuerNetworkID, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the relationships response.
func (r *GetIdentityRelationshipsResponse) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			rel := &IdentityRelation{}
			if err = unmarshalField(d, rel); err == nil {
				r.Relations = append(r.Relations, rel)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes one stored relation.
func (r *IdentityRelation) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.ApplicationID, err = d.Bytes()
		case 2:
			r.Card = &RelationshipCard{}
			err = unmarshalField(d, r.Card)
		case 3:
			r.IssuerSignature, err = d.Bytes()
		case 4:
			r.RecipientSignature, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Neighborhood replication
// ============================================================================

// Unmarshal decodes the initialization opener.
func (r *StartNeighborhoodInitializationRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.PrimaryPort, err = d.Uint32()
		case 2:
			r.SrNeighborPort, err = d.Uint32()
		case 3:
			r.Latitude, err = d.Sint32()
		case 4:
			r.Longitude, err = d.Sint32()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the initialization acceptance.
func (r *StartNeighborhoodInitializationResponse) Unmarshal(data []byte) error {
	return skipAll(data)
}

// Unmarshal decodes the initialization finish request.
func (r *FinishNeighborhoodInitializationRequest) Unmarshal(data []byte) error {
	return skipAll(data)
}

// Unmarshal decodes the initialization finish response.
func (r *FinishNeighborhoodInitializationResponse) Unmarshal(data []byte) error {
	return skipAll(data)
}

// Unmarshal decodes a profile update batch.
func (r *NeighborhoodSharedProfileUpdateRequest) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			item := &SharedProfileUpdateItem{}
			if err = unmarshalField(d, item); err == nil {
				r.Items = append(r.Items, item)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a batch acknowledgement.
func (r *NeighborhoodSharedProfileUpdateResponse) Unmarshal(data []byte) error {
	return skipAll(data)
}

// Unmarshal decodes one replication item.
func (i *SharedProfileUpdateItem) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			i.Add = &SharedProfileAddItem{}
			err = unmarshalField(d, i.Add)
		case 2:
			i.Change = &SharedProfileChangeItem{}
			err = unmarshalField(d, i.Change)
		case 3:
			i.Delete = &SharedProfileDeleteItem{}
			err = unmarshalField(d, i.Delete)
		case 4:
			i.Refresh = &SharedProfileRefreshAllItem{}
			err = unmarshalField(d, i.Refresh)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a profile add item.
func (i *SharedProfileAddItem) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			i.Profile = &SignedProfile{}
			err = unmarshalField(d, i.Profile)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a profile change item.
func (i *SharedProfileChangeItem) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			i.Profile = &SignedProfile{}
			err = unmarshalField(d, i.Profile)
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a profile delete item.
func (i *SharedProfileDeleteItem) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			i.IdentityNetworkID, err = d.Bytes()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes a refresh item.
func (i *SharedProfileRefreshAllItem) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			var id []byte
			if id, err = d.Bytes(); err == nil {
				i.IdentityNetworkIDs = append(i.IdentityNetworkIDs, id)
			}
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes the follower removal request.
func (r *StopNeighborhoodUpdatesRequest) Unmarshal(data []byte) error { return skipAll(data) }

// Unmarshal decodes the follower removal response.
func (r *StopNeighborhoodUpdatesResponse) Unmarshal(data []byte) error { return skipAll(data) }
