package iop

import (
	"context"

	"github.com/iop-labs/profiled/internal/protocol/iop"
)

// requestKind names a conversation request for the role/state matrix.
type requestKind int

const (
	kindUnknown requestKind = iota
	kindStart
	kindVerifyIdentity
	kindCheckIn
	kindHostingAgreement
	kindUpdateProfile
	kindCancelHosting
	kindGetProfileInformation
	kindProfileSearch
	kindProfileSearchPart
	kindAddRelatedIdentity
	kindRemoveRelatedIdentity
	kindGetIdentityRelationships
	kindStartNeighborhoodInitialization
	kindFinishNeighborhoodInitialization
	kindNeighborhoodSharedProfileUpdate
	kindStopNeighborhoodUpdates
)

// kindOf classifies a conversation request by its single set payload field.
func kindOf(req *iop.ConversationRequest) requestKind {
	switch {
	case req.Start != nil:
		return kindStart
	case req.VerifyIdentity != nil:
		return kindVerifyIdentity
	case req.CheckIn != nil:
		return kindCheckIn
	case req.HostingAgreement != nil:
		return kindHostingAgreement
	case req.UpdateProfile != nil:
		return kindUpdateProfile
	case req.CancelHosting != nil:
		return kindCancelHosting
	case req.GetProfileInformation != nil:
		return kindGetProfileInformation
	case req.ProfileSearch != nil:
		return kindProfileSearch
	case req.ProfileSearchPart != nil:
		return kindProfileSearchPart
	case req.AddRelatedIdentity != nil:
		return kindAddRelatedIdentity
	case req.RemoveRelatedIdentity != nil:
		return kindRemoveRelatedIdentity
	case req.GetIdentityRelationships != nil:
		return kindGetIdentityRelationships
	case req.StartNeighborhoodInitialization != nil:
		return kindStartNeighborhoodInitialization
	case req.FinishNeighborhoodInitialization != nil:
		return kindFinishNeighborhoodInitialization
	case req.NeighborhoodSharedProfileUpdate != nil:
		return kindNeighborhoodSharedProfileUpdate
	case req.StopNeighborhoodUpdates != nil:
		return kindStopNeighborhoodUpdates
	default:
		return kindUnknown
	}
}

// allow applies the fixed request→state matrix of the connection's role.
// Requests a role never serves return ErrorBadRole; requests the role serves
// in a different state return ErrorBadConversationState.
func (c *Connection) allow(kind requestKind) iop.Status {
	switch c.role {
	case iop.RolePrimary:
		// The plaintext role serves only the single requests.
		return iop.StatusErrorBadRole

	case iop.RoleNonCustomer:
		switch kind {
		case kindStart:
			return c.requireState(stateFresh)
		case kindVerifyIdentity:
			return c.requireState(stateStarted)
		case kindHostingAgreement, kindGetProfileInformation,
			kindProfileSearch, kindProfileSearchPart,
			kindGetIdentityRelationships:
			return c.requireState(stateVerifiedNonCustomer)
		default:
			return iop.StatusErrorBadRole
		}

	case iop.RoleCustomer:
		switch kind {
		case kindStart:
			return c.requireState(stateFresh)
		case kindCheckIn:
			return c.requireState(stateStarted)
		case kindUpdateProfile, kindCancelHosting,
			kindAddRelatedIdentity, kindRemoveRelatedIdentity,
			kindGetProfileInformation, kindGetIdentityRelationships:
			return c.requireState(stateCheckedInCustomer)
		default:
			return iop.StatusErrorBadRole
		}

	case iop.RoleSrNeighbor:
		switch kind {
		case kindStart:
			return c.requireState(stateFresh)
		case kindVerifyIdentity:
			return c.requireState(stateStarted)
		case kindStartNeighborhoodInitialization,
			kindNeighborhoodSharedProfileUpdate,
			kindStopNeighborhoodUpdates:
			return c.requireState(stateVerifiedNeighbor)
		case kindFinishNeighborhoodInitialization:
			// Only ever sent server-to-client, inside the snapshot stream.
			return iop.StatusErrorUnsupported
		default:
			return iop.StatusErrorBadRole
		}
	}
	return iop.StatusErrorBadRole
}

func (c *Connection) requireState(want conversationState) iop.Status {
	if c.conv.state != want {
		return iop.StatusErrorBadConversationState
	}
	return iop.StatusOk
}

// dispatch routes one conversation request through the matrix, verifies its
// signature and invokes the handler. A nil message means the handler already
// wrote its own responses; the bool keeps the connection open.
func (c *Connection) dispatch(ctx context.Context, id uint32, req *iop.ConversationRequest) (*iop.Message, bool) {
	kind := kindOf(req)
	if kind == kindUnknown {
		return iop.ErrorResponse(id, iop.StatusErrorUnsupported), true
	}
	if status := c.allow(kind); !status.IsOk() {
		return iop.ErrorResponse(id, status), true
	}

	// StartConversation is the one payload allowed to travel unsigned;
	// everything after it must verify against the conversation key.
	if kind != kindStart && !iop.VerifyRequestSignature(c.conv.clientPub, req) {
		return iop.ErrorResponse(id, iop.StatusErrorInvalidSignature), true
	}

	switch kind {
	case kindStart:
		return c.handleStart(id, req.Start), true
	case kindVerifyIdentity:
		return c.handleVerifyIdentity(id, req.VerifyIdentity), true
	case kindCheckIn:
		return c.handleCheckIn(ctx, id, req.CheckIn), true
	case kindHostingAgreement:
		return c.handleHostingAgreement(ctx, id, req.HostingAgreement), true
	case kindUpdateProfile:
		return c.handleUpdateProfile(ctx, id, req.UpdateProfile), true
	case kindCancelHosting:
		return c.handleCancelHosting(ctx, id, req.CancelHosting), true
	case kindGetProfileInformation:
		return c.handleGetProfileInformation(ctx, id, req.GetProfileInformation), true
	case kindProfileSearch:
		return c.handleProfileSearch(ctx, id, req.ProfileSearch), true
	case kindProfileSearchPart:
		return c.handleProfileSearchPart(ctx, id, req.ProfileSearchPart), true
	case kindAddRelatedIdentity:
		return c.handleAddRelatedIdentity(ctx, id, req), true
	case kindRemoveRelatedIdentity:
		return c.handleRemoveRelatedIdentity(ctx, id, req.RemoveRelatedIdentity), true
	case kindGetIdentityRelationships:
		return c.handleGetIdentityRelationships(ctx, id, req.GetIdentityRelationships), true
	case kindStartNeighborhoodInitialization:
		return c.handleStartNeighborhoodInitialization(ctx, id, req.StartNeighborhoodInitialization)
	case kindNeighborhoodSharedProfileUpdate:
		return c.handleSharedProfileUpdate(ctx, id, req.NeighborhoodSharedProfileUpdate), true
	case kindStopNeighborhoodUpdates:
		return c.handleStopNeighborhoodUpdates(ctx, id), true
	default:
		return iop.ErrorResponse(id, iop.StatusErrorUnsupported), true
	}
}
