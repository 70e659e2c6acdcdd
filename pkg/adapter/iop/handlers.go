package iop

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store/models"
)

const challengeSize = 32

// handleStart performs the key/challenge exchange that opens a conversation.
func (c *Connection) handleStart(id uint32, req *iop.StartConversationRequest) *iop.Message {
	version, ok := iop.SelectVersion(req.SupportedVersions)
	if !ok {
		return iop.ErrorResponse(id, iop.StatusErrorUnsupported)
	}
	if len(req.PublicKey) != identity.PublicKeySize {
		return iop.InvalidValueResponse(id, "publicKey")
	}
	if len(req.ClientChallenge) != challengeSize {
		return iop.InvalidValueResponse(id, "clientChallenge")
	}

	challenge := make([]byte, challengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return c.errorMessage(id, fmt.Errorf("failed to generate challenge: %w", err))
	}

	c.conv.clientPub = ed25519.PublicKey(req.PublicKey)
	c.conv.clientID = identity.FromPublicKey(c.conv.clientPub)
	c.conv.serverChallenge = challenge
	c.conv.version = version
	c.conv.state = stateStarted

	logger.Debug("Conversation started",
		"conn_id", c.connID, "role", c.role.String(),
		"client_id", c.conv.clientID.Hex())

	// The signature over this response covers the echoed client challenge,
	// proving possession of the server key.
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		Start: &iop.StartConversationResponse{
			Version:         version,
			PublicKey:       c.services.Keys.PublicKey,
			ClientChallenge: req.ClientChallenge,
			Challenge:       challenge,
		},
	})
}

// handleVerifyIdentity authenticates the conversation: the signed request
// body must echo the server's challenge.
func (c *Connection) handleVerifyIdentity(id uint32, req *iop.VerifyIdentityRequest) *iop.Message {
	if !bytes.Equal(req.Challenge, c.conv.serverChallenge) {
		return iop.ErrorResponse(id, iop.StatusErrorInvalidSignature)
	}

	if c.role == iop.RoleSrNeighbor {
		c.conv.state = stateVerifiedNeighbor
	} else {
		c.conv.state = stateVerifiedNonCustomer
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		VerifyIdentity: &iop.VerifyIdentityResponse{},
	})
}

// handleCheckIn authenticates a hosted identity on the customer role and
// takes over its live-connection slot, evicting any previous holder.
func (c *Connection) handleCheckIn(ctx context.Context, id uint32, req *iop.CheckInRequest) *iop.Message {
	if !bytes.Equal(req.Challenge, c.conv.serverChallenge) {
		return iop.ErrorResponse(id, iop.StatusErrorInvalidSignature)
	}

	identityID := c.conv.clientID.Bytes()
	row, err := c.services.Store.GetHostedIdentity(ctx, identityID)
	if errors.Is(err, models.ErrNotFound) {
		return iop.ErrorResponse(id, iop.StatusErrorRejected)
	}
	if err != nil {
		return c.errorMessage(id, err)
	}
	if row.Cancelled {
		return iop.ErrorResponse(id, iop.StatusErrorRejected)
	}

	c.services.Registry.CheckIn(identityID, c)
	c.checkedIn = identityID
	c.conv.state = stateCheckedInCustomer

	logger.Debug("Customer checked in",
		"conn_id", c.connID, "identity_id", c.conv.clientID.Hex())

	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		CheckIn: &iop.CheckInResponse{},
	})
}

// handleHostingAgreement reserves a hosting slot for the conversation
// identity.
func (c *Connection) handleHostingAgreement(ctx context.Context, id uint32, req *iop.HostingAgreementRequest) *iop.Message {
	if !bytes.Equal(req.IdentityPublicKey, c.conv.clientPub) {
		return iop.InvalidValueResponse(id, "identityPublicKey")
	}

	validFrom, err := c.services.Hosting.HostingAgreement(ctx, c.conv.clientPub, req.IdentityType)
	if err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		HostingAgreement: &iop.HostingAgreementResponse{
			ValidFrom: uint64(validFrom.UnixMilli()),
		},
	})
}

func (c *Connection) handleUpdateProfile(ctx context.Context, id uint32, req *iop.UpdateProfileRequest) *iop.Message {
	if err := c.services.Hosting.UpdateProfile(ctx, c.conv.clientID.Bytes(), req); err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		UpdateProfile: &iop.UpdateProfileResponse{},
	})
}

func (c *Connection) handleCancelHosting(ctx context.Context, id uint32, req *iop.CancelHostingRequest) *iop.Message {
	if err := c.services.Hosting.CancelHosting(ctx, c.conv.clientID.Bytes(), req.NewHostingServerNetworkID); err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		CancelHosting: &iop.CancelHostingResponse{},
	})
}

func (c *Connection) handleGetProfileInformation(ctx context.Context, id uint32, req *iop.GetProfileInformationRequest) *iop.Message {
	view, err := c.services.Hosting.GetProfileInformation(ctx,
		req.IdentityNetworkID, req.IncludeProfileImage, req.IncludeThumbnailImage)
	if err != nil {
		return c.errorMessage(id, err)
	}

	resp := &iop.GetProfileInformationResponse{
		IsHosted:               view.IsHosted,
		HostingServerNetworkID: view.HostingServerID,
	}
	if view.IsHosted {
		resp.IsOnline = c.services.Registry.IsOnline(req.IdentityNetworkID)
		resp.Profile = view.Profile.ToWire(view.Signature)
		resp.ProfileImage = view.ProfileImage
		resp.ThumbnailImage = view.ThumbnailImage
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		GetProfileInformation: resp,
	})
}

func (c *Connection) handleProfileSearch(ctx context.Context, id uint32, req *iop.ProfileSearchRequest) *iop.Message {
	resp, err := c.services.Search.Search(ctx, req)
	if err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		ProfileSearch: resp,
	})
}

func (c *Connection) handleProfileSearchPart(ctx context.Context, id uint32, req *iop.ProfileSearchPartRequest) *iop.Message {
	resp, err := c.services.Search.Part(ctx, req)
	if err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		ProfileSearchPart: resp,
	})
}

// handleAddRelatedIdentity takes the whole conversation request because the
// conversation signature doubles as the recipient's signature of record.
func (c *Connection) handleAddRelatedIdentity(ctx context.Context, id uint32, req *iop.ConversationRequest) *iop.Message {
	err := c.services.Hosting.AddRelatedIdentity(ctx,
		c.conv.clientID.Bytes(), req.AddRelatedIdentity, req.Signature)
	if err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		AddRelatedIdentity: &iop.AddRelatedIdentityResponse{},
	})
}

func (c *Connection) handleRemoveRelatedIdentity(ctx context.Context, id uint32, req *iop.RemoveRelatedIdentityRequest) *iop.Message {
	err := c.services.Hosting.RemoveRelatedIdentity(ctx, c.conv.clientID.Bytes(), req.ApplicationID)
	if err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		RemoveRelatedIdentity: &iop.RemoveRelatedIdentityResponse{},
	})
}

func (c *Connection) handleGetIdentityRelationships(ctx context.Context, id uint32, req *iop.GetIdentityRelationshipsRequest) *iop.Message {
	relations, err := c.services.Hosting.GetIdentityRelationships(ctx, req)
	if err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		GetIdentityRelationships: &iop.GetIdentityRelationshipsResponse{Relations: relations},
	})
}

// handleStartNeighborhoodInitialization accepts the request, then streams
// the hosted snapshot to the peer as server-initiated requests over the same
// connection. The Ok response goes out before the stream starts, so the
// usual respond-after-handler flow does not apply; a failed stream closes
// the connection instead.
func (c *Connection) handleStartNeighborhoodInitialization(ctx context.Context, id uint32, req *iop.StartNeighborhoodInitializationRequest) (*iop.Message, bool) {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.errorMessage(id, fmt.Errorf("failed to resolve peer address: %w", err)), true
	}

	ok := iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		StartNeighborhoodInitialization: &iop.StartNeighborhoodInitializationResponse{},
	})
	if err := c.write(ok); err != nil {
		return nil, false
	}

	err = c.services.Neighborhood.HandleStartInitialization(ctx,
		c.conv.clientID.Bytes(), host, req, c.pushServerRequest)
	if err != nil {
		logger.Warn("Snapshot stream aborted",
			"conn_id", c.connID, "follower_id", c.conv.clientID.Hex(), "error", err)
		return nil, false
	}
	return nil, true
}

// pushServerRequest sends one server-initiated request and waits for the
// peer's acknowledgement. Reads happen inline: the serve loop is parked in
// the initialization handler while the stream runs.
func (c *Connection) pushServerRequest(ctx context.Context, conv *iop.ConversationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := c.builder.ServerRequest(c.services.Keys.PrivateKey, conv)
	if err := c.write(msg); err != nil {
		return fmt.Errorf("failed to push update: %w", err)
	}

	reply, err := c.read(idleTimeoutAuthenticated)
	if err != nil {
		return fmt.Errorf("failed to read push acknowledgement: %w", err)
	}
	if reply.ServerResponse == nil || reply.ID != msg.ID {
		return fmt.Errorf("push acknowledgement pairing mismatch")
	}
	if !reply.ServerResponse.Status.IsOk() {
		return fmt.Errorf("peer refused update batch: %s", reply.ServerResponse.Status)
	}
	return nil
}

func (c *Connection) handleSharedProfileUpdate(ctx context.Context, id uint32, req *iop.NeighborhoodSharedProfileUpdateRequest) *iop.Message {
	err := c.services.Neighborhood.HandleSharedProfileUpdate(ctx, c.conv.clientID.Bytes(), req.Items)
	if err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		NeighborhoodSharedProfileUpdate: &iop.NeighborhoodSharedProfileUpdateResponse{},
	})
}

func (c *Connection) handleStopNeighborhoodUpdates(ctx context.Context, id uint32) *iop.Message {
	if err := c.services.Neighborhood.HandleStopUpdates(ctx, c.conv.clientID.Bytes()); err != nil {
		return c.errorMessage(id, err)
	}
	return iop.OkResponse(id, c.services.Keys.PrivateKey, &iop.ConversationResponse{
		StopNeighborhoodUpdates: &iop.StopNeighborhoodUpdatesResponse{},
	})
}
