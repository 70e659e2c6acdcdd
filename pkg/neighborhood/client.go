package neighborhood

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// DefaultCallTimeout bounds one request/response exchange with a peer.
const DefaultCallTimeout = 30 * time.Second

// Client is an authenticated outbound conversation with a peer's sr-neighbor
// role. The worker opens one per queue run, pushes the pending updates, and
// closes it.
//
// A Client is not safe for concurrent use; each queue runs in its own
// goroutine with its own client.
type Client struct {
	conn      net.Conn
	keys      *identity.KeyPair
	serverPub ed25519.PublicKey
	serverID  identity.NetworkID
	nextID    uint32
}

// Dial connects to a peer's sr-neighbor endpoint, completes the conversation
// handshake (StartConversation + VerifyIdentity) and returns the
// authenticated client.
//
// The TLS layer does not validate the peer certificate: peer identity is
// proven in-band by the conversation signature over the challenge exchange,
// and Dial checks the resulting network id against expectedID when it is
// non-nil.
func Dial(ctx context.Context, addr string, keys *identity.KeyPair, expectedID []byte) (*Client, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrPeerFailure, addr, err)
	}

	c := &Client{conn: conn, keys: keys}
	if err := c.handshake(ctx, expectedID); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// ServerID returns the peer's network identifier, derived from the public
// key it presented during the handshake.
func (c *Client) ServerID() identity.NetworkID {
	return c.serverID
}

// Close terminates the conversation.
func (c *Client) Close() error {
	return c.conn.Close()
}

// handshake runs StartConversation and VerifyIdentity.
func (c *Client) handshake(ctx context.Context, expectedID []byte) error {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return fmt.Errorf("failed to generate challenge: %w", err)
	}

	// StartConversation is the one unsigned conversation request.
	resp, err := c.call(ctx, &iop.Message{
		ID: c.nextMessageID(),
		Request: &iop.Request{Conversation: &iop.ConversationRequest{
			Start: &iop.StartConversationRequest{
				SupportedVersions: [][]byte{iop.ProtocolVersion},
				PublicKey:         c.keys.PublicKey,
				ClientChallenge:   challenge,
			},
		}},
	})
	if err != nil {
		return err
	}

	conv := resp.Conversation
	if conv == nil || conv.Start == nil {
		return fmt.Errorf("%w: missing start payload", ErrConversation)
	}
	start := conv.Start
	if !iop.ValidVersion(start.Version) {
		return fmt.Errorf("%w: peer selected version %s", ErrConversation, iop.VersionString(start.Version))
	}
	if len(start.PublicKey) != identity.PublicKeySize {
		return fmt.Errorf("%w: malformed peer public key", ErrConversation)
	}
	if string(start.ClientChallenge) != string(challenge) {
		return fmt.Errorf("%w: challenge echo mismatch", ErrConversation)
	}

	c.serverPub = ed25519.PublicKey(start.PublicKey)
	c.serverID = identity.FromPublicKey(c.serverPub)
	if expectedID != nil && string(c.serverID.Bytes()) != string(expectedID) {
		return fmt.Errorf("%w: peer identity mismatch", ErrConversation)
	}

	// The response signature over the echoed challenge proves possession
	// of the peer's key.
	if !identity.VerifyPayload(c.serverPub, conv.PayloadBytes(), conv.Signature) {
		return fmt.Errorf("%w: bad server signature", ErrConversation)
	}

	_, err = c.request(ctx, &iop.ConversationRequest{
		VerifyIdentity: &iop.VerifyIdentityRequest{Challenge: start.Challenge},
	})
	return err
}

// SendUpdate pushes one batch of profile updates to the peer.
func (c *Client) SendUpdate(ctx context.Context, items []*iop.SharedProfileUpdateItem) error {
	_, err := c.request(ctx, &iop.ConversationRequest{
		NeighborhoodSharedProfileUpdate: &iop.NeighborhoodSharedProfileUpdateRequest{Items: items},
	})
	return err
}

// SendStop asks the peer to drop this server from its follower set.
func (c *Client) SendStop(ctx context.Context) error {
	_, err := c.request(ctx, &iop.ConversationRequest{
		StopNeighborhoodUpdates: &iop.StopNeighborhoodUpdatesRequest{},
	})
	return err
}

// RunInitialization asks the peer to stream its hosted profile set and
// consumes the stream: the peer answers Ok, pushes server-initiated
// NeighborhoodSharedProfileUpdate batches, and closes with
// FinishNeighborhoodInitialization. Every received profile is re-verified;
// one bad record aborts the whole run.
//
// The caller bounds the overall run through ctx; partially received rows
// are returned only after Finish, never on error.
func (c *Client) RunInitialization(ctx context.Context, primaryPort, srNeighborPort uint32, latitude, longitude int32) ([]*models.NeighborIdentity, error) {
	_, err := c.request(ctx, &iop.ConversationRequest{
		StartNeighborhoodInitialization: &iop.StartNeighborhoodInitializationRequest{
			PrimaryPort:    primaryPort,
			SrNeighborPort: srNeighborPort,
			Latitude:       latitude,
			Longitude:      longitude,
		},
	})
	if err != nil {
		return nil, err
	}

	serverID := c.serverID.Bytes()
	var rows []*models.NeighborIdentity
	for {
		msg, err := c.read(ctx)
		if err != nil {
			return nil, err
		}
		if msg.ServerRequest == nil || msg.ServerRequest.Conversation == nil {
			return nil, fmt.Errorf("%w: unexpected message during initialization", ErrPeerFailure)
		}
		req := msg.ServerRequest.Conversation
		if !iop.VerifyRequestSignature(c.serverPub, req) {
			return nil, fmt.Errorf("%w: bad signature on pushed batch", ErrBadProfileSignature)
		}

		switch {
		case req.NeighborhoodSharedProfileUpdate != nil:
			items := req.NeighborhoodSharedProfileUpdate.Items
			if len(items) > MaxBatchSize {
				return nil, ErrBatchTooLarge
			}
			for _, item := range items {
				if item.Add == nil {
					return nil, fmt.Errorf("%w: initialization batch carries a non-add item", ErrPeerFailure)
				}
				info, sig, err := verifySharedProfile(item.Add.Profile)
				if err != nil {
					return nil, err
				}
				rows = append(rows, neighborRow(serverID, info, sig))
			}
			if err := c.respondToServer(msg.ID, &iop.ConversationResponse{
				NeighborhoodSharedProfileUpdate: &iop.NeighborhoodSharedProfileUpdateResponse{},
			}); err != nil {
				return nil, err
			}

		case req.FinishNeighborhoodInitialization != nil:
			if err := c.respondToServer(msg.ID, &iop.ConversationResponse{
				FinishNeighborhoodInitialization: &iop.FinishNeighborhoodInitializationResponse{},
			}); err != nil {
				return nil, err
			}
			logger.Info("Neighborhood initialization stream finished",
				"neighbor_id", c.serverID.Hex(), "profiles", len(rows))
			return rows, nil

		default:
			return nil, fmt.Errorf("%w: unexpected push during initialization", ErrPeerFailure)
		}
	}
}

// request sends a signed conversation request and maps the response status
// to the retry taxonomy.
func (c *Client) request(ctx context.Context, conv *iop.ConversationRequest) (*iop.Response, error) {
	msg := iop.SignedRequest(c.nextMessageID(), c.keys.PrivateKey, conv)
	resp, err := c.call(ctx, msg)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// call writes one message and reads its response.
func (c *Client) call(ctx context.Context, msg *iop.Message) (*iop.Response, error) {
	if err := c.setDeadline(ctx); err != nil {
		return nil, err
	}
	if err := iop.WriteMessage(c.conn, msg); err != nil {
		return nil, fmt.Errorf("%w: write: %w", ErrPeerFailure, err)
	}

	reply, err := iop.ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrPeerFailure, err)
	}
	if reply.Response == nil || reply.ID != msg.ID {
		return nil, fmt.Errorf("%w: response pairing mismatch", ErrPeerFailure)
	}
	return reply.Response, statusError(reply.Response.Status)
}

// read reads one message under the context deadline.
func (c *Client) read(ctx context.Context) (*iop.Message, error) {
	if err := c.setDeadline(ctx); err != nil {
		return nil, err
	}
	msg, err := iop.ReadMessage(c.conn)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrPeerFailure, err)
	}
	return msg, nil
}

// respondToServer answers a server-initiated request, signing the payload.
func (c *Client) respondToServer(id uint32, conv *iop.ConversationResponse) error {
	conv.Signature = identity.SignPayload(c.keys.PrivateKey, conv.PayloadBytes())
	msg := &iop.Message{
		ID:             id,
		ServerResponse: &iop.Response{Status: iop.StatusOk, Conversation: conv},
	}
	if err := iop.WriteMessage(c.conn, msg); err != nil {
		return fmt.Errorf("%w: write: %w", ErrPeerFailure, err)
	}
	return nil
}

// setDeadline applies the context deadline, falling back to the default
// call timeout.
func (c *Client) setDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultCallTimeout)
	}
	return c.conn.SetDeadline(deadline)
}

// nextMessageID allocates the next client-chosen message id.
func (c *Client) nextMessageID() uint32 {
	c.nextID++
	return c.nextID
}

// statusError maps a peer-returned status to the worker's retry taxonomy.
func statusError(status iop.Status) error {
	switch status {
	case iop.StatusOk:
		return nil
	case iop.StatusErrorRejected:
		return ErrPeerRejected
	case iop.StatusErrorBusy, iop.StatusErrorQuotaExceeded:
		return fmt.Errorf("%w: %s", ErrPeerBusy, status)
	default:
		return fmt.Errorf("%w: peer answered %s", ErrPeerFailure, status)
	}
}
