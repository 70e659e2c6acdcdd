package iop

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/hosting"
	"github.com/iop-labs/profiled/pkg/identity"
	imagefs "github.com/iop-labs/profiled/pkg/imagestore/fs"
	"github.com/iop-labs/profiled/pkg/neighborhood"
	"github.com/iop-labs/profiled/pkg/profile"
	"github.com/iop-labs/profiled/pkg/search"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	images, err := imagefs.New(imagefs.Config{BasePath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = images.Close() })

	keys, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	return &Services{
		Keys:         keys,
		Store:        st,
		Hosting:      hosting.NewService(st, images, hosting.Config{}),
		Search:       search.NewEngine(st, images, search.Config{}),
		Neighborhood: neighborhood.NewService(st, keys, neighborhood.Config{PrimaryPort: 16987, SrNeighborPort: 16990}),
		Registry:     NewCheckInRegistry(),
		Roles: []*iop.ServerRoleInfo{
			{Role: uint32(iop.RolePrimary), Port: 16980, IsTLS: false},
			{Role: uint32(iop.RoleCustomer), Port: 16981, IsTLS: true},
		},
	}
}

// startConn wires a connection handler to one end of a pipe and returns the
// client end.
func startConn(t *testing.T, svcs *Services, role iop.Role) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	c := newConnection(server, role, svcs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Serve(ctx)
		_ = server.Close()
		close(done)
	}()
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		<-done
	})
	return client
}

func roundTrip(t *testing.T, conn net.Conn, msg *iop.Message) *iop.Message {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, iop.WriteMessage(conn, msg))
	reply, err := iop.ReadMessage(conn)
	require.NoError(t, err)
	return reply
}

// openConversation runs StartConversation and returns the server challenge.
func openConversation(t *testing.T, conn net.Conn, kp *identity.KeyPair) []byte {
	t.Helper()
	challenge := bytes.Repeat([]byte{7}, 32)
	reply := roundTrip(t, conn, &iop.Message{
		ID: 1,
		Request: &iop.Request{Conversation: &iop.ConversationRequest{
			Start: &iop.StartConversationRequest{
				SupportedVersions: [][]byte{iop.ProtocolVersion},
				PublicKey:         kp.PublicKey,
				ClientChallenge:   challenge,
			},
		}},
	})
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	conv := reply.Response.Conversation
	start := conv.Start
	require.Equal(t, challenge, start.ClientChallenge)
	require.True(t, identity.VerifyPayload(
		ed25519.PublicKey(start.PublicKey), conv.PayloadBytes(), conv.Signature))
	return start.Challenge
}

func signedConvRequest(id uint32, kp *identity.KeyPair, conv *iop.ConversationRequest) *iop.Message {
	return iop.SignedRequest(id, kp.PrivateKey, conv)
}

// hostIdentity reserves a slot and initializes the profile directly through
// the services, so protocol tests can start from a checked-in state.
func hostIdentity(t *testing.T, svcs *Services, kp *identity.KeyPair, name string) {
	t.Helper()
	ctx := context.Background()
	_, err := svcs.Hosting.HostingAgreement(ctx, kp.PublicKey, "person")
	require.NoError(t, err)

	info := &profile.Info{
		Version:   []byte{1, 0, 0},
		PublicKey: kp.PublicKey,
		Name:      name,
		Location:  profile.Location{Latitude: 47_497_913, Longitude: 19_040_236},
	}
	req := &iop.UpdateProfileRequest{
		SetVersion:       true,
		Version:          info.Version,
		SetName:          true,
		Name:             info.Name,
		SetLocation:      true,
		Latitude:         info.Location.Latitude,
		Longitude:        info.Location.Longitude,
		ProfileSignature: info.Sign(kp.PrivateKey),
	}
	require.NoError(t, svcs.Hosting.UpdateProfile(ctx, kp.NetworkID().Bytes(), req))
}

func TestPingOnPrimary(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RolePrimary)

	reply := roundTrip(t, conn, &iop.Message{
		ID: 9,
		Request: &iop.Request{Single: &iop.SingleRequest{
			Version: iop.ProtocolVersion,
			Ping:    &iop.PingRequest{Payload: []byte("hello")},
		}},
	})
	require.Equal(t, uint32(9), reply.ID)
	require.Equal(t, iop.StatusOk, reply.Response.Status)
	assert.Equal(t, []byte("hello"), reply.Response.Single.Ping.Payload)
	assert.NotZero(t, reply.Response.Single.Ping.Clock)
}

func TestListRoles(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RolePrimary)

	reply := roundTrip(t, conn, &iop.Message{
		ID: 1,
		Request: &iop.Request{Single: &iop.SingleRequest{
			Version:   iop.ProtocolVersion,
			ListRoles: &iop.ListRolesRequest{},
		}},
	})
	require.Equal(t, iop.StatusOk, reply.Response.Status)
	assert.Len(t, reply.Response.Single.ListRoles.Roles, 2)
}

func TestConversationRefusedOnPrimary(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RolePrimary)

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	reply := roundTrip(t, conn, &iop.Message{
		ID: 1,
		Request: &iop.Request{Conversation: &iop.ConversationRequest{
			Start: &iop.StartConversationRequest{
				SupportedVersions: [][]byte{iop.ProtocolVersion},
				PublicKey:         kp.PublicKey,
				ClientChallenge:   bytes.Repeat([]byte{1}, 32),
			},
		}},
	})
	assert.Equal(t, iop.StatusErrorBadRole, reply.Response.Status)
}

func TestMalformedFrameTerminatesConnection(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RolePrimary)

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := conn.Write([]byte{0xFF, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)

	reply, err := iop.ReadMessage(conn)
	require.NoError(t, err)
	assert.Equal(t, iop.ProtocolViolationMessageID, reply.ID)
	assert.Equal(t, iop.StatusErrorProtocolViolation, reply.Response.Status)

	_, err = iop.ReadMessage(conn)
	assert.Error(t, err)
}

func TestCheckInRequiresHostedIdentity(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RoleCustomer)

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	serverChallenge := openConversation(t, conn, kp)

	reply := roundTrip(t, conn, signedConvRequest(2, kp, &iop.ConversationRequest{
		CheckIn: &iop.CheckInRequest{Challenge: serverChallenge},
	}))
	assert.Equal(t, iop.StatusErrorRejected, reply.Response.Status)
}

func TestCustomerFlow(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RoleCustomer)

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	hostIdentity(t, svcs, kp, "alice")

	serverChallenge := openConversation(t, conn, kp)
	reply := roundTrip(t, conn, signedConvRequest(2, kp, &iop.ConversationRequest{
		CheckIn: &iop.CheckInRequest{Challenge: serverChallenge},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	// Checked-in customers see themselves online.
	reply = roundTrip(t, conn, signedConvRequest(3, kp, &iop.ConversationRequest{
		GetProfileInformation: &iop.GetProfileInformationRequest{
			IdentityNetworkID: kp.NetworkID().Bytes(),
		},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)
	info := reply.Response.Conversation.GetProfileInformation
	assert.True(t, info.IsHosted)
	assert.True(t, info.IsOnline)
	assert.Equal(t, "alice", info.Profile.Profile.Name)

	// Profile update over the wire.
	updated := &profile.Info{
		Version:   []byte{1, 0, 0},
		PublicKey: kp.PublicKey,
		Name:      "alice-renamed",
		Location:  profile.Location{Latitude: 47_497_913, Longitude: 19_040_236},
	}
	reply = roundTrip(t, conn, signedConvRequest(4, kp, &iop.ConversationRequest{
		UpdateProfile: &iop.UpdateProfileRequest{
			SetName:          true,
			Name:             updated.Name,
			ProfileSignature: updated.Sign(kp.PrivateKey),
		},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	row, err := svcs.Store.GetHostedIdentity(context.Background(), kp.NetworkID().Bytes())
	require.NoError(t, err)
	assert.Equal(t, "alice-renamed", row.Name)
}

func TestRequestBeforeStartRejected(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RoleCustomer)

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	reply := roundTrip(t, conn, signedConvRequest(1, kp, &iop.ConversationRequest{
		CheckIn: &iop.CheckInRequest{Challenge: bytes.Repeat([]byte{2}, 32)},
	}))
	assert.Equal(t, iop.StatusErrorBadConversationState, reply.Response.Status)
}

func TestTamperedRequestSignatureRejected(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RoleCustomer)

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	hostIdentity(t, svcs, kp, "mallory-target")
	serverChallenge := openConversation(t, conn, kp)

	msg := signedConvRequest(2, kp, &iop.ConversationRequest{
		CheckIn: &iop.CheckInRequest{Challenge: serverChallenge},
	})
	msg.Request.Conversation.Signature[0] ^= 0xff

	reply := roundTrip(t, conn, msg)
	assert.Equal(t, iop.StatusErrorInvalidSignature, reply.Response.Status)
}

func TestCustomerEviction(t *testing.T) {
	svcs := newTestServices(t)

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	hostIdentity(t, svcs, kp, "nomad")

	first := startConn(t, svcs, iop.RoleCustomer)
	challenge1 := openConversation(t, first, kp)
	reply := roundTrip(t, first, signedConvRequest(2, kp, &iop.ConversationRequest{
		CheckIn: &iop.CheckInRequest{Challenge: challenge1},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	second := startConn(t, svcs, iop.RoleCustomer)
	challenge2 := openConversation(t, second, kp)
	reply = roundTrip(t, second, signedConvRequest(2, kp, &iop.ConversationRequest{
		CheckIn: &iop.CheckInRequest{Challenge: challenge2},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	// The first connection's next request is refused and its socket closed.
	reply = roundTrip(t, first, signedConvRequest(3, kp, &iop.ConversationRequest{
		GetProfileInformation: &iop.GetProfileInformationRequest{
			IdentityNetworkID: kp.NetworkID().Bytes(),
		},
	}))
	assert.Equal(t, iop.StatusErrorBadConversationState, reply.Response.Status)
	_, err = iop.ReadMessage(first)
	assert.Error(t, err)

	// The second connection stays live.
	reply = roundTrip(t, second, signedConvRequest(3, kp, &iop.ConversationRequest{
		GetProfileInformation: &iop.GetProfileInformationRequest{
			IdentityNetworkID: kp.NetworkID().Bytes(),
		},
	}))
	assert.Equal(t, iop.StatusOk, reply.Response.Status)
}

func TestNonCustomerSearchFlow(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RoleNonCustomer)

	hosted, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	hostIdentity(t, svcs, hosted, "findable")

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	serverChallenge := openConversation(t, conn, kp)
	reply := roundTrip(t, conn, signedConvRequest(2, kp, &iop.ConversationRequest{
		VerifyIdentity: &iop.VerifyIdentityRequest{Challenge: serverChallenge},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	reply = roundTrip(t, conn, signedConvRequest(3, kp, &iop.ConversationRequest{
		ProfileSearch: &iop.ProfileSearchRequest{Name: "find*"},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)
	result := reply.Response.Conversation.ProfileSearch
	require.Equal(t, uint32(1), result.TotalRecordCount)
	assert.Equal(t, "findable", result.Results[0].Profile.Profile.Name)

	// Customer-only requests stay refused on this role.
	reply = roundTrip(t, conn, signedConvRequest(4, kp, &iop.ConversationRequest{
		UpdateProfile: &iop.UpdateProfileRequest{},
	}))
	assert.Equal(t, iop.StatusErrorBadRole, reply.Response.Status)
}

func TestNeighborSnapshotStream(t *testing.T) {
	svcs := newTestServices(t)

	hosted, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	hostIdentity(t, svcs, hosted, "replicated")

	conn := startConn(t, svcs, iop.RoleSrNeighbor)
	peer, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	serverChallenge := openConversation(t, conn, peer)

	reply := roundTrip(t, conn, signedConvRequest(2, peer, &iop.ConversationRequest{
		VerifyIdentity: &iop.VerifyIdentityRequest{Challenge: serverChallenge},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	reply = roundTrip(t, conn, signedConvRequest(3, peer, &iop.ConversationRequest{
		StartNeighborhoodInitialization: &iop.StartNeighborhoodInitializationRequest{
			PrimaryPort:    17987,
			SrNeighborPort: 17990,
		},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	// The server now pushes the snapshot as server-initiated requests.
	var profiles int
	for {
		msg, err := iop.ReadMessage(conn)
		require.NoError(t, err)
		require.NotNil(t, msg.ServerRequest)
		push := msg.ServerRequest.Conversation
		require.True(t, iop.VerifyRequestSignature(svcs.Keys.PublicKey, push))

		ack := &iop.ConversationResponse{}
		finished := false
		switch {
		case push.NeighborhoodSharedProfileUpdate != nil:
			profiles += len(push.NeighborhoodSharedProfileUpdate.Items)
			ack.NeighborhoodSharedProfileUpdate = &iop.NeighborhoodSharedProfileUpdateResponse{}
		case push.FinishNeighborhoodInitialization != nil:
			ack.FinishNeighborhoodInitialization = &iop.FinishNeighborhoodInitializationResponse{}
			finished = true
		default:
			t.Fatalf("unexpected push payload")
		}
		require.NoError(t, iop.WriteMessage(conn, &iop.Message{
			ID:             msg.ID,
			ServerResponse: &iop.Response{Status: iop.StatusOk, Conversation: ack},
		}))
		if finished {
			break
		}
	}
	assert.Equal(t, 1, profiles)

	require.Eventually(t, func() bool {
		f, err := svcs.Store.GetFollower(context.Background(), peer.NetworkID().Bytes())
		return err == nil && f.Initialized
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNeighborIncrementalUpdate(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RoleSrNeighbor)

	peer, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, svcs.Store.UpsertNeighbor(context.Background(), &models.Neighbor{
		PeerContact: models.PeerContact{
			NetworkID:       peer.NetworkID().Bytes(),
			IPAddress:       "192.0.2.60",
			PrimaryPort:     16987,
			SrNeighborPort:  16990,
			Initialized:     true,
			LastRefreshTime: time.Now(),
		},
	}))

	serverChallenge := openConversation(t, conn, peer)
	reply := roundTrip(t, conn, signedConvRequest(2, peer, &iop.ConversationRequest{
		VerifyIdentity: &iop.VerifyIdentityRequest{Challenge: serverChallenge},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	mirrored, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	info := &profile.Info{
		Version:   []byte{1, 0, 0},
		PublicKey: mirrored.PublicKey,
		Name:      "pushed",
	}
	reply = roundTrip(t, conn, signedConvRequest(3, peer, &iop.ConversationRequest{
		NeighborhoodSharedProfileUpdate: &iop.NeighborhoodSharedProfileUpdateRequest{
			Items: []*iop.SharedProfileUpdateItem{
				{Add: &iop.SharedProfileAddItem{Profile: info.ToWire(info.Sign(mirrored.PrivateKey))}},
			},
		},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	row, err := svcs.Store.GetNeighborIdentity(context.Background(),
		peer.NetworkID().Bytes(), mirrored.NetworkID().Bytes())
	require.NoError(t, err)
	assert.Equal(t, "pushed", row.Name)
}

func TestUpdateFromUnknownNeighborRejected(t *testing.T) {
	svcs := newTestServices(t)
	conn := startConn(t, svcs, iop.RoleSrNeighbor)

	peer, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	serverChallenge := openConversation(t, conn, peer)
	reply := roundTrip(t, conn, signedConvRequest(2, peer, &iop.ConversationRequest{
		VerifyIdentity: &iop.VerifyIdentityRequest{Challenge: serverChallenge},
	}))
	require.Equal(t, iop.StatusOk, reply.Response.Status)

	reply = roundTrip(t, conn, signedConvRequest(3, peer, &iop.ConversationRequest{
		NeighborhoodSharedProfileUpdate: &iop.NeighborhoodSharedProfileUpdateRequest{},
	}))
	assert.Equal(t, iop.StatusErrorRejected, reply.Response.Status)
}
