package iop

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-labs/profiled/pkg/identity"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "ping request",
			msg: &Message{
				ID: 7,
				Request: &Request{Single: &SingleRequest{
					Version: []byte{1, 0, 0},
					Ping:    &PingRequest{Payload: []byte("hello")},
				}},
			},
		},
		{
			name: "list roles response",
			msg: &Message{
				ID: 12,
				Response: &Response{Status: StatusOk, Single: &SingleResponse{
					Version: []byte{1, 0, 0},
					ListRoles: &ListRolesResponse{Roles: []*ServerRoleInfo{
						{Role: uint32(RolePrimary), Port: 16987},
						{Role: uint32(RoleCustomer), Port: 16988, IsTLS: true},
					}},
				}},
			},
		},
		{
			name: "start conversation",
			msg: &Message{
				ID: 1,
				Request: &Request{Conversation: &ConversationRequest{
					Start: &StartConversationRequest{
						SupportedVersions: [][]byte{{1, 0, 0}},
						PublicKey:         bytes.Repeat([]byte{0xAA}, 32),
						ClientChallenge:   bytes.Repeat([]byte{0x42}, 32),
					},
				}},
			},
		},
		{
			name: "update profile delta",
			msg: &Message{
				ID: 3,
				Request: &Request{Conversation: &ConversationRequest{
					Signature: bytes.Repeat([]byte{1}, 64),
					UpdateProfile: &UpdateProfileRequest{
						SetName:     true,
						Name:        "alice",
						SetLocation: true,
						Latitude:    -48123456,
						Longitude:   11987654,
					},
				}},
			},
		},
		{
			name: "shared profile batch",
			msg: &Message{
				ID: 99,
				Request: &Request{Conversation: &ConversationRequest{
					Signature: bytes.Repeat([]byte{2}, 64),
					NeighborhoodSharedProfileUpdate: &NeighborhoodSharedProfileUpdateRequest{
						Items: []*SharedProfileUpdateItem{
							{Add: &SharedProfileAddItem{Profile: &SignedProfile{
								Profile: &ProfileInformation{
									Version:   []byte{1, 0, 0},
									PublicKey: bytes.Repeat([]byte{3}, 32),
									Name:      "bob",
									Type:      "person",
									Latitude:  -90000000,
								},
								Signature: bytes.Repeat([]byte{4}, 64),
							}}},
							{Delete: &SharedProfileDeleteItem{
								IdentityNetworkID: bytes.Repeat([]byte{5}, 32),
							}},
						},
					},
				}},
			},
		},
		{
			name: "search response with continuation",
			msg: &Message{
				ID: 21,
				Response: &Response{Status: StatusOk, Conversation: &ConversationResponse{
					Signature: bytes.Repeat([]byte{6}, 64),
					ProfileSearch: &ProfileSearchResponse{
						TotalRecordCount:       250,
						MaxResponseRecordCount: 100,
						Results: []*SearchResult{{
							IsHosted: true,
							Profile: &SignedProfile{
								Profile:   &ProfileInformation{Name: "carol"},
								Signature: bytes.Repeat([]byte{7}, 64),
							},
						}},
						ContinuationToken: []byte("token-1"),
					},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.msg.Marshal()
			decoded := &Message{}
			require.NoError(t, decoded.Unmarshal(encoded))
			// Canonical encoding: re-marshalling the decoded message must
			// reproduce the original bytes.
			assert.Equal(t, encoded, decoded.Marshal())
		})
	}
}

func TestConversationRequestPreservesPayloadBytes(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	msg := SignedRequest(5, kp.PrivateKey, &ConversationRequest{
		VerifyIdentity: &VerifyIdentityRequest{Challenge: bytes.Repeat([]byte{9}, 32)},
	})

	decoded := &Message{}
	require.NoError(t, decoded.Unmarshal(msg.Marshal()))
	require.NotNil(t, decoded.Request)
	conv := decoded.Request.Conversation
	require.NotNil(t, conv)

	assert.True(t, VerifyRequestSignature(kp.PublicKey, conv))

	// Flipping one bit of the signature must fail verification.
	conv.Signature[0] ^= 0x01
	assert.False(t, VerifyRequestSignature(kp.PublicKey, conv))
}

func TestReadMessageRejectsBadMagic(t *testing.T) {
	frame := []byte{0x0C, 0, 0, 0, 0}
	_, err := ReadMessage(bytes.NewReader(frame))
	require.Error(t, err)
	assert.True(t, IsProtocolViolation(err))
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	frame := make([]byte, FrameHeaderSize)
	frame[0] = FrameMagic
	binary.LittleEndian.PutUint32(frame[1:], MaxMessageSize+1)
	_, err := ReadMessage(bytes.NewReader(frame))
	require.Error(t, err)
	assert.True(t, IsProtocolViolation(err))
}

func TestWriteReadRoundTrip(t *testing.T) {
	msg := PongResponse(3, []byte("ping-payload"))

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.ID)
	require.NotNil(t, got.Response)
	assert.Equal(t, StatusOk, got.Response.Status)
	require.NotNil(t, got.Response.Single.Ping)
	assert.Equal(t, []byte("ping-payload"), got.Response.Single.Ping.Payload)
	assert.NotZero(t, got.Response.Single.Ping.Clock)
}

func TestSelectVersion(t *testing.T) {
	v, ok := SelectVersion([][]byte{{0, 9, 0}, {1, 0, 0}})
	require.True(t, ok)
	assert.Equal(t, ProtocolVersion, v)

	_, ok = SelectVersion([][]byte{{2, 0, 0}})
	assert.False(t, ok)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Ok", StatusOk.String())
	assert.Equal(t, "ErrorProtocolViolation", StatusErrorProtocolViolation.String())
	assert.Equal(t, "ErrorQuotaExceeded", StatusErrorQuotaExceeded.String())
	assert.True(t, StatusErrorBusy.Transient())
	assert.False(t, StatusErrorRejected.Transient())
}
