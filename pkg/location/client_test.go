package location

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-labs/profiled/internal/protocol/loc"
	"github.com/iop-labs/profiled/pkg/neighborhood"
)

type recordingRegistry struct {
	mu      sync.Mutex
	added   map[string]*neighborhood.AddNeighborData
	removed [][]byte
}

func newRecordingRegistry() *recordingRegistry {
	return &recordingRegistry{added: make(map[string]*neighborhood.AddNeighborData)}
}

func (r *recordingRegistry) AddNeighbor(_ context.Context, networkID []byte, data *neighborhood.AddNeighborData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added[string(networkID)] = data
	return nil
}

func (r *recordingRegistry) RemoveNeighbor(_ context.Context, networkID []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, networkID)
	return nil
}

func (r *recordingRegistry) addedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.added)
}

func (r *recordingRegistry) removedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

func testConfig() Config {
	return Config{
		Endpoint:       "192.0.2.1:16980",
		NodeID:         bytes.Repeat([]byte{0x01}, 32),
		Latitude:       47_497_913,
		Longitude:      19_040_236,
		PrimaryPort:    16987,
		SrNeighborPort: 16990,
		CallTimeout:    2 * time.Second,
	}
}

func profileNode(id byte, ip string) *loc.NodeInfo {
	return &loc.NodeInfo{
		NodeID:    bytes.Repeat([]byte{id}, 32),
		IPAddress: ip,
		Location:  &loc.GPSLocation{Latitude: 48_208_174, Longitude: 16_373_819},
		Services: []*loc.ServiceInfo{
			{Type: loc.ServiceTypePrimary, Port: 17987},
			{Type: loc.ServiceTypeSrNeighbor, Port: 17990},
		},
	}
}

// serveSession answers register + subscribe on the service side and returns
// control to the caller for pushes.
func serveSession(t *testing.T, conn net.Conn, snapshot []*loc.NodeInfo) {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	msg, err := loc.ReadMessage(conn)
	require.NoError(t, err)
	reg := msg.Request.RegisterService
	require.NotNil(t, reg)
	assert.Len(t, reg.Services, 2)
	require.NoError(t, loc.WriteMessage(conn, &loc.Message{
		ID: msg.ID, Response: &loc.Response{Status: loc.StatusOk},
	}))

	msg, err = loc.ReadMessage(conn)
	require.NoError(t, err)
	sub := msg.Request.GetNeighbourNodes
	require.NotNil(t, sub)
	assert.True(t, sub.KeepAliveAndSendUpdates)
	require.NoError(t, loc.WriteMessage(conn, &loc.Message{
		ID: msg.ID,
		Response: &loc.Response{
			Status:            loc.StatusOk,
			GetNeighbourNodes: &loc.GetNeighbourNodesResponse{Nodes: snapshot},
		},
	}))
}

func TestSessionAppliesSnapshotAndPushes(t *testing.T) {
	registry := newRecordingRegistry()
	client := NewClient(testConfig(), registry)

	clientEnd, serviceEnd := net.Pipe()
	client.dial = func(context.Context) (net.Conn, error) { return clientEnd, nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sessionDone := make(chan error, 1)
	go func() { sessionDone <- client.runSession(ctx) }()

	serveSession(t, serviceEnd, []*loc.NodeInfo{profileNode(0x02, "192.0.2.20")})
	require.Eventually(t, func() bool { return registry.addedCount() == 1 }, time.Second, 5*time.Millisecond)

	// Push an add and a removal; both must be acknowledged under the push id.
	require.NoError(t, loc.WriteMessage(serviceEnd, &loc.Message{
		ID: 90,
		Request: &loc.Request{NeighbourhoodChanged: &loc.NeighbourhoodChangedNotification{
			Changes: []*loc.NeighbourhoodChange{
				{AddedNode: profileNode(0x03, "192.0.2.30")},
				{RemovedNodeID: bytes.Repeat([]byte{0x02}, 32)},
			},
		}},
	}))
	ack, err := loc.ReadMessage(serviceEnd)
	require.NoError(t, err)
	assert.Equal(t, uint32(90), ack.ID)
	assert.Equal(t, loc.StatusOk, ack.Response.Status)

	assert.Equal(t, 2, registry.addedCount())
	require.Equal(t, 1, registry.removedCount())

	data := func() *neighborhood.AddNeighborData {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		return registry.added[string(bytes.Repeat([]byte{0x03}, 32))]
	}()
	require.NotNil(t, data)
	assert.Equal(t, "192.0.2.30", data.IPAddress)
	assert.Equal(t, uint32(17990), data.SrNeighborPort)
	assert.Equal(t, int32(48_208_174), data.Latitude)

	// Cancellation deregisters the record.
	cancel()
	msg, err := loc.ReadMessage(serviceEnd)
	require.NoError(t, err)
	require.NotNil(t, msg.Request.DeregisterService)
	assert.Equal(t, testConfig().NodeID, msg.Request.DeregisterService.NodeID)

	require.NoError(t, <-sessionDone)
}

func TestNodesWithoutNeighborRoleIgnored(t *testing.T) {
	registry := newRecordingRegistry()
	client := NewClient(testConfig(), registry)

	clientEnd, serviceEnd := net.Pipe()
	client.dial = func(context.Context) (net.Conn, error) { return clientEnd, nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.runSession(ctx) }()

	bare := &loc.NodeInfo{
		NodeID:    bytes.Repeat([]byte{0x05}, 32),
		IPAddress: "192.0.2.50",
		Services:  []*loc.ServiceInfo{{Type: loc.ServiceTypePrimary, Port: 17987}},
	}
	// Our own record echoed back must be skipped too.
	self := profileNode(0x01, "192.0.2.1")
	serveSession(t, serviceEnd, []*loc.NodeInfo{bare, self, profileNode(0x06, "192.0.2.60")})

	require.Eventually(t, func() bool { return registry.addedCount() == 1 }, time.Second, 5*time.Millisecond)
	registry.mu.Lock()
	_, ok := registry.added[string(bytes.Repeat([]byte{0x06}, 32))]
	registry.mu.Unlock()
	assert.True(t, ok)
}

func TestRegistrationRefusedEndsSession(t *testing.T) {
	registry := newRecordingRegistry()
	client := NewClient(testConfig(), registry)

	clientEnd, serviceEnd := net.Pipe()
	client.dial = func(context.Context) (net.Conn, error) { return clientEnd, nil }

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- client.runSession(context.Background()) }()

	msg, err := loc.ReadMessage(serviceEnd)
	require.NoError(t, err)
	require.NoError(t, loc.WriteMessage(serviceEnd, &loc.Message{
		ID: msg.ID, Response: &loc.Response{Status: loc.StatusErrorInternal, Details: "full"},
	}))

	err = <-sessionDone
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused registration")
	assert.Zero(t, registry.addedCount())
}
