// Package location maintains the long-lived subscription to the external
// location service. The client registers this server's contact record,
// subscribes to neighborhood updates and translates them into neighbor
// add/remove operations. The connection reconnects with backoff; a clean
// shutdown deregisters the record first.
package location

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/loc"
	"github.com/iop-labs/profiled/pkg/neighborhood"
)

// Timing defaults.
const (
	DefaultCallTimeout   = 30 * time.Second
	DefaultReconnectBase = 5 * time.Second
	DefaultReconnectMax  = 5 * time.Minute
)

// NeighborRegistry is the sink for neighborhood changes, implemented by
// neighborhood.Service.
type NeighborRegistry interface {
	AddNeighbor(ctx context.Context, networkID []byte, data *neighborhood.AddNeighborData) error
	RemoveNeighbor(ctx context.Context, networkID []byte) error
}

// Config parameterizes the location client.
type Config struct {
	// Endpoint is the host:port of the location service.
	Endpoint string

	// NodeID is this server's 32-byte network identifier.
	NodeID []byte

	// Own position and advertised ports, announced on registration.
	Latitude       int32
	Longitude      int32
	PrimaryPort    uint32
	SrNeighborPort uint32

	CallTimeout   time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// ApplyDefaults fills unset timing fields.
func (c *Config) ApplyDefaults() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = DefaultReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = DefaultReconnectMax
	}
}

// Client is the reconnecting location-service adapter.
type Client struct {
	config   Config
	registry NeighborRegistry

	// dial is swappable for tests.
	dial func(ctx context.Context) (net.Conn, error)

	nextID uint32
}

// NewClient builds a location client. Run drives it.
func NewClient(config Config, registry NeighborRegistry) *Client {
	config.ApplyDefaults()
	c := &Client{config: config, registry: registry}
	c.dial = func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", c.config.Endpoint)
	}
	return c
}

// Run connects, registers and consumes neighborhood updates until ctx is
// cancelled, reconnecting with exponential backoff on any failure.
func (c *Client) Run(ctx context.Context) {
	delay := c.config.ReconnectBase
	for ctx.Err() == nil {
		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Location service session ended, reconnecting",
			"endpoint", c.config.Endpoint, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.config.ReconnectMax {
			delay = c.config.ReconnectMax
		}
	}
}

// runSession performs one connect → register → subscribe → consume cycle.
// A nil error means ctx was cancelled and the record was deregistered.
func (c *Client) runSession(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to dial location service at %s: %w", c.config.Endpoint, err)
	}
	defer func() { _ = conn.Close() }()

	// Cancellation unblocks the read loop through the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.register(ctx, conn); err != nil {
		return err
	}
	snapshot, err := c.subscribe(ctx, conn)
	if err != nil {
		return err
	}
	logger.Info("Registered with location service",
		"endpoint", c.config.Endpoint, "neighbours", len(snapshot.Nodes))

	for _, node := range snapshot.Nodes {
		c.applyUpsert(ctx, node)
	}

	for {
		msg, err := loc.ReadMessage(conn)
		if err != nil {
			if ctx.Err() != nil {
				c.deregister(conn)
				return nil
			}
			return fmt.Errorf("location service read failed: %w", err)
		}
		c.handlePush(ctx, conn, msg)
	}
}

func (c *Client) register(ctx context.Context, conn net.Conn) error {
	resp, err := c.call(ctx, conn, &loc.Request{RegisterService: &loc.RegisterServiceRequest{
		NodeID:   c.config.NodeID,
		Location: &loc.GPSLocation{Latitude: c.config.Latitude, Longitude: c.config.Longitude},
		Services: []*loc.ServiceInfo{
			{Type: loc.ServiceTypePrimary, Port: c.config.PrimaryPort},
			{Type: loc.ServiceTypeSrNeighbor, Port: c.config.SrNeighborPort},
		},
	}})
	if err != nil {
		return fmt.Errorf("failed to register with location service: %w", err)
	}
	if !resp.Status.IsOk() {
		return fmt.Errorf("location service refused registration: status %d (%s)", resp.Status, resp.Details)
	}
	return nil
}

func (c *Client) subscribe(ctx context.Context, conn net.Conn) (*loc.GetNeighbourNodesResponse, error) {
	resp, err := c.call(ctx, conn, &loc.Request{GetNeighbourNodes: &loc.GetNeighbourNodesRequest{
		KeepAliveAndSendUpdates: true,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to neighborhood updates: %w", err)
	}
	if !resp.Status.IsOk() || resp.GetNeighbourNodes == nil {
		return nil, fmt.Errorf("location service refused subscription: status %d (%s)", resp.Status, resp.Details)
	}
	return resp.GetNeighbourNodes, nil
}

// deregister withdraws the record on clean shutdown, best effort.
func (c *Client) deregister(conn net.Conn) {
	c.nextID++
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.CallTimeout))
	err := loc.WriteMessage(conn, &loc.Message{
		ID:      c.nextID,
		Request: &loc.Request{DeregisterService: &loc.DeregisterServiceRequest{NodeID: c.config.NodeID}},
	})
	if err != nil {
		logger.Debug("Location service deregistration failed", "error", err)
	}
}

// call sends one request and waits for its response. Pushes that arrive
// while waiting are served in between.
func (c *Client) call(ctx context.Context, conn net.Conn, req *loc.Request) (*loc.Response, error) {
	c.nextID++
	id := c.nextID

	if err := conn.SetDeadline(time.Now().Add(c.config.CallTimeout)); err != nil {
		return nil, err
	}
	defer func() {
		// Leave the cancellation deadline in place once ctx is done.
		if ctx.Err() == nil {
			_ = conn.SetDeadline(time.Time{})
		}
	}()

	if err := loc.WriteMessage(conn, &loc.Message{ID: id, Request: req}); err != nil {
		return nil, err
	}
	for {
		msg, err := loc.ReadMessage(conn)
		if err != nil {
			return nil, err
		}
		if msg.Request != nil {
			c.handlePush(ctx, conn, msg)
			continue
		}
		if msg.Response == nil || msg.ID != id {
			return nil, fmt.Errorf("location service sent an unpaired response (id %d, want %d)", msg.ID, id)
		}
		return msg.Response, nil
	}
}

// handlePush serves one server-initiated message and acknowledges it.
func (c *Client) handlePush(ctx context.Context, conn net.Conn, msg *loc.Message) {
	status := loc.StatusOk
	if msg.Request != nil && msg.Request.NeighbourhoodChanged != nil {
		c.applyChanges(ctx, msg.Request.NeighbourhoodChanged.Changes)
	} else {
		status = loc.StatusErrorUnsupported
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.CallTimeout))
	err := loc.WriteMessage(conn, &loc.Message{ID: msg.ID, Response: &loc.Response{Status: status}})
	if err != nil {
		logger.Debug("Failed to acknowledge location push", "error", err)
	}
}

func (c *Client) applyChanges(ctx context.Context, changes []*loc.NeighbourhoodChange) {
	for _, change := range changes {
		switch {
		case change.AddedNode != nil:
			c.applyUpsert(ctx, change.AddedNode)
		case change.UpdatedNode != nil:
			c.applyUpsert(ctx, change.UpdatedNode)
		case len(change.RemovedNodeID) > 0:
			if err := c.registry.RemoveNeighbor(ctx, change.RemovedNodeID); err != nil {
				logger.Warn("Failed to remove neighbor",
					"server_id", fmt.Sprintf("%x", change.RemovedNodeID), "error", err)
			}
		}
	}
}

// applyUpsert registers one announced node as a neighbor. Nodes that do not
// expose both profile roles, and our own record echoed back, are ignored.
func (c *Client) applyUpsert(ctx context.Context, node *loc.NodeInfo) {
	if bytes.Equal(node.NodeID, c.config.NodeID) {
		return
	}
	primaryPort, ok := node.ServicePort(loc.ServiceTypePrimary)
	if !ok {
		return
	}
	srNeighborPort, ok := node.ServicePort(loc.ServiceTypeSrNeighbor)
	if !ok {
		logger.Debug("Ignoring node without a neighbor role",
			"server_id", fmt.Sprintf("%x", node.NodeID))
		return
	}

	data := &neighborhood.AddNeighborData{
		IPAddress:      node.IPAddress,
		PrimaryPort:    primaryPort,
		SrNeighborPort: srNeighborPort,
	}
	if node.Location != nil {
		data.Latitude = node.Location.Latitude
		data.Longitude = node.Location.Longitude
	}
	if err := c.registry.AddNeighbor(ctx, node.NodeID, data); err != nil {
		logger.Warn("Failed to add neighbor",
			"server_id", fmt.Sprintf("%x", node.NodeID), "error", err)
	}
}
