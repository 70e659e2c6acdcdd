package iop

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
)

const (
	// Idle read timeouts. Unauthenticated clients get one minute to make
	// progress; authenticated conversations may sit idle for ten.
	idleTimeoutUnauthenticated = 60 * time.Second
	idleTimeoutAuthenticated   = 10 * time.Minute

	writeTimeout = 30 * time.Second

	// evictionCloseDelay bounds how long an evicted customer connection may
	// linger before its socket is closed.
	evictionCloseDelay = time.Second
)

// Connection serves one accepted socket: an ordered read loop over the
// protocol framing, with writes serialized by a per-connection lock. All
// conversation state is confined to the serve goroutine.
type Connection struct {
	conn     net.Conn
	role     iop.Role
	services *Services

	conv    *conversation
	builder *iop.Builder
	connID  string

	writeMu sync.Mutex

	// evicted flips when another connection checks in with the same
	// identity; the next request is answered ErrorBadConversationState and
	// the socket closed.
	evicted atomic.Bool

	// checkedIn holds the identity occupying the registry slot, if any.
	checkedIn []byte
}

func newConnection(conn net.Conn, role iop.Role, services *Services) *Connection {
	return &Connection{
		conn:     conn,
		role:     role,
		services: services,
		conv:     &conversation{},
		builder:  iop.NewBuilder(),
		connID:   uuid.NewString(),
	}
}

// Serve runs the read loop until the peer disconnects, the context is
// cancelled, a protocol violation occurs or the connection is evicted.
func (c *Connection) Serve(ctx context.Context) {
	defer c.release()

	for ctx.Err() == nil {
		msg, err := c.read(c.idleTimeout())
		if err != nil {
			if errors.Is(err, iop.ErrProtocolViolation) {
				logger.Debug("Protocol violation, closing connection",
					"conn_id", c.connID, "role", c.role.String(), "error", err)
				_ = c.write(iop.ProtocolViolationResponse())
			}
			return
		}
		if !c.handle(ctx, msg) {
			return
		}
	}
}

// handle processes one inbound message; false closes the connection.
func (c *Connection) handle(ctx context.Context, msg *iop.Message) bool {
	if c.evicted.Load() {
		_ = c.write(iop.ErrorResponse(msg.ID, iop.StatusErrorBadConversationState))
		return false
	}

	switch {
	case msg.Request != nil && msg.Request.Single != nil:
		return c.write(c.handleSingle(msg.ID, msg.Request.Single)) == nil

	case msg.Request != nil && msg.Request.Conversation != nil:
		start := time.Now()
		resp, keepOpen := c.dispatch(ctx, msg.ID, msg.Request.Conversation)
		c.observe(msg.Request.Conversation, resp, time.Since(start))
		if resp != nil {
			if err := c.write(resp); err != nil {
				return false
			}
		}
		return keepOpen

	default:
		// Responses and server-request frames are never valid inbound here;
		// server-initiated exchanges read their replies inline.
		_ = c.write(iop.ProtocolViolationResponse())
		return false
	}
}

// handleSingle serves the conversation-less requests available on every role
// and in every state.
func (c *Connection) handleSingle(id uint32, req *iop.SingleRequest) *iop.Message {
	switch {
	case req.Ping != nil:
		return iop.PongResponse(id, req.Ping.Payload)
	case req.ListRoles != nil:
		return iop.SingleOkResponse(id, &iop.SingleResponse{
			ListRoles: &iop.ListRolesResponse{Roles: c.services.Roles},
		})
	default:
		return iop.ErrorResponse(id, iop.StatusErrorUnsupported)
	}
}

// RequestMetrics records per-request outcomes on the protocol roles.
// Nil disables collection.
type RequestMetrics interface {
	ObserveRequest(role, request, status string, duration time.Duration)
}

// observe reports one dispatched conversation request to the recorder.
// Handlers that stream their own responses report no status.
func (c *Connection) observe(req *iop.ConversationRequest, resp *iop.Message, d time.Duration) {
	m := c.services.Metrics
	if m == nil {
		return
	}
	status := "none"
	if resp != nil && resp.Response != nil {
		status = resp.Response.Status.String()
	}
	m.ObserveRequest(c.role.String(), req.PayloadName(), status, d)
}

// Evict flags the connection as superseded by a newer customer check-in.
// The next inbound request is refused; if none arrives, the read deadline
// closes the socket within evictionCloseDelay.
func (c *Connection) Evict() {
	c.evicted.Store(true)
	_ = c.conn.SetReadDeadline(time.Now().Add(evictionCloseDelay))
}

// release frees the customer registry slot when this connection still owns
// it.
func (c *Connection) release() {
	if c.checkedIn != nil {
		c.services.Registry.Release(c.checkedIn, c)
	}
}

func (c *Connection) idleTimeout() time.Duration {
	if c.conv.state.authenticated() {
		return idleTimeoutAuthenticated
	}
	return idleTimeoutUnauthenticated
}

// read reads one message under an idle deadline.
func (c *Connection) read(timeout time.Duration) (*iop.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	return iop.ReadMessage(c.conn)
}

// write sends one message under the connection's write lock.
func (c *Connection) write(msg *iop.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return iop.WriteMessage(c.conn, msg)
}
