package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
)

// DefaultHandshakeTimeout bounds the TLS handshake on encrypted roles.
const DefaultHandshakeTimeout = 10 * time.Second

// BaseConfig holds configuration common to all role adapters.
type BaseConfig struct {
	// BindAddress is the IP address to bind to.
	// Empty string or "0.0.0.0" binds to all interfaces.
	BindAddress string

	// Port is the TCP port to listen on.
	Port int

	// MaxConnections limits the number of concurrent client connections.
	// 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout is the maximum duration to wait for active connections
	// to complete during graceful shutdown.
	ShutdownTimeout time.Duration

	// TLS, when non-nil, wraps every accepted connection in a server-side
	// TLS session. The handshake is deadline-bounded by HandshakeTimeout.
	// Peer certificates are not validated: identities travel in-band,
	// Ed25519-signed, not via PKI.
	TLS *tls.Config

	// HandshakeTimeout bounds the TLS handshake.
	// 0 means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
}

// MetricsRecorder allows role adapters to record connection lifecycle
// metrics. Nil means no metrics are collected (zero overhead).
type MetricsRecorder interface {
	RecordConnectionAccepted(role string)
	RecordConnectionClosed(role string)
	RecordConnectionForceClosed(role string)
	SetActiveConnections(role string, count int32)
}

// BaseAdapter provides shared TCP/TLS lifecycle management for role adapters.
//
// Every role listener embeds this struct and delegates listener management,
// graceful shutdown, connection tracking and TLS establishment to it. The
// role-specific request handling is injected via ConnectionFactory.
//
// Thread safety:
// All exported methods are safe for concurrent use. The shutdown mechanism
// uses sync.Once so Stop() is idempotent.
type BaseAdapter struct {
	// Config holds the shared configuration (bind address, port, limits,
	// timeouts, TLS material).
	Config BaseConfig

	// roleName is the human-readable role name for logging
	// (e.g. "primary", "customer").
	roleName string

	// Metrics is an optional recorder for connection lifecycle metrics.
	Metrics MetricsRecorder

	// listener is closed during shutdown to stop accepting new connections.
	listener net.Listener

	// activeConns tracks serve goroutines for graceful shutdown.
	activeConns sync.WaitGroup

	// shutdownOnce ensures shutdown is only initiated once.
	shutdownOnce sync.Once

	// Shutdown signals that graceful shutdown has been initiated.
	Shutdown chan struct{}

	// ConnCount tracks the current number of active connections.
	ConnCount atomic.Int32

	// connSemaphore limits concurrent connections when MaxConnections > 0.
	connSemaphore chan struct{}

	// ShutdownCtx is cancelled during shutdown to abort in-flight requests.
	ShutdownCtx context.Context

	// CancelRequests cancels ShutdownCtx during shutdown.
	CancelRequests context.CancelFunc

	// ActiveConnections maps remote address to net.Conn for forced closure
	// and read interruption during shutdown.
	ActiveConnections sync.Map

	// ListenerReady is closed when the listener is accepting connections.
	// Used by tests to synchronize with server startup.
	ListenerReady chan struct{}

	listenerMu sync.RWMutex
}

// NewBaseAdapter creates a BaseAdapter for the named role. The adapter is
// created in a stopped state; call ServeWithFactory to start.
func NewBaseAdapter(config BaseConfig, role string) *BaseAdapter {
	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &BaseAdapter{
		Config:         config,
		roleName:       role,
		Shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancelRequests,
		ListenerReady:  make(chan struct{}),
	}
}

// ServeWithFactory runs the shared accept loop, delegating to factory for
// role-specific connection handling.
//
// On encrypted roles the TLS handshake runs in the connection's own
// goroutine under HandshakeTimeout, so a stalled handshake never blocks the
// accept loop. The factory only ever sees established connections.
func (b *BaseAdapter) ServeWithFactory(
	ctx context.Context,
	factory ConnectionFactory,
	onClose OnConnectionClose,
) error {
	listenAddr := fmt.Sprintf("%s:%d", b.Config.BindAddress, b.Config.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to create %s listener on port %d: %w", b.roleName, b.Config.Port, err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	close(b.ListenerReady)

	logger.Info(b.roleName+" role listening", "port", b.Config.Port, "tls", b.Config.TLS != nil)

	go func() {
		<-ctx.Done()
		b.initiateShutdown()
	}()

	for {
		if b.connSemaphore != nil {
			select {
			case b.connSemaphore <- struct{}{}:
			case <-b.Shutdown:
				return b.gracefulShutdown()
			}
		}

		tcpConn, err := b.listener.Accept()
		if err != nil {
			if b.connSemaphore != nil {
				<-b.connSemaphore
			}
			select {
			case <-b.Shutdown:
				return b.gracefulShutdown()
			default:
				logger.Debug("Error accepting "+b.roleName+" connection", "error", err)
				continue
			}
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", "error", err)
			}
		}

		b.activeConns.Add(1)
		b.ConnCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		b.ActiveConnections.Store(connAddr, tcpConn)

		currentConns := b.ConnCount.Load()
		if b.Metrics != nil {
			b.Metrics.RecordConnectionAccepted(b.roleName)
			b.Metrics.SetActiveConnections(b.roleName, currentConns)
		}

		logger.Debug(b.roleName+" connection accepted",
			"address", tcpConn.RemoteAddr(), "active", currentConns)

		go func(addr string, raw net.Conn) {
			defer func() {
				if onClose != nil {
					onClose(addr)
				}
				b.ActiveConnections.Delete(addr)
				b.activeConns.Done()
				b.ConnCount.Add(-1)
				if b.connSemaphore != nil {
					<-b.connSemaphore
				}
				if b.Metrics != nil {
					b.Metrics.RecordConnectionClosed(b.roleName)
					b.Metrics.SetActiveConnections(b.roleName, b.ConnCount.Load())
				}
				logger.Debug(b.roleName+" connection closed",
					"address", addr, "active", b.ConnCount.Load())
			}()

			conn := raw
			if b.Config.TLS != nil {
				tlsConn, err := b.establishTLS(raw, addr)
				if err != nil {
					_ = raw.Close()
					return
				}
				// Track the TLS session so forced closure tears down the
				// record layer, not just the socket.
				b.ActiveConnections.Store(addr, tlsConn)
				conn = tlsConn
			}

			factory.NewConnection(conn).Serve(b.ShutdownCtx)
			_ = conn.Close()
		}(connAddr, tcpConn)
	}
}

// establishTLS runs the server-side handshake under the handshake deadline.
func (b *BaseAdapter) establishTLS(raw net.Conn, addr string) (*tls.Conn, error) {
	tlsConn := tls.Server(raw, b.Config.TLS)
	if err := tlsConn.SetDeadline(time.Now().Add(b.Config.HandshakeTimeout)); err != nil {
		return nil, err
	}
	if err := tlsConn.Handshake(); err != nil {
		logger.Debug(b.roleName+" TLS handshake failed", "address", addr, "error", err)
		return nil, err
	}
	if err := tlsConn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (signals accept loop to stop)
//  2. Close listener (stops accepting new connections)
//  3. Interrupt blocking reads on all active connections
//  4. Cancel ShutdownCtx (signals in-flight requests to abort)
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.roleName + " shutdown initiated")

		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.roleName+" listener", "error", err)
			}
		}
		b.listenerMu.Unlock()

		b.interruptBlockingReads()
		b.CancelRequests()
	})
}

// interruptBlockingReads sets a short deadline on all active connections to
// unblock pending reads during shutdown.
func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	b.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline on connection",
					"address", key, "error", err)
			}
		}
		return true
	})
}

// gracefulShutdown waits for active connections to complete or timeout.
func (b *BaseAdapter) gracefulShutdown() error {
	activeCount := b.ConnCount.Load()
	logger.Info(b.roleName+" graceful shutdown: waiting for active connections",
		"active", activeCount, "timeout", b.Config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(b.roleName + " graceful shutdown complete")
		return nil

	case <-time.After(b.Config.ShutdownTimeout):
		remaining := b.ConnCount.Load()
		logger.Warn(b.roleName+" shutdown timeout exceeded - forcing closure",
			"active", remaining, "timeout", b.Config.ShutdownTimeout)
		b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.roleName, remaining)
	}
}

// forceCloseConnections closes all active connections to accelerate shutdown.
func (b *BaseAdapter) forceCloseConnections() {
	closedCount := 0
	b.ActiveConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", "address", addr, "error", err)
		} else {
			closedCount++
			if b.Metrics != nil {
				b.Metrics.RecordConnectionForceClosed(b.roleName)
			}
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed connections", "role", b.roleName, "count", closedCount)
	}
}

// Stop initiates graceful shutdown of the role listener.
//
// Safe to call multiple times and concurrently with ServeWithFactory. The
// context bounds the wait for active connections; nil falls back to the
// configured ShutdownTimeout.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(b.roleName + " graceful shutdown complete")
		return nil
	case <-ctx.Done():
		remaining := b.ConnCount.Load()
		logger.Warn(b.roleName+" shutdown context cancelled",
			"active", remaining, "error", ctx.Err())
		b.forceCloseConnections()
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.ConnCount.Load()
}

// GetListenerAddr returns the address the listener is bound to. Blocks until
// the listener is ready, making it safe for tests.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the configured TCP port.
func (b *BaseAdapter) Port() int {
	return b.Config.Port
}

// Role returns the human-readable role name.
func (b *BaseAdapter) Role() string {
	return b.roleName
}
