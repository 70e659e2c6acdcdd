package adapter

import (
	"context"
	"net"
)

// Adapter is one listening role of the server. Each role binds its own port
// (primary plaintext, the client and neighbor roles TLS) and owns the
// request/state matrix served on it.
//
// Lifecycle:
//  1. Creation: the adapter is built with its role configuration.
//  2. Startup: Serve() binds the listener and blocks until shutdown.
//  3. Shutdown: Stop() initiates graceful shutdown with timeout.
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve binds the role listener and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	// stop accepting, interrupt blocking reads, give in-flight requests a
	// bounded grace period, then close remaining sockets. Returns nil on
	// graceful shutdown.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Safe to call multiple times and
	// concurrently with Serve. The context bounds how long Stop waits for
	// active connections to drain.
	Stop(ctx context.Context) error

	// Role returns the human-readable role name for logging and metrics.
	Role() string

	// Port returns the TCP port the adapter is listening on.
	Port() int
}

// ConnectionHandler is one accepted connection. Serve blocks until the
// connection is closed or the context is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory creates connection handlers for accepted (and, on
// encrypted roles, TLS-established) connections. Role adapters implement
// this and pass themselves to BaseAdapter.ServeWithFactory.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// OnConnectionClose is an optional callback invoked when a connection's
// serve goroutine completes, before connection tracking is released. Role
// adapters use it for cleanup such as unregistering a checked-in customer.
type OnConnectionClose func(addr string)
