// Package iop implements the role adapters of the profile protocol: one
// listener per role, each accepted socket served by a connection task that
// frames messages, tracks conversation state and dispatches to the domain
// services.
package iop

import (
	"context"
	"net"

	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/adapter"
	"github.com/iop-labs/profiled/pkg/hosting"
	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/neighborhood"
	"github.com/iop-labs/profiled/pkg/search"
	"github.com/iop-labs/profiled/pkg/store"
)

// Services bundles everything a connection needs to serve requests. One
// Services value is shared by all role adapters of a node.
type Services struct {
	Keys         *identity.KeyPair
	Store        *store.Store
	Hosting      *hosting.Service
	Search       *search.Engine
	Neighborhood *neighborhood.Service

	// Registry tracks the live customer connection of each checked-in
	// identity; a new CheckIn evicts the previous one.
	Registry *CheckInRegistry

	// Metrics is an optional recorder for request outcomes. Nil means no
	// metrics are collected (zero overhead).
	Metrics RequestMetrics

	// Roles is the role listing served by ListRoles on every port.
	Roles []*iop.ServerRoleInfo
}

// Adapter serves one protocol role. It reuses the shared TCP/TLS lifecycle
// of adapter.BaseAdapter and contributes the per-connection protocol loop.
type Adapter struct {
	*adapter.BaseAdapter

	role     iop.Role
	services *Services
}

// New creates the adapter for a role. Encrypted roles must carry TLS
// material in config.
func New(role iop.Role, config adapter.BaseConfig, services *Services) *Adapter {
	return &Adapter{
		BaseAdapter: adapter.NewBaseAdapter(config, role.String()),
		role:        role,
		services:    services,
	}
}

// Serve binds the role listener and blocks until shutdown.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.ServeWithFactory(ctx, a, nil)
}

// NewConnection builds the protocol handler for an accepted connection.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return newConnection(conn, a.role, a.services)
}
