//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// newPostgresStore starts a throwaway PostgreSQL container and opens the
// store against it. The SQLite test suite in pkg/store covers behavior;
// this suite proves the schema and queries hold on the other backend.
func newPostgresStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("profiled_test"),
		postgres.WithUsername("profiled_test"),
		postgres.WithPassword("profiled_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &store.Config{
		Type: store.DatabaseTypePostgres,
		Postgres: store.PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "profiled_test",
			User:     "profiled_test",
			Password: "profiled_test",
			SSLMode:  "disable",
		},
	}
	s, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newHosted(t *testing.T, name string) *models.HostedIdentity {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	id := kp.NetworkID()
	return &models.HostedIdentity{
		IdentityID: id.Bytes(),
		PublicKey:  kp.PublicKey,
		Version:    []byte{1, 0, 0},
		Name:       name,
	}
}

func TestPostgresHostedIdentityRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	h := newHosted(t, "alice")
	require.NoError(t, s.CreateHostedIdentity(ctx, h))

	dup := &models.HostedIdentity{IdentityID: h.IdentityID, PublicKey: h.PublicKey}
	assert.ErrorIs(t, s.CreateHostedIdentity(ctx, dup), models.ErrAlreadyExists)

	got, err := s.GetHostedIdentity(ctx, h.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, h.PublicKey, got.PublicKey)

	got.Initialized = true
	require.NoError(t, s.SaveHostedIdentity(ctx, got))

	count, err := s.CountActiveHosted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPostgresActionQueueOrdering(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	server := make([]byte, 32)
	server[0] = 7
	target := make([]byte, 32)
	target[0] = 9

	for range 3 {
		require.NoError(t, s.EnqueueAction(ctx, &models.NeighborhoodAction{
			ServerID:         server,
			Type:             models.ActionChangeProfile,
			TargetIdentityID: target,
			Timestamp:        time.Now(),
		}))
	}

	head, err := s.HeadAction(ctx, server, true)
	require.NoError(t, err)

	count, err := s.CountQueueActions(ctx, server, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Head stays fixed until it is deleted, then the next in line surfaces.
	require.NoError(t, s.DeleteAction(ctx, head.ID))
	next, err := s.HeadAction(ctx, server, true)
	require.NoError(t, err)
	assert.Greater(t, next.ID, head.ID)
}

func TestPostgresServerKeyPairPersists(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	first, err := s.LoadOrCreateServerKeyPair(ctx)
	require.NoError(t, err)
	second, err := s.LoadOrCreateServerKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.NetworkID(), second.NetworkID())
}

func TestPostgresIPNSSequenceMonotonic(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	prev := uint64(0)
	for range 5 {
		seq, err := s.NextIPNSSequence(ctx)
		require.NoError(t, err)
		assert.Greater(t, seq, prev)
		prev = seq
	}
}
