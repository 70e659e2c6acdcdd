package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewInMemory()
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

func TestHostedIdentityCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h := newHosted(t, "alice")
	require.NoError(t, s.CreateHostedIdentity(ctx, h))

	// Duplicate identity id is rejected.
	dup := &models.HostedIdentity{IdentityID: h.IdentityID, PublicKey: h.PublicKey}
	assert.ErrorIs(t, s.CreateHostedIdentity(ctx, dup), models.ErrAlreadyExists)

	got, err := s.GetHostedIdentity(ctx, h.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
	assert.False(t, got.Initialized)

	got.Initialized = true
	got.Name = "alice2"
	require.NoError(t, s.SaveHostedIdentity(ctx, got))

	count, err := s.CountActiveHosted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = s.GetHostedIdentity(ctx, []byte("nope"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCountActiveHostedExcludesCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newHosted(t, "a")
	b := newHosted(t, "b")
	require.NoError(t, s.CreateHostedIdentity(ctx, a))
	require.NoError(t, s.CreateHostedIdentity(ctx, b))

	expires := time.Now().Add(-time.Minute)
	b.Cancelled = true
	b.CancelledExpiresAt = &expires
	require.NoError(t, s.SaveHostedIdentity(ctx, b))

	count, err := s.CountActiveHosted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	expired, err := s.ListExpiredCancelledHosted(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, b.IdentityID, expired[0].IdentityID)
}

func TestActionQueueFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	target := []byte("server-1-network-identifier-0000")
	for i := 0; i < 3; i++ {
		require.NoError(t, s.EnqueueAction(ctx, &models.NeighborhoodAction{
			ServerID:  target,
			Type:      models.ActionAddProfile,
			Timestamp: time.Now(),
		}))
	}

	// Head is the lowest id; deleting it promotes the next action.
	var lastID uint64
	for i := 0; i < 3; i++ {
		head, err := s.HeadAction(ctx, target, true)
		require.NoError(t, err)
		assert.Greater(t, head.ID, lastID)
		lastID = head.ID
		require.NoError(t, s.DeleteAction(ctx, head.ID))
	}

	_, err := s.HeadAction(ctx, target, true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestActionQueueDirections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	target := []byte("server-2-network-identifier-0000")
	require.NoError(t, s.EnqueueAction(ctx, &models.NeighborhoodAction{
		ServerID: target, Type: models.ActionAddNeighbor, Timestamp: time.Now(),
	}))
	require.NoError(t, s.EnqueueAction(ctx, &models.NeighborhoodAction{
		ServerID: target, Type: models.ActionAddProfile, Timestamp: time.Now(),
	}))

	nHead, err := s.HeadAction(ctx, target, false)
	require.NoError(t, err)
	assert.Equal(t, models.ActionAddNeighbor, nHead.Type)

	fHead, err := s.HeadAction(ctx, target, true)
	require.NoError(t, err)
	assert.Equal(t, models.ActionAddProfile, fHead.Type)

	refs, err := s.ListQueuedTargets(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestInitializationSentinelSuspendsQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	target := []byte("server-3-network-identifier-0000")
	require.NoError(t, s.EnqueueAction(ctx, &models.NeighborhoodAction{
		ServerID: target, Type: models.ActionInitializationInProgress, Timestamp: time.Now(),
	}))
	require.NoError(t, s.EnqueueAction(ctx, &models.NeighborhoodAction{
		ServerID: target, Type: models.ActionAddProfile, Timestamp: time.Now(),
	}))

	suspended, err := s.HasInitializationInProgress(ctx, target)
	require.NoError(t, err)
	assert.True(t, suspended)

	head, err := s.HeadAction(ctx, target, true)
	require.NoError(t, err)
	assert.Equal(t, models.ActionInitializationInProgress, head.Type)

	n, err := s.DeleteActionsOfType(ctx, target, models.ActionInitializationInProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	suspended, err = s.HasInitializationInProgress(ctx, target)
	require.NoError(t, err)
	assert.False(t, suspended)
}

func TestReplaceNeighborIdentitiesIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	server := []byte("server-4-network-identifier-0000")
	old := &models.NeighborIdentity{
		HostingServerID: server,
		IdentityID:      []byte("identity-old-0000000000000000000"),
		PublicKey:       make([]byte, identity.PublicKeySize),
		Name:            "old",
	}
	require.NoError(t, s.UpsertNeighborIdentity(ctx, old))

	fresh := make([]*models.NeighborIdentity, 2)
	for i := range fresh {
		fresh[i] = &models.NeighborIdentity{
			HostingServerID: server,
			IdentityID:      []byte(fmt.Sprintf("identity-new-%019d", i)),
			PublicKey:       make([]byte, identity.PublicKeySize),
			Name:            fmt.Sprintf("new-%d", i),
		}
	}
	require.NoError(t, s.ReplaceNeighborIdentities(ctx, server, fresh))

	count, err := s.CountNeighborIdentities(ctx, server)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = s.GetNeighborIdentity(ctx, server, old.IdentityID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFollowerLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := &models.Follower{PeerContact: models.PeerContact{
		NetworkID:       []byte("follower-network-identifier-0000"),
		IPAddress:       "192.0.2.1",
		PrimaryPort:     16987,
		SrNeighborPort:  16990,
		LastRefreshTime: time.Now(),
	}}
	require.NoError(t, s.CreateFollower(ctx, f))
	assert.ErrorIs(t, s.CreateFollower(ctx, &models.Follower{PeerContact: f.PeerContact}),
		models.ErrAlreadyExists)

	initialized, err := s.ListInitializedFollowers(ctx)
	require.NoError(t, err)
	assert.Empty(t, initialized)

	require.NoError(t, s.SetFollowerInitialized(ctx, f.NetworkID, true))
	initialized, err = s.ListInitializedFollowers(ctx)
	require.NoError(t, err)
	assert.Len(t, initialized, 1)
}

func TestIPNSSequenceNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var prev uint64
	for i := 0; i < 5; i++ {
		seq, err := s.NextIPNSSequence(ctx)
		require.NoError(t, err)
		assert.Greater(t, seq, prev)
		prev = seq
	}
}

func TestLoadOrCreateServerKeyPairIsStable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kp1, err := s.LoadOrCreateServerKeyPair(ctx)
	require.NoError(t, err)
	kp2, err := s.LoadOrCreateServerKeyPair(ctx)
	require.NoError(t, err)
	assert.Equal(t, kp1.NetworkID(), kp2.NetworkID())
}

func TestLockSetOrderingAndRelease(t *testing.T) {
	ls := NewLockSet()

	release, err := ls.Acquire(HostingAgreementLock, SettingsLock)
	require.NoError(t, err)

	// Same locks in any order are unavailable while held.
	_, err = ls.Acquire(SettingsLock)
	assert.ErrorIs(t, err, ErrLockContended)

	release()

	release2, err := ls.Acquire(SettingsLock, HostingAgreementLock)
	require.NoError(t, err)
	release2()
}
