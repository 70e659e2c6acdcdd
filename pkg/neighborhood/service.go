package neighborhood

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// DefaultInitializationTimeout bounds one full neighborhood initialization
// run, dial to commit.
const DefaultInitializationTimeout = 10 * time.Minute

// Config holds the service's own contact surface and tunables.
type Config struct {
	// PrimaryPort and SrNeighborPort are this server's listening ports,
	// announced to peers during initialization.
	PrimaryPort    uint32
	SrNeighborPort uint32

	InitializationTimeout time.Duration
}

// ApplyDefaults fills unset tunables.
func (c *Config) ApplyDefaults() {
	if c.InitializationTimeout <= 0 {
		c.InitializationTimeout = DefaultInitializationTimeout
	}
}

// peerConn is the slice of Client the service and worker need; tests swap in
// an in-memory fake through the dial hook.
type peerConn interface {
	SendUpdate(ctx context.Context, items []*iop.SharedProfileUpdateItem) error
	SendStop(ctx context.Context) error
	RunInitialization(ctx context.Context, primaryPort, srNeighborPort uint32, latitude, longitude int32) ([]*models.NeighborIdentity, error)
	ServerID() identity.NetworkID
	Close() error
}

type dialFunc func(ctx context.Context, addr string, expectedID []byte) (peerConn, error)

// PushFunc sends one server-initiated conversation request to the connected
// follower and waits for its acknowledgement. The adapter supplies it when
// serving a snapshot stream.
type PushFunc func(ctx context.Context, req *iop.ConversationRequest) error

// Service owns the neighbor and follower sets: it reacts to location events
// by queuing pairing actions, serves inbound initialization streams, and
// applies inbound incremental updates to the mirror.
type Service struct {
	store  *store.Store
	keys   *identity.KeyPair
	config Config
	dial   dialFunc

	mu        sync.Mutex
	latitude  int32
	longitude int32
}

// NewService returns a neighborhood service over st.
func NewService(st *store.Store, keys *identity.KeyPair, config Config) *Service {
	config.ApplyDefaults()
	s := &Service{store: st, keys: keys, config: config}
	s.dial = func(ctx context.Context, addr string, expectedID []byte) (peerConn, error) {
		return Dial(ctx, addr, s.keys, expectedID)
	}
	return s
}

// SetOwnLocation records the server's GPS position as reported by the
// location network; it is announced to peers during initialization.
func (s *Service) SetOwnLocation(latitude, longitude int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latitude, s.longitude = latitude, longitude
}

// OwnLocation returns the last recorded GPS position.
func (s *Service) OwnLocation() (latitude, longitude int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latitude, s.longitude
}

// AddNeighbor reacts to a neighborhood-changed event announcing a new peer:
// it queues an AddNeighbor action whose execution initializes the mirror
// from the peer. A peer already initialized only gets its contact refreshed.
func (s *Service) AddNeighbor(ctx context.Context, networkID []byte, data *AddNeighborData) error {
	release, err := s.store.Locks().Acquire(store.NeighborhoodLock)
	if err != nil {
		return err
	}
	defer release()

	existing, err := s.store.GetNeighbor(ctx, networkID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if existing != nil && existing.Initialized {
		existing.IPAddress = data.IPAddress
		existing.PrimaryPort = data.PrimaryPort
		existing.SrNeighborPort = data.SrNeighborPort
		existing.Latitude = data.Latitude
		existing.Longitude = data.Longitude
		return s.store.UpsertNeighbor(ctx, existing)
	}

	// Collapse a still-pending AddNeighbor for the same peer so contact
	// changes before initialization never replay stale snapshots.
	if _, err := s.store.DeleteActionsOfType(ctx, networkID, models.ActionAddNeighbor); err != nil {
		return err
	}

	encoded, err := EncodeActionData(data)
	if err != nil {
		return err
	}
	return s.store.EnqueueAction(ctx, &models.NeighborhoodAction{
		ServerID:       networkID,
		Type:           models.ActionAddNeighbor,
		Timestamp:      time.Now(),
		AdditionalData: encoded,
	})
}

// RemoveNeighbor reacts to a peer leaving the neighborhood. A pairing that
// never finished initializing is cancelled in place; an established one gets
// a StopNeighborhoodUpdates notification followed by the local purge, both
// through the peer's queue so they cannot overtake pending work.
func (s *Service) RemoveNeighbor(ctx context.Context, networkID []byte) error {
	release, err := s.store.Locks().Acquire(store.NeighborhoodLock)
	if err != nil {
		return err
	}
	defer release()

	cancelled, err := s.store.DeleteActionsOfType(ctx, networkID, models.ActionAddNeighbor)
	if err != nil {
		return err
	}

	_, err = s.store.GetNeighbor(ctx, networkID)
	if errors.Is(err, models.ErrNotFound) {
		if cancelled > 0 {
			logger.Debug("Cancelled pending neighbor pairing", "neighbor_id", fmt.Sprintf("%x", networkID))
			return nil
		}
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.store.EnqueueAction(ctx, &models.NeighborhoodAction{
		ServerID:  networkID,
		Type:      models.ActionStopNeighborhoodUpdates,
		Timestamp: now,
	}); err != nil {
		return err
	}
	return s.store.EnqueueAction(ctx, &models.NeighborhoodAction{
		ServerID:  networkID,
		Type:      models.ActionRemoveNeighbor,
		Timestamp: now,
	})
}

// RefreshFollowers queues a RefreshProfiles action for every initialized
// follower, carrying the current hosted identity set. The maintenance
// scheduler calls this periodically to renew the followers' mirror leases.
func (s *Service) RefreshFollowers(ctx context.Context) error {
	ids, err := s.store.ListInitializedHostedIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hosted identities: %w", err)
	}
	return EnqueueFollowerProfileAction(ctx, s.store, models.ActionRefreshProfiles, nil,
		&RefreshProfilesData{IdentityIDs: ids})
}

// HandleStartInitialization serves an inbound initialization request: the
// peer becomes a follower and receives the full hosted profile snapshot
// through push, batch by batch. Incremental actions for the new follower are
// queued behind a sentinel while the stream runs, so nothing the snapshot
// already contains is replayed out of order.
func (s *Service) HandleStartInitialization(
	ctx context.Context,
	followerID []byte,
	ipAddress string,
	req *iop.StartNeighborhoodInitializationRequest,
	push PushFunc,
) error {
	if err := s.registerFollower(ctx, followerID, ipAddress, req); err != nil {
		return err
	}

	streamErr := s.streamSnapshot(ctx, push)
	if streamErr == nil {
		streamErr = push(ctx, &iop.ConversationRequest{
			FinishNeighborhoodInitialization: &iop.FinishNeighborhoodInitializationRequest{},
		})
	}

	if streamErr != nil {
		// Roll the registration back so a retry starts clean.
		if _, err := s.store.DeleteActionsOfType(ctx, followerID, models.ActionInitializationInProgress); err != nil {
			logger.Error("Failed to clear initialization sentinel", "error", err)
		}
		if err := s.store.DeleteFollower(ctx, followerID); err != nil {
			logger.Error("Failed to remove follower after aborted initialization", "error", err)
		}
		return streamErr
	}

	if err := s.store.SetFollowerInitialized(ctx, followerID, true); err != nil {
		return err
	}
	if _, err := s.store.DeleteActionsOfType(ctx, followerID, models.ActionInitializationInProgress); err != nil {
		return err
	}
	logger.Info("Follower initialized", "follower_id", fmt.Sprintf("%x", followerID))
	return nil
}

// registerFollower replaces any previous registration of the peer and plants
// the queue sentinel.
func (s *Service) registerFollower(ctx context.Context, followerID []byte, ipAddress string, req *iop.StartNeighborhoodInitializationRequest) error {
	release, err := s.store.Locks().Acquire(store.NeighborhoodLock)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteFollower(ctx, followerID); err != nil {
		return err
	}
	if err := s.store.CreateFollower(ctx, &models.Follower{
		PeerContact: models.PeerContact{
			NetworkID:       followerID,
			IPAddress:       ipAddress,
			PrimaryPort:     req.PrimaryPort,
			SrNeighborPort:  req.SrNeighborPort,
			LastRefreshTime: time.Now(),
		},
	}); err != nil {
		return err
	}
	return s.store.EnqueueAction(ctx, &models.NeighborhoodAction{
		ServerID:  followerID,
		Type:      models.ActionInitializationInProgress,
		Timestamp: time.Now(),
	})
}

// streamSnapshot pushes the hosted snapshot in wire batches.
func (s *Service) streamSnapshot(ctx context.Context, push PushFunc) error {
	return HostedSnapshotBatches(ctx, s.store, func(batch []*iop.SharedProfileUpdateItem) error {
		return push(ctx, &iop.ConversationRequest{
			NeighborhoodSharedProfileUpdate: &iop.NeighborhoodSharedProfileUpdateRequest{Items: batch},
		})
	})
}

// HandleSharedProfileUpdate applies an inbound incremental batch from an
// initialized neighbor. Pushes from peers this server never paired with are
// rejected.
func (s *Service) HandleSharedProfileUpdate(ctx context.Context, neighborID []byte, items []*iop.SharedProfileUpdateItem) error {
	n, err := s.store.GetNeighbor(ctx, neighborID)
	if errors.Is(err, models.ErrNotFound) {
		return ErrUnknownPeer
	}
	if err != nil {
		return err
	}
	if !n.Initialized {
		return ErrUnknownPeer
	}
	return ApplySharedProfileUpdate(ctx, s.store, neighborID, items)
}

// HandleStopUpdates drops a follower that no longer wants this server's
// updates, together with its pending queue.
func (s *Service) HandleStopUpdates(ctx context.Context, followerID []byte) error {
	release, err := s.store.Locks().Acquire(store.NeighborhoodLock)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteQueue(ctx, followerID, true); err != nil {
		return err
	}
	return s.store.DeleteFollower(ctx, followerID)
}

// ExpireNeighbors removes neighbors whose refresh lease lapsed before
// cutoff: each gets a StopNeighborhoodUpdates notification queued and its
// mirror purged. Returns the number of expired neighbors.
func (s *Service) ExpireNeighbors(ctx context.Context, cutoff time.Time) (int, error) {
	expired, err := s.store.ListExpiredNeighbors(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, n := range expired {
		if err := s.RemoveNeighbor(ctx, n.NetworkID); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// purgeNeighbor removes the neighbor row, its mirrored profiles and any
// remaining queue entries.
func (s *Service) purgeNeighbor(ctx context.Context, networkID []byte) error {
	release, err := s.store.Locks().Acquire(store.NeighborhoodLock)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeleteNeighborIdentities(ctx, networkID); err != nil {
		return err
	}
	return s.store.DeleteNeighbor(ctx, networkID)
}
