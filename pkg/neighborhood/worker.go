package neighborhood

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/profile"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

const (
	// DefaultPollInterval is how often the worker scans for eligible queues.
	DefaultPollInterval = 5 * time.Second

	// backoffBase doubles per consecutive failure up to backoffMax.
	backoffBase = 30 * time.Second
	backoffMax  = time.Hour

	// maxConsecutiveFailures is the per-queue failure budget; once spent,
	// the pairing is abandoned and its queue dropped.
	maxConsecutiveFailures = 12
)

// errStaleTarget marks an action whose target row disappeared between
// enqueue and dispatch; the action is dropped, not retried.
var errStaleTarget = errors.New("action target no longer exists")

// Worker drains the neighborhood action queues. Queues progress in parallel
// with each other but strictly in order within themselves; one delivery
// failure parks the whole queue until its backoff elapses.
type Worker struct {
	service  *Service
	store    *store.Store
	interval time.Duration

	// Metrics is an optional recorder for queue outcomes. Nil means no
	// metrics are collected (zero overhead).
	Metrics QueueMetrics

	mu       sync.Mutex
	failures map[string]int
	active   map[string]bool

	wg sync.WaitGroup
}

// NewWorker returns a worker over the service's store. A non-positive
// interval selects the default.
func NewWorker(service *Service, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Worker{
		service:  service,
		store:    service.store,
		interval: interval,
		failures: make(map[string]int),
		active:   make(map[string]bool),
	}
}

// Run scans and dispatches until ctx is cancelled, then waits for in-flight
// queue runs to finish.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Tick(ctx)
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick dispatches every queue that has eligible work and is not already
// being processed. Exposed for tests and for flush-on-demand.
func (w *Worker) Tick(ctx context.Context) {
	refs, err := w.store.ListQueuedTargets(ctx)
	if err != nil {
		logger.Error("Failed to list action queues", "error", err)
		return
	}

	for _, ref := range refs {
		if !w.tryActivate(ref) {
			continue
		}
		w.wg.Add(1)
		go func(ref store.QueueRef) {
			defer w.wg.Done()
			defer w.deactivate(ref)
			w.processQueue(ctx, ref)
		}(ref)
	}
}

// Wait blocks until all in-flight queue runs finish.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// processQueue walks one queue head-first until it empties, suspends or
// fails. A single connection to the target is reused across the run.
func (w *Worker) processQueue(ctx context.Context, ref store.QueueRef) {
	var conn peerConn
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	for ctx.Err() == nil {
		head, err := w.store.HeadAction(ctx, ref.ServerID, ref.Follower)
		if errors.Is(err, models.ErrNotFound) {
			w.resetFailures(ref)
			return
		}
		if err != nil {
			logger.Error("Failed to read queue head", "error", err)
			return
		}
		// The sentinel parks a follower queue while its snapshot streams.
		if head.Type == models.ActionInitializationInProgress {
			return
		}
		if head.ExecuteAfter != nil && time.Now().Before(*head.ExecuteAfter) {
			return
		}

		err = w.execute(ctx, head, &conn)
		switch {
		case err == nil:
			w.complete(ctx, ref, head)

		case errors.Is(err, errStaleTarget):
			logger.Debug("Dropping action for vanished target",
				"action", head.Type.String(), "server_id", fmt.Sprintf("%x", head.ServerID))
			w.complete(ctx, ref, head)

		case errors.Is(err, ErrPeerRejected):
			logger.Warn("Peer rejected action, dropping it",
				"action", head.Type.String(), "server_id", fmt.Sprintf("%x", head.ServerID))
			w.complete(ctx, ref, head)

		default:
			w.fail(ctx, ref, head, err)
			return
		}
	}
}

// QueueMetrics records action-queue outcomes. Nil disables collection.
type QueueMetrics interface {
	RecordActionCompleted(actionType string)
	RecordActionFailed(actionType string)
	RecordQueueAbandoned(follower bool)
}

// complete removes a dispatched action and clears the queue's failure count.
func (w *Worker) complete(ctx context.Context, ref store.QueueRef, a *models.NeighborhoodAction) {
	if err := w.store.DeleteAction(ctx, a.ID); err != nil {
		logger.Error("Failed to remove completed action", "error", err, "action_id", a.ID)
	}
	w.resetFailures(ref)
	if w.Metrics != nil {
		w.Metrics.RecordActionCompleted(a.Type.String())
	}
}

// fail reschedules the head with exponential backoff, abandoning the pairing
// once the failure budget is spent.
func (w *Worker) fail(ctx context.Context, ref store.QueueRef, a *models.NeighborhoodAction, cause error) {
	if w.Metrics != nil {
		w.Metrics.RecordActionFailed(a.Type.String())
	}
	count := w.recordFailure(ref)
	if count >= maxConsecutiveFailures {
		logger.Error("Failure budget spent, abandoning pairing",
			"server_id", fmt.Sprintf("%x", ref.ServerID),
			"follower", ref.Follower,
			"failures", count,
			"error", cause)
		w.abandon(ctx, ref)
		return
	}

	delay := backoffDelay(count)
	logger.Warn("Action dispatch failed, queue parked",
		"action", a.Type.String(),
		"server_id", fmt.Sprintf("%x", ref.ServerID),
		"attempt", count,
		"retry_in", delay,
		"error", cause)
	retryAt := time.Now().Add(delay)
	if err := w.store.SetActionExecuteAfter(ctx, a.ID, retryAt); err != nil {
		logger.Error("Failed to reschedule action", "error", err, "action_id", a.ID)
	}
}

// abandon drops the queue and severs the pairing in the failed direction.
func (w *Worker) abandon(ctx context.Context, ref store.QueueRef) {
	if w.Metrics != nil {
		w.Metrics.RecordQueueAbandoned(ref.Follower)
	}
	w.resetFailures(ref)
	if err := w.store.DeleteQueue(ctx, ref.ServerID, ref.Follower); err != nil {
		logger.Error("Failed to drop action queue", "error", err)
		return
	}
	if ref.Follower {
		if err := w.store.DeleteFollower(ctx, ref.ServerID); err != nil {
			logger.Error("Failed to remove unreachable follower", "error", err)
		}
		return
	}
	if err := w.service.purgeNeighbor(ctx, ref.ServerID); err != nil {
		logger.Error("Failed to purge unreachable neighbor", "error", err)
	}
}

// execute dispatches one action, lazily opening the target connection for
// the network-bound types.
func (w *Worker) execute(ctx context.Context, a *models.NeighborhoodAction, conn *peerConn) error {
	switch a.Type {
	case models.ActionAddNeighbor:
		var data AddNeighborData
		if err := DecodeActionData(a.AdditionalData, &data); err != nil {
			return fmt.Errorf("%w: %w", errStaleTarget, err)
		}
		return w.service.initializeFromNeighbor(ctx, a.ServerID, &data)

	case models.ActionRemoveNeighbor:
		return w.service.purgeNeighbor(ctx, a.ServerID)

	case models.ActionStopNeighborhoodUpdates:
		c, err := w.neighborConn(ctx, a.ServerID, conn)
		if err != nil {
			return err
		}
		return c.SendStop(ctx)

	case models.ActionAddProfile, models.ActionChangeProfile:
		item, err := profileItem(a)
		if err != nil {
			return err
		}
		c, err := w.followerConn(ctx, a.ServerID, conn)
		if err != nil {
			return err
		}
		return c.SendUpdate(ctx, []*iop.SharedProfileUpdateItem{item})

	case models.ActionRemoveProfile:
		c, err := w.followerConn(ctx, a.ServerID, conn)
		if err != nil {
			return err
		}
		return c.SendUpdate(ctx, []*iop.SharedProfileUpdateItem{{
			Delete: &iop.SharedProfileDeleteItem{IdentityNetworkID: a.TargetIdentityID},
		}})

	case models.ActionRefreshProfiles:
		var data RefreshProfilesData
		if err := DecodeActionData(a.AdditionalData, &data); err != nil {
			return fmt.Errorf("%w: %w", errStaleTarget, err)
		}
		c, err := w.followerConn(ctx, a.ServerID, conn)
		if err != nil {
			return err
		}
		return c.SendUpdate(ctx, []*iop.SharedProfileUpdateItem{{
			Refresh: &iop.SharedProfileRefreshAllItem{IdentityNetworkIDs: data.IdentityIDs},
		}})

	default:
		return fmt.Errorf("%w: unknown action type %d", errStaleTarget, a.Type)
	}
}

// profileItem rebuilds the wire item of an AddProfile or ChangeProfile
// action from its snapshot.
func profileItem(a *models.NeighborhoodAction) (*iop.SharedProfileUpdateItem, error) {
	var data ProfileData
	if err := DecodeActionData(a.AdditionalData, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", errStaleTarget, err)
	}
	info, err := profile.FromCanonical(data.CanonicalProfile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errStaleTarget, err)
	}
	signed := info.ToWire(data.Signature)

	if a.Type == models.ActionAddProfile {
		return &iop.SharedProfileUpdateItem{Add: &iop.SharedProfileAddItem{Profile: signed}}, nil
	}
	return &iop.SharedProfileUpdateItem{Change: &iop.SharedProfileChangeItem{Profile: signed}}, nil
}

// neighborConn returns the run's connection to a neighbor, dialing on first
// use.
func (w *Worker) neighborConn(ctx context.Context, serverID []byte, conn *peerConn) (peerConn, error) {
	if *conn != nil {
		return *conn, nil
	}
	n, err := w.store.GetNeighbor(ctx, serverID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, errStaleTarget
	}
	if err != nil {
		return nil, err
	}
	return w.openConn(ctx, n.IPAddress, n.SrNeighborPort, serverID, conn)
}

// followerConn returns the run's connection to a follower, dialing on first
// use.
func (w *Worker) followerConn(ctx context.Context, serverID []byte, conn *peerConn) (peerConn, error) {
	if *conn != nil {
		return *conn, nil
	}
	f, err := w.store.GetFollower(ctx, serverID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, errStaleTarget
	}
	if err != nil {
		return nil, err
	}
	return w.openConn(ctx, f.IPAddress, f.SrNeighborPort, serverID, conn)
}

func (w *Worker) openConn(ctx context.Context, ip string, port uint32, serverID []byte, conn *peerConn) (peerConn, error) {
	addr := net.JoinHostPort(ip, strconv.FormatUint(uint64(port), 10))
	c, err := w.service.dial(ctx, addr, serverID)
	if err != nil {
		return nil, err
	}
	*conn = c
	return c, nil
}

// tryActivate marks a queue as in flight; false when it already is.
func (w *Worker) tryActivate(ref store.QueueRef) bool {
	key := queueKey(ref)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active[key] {
		return false
	}
	w.active[key] = true
	return true
}

func (w *Worker) deactivate(ref store.QueueRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, queueKey(ref))
}

// recordFailure bumps and returns the queue's consecutive failure count.
// Counts live in memory only; a restart grants a fresh budget.
func (w *Worker) recordFailure(ref store.QueueRef) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[queueKey(ref)]++
	return w.failures[queueKey(ref)]
}

func (w *Worker) resetFailures(ref store.QueueRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failures, queueKey(ref))
}

func queueKey(ref store.QueueRef) string {
	dir := "neighbor"
	if ref.Follower {
		dir = "follower"
	}
	return fmt.Sprintf("%s/%x", dir, ref.ServerID)
}

// backoffDelay doubles per failure: 30s, 1m, 2m, ... capped at one hour.
func backoffDelay(failures int) time.Duration {
	d := backoffBase
	for i := 1; i < failures && d < backoffMax; i++ {
		d *= 2
	}
	if d > backoffMax {
		d = backoffMax
	}
	return d
}
