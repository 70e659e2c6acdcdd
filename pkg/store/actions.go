package store

import (
	"context"
	"time"

	"github.com/iop-labs/profiled/pkg/store/models"
)

// ============================================
// NEIGHBORHOOD ACTION QUEUE OPERATIONS
// ============================================

// EnqueueAction appends an action to its target's queue. The auto-increment
// primary key is the queue position.
func (s *Store) EnqueueAction(ctx context.Context, a *models.NeighborhoodAction) error {
	return s.db.WithContext(ctx).Create(a).Error
}

// GetAction fetches one action by id.
func (s *Store) GetAction(ctx context.Context, id uint64) (*models.NeighborhoodAction, error) {
	var a models.NeighborhoodAction
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, convertNotFoundError(err)
	}
	return &a, nil
}

// DeleteAction removes a completed or cancelled action.
func (s *Store) DeleteAction(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&models.NeighborhoodAction{}, id).Error
}

// SetActionExecuteAfter reschedules an action after a delivery failure.
func (s *Store) SetActionExecuteAfter(ctx context.Context, id uint64, executeAfter time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.NeighborhoodAction{}).
		Where("id = ?", id).
		Update("execute_after", executeAfter).Error
}

// directionCondition returns the SQL fragment selecting one queue direction.
func directionCondition(follower bool) (string, int) {
	if follower {
		return "type >= ?", models.FollowerActionThreshold
	}
	return "type < ?", models.FollowerActionThreshold
}

// HeadAction returns the earliest action of a target's queue in one
// direction, or models.ErrNotFound when the queue is empty. Within a queue
// actions always dispatch in id order, so only the head is ever eligible.
func (s *Store) HeadAction(ctx context.Context, serverID []byte, follower bool) (*models.NeighborhoodAction, error) {
	cond, threshold := directionCondition(follower)
	var a models.NeighborhoodAction
	err := s.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Where(cond, threshold).
		Order("id").
		First(&a).Error
	if err != nil {
		return nil, convertNotFoundError(err)
	}
	return &a, nil
}

// ListQueuedTargets returns the distinct (serverID, direction) queues that
// currently hold at least one action.
func (s *Store) ListQueuedTargets(ctx context.Context) ([]QueueRef, error) {
	var rows []*models.NeighborhoodAction
	if err := s.db.WithContext(ctx).
		Select("server_id", "type").
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var refs []QueueRef
	for _, row := range rows {
		ref := QueueRef{ServerID: row.ServerID, Follower: row.Type.TargetsFollower()}
		key := ref.key()
		if !seen[key] {
			seen[key] = true
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// QueueRef identifies one logical FIFO: a target peer and a direction.
type QueueRef struct {
	ServerID []byte
	Follower bool
}

func (q QueueRef) key() string {
	dir := "n"
	if q.Follower {
		dir = "f"
	}
	return dir + string(q.ServerID)
}

// CountQueueActions returns the number of pending actions in one queue.
func (s *Store) CountQueueActions(ctx context.Context, serverID []byte, follower bool) (int64, error) {
	cond, threshold := directionCondition(follower)
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.NeighborhoodAction{}).
		Where("server_id = ?", serverID).
		Where(cond, threshold).
		Count(&count).Error
	return count, err
}

// DeleteQueue drops every pending action of one queue. Used when a target
// exceeds its failure budget and the pairing is abandoned.
func (s *Store) DeleteQueue(ctx context.Context, serverID []byte, follower bool) error {
	cond, threshold := directionCondition(follower)
	return s.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Where(cond, threshold).
		Delete(&models.NeighborhoodAction{}).Error
}

// DeleteActionsOfType removes every pending action of one type for a target.
// The worker uses this to cancel a pending AddNeighbor in place when a
// RemoveNeighbor arrives for a neighbor that never finished initializing.
func (s *Store) DeleteActionsOfType(ctx context.Context, serverID []byte, t models.ActionType) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("server_id = ? AND type = ?", serverID, t).
		Delete(&models.NeighborhoodAction{})
	return res.RowsAffected, res.Error
}

// HasInitializationInProgress reports whether a follower queue is suspended
// by an InitializationProcessInProgress sentinel.
func (s *Store) HasInitializationInProgress(ctx context.Context, serverID []byte) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.NeighborhoodAction{}).
		Where("server_id = ? AND type = ?", serverID, models.ActionInitializationInProgress).
		Count(&count).Error
	return count > 0, err
}
