package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/iop-labs/profiled/pkg/store/models"
)

// ============================================
// NEIGHBOR OPERATIONS
// ============================================

// UpsertNeighbor inserts or updates a neighbor row keyed by network id.
func (s *Store) UpsertNeighbor(ctx context.Context, n *models.Neighbor) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "network_id"}},
			UpdateAll: true,
		}).
		Create(n).Error
}

// GetNeighbor fetches a neighbor by network id.
func (s *Store) GetNeighbor(ctx context.Context, networkID []byte) (*models.Neighbor, error) {
	var n models.Neighbor
	if err := s.db.WithContext(ctx).Where("network_id = ?", networkID).First(&n).Error; err != nil {
		return nil, convertNotFoundError(err)
	}
	return &n, nil
}

// DeleteNeighbor removes a neighbor row.
func (s *Store) DeleteNeighbor(ctx context.Context, networkID []byte) error {
	return s.db.WithContext(ctx).
		Where("network_id = ?", networkID).
		Delete(&models.Neighbor{}).Error
}

// ListNeighbors returns all neighbor rows.
func (s *Store) ListNeighbors(ctx context.Context) ([]*models.Neighbor, error) {
	var rows []*models.Neighbor
	err := s.db.WithContext(ctx).Order("id").Find(&rows).Error
	return rows, err
}

// ListInitializedNeighborIDs returns the network ids of neighbors whose
// initialization completed; search includes only their mirrored profiles.
func (s *Store) ListInitializedNeighborIDs(ctx context.Context) ([][]byte, error) {
	var ids [][]byte
	err := s.db.WithContext(ctx).
		Model(&models.Neighbor{}).
		Where("initialized = ?", true).
		Pluck("network_id", &ids).Error
	return ids, err
}

// SetNeighborInitialized flips the initialization flag and refresh lease of
// a neighbor.
func (s *Store) SetNeighborInitialized(ctx context.Context, networkID []byte, initialized bool) error {
	return s.db.WithContext(ctx).
		Model(&models.Neighbor{}).
		Where("network_id = ?", networkID).
		Updates(map[string]any{
			"initialized":       initialized,
			"last_refresh_time": time.Now(),
		}).Error
}

// TouchNeighborRefresh renews a neighbor's refresh lease.
func (s *Store) TouchNeighborRefresh(ctx context.Context, networkID []byte) error {
	return s.db.WithContext(ctx).
		Model(&models.Neighbor{}).
		Where("network_id = ?", networkID).
		Update("last_refresh_time", time.Now()).Error
}

// ListExpiredNeighbors returns neighbors whose refresh lease lapsed before
// cutoff; the maintenance sweeper removes them and purges their mirror.
func (s *Store) ListExpiredNeighbors(ctx context.Context, cutoff time.Time) ([]*models.Neighbor, error) {
	var rows []*models.Neighbor
	err := s.db.WithContext(ctx).
		Where("last_refresh_time < ?", cutoff).
		Find(&rows).Error
	return rows, err
}

// ============================================
// FOLLOWER OPERATIONS
// ============================================

// CreateFollower inserts a follower row.
// Returns models.ErrAlreadyExists if the peer is already a follower.
func (s *Store) CreateFollower(ctx context.Context, f *models.Follower) error {
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetFollower fetches a follower by network id.
func (s *Store) GetFollower(ctx context.Context, networkID []byte) (*models.Follower, error) {
	var f models.Follower
	if err := s.db.WithContext(ctx).Where("network_id = ?", networkID).First(&f).Error; err != nil {
		return nil, convertNotFoundError(err)
	}
	return &f, nil
}

// DeleteFollower removes a follower row.
func (s *Store) DeleteFollower(ctx context.Context, networkID []byte) error {
	return s.db.WithContext(ctx).
		Where("network_id = ?", networkID).
		Delete(&models.Follower{}).Error
}

// ListFollowers returns all follower rows.
func (s *Store) ListFollowers(ctx context.Context) ([]*models.Follower, error) {
	var rows []*models.Follower
	err := s.db.WithContext(ctx).Order("id").Find(&rows).Error
	return rows, err
}

// ListInitializedFollowers returns followers that completed initialization;
// only these receive incremental profile actions.
func (s *Store) ListInitializedFollowers(ctx context.Context) ([]*models.Follower, error) {
	var rows []*models.Follower
	err := s.db.WithContext(ctx).
		Where("initialized = ?", true).
		Order("id").
		Find(&rows).Error
	return rows, err
}

// SetFollowerInitialized flips the initialization flag and refresh lease of
// a follower.
func (s *Store) SetFollowerInitialized(ctx context.Context, networkID []byte, initialized bool) error {
	return s.db.WithContext(ctx).
		Model(&models.Follower{}).
		Where("network_id = ?", networkID).
		Updates(map[string]any{
			"initialized":       initialized,
			"last_refresh_time": time.Now(),
		}).Error
}

// TouchFollowerRefresh renews a follower's refresh lease.
func (s *Store) TouchFollowerRefresh(ctx context.Context, networkID []byte) error {
	return s.db.WithContext(ctx).
		Model(&models.Follower{}).
		Where("network_id = ?", networkID).
		Update("last_refresh_time", time.Now()).Error
}

// ListExpiredFollowers returns followers whose refresh lease lapsed before
// cutoff.
func (s *Store) ListExpiredFollowers(ctx context.Context, cutoff time.Time) ([]*models.Follower, error) {
	var rows []*models.Follower
	err := s.db.WithContext(ctx).
		Where("last_refresh_time < ?", cutoff).
		Find(&rows).Error
	return rows, err
}
