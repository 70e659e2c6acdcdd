package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/iop-labs/profiled/pkg/store/models"
)

// ============================================
// NEIGHBOR IDENTITY OPERATIONS
// ============================================

// UpsertNeighborIdentity inserts or replaces a mirrored profile, keyed by
// (hosting server, identity).
func (s *Store) UpsertNeighborIdentity(ctx context.Context, n *models.NeighborIdentity) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "hosting_server_id"}, {Name: "identity_id"}},
			UpdateAll: true,
		}).
		Create(n).Error
}

// GetNeighborIdentity fetches one mirrored profile.
func (s *Store) GetNeighborIdentity(ctx context.Context, serverID, identityID []byte) (*models.NeighborIdentity, error) {
	var n models.NeighborIdentity
	err := s.db.WithContext(ctx).
		Where("hosting_server_id = ? AND identity_id = ?", serverID, identityID).
		First(&n).Error
	if err != nil {
		return nil, convertNotFoundError(err)
	}
	return &n, nil
}

// DeleteNeighborIdentity removes one mirrored profile.
func (s *Store) DeleteNeighborIdentity(ctx context.Context, serverID, identityID []byte) error {
	return s.db.WithContext(ctx).
		Where("hosting_server_id = ? AND identity_id = ?", serverID, identityID).
		Delete(&models.NeighborIdentity{}).Error
}

// DeleteNeighborIdentities purges every profile mirrored from one neighbor.
func (s *Store) DeleteNeighborIdentities(ctx context.Context, serverID []byte) error {
	return s.db.WithContext(ctx).
		Where("hosting_server_id = ?", serverID).
		Delete(&models.NeighborIdentity{}).Error
}

// ReplaceNeighborIdentities atomically swaps a neighbor's mirror for the
// given rows. Neighborhood initialization commits through here, so partially
// received profile sets are never visible.
func (s *Store) ReplaceNeighborIdentities(ctx context.Context, serverID []byte, rows []*models.NeighborIdentity) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if err := tx.DeleteNeighborIdentities(ctx, serverID); err != nil {
			return err
		}
		for _, row := range rows {
			if err := tx.db.WithContext(ctx).Create(row).Error; err != nil {
				if isUniqueConstraintError(err) {
					return models.ErrAlreadyExists
				}
				return err
			}
		}
		return nil
	})
}

// RetainNeighborIdentities deletes every profile of serverID whose identity
// id is not in keep. A RefreshProfiles push reconciles the mirror this way.
func (s *Store) RetainNeighborIdentities(ctx context.Context, serverID []byte, keep [][]byte) error {
	q := s.db.WithContext(ctx).Where("hosting_server_id = ?", serverID)
	if len(keep) > 0 {
		q = q.Where("identity_id NOT IN ?", keep)
	}
	return q.Delete(&models.NeighborIdentity{}).Error
}

// ListNeighborIdentities returns the whole neighbor-profile mirror in
// insertion order.
func (s *Store) ListNeighborIdentities(ctx context.Context) ([]*models.NeighborIdentity, error) {
	var rows []*models.NeighborIdentity
	err := s.db.WithContext(ctx).Order("id").Find(&rows).Error
	return rows, err
}

// CountNeighborIdentities returns the number of profiles mirrored from one
// neighbor.
func (s *Store) CountNeighborIdentities(ctx context.Context, serverID []byte) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.NeighborIdentity{}).
		Where("hosting_server_id = ?", serverID).
		Count(&count).Error
	return count, err
}
