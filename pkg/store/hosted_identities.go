package store

import (
	"context"
	"time"

	"github.com/iop-labs/profiled/pkg/store/models"
)

// ============================================
// HOSTED IDENTITY OPERATIONS
// ============================================

// CreateHostedIdentity inserts a new hosted identity row.
// Returns models.ErrAlreadyExists if the identity id is already present.
func (s *Store) CreateHostedIdentity(ctx context.Context, h *models.HostedIdentity) error {
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetHostedIdentity fetches a hosted identity by its network identifier.
func (s *Store) GetHostedIdentity(ctx context.Context, identityID []byte) (*models.HostedIdentity, error) {
	var h models.HostedIdentity
	if err := s.db.WithContext(ctx).Where("identity_id = ?", identityID).First(&h).Error; err != nil {
		return nil, convertNotFoundError(err)
	}
	return &h, nil
}

// SaveHostedIdentity persists every field of an existing row.
func (s *Store) SaveHostedIdentity(ctx context.Context, h *models.HostedIdentity) error {
	return s.db.WithContext(ctx).Save(h).Error
}

// DeleteHostedIdentity removes a hosted identity row.
func (s *Store) DeleteHostedIdentity(ctx context.Context, identityID []byte) error {
	return s.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Delete(&models.HostedIdentity{}).Error
}

// CountActiveHosted returns the number of non-cancelled hosted identities,
// the quantity the MaxHostedIdentities cap bounds.
func (s *Store) CountActiveHosted(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.HostedIdentity{}).
		Where("cancelled = ?", false).
		Count(&count).Error
	return count, err
}

// ListInitializedHosted returns all initialized, non-cancelled identities in
// insertion order. The search engine and the snapshot streamer consume this.
func (s *Store) ListInitializedHosted(ctx context.Context) ([]*models.HostedIdentity, error) {
	var rows []*models.HostedIdentity
	err := s.db.WithContext(ctx).
		Where("initialized = ? AND cancelled = ?", true, false).
		Order("id").
		Find(&rows).Error
	return rows, err
}

// ListInitializedHostedPage returns one page of initialized, non-cancelled
// identities for batched snapshot streaming.
func (s *Store) ListInitializedHostedPage(ctx context.Context, offset, limit int) ([]*models.HostedIdentity, error) {
	var rows []*models.HostedIdentity
	err := s.db.WithContext(ctx).
		Where("initialized = ? AND cancelled = ?", true, false).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListInitializedHostedIDs returns the network identifiers of every
// initialized, non-cancelled identity; the RefreshProfiles action carries
// this list.
func (s *Store) ListInitializedHostedIDs(ctx context.Context) ([][]byte, error) {
	var ids [][]byte
	err := s.db.WithContext(ctx).
		Model(&models.HostedIdentity{}).
		Where("initialized = ? AND cancelled = ?", true, false).
		Order("id").
		Pluck("identity_id", &ids).Error
	return ids, err
}

// ListExpiredCancelledHosted returns cancelled rows whose retention window
// has passed; the maintenance sweeper reaps them.
func (s *Store) ListExpiredCancelledHosted(ctx context.Context, now time.Time) ([]*models.HostedIdentity, error) {
	var rows []*models.HostedIdentity
	err := s.db.WithContext(ctx).
		Where("cancelled = ? AND cancelled_expires_at IS NOT NULL AND cancelled_expires_at < ?", true, now).
		Find(&rows).Error
	return rows, err
}
