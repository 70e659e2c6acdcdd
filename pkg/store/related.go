package store

import (
	"context"

	"github.com/iop-labs/profiled/pkg/store/models"
)

// ============================================
// RELATED IDENTITY OPERATIONS
// ============================================

// CreateRelatedIdentity stores a relationship card under its application
// slot. Returns models.ErrAlreadyExists when the slot is taken.
func (s *Store) CreateRelatedIdentity(ctx context.Context, r *models.RelatedIdentity) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// DeleteRelatedIdentity removes the card in one application slot.
// Returns models.ErrNotFound if the slot is empty.
func (s *Store) DeleteRelatedIdentity(ctx context.Context, identityID, applicationID []byte) error {
	res := s.db.WithContext(ctx).
		Where("identity_id = ? AND application_id = ?", identityID, applicationID).
		Delete(&models.RelatedIdentity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteRelatedIdentities removes every card of one identity; hosting
// cancellation reaping cascades through here.
func (s *Store) DeleteRelatedIdentities(ctx context.Context, identityID []byte) error {
	return s.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Delete(&models.RelatedIdentity{}).Error
}

// ListRelatedIdentities returns the cards applied to one identity,
// optionally filtered by card type and issuer network id.
func (s *Store) ListRelatedIdentities(ctx context.Context, identityID []byte, cardType string, issuerID []byte) ([]*models.RelatedIdentity, error) {
	q := s.db.WithContext(ctx).Where("identity_id = ?", identityID)
	if cardType != "" {
		q = q.Where("type = ?", cardType)
	}
	var rows []*models.RelatedIdentity
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	if issuerID == nil {
		return rows, nil
	}
	// Issuer filtering is by SHA256 of the stored issuer key, which is not
	// a column; filter the (per-identity, ≤100 row) slice in memory.
	filtered := rows[:0]
	for _, row := range rows {
		if issuerMatches(row.IssuerPublicKey, issuerID) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// CountRelatedIdentities returns the number of cards applied to an identity.
func (s *Store) CountRelatedIdentities(ctx context.Context, identityID []byte) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.RelatedIdentity{}).
		Where("identity_id = ?", identityID).
		Count(&count).Error
	return count, err
}
