// Package hosting implements the hosted-identity lifecycle: capacity-bounded
// registration, profile initialization and updates, cancellation with a
// retention window, profile lookup, and relationship cards.
//
// Every mutation runs inside one store transaction together with the
// follower replication actions it causes, under the named locks of the
// concurrency model: HostingAgreementLock for capacity admission and a
// per-identity row lock for profile mutation.
package hosting

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/imagestore"
	"github.com/iop-labs/profiled/pkg/neighborhood"
	"github.com/iop-labs/profiled/pkg/profile"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// Defaults of the hosting policy.
const (
	// DefaultMaxHostedIdentities caps concurrent non-cancelled hostings.
	DefaultMaxHostedIdentities = 20_000

	// DefaultCancellationRetention is how long a cancelled hosting row is
	// kept around for redirects before the sweeper reaps it.
	DefaultCancellationRetention = 24 * time.Hour

	// DefaultMaxRelatedIdentities caps relationship cards per identity.
	DefaultMaxRelatedIdentities = 100
)

// Sentinel errors of the hosting domain. The role adapter maps these to wire
// statuses.
var (
	// ErrQuotaExceeded signals that a capacity cap (hosted identities or
	// relationship cards) is exhausted.
	ErrQuotaExceeded = errors.New("hosting quota exceeded")

	// ErrAlreadyHosted signals a hosting agreement for a key that is
	// already hosted and not cancelled.
	ErrAlreadyHosted = errors.New("identity is already hosted")

	// ErrNotHosted signals an operation on an identity this server has
	// never hosted.
	ErrNotHosted = errors.New("identity is not hosted on this server")

	// ErrCancelled signals a mutation of a cancelled hosting agreement.
	ErrCancelled = errors.New("hosting agreement is cancelled")

	// ErrUninitialized signals a read of a profile that was never
	// initialized.
	ErrUninitialized = errors.New("profile is not initialized")

	// ErrSignature signals a profile or card signature that does not
	// verify.
	ErrSignature = errors.New("signature verification failed")
)

// ValidationError names the request field that failed validation; the role
// adapter surfaces the field name in the response Details.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for field %s", e.Field)
}

// Config holds the hosting policy knobs.
type Config struct {
	// MaxHostedIdentities caps concurrent non-cancelled hostings.
	MaxHostedIdentities int

	// CancellationRetention is the redirect window of cancelled rows.
	CancellationRetention time.Duration

	// MaxRelatedIdentities caps relationship cards per hosted identity.
	MaxRelatedIdentities int

	// MaxImageBytes caps a single image payload in a profile update.
	// 0 means no cap.
	MaxImageBytes int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxHostedIdentities <= 0 {
		c.MaxHostedIdentities = DefaultMaxHostedIdentities
	}
	if c.CancellationRetention <= 0 {
		c.CancellationRetention = DefaultCancellationRetention
	}
	if c.MaxRelatedIdentities <= 0 {
		c.MaxRelatedIdentities = DefaultMaxRelatedIdentities
	}
}

// Service manages hosted identities.
type Service struct {
	store  *store.Store
	images imagestore.Store
	config Config
}

// NewService creates the hosted-identity manager.
func NewService(st *store.Store, images imagestore.Store, config Config) *Service {
	config.ApplyDefaults()
	return &Service{store: st, images: images, config: config}
}

// MaxHostedIdentities returns the configured capacity cap.
func (s *Service) MaxHostedIdentities() int {
	return s.config.MaxHostedIdentities
}

// HostingAgreement reserves a hosting slot for a public key.
//
// The admission check and the row insert run under HostingAgreementLock in
// one transaction, so the at-most-cap invariant holds for any interleaving.
// A cancelled row of the same key is replaced; a live one fails with
// ErrAlreadyHosted.
func (s *Service) HostingAgreement(ctx context.Context, pub ed25519.PublicKey, identityType string) (time.Time, error) {
	if len(pub) != identity.PublicKeySize {
		return time.Time{}, &ValidationError{Field: "identityPublicKey"}
	}
	if len(identityType) > profile.MaxTypeLength {
		return time.Time{}, &ValidationError{Field: "identityType"}
	}

	identityID := identity.FromPublicKey(pub)

	release, err := s.store.Locks().Acquire(store.HostingAgreementLock)
	if err != nil {
		return time.Time{}, err
	}
	defer release()

	validFrom := time.Now()
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		existing, err := tx.GetHostedIdentity(ctx, identityID.Bytes())
		switch {
		case err == nil && !existing.Cancelled:
			return ErrAlreadyHosted
		case err == nil && existing.Cancelled:
			// A cancelled agreement of the same key is replaced in place.
			if err := tx.DeleteRelatedIdentities(ctx, identityID.Bytes()); err != nil {
				return err
			}
			if err := tx.DeleteHostedIdentity(ctx, identityID.Bytes()); err != nil {
				return err
			}
		case !errors.Is(err, models.ErrNotFound):
			return err
		}

		count, err := tx.CountActiveHosted(ctx)
		if err != nil {
			return err
		}
		if count >= int64(s.config.MaxHostedIdentities) {
			return ErrQuotaExceeded
		}

		return tx.CreateHostedIdentity(ctx, &models.HostedIdentity{
			IdentityID: identityID.Bytes(),
			PublicKey:  pub,
			Type:       identityType,
			Version:    []byte{0, 0, 0},
		})
	})
	if err != nil {
		return time.Time{}, err
	}

	logger.Info("Hosting agreement created",
		"identity_id", identityID.Hex(), "type", identityType)
	return validFrom, nil
}

// CancelHosting cancels the hosting agreement of an identity: marks the row
// cancelled for the retention window, records the optional new hosting
// server for redirects, and enqueues a RemoveProfile action to every
// initialized follower in the same transaction. Cancelling an already
// cancelled identity is a no-op.
func (s *Service) CancelHosting(ctx context.Context, identityID, newHostingServerID []byte) error {
	unlock := s.store.Locks().AcquireBlocking(store.IdentityLockName(identityID))
	defer unlock()

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		row, err := tx.GetHostedIdentity(ctx, identityID)
		if errors.Is(err, models.ErrNotFound) {
			return ErrNotHosted
		}
		if err != nil {
			return err
		}
		if row.Cancelled {
			return nil
		}

		expires := time.Now().Add(s.config.CancellationRetention)
		row.Cancelled = true
		row.CancelledExpiresAt = &expires
		row.HostingServerID = newHostingServerID
		if err := tx.SaveHostedIdentity(ctx, row); err != nil {
			return err
		}

		if !row.Initialized {
			return nil
		}
		return neighborhood.EnqueueFollowerProfileAction(
			ctx, tx, models.ActionRemoveProfile, identityID, nil)
	})
	if err != nil {
		return err
	}

	logger.Info("Hosting cancelled", "identity_id", fmt.Sprintf("%x", identityID),
		"moved_to", fmt.Sprintf("%x", newHostingServerID))
	return nil
}

// ProfileView is the result of a profile lookup.
type ProfileView struct {
	// IsHosted reports whether the profile is currently served here. False
	// for cancelled identities; HostingServerID then points at the new
	// host when the identity moved.
	IsHosted        bool
	HostingServerID []byte

	Profile   *profile.Info
	Signature []byte

	ProfileImage   []byte
	ThumbnailImage []byte
}

// GetProfileInformation returns the signed profile of a hosted identity and,
// on request, its image payloads. For a cancelled identity the view carries
// only the redirect; ErrNotHosted means the server never hosted the id.
func (s *Service) GetProfileInformation(ctx context.Context, identityID []byte, includeImage, includeThumbnail bool) (*ProfileView, error) {
	row, err := s.store.GetHostedIdentity(ctx, identityID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotHosted
	}
	if err != nil {
		return nil, err
	}

	if row.Cancelled {
		return &ProfileView{IsHosted: false, HostingServerID: row.HostingServerID}, nil
	}
	if !row.Initialized {
		return nil, ErrUninitialized
	}

	view := &ProfileView{
		IsHosted:  true,
		Profile:   row.Profile(),
		Signature: row.Signature,
	}
	if includeImage && len(row.ProfileImageHash) > 0 {
		if view.ProfileImage, err = s.images.Get(ctx, row.ProfileImageHash); err != nil {
			return nil, fmt.Errorf("failed to load profile image: %w", err)
		}
	}
	if includeThumbnail && len(row.ThumbnailImageHash) > 0 {
		if view.ThumbnailImage, err = s.images.Get(ctx, row.ThumbnailImageHash); err != nil {
			return nil, fmt.Errorf("failed to load thumbnail image: %w", err)
		}
	}
	return view, nil
}

// ExpireCancelled reaps cancelled hosting rows whose retention window has
// passed, cascading to their relationship cards and stored images. Returns
// the number of rows reaped. Idempotent; the maintenance sweeper runs it
// periodically.
func (s *Service) ExpireCancelled(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.ListExpiredCancelledHosted(ctx, now)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, row := range expired {
		err := s.store.WithTx(ctx, func(tx *store.Store) error {
			if err := tx.DeleteRelatedIdentities(ctx, row.IdentityID); err != nil {
				return err
			}
			return tx.DeleteHostedIdentity(ctx, row.IdentityID)
		})
		if err != nil {
			return reaped, fmt.Errorf("failed to reap identity %x: %w", row.IdentityID, err)
		}
		s.deleteImages(ctx, row.ProfileImageHash, row.ThumbnailImageHash)
		reaped++
	}

	if reaped > 0 {
		logger.Info("Expired cancelled hostings reaped", "count", reaped)
	}
	return reaped, nil
}

// deleteImages removes image objects, best effort. The store is content
// addressed and reaping runs repeatedly, so a failed delete is retried the
// next sweep at worst.
func (s *Service) deleteImages(ctx context.Context, hashes ...[]byte) {
	for _, h := range hashes {
		if len(h) == 0 {
			continue
		}
		if err := s.images.Delete(ctx, h); err != nil {
			logger.Warn("Failed to delete image", "hash", fmt.Sprintf("%x", h), "error", err)
		}
	}
}
