package hosting

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/imagestore"
	"github.com/iop-labs/profiled/pkg/neighborhood"
	"github.com/iop-labs/profiled/pkg/profile"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// UpdateProfile applies a field-masked profile delta to a hosted identity.
//
// The first update transitions the row uninitialized → initialized and must
// supply the full profile (version, name, location at minimum). Image
// payloads are verified against their declared hashes and committed to the
// content-addressed store before the row mutation; the database transaction
// also enqueues one AddProfile (first update) or ChangeProfile (subsequent)
// action per initialized follower, unless NoPropagation is set.
//
// Concurrent updates of the same identity serialize on the identity's row
// lock and are applied in arrival order, each producing its own follower
// actions.
func (s *Service) UpdateProfile(ctx context.Context, identityID []byte, req *iop.UpdateProfileRequest) error {
	unlock := s.store.Locks().AcquireBlocking(store.IdentityLockName(identityID))
	defer unlock()

	var addedImages, replacedImages [][]byte
	firstInit := false

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		row, err := tx.GetHostedIdentity(ctx, identityID)
		if errors.Is(err, models.ErrNotFound) {
			return ErrNotHosted
		}
		if err != nil {
			return err
		}
		if row.Cancelled {
			return ErrCancelled
		}

		firstInit = !row.Initialized
		if firstInit {
			if err := requireFullProfile(req); err != nil {
				return err
			}
		}

		if err := s.checkImageSizes(req); err != nil {
			return err
		}

		info := row.Profile()
		if err := applyDelta(info, req); err != nil {
			return err
		}
		if err := info.Validate(); err != nil {
			return err
		}
		if !info.VerifySignature(req.ProfileSignature) {
			return fmt.Errorf("%w: profile signature", ErrSignature)
		}

		added, replaced, err := s.commitImages(ctx, row, info, req)
		if err != nil {
			return err
		}
		addedImages, replacedImages = added, replaced

		row.ApplyProfile(info, req.ProfileSignature)
		row.Initialized = true
		if err := tx.SaveHostedIdentity(ctx, row); err != nil {
			return err
		}

		if req.NoPropagation {
			return nil
		}
		actionType := models.ActionChangeProfile
		if firstInit {
			actionType = models.ActionAddProfile
		}
		return neighborhood.EnqueueFollowerProfileAction(ctx, tx, actionType,
			identityID, neighborhood.NewProfileData(info, req.ProfileSignature))
	})
	if err != nil {
		// Roll back image objects committed for this update.
		s.deleteImages(ctx, addedImages...)
		return err
	}

	// The row no longer references the replaced objects.
	s.deleteImages(ctx, replacedImages...)

	logger.Info("Profile updated",
		"identity_id", fmt.Sprintf("%x", identityID), "first_init", firstInit)
	return nil
}

// checkImageSizes enforces the configured payload cap before any hashing or
// staging work happens.
func (s *Service) checkImageSizes(req *iop.UpdateProfileRequest) error {
	max := s.config.MaxImageBytes
	if max <= 0 {
		return nil
	}
	if req.SetProfileImage && len(req.ProfileImage) > max {
		return &ValidationError{Field: "profileImage"}
	}
	if req.SetThumbnailImage && len(req.ThumbnailImage) > max {
		return &ValidationError{Field: "thumbnailImage"}
	}
	return nil
}

// requireFullProfile enforces the first-initialization rule: the entire
// profile must be supplied in one request.
func requireFullProfile(req *iop.UpdateProfileRequest) error {
	switch {
	case !req.SetVersion:
		return &ValidationError{Field: "setVersion"}
	case !req.SetName:
		return &ValidationError{Field: "setName"}
	case !req.SetLocation:
		return &ValidationError{Field: "setLocation"}
	}
	return nil
}

// applyDelta writes the masked request fields into the profile value.
func applyDelta(info *profile.Info, req *iop.UpdateProfileRequest) error {
	if req.SetVersion {
		info.Version = req.Version
	}
	if req.SetName {
		info.Name = req.Name
	}
	if req.SetType {
		info.Type = req.Type
	}
	if req.SetLocation {
		info.Location = profile.Location{Latitude: req.Latitude, Longitude: req.Longitude}
	}
	if req.SetExtraData {
		info.ExtraData = req.ExtraData
	}
	if req.SetProfileImage {
		if err := checkImageField(req.ProfileImageHash, req.ProfileImage, "profileImage"); err != nil {
			return err
		}
		info.ProfileImageHash = req.ProfileImageHash
	}
	if req.SetThumbnailImage {
		if err := checkImageField(req.ThumbnailImageHash, req.ThumbnailImage, "thumbnailImage"); err != nil {
			return err
		}
		info.ThumbnailImageHash = req.ThumbnailImageHash
	}
	return nil
}

// checkImageField validates one masked image field: an empty hash clears the
// image, otherwise the payload must be present and hash to the declared
// address.
func checkImageField(hash, data []byte, field string) error {
	if len(hash) == 0 {
		if len(data) != 0 {
			return &ValidationError{Field: field}
		}
		return nil
	}
	if err := imagestore.VerifyHash(data, hash); err != nil {
		return &ValidationError{Field: field}
	}
	return nil
}

// commitImages stores the new image payloads and reports which objects were
// added and which previously referenced objects the update replaced.
func (s *Service) commitImages(
	ctx context.Context,
	row *models.HostedIdentity,
	info *profile.Info,
	req *iop.UpdateProfileRequest,
) (added, replaced [][]byte, err error) {
	type change struct {
		set     bool
		oldHash []byte
		newHash []byte
		data    []byte
	}
	changes := []change{
		{req.SetProfileImage, row.ProfileImageHash, info.ProfileImageHash, req.ProfileImage},
		{req.SetThumbnailImage, row.ThumbnailImageHash, info.ThumbnailImageHash, req.ThumbnailImage},
	}

	for _, c := range changes {
		if !c.set || bytes.Equal(c.oldHash, c.newHash) {
			continue
		}
		if len(c.newHash) > 0 {
			if _, err := s.images.Put(ctx, c.data); err != nil {
				s.deleteImages(ctx, added...)
				return nil, nil, fmt.Errorf("failed to store image: %w", err)
			}
			added = append(added, c.newHash)
		}
		if len(c.oldHash) > 0 {
			replaced = append(replaced, c.oldHash)
		}
	}
	return added, replaced, nil
}
