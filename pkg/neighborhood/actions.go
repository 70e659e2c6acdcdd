// Package neighborhood implements the profile replication fabric: the
// per-peer ordered action queue, the outbound initialization client, the
// inbound snapshot stream and the worker that drives pending actions to
// neighbors and followers.
package neighborhood

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iop-labs/profiled/pkg/profile"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// Action payloads. Every queued action carries a typed JSON snapshot of the
// data it needs, so replay is independent of any later mutation of the
// source row: the peer always receives the exact state at action creation
// time. The snapshot type is keyed by the action's Type column.

// AddNeighborData is the snapshot of an AddNeighbor action: the contact
// record of the neighbor to initialize from, as reported by the location
// service.
type AddNeighborData struct {
	IPAddress      string `json:"ipAddress"`
	PrimaryPort    uint32 `json:"primaryPort"`
	SrNeighborPort uint32 `json:"srNeighborPort"`
	Latitude       int32  `json:"latitude"`
	Longitude      int32  `json:"longitude"`
}

// ProfileData is the snapshot carried by AddProfile and ChangeProfile
// actions: the canonical profile encoding plus the identity's signature,
// exactly as the follower must re-verify them.
type ProfileData struct {
	CanonicalProfile []byte `json:"canonicalProfile"`
	Signature        []byte `json:"signature"`
}

// NewProfileData snapshots a profile for replication.
func NewProfileData(info *profile.Info, signature []byte) *ProfileData {
	return &ProfileData{
		CanonicalProfile: info.CanonicalBytes(),
		Signature:        signature,
	}
}

// RefreshProfilesData is the snapshot of a RefreshProfiles action: the full
// list of identity ids hosted at snapshot time.
type RefreshProfilesData struct {
	IdentityIDs [][]byte `json:"identityIds"`
}

// EncodeActionData serializes an action snapshot. Encoding with the standard
// library marshaller is canonical for these struct types (fixed field
// order), which keeps snapshots byte-stable across replays.
func EncodeActionData(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode action data: %w", err)
	}
	return string(data), nil
}

// DecodeActionData deserializes an action snapshot into dst.
func DecodeActionData(raw string, dst any) error {
	if raw == "" {
		return fmt.Errorf("action carries no data")
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode action data: %w", err)
	}
	return nil
}

// EnqueueFollowerProfileAction enqueues one profile replication action per
// initialized follower. It must be called inside the same transaction as
// the hosted-identity mutation that caused it; callers pass the
// transactional store view.
func EnqueueFollowerProfileAction(
	ctx context.Context,
	tx *store.Store,
	actionType models.ActionType,
	identityID []byte,
	data any,
) error {
	followers, err := tx.ListInitializedFollowers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list followers: %w", err)
	}
	if len(followers) == 0 {
		return nil
	}

	encoded, err := EncodeActionData(data)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, f := range followers {
		if err := tx.EnqueueAction(ctx, &models.NeighborhoodAction{
			ServerID:         f.NetworkID,
			Type:             actionType,
			TargetIdentityID: identityID,
			Timestamp:        now,
			AdditionalData:   encoded,
		}); err != nil {
			return fmt.Errorf("failed to enqueue %s for follower %x: %w", actionType, f.NetworkID, err)
		}
	}
	return nil
}
