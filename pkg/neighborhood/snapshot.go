package neighborhood

import (
	"context"
	"fmt"

	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/profile"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// MaxBatchSize is the maximum number of profiles one
// NeighborhoodSharedProfileUpdate batch may carry.
const MaxBatchSize = 1000

// HostedSnapshotBatches pages the server's initialized hosted identities
// into wire batches for the snapshot stream. The page walk reuses the
// store's insertion order, so a batch boundary never splits or duplicates a
// row as long as the caller drains the stream promptly.
func HostedSnapshotBatches(ctx context.Context, st *store.Store, visit func(batch []*iop.SharedProfileUpdateItem) error) error {
	for offset := 0; ; offset += MaxBatchSize {
		rows, err := st.ListInitializedHostedPage(ctx, offset, MaxBatchSize)
		if err != nil {
			return fmt.Errorf("failed to page hosted identities: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]*iop.SharedProfileUpdateItem, 0, len(rows))
		for _, row := range rows {
			batch = append(batch, &iop.SharedProfileUpdateItem{
				Add: &iop.SharedProfileAddItem{
					Profile: row.Profile().ToWire(row.Signature),
				},
			})
		}
		if err := visit(batch); err != nil {
			return err
		}
		if len(rows) < MaxBatchSize {
			return nil
		}
	}
}

// verifySharedProfile validates and verifies one received profile. Every
// record of the replication fabric is re-verified against its own public
// key before anything is persisted.
func verifySharedProfile(sp *iop.SignedProfile) (*profile.Info, []byte, error) {
	info, signature, err := profile.FromWire(sp)
	if err != nil {
		return nil, nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, nil, err
	}
	if !info.VerifySignature(signature) {
		return nil, nil, ErrBadProfileSignature
	}
	return info, signature, nil
}

// neighborRow converts a verified profile into a mirror row owned by
// serverID.
func neighborRow(serverID []byte, info *profile.Info, signature []byte) *models.NeighborIdentity {
	row := &models.NeighborIdentity{
		HostingServerID: serverID,
		IdentityID:      info.NetworkID().Bytes(),
		PublicKey:       info.PublicKey,
	}
	row.ApplyProfile(info, signature)
	return row
}

// ApplySharedProfileUpdate applies one incremental replication batch pushed
// by the neighbor that hosts the profiles. Add and Change both upsert the
// mirror row after signature verification; Delete removes it; Refresh
// reconciles the whole mirror against the carried identity list and renews
// the neighbor's lease.
func ApplySharedProfileUpdate(ctx context.Context, st *store.Store, neighborID []byte, items []*iop.SharedProfileUpdateItem) error {
	if len(items) > MaxBatchSize {
		return fmt.Errorf("%w: batch of %d exceeds %d", ErrBatchTooLarge, len(items), MaxBatchSize)
	}

	for _, item := range items {
		switch {
		case item.Add != nil:
			info, sig, err := verifySharedProfile(item.Add.Profile)
			if err != nil {
				return err
			}
			if err := st.UpsertNeighborIdentity(ctx, neighborRow(neighborID, info, sig)); err != nil {
				return err
			}

		case item.Change != nil:
			info, sig, err := verifySharedProfile(item.Change.Profile)
			if err != nil {
				return err
			}
			if err := st.UpsertNeighborIdentity(ctx, neighborRow(neighborID, info, sig)); err != nil {
				return err
			}

		case item.Delete != nil:
			if err := st.DeleteNeighborIdentity(ctx, neighborID, item.Delete.IdentityNetworkID); err != nil {
				return err
			}

		case item.Refresh != nil:
			if err := st.RetainNeighborIdentities(ctx, neighborID, item.Refresh.IdentityNetworkIDs); err != nil {
				return err
			}

		default:
			return fmt.Errorf("shared profile update item carries no operation")
		}
	}

	return st.TouchNeighborRefresh(ctx, neighborID)
}
