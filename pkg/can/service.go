package can

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// Config parameterizes the contact record publisher.
type Config struct {
	// Announced primary endpoint.
	IPAddress   string
	PrimaryPort uint32

	// Own GPS position in 1e6-scaled degrees.
	Latitude  int32
	Longitude int32
}

// Service keeps the server's contact record published. Refresh is driven by
// the maintenance scheduler; Delete runs on clean shutdown.
type Service struct {
	store   *store.Store
	keys    *identity.KeyPair
	gateway Gateway
	config  Config

	mu       sync.Mutex
	lastCID  cid.Cid
	uploaded bool
}

// NewService builds the publisher.
func NewService(st *store.Store, keys *identity.KeyPair, gateway Gateway, config Config) *Service {
	return &Service{store: st, keys: keys, gateway: gateway, config: config}
}

// record builds the current contact record.
func (s *Service) record() *ContactRecord {
	return &ContactRecord{
		Version:     iop.ProtocolVersion,
		PublicKey:   s.keys.PublicKey,
		IPAddress:   s.config.IPAddress,
		PrimaryPort: s.config.PrimaryPort,
		Latitude:    s.config.Latitude,
		Longitude:   s.config.Longitude,
	}
}

// Refresh republishes the contact record. The object upload is skipped while
// the record is unchanged; the name publication runs every time, since the
// network expires names that are not renewed. Safe to run concurrently with
// itself and with client traffic.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record()
	id, err := rec.CID()
	if err != nil {
		return err
	}

	if !s.uploaded || !id.Equals(s.lastCID) {
		if err := s.gateway.Upload(ctx, id, rec.Marshal()); err != nil {
			return fmt.Errorf("failed to upload contact record: %w", err)
		}
		if err := s.persistCID(ctx, id); err != nil {
			return err
		}
		if s.uploaded {
			// Drop the superseded object, best effort.
			if err := s.gateway.Remove(ctx, s.lastCID); err != nil {
				logger.Debug("Failed to remove superseded contact record",
					"cid", s.lastCID.String(), "error", err)
			}
		}
		s.lastCID, s.uploaded = id, true
		logger.Info("Published contact record", "cid", id.String())
	}

	seq, err := s.store.NextIPNSSequence(ctx)
	if err != nil {
		return err
	}
	if err := s.gateway.Publish(ctx, s.keys.NetworkID().Hex(), id, seq); err != nil {
		return fmt.Errorf("failed to publish contact record name: %w", err)
	}
	return nil
}

// Delete withdraws the published record on clean shutdown.
func (s *Service) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.GetSetting(ctx, models.SettingCanObjectHash)
	if err != nil {
		return err
	}
	if stored == "" {
		return nil
	}
	id, err := cid.Decode(stored)
	if err != nil {
		return fmt.Errorf("corrupt contact record hash setting: %w", err)
	}

	if err := s.gateway.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove contact record: %w", err)
	}
	if err := s.store.DeleteSetting(ctx, models.SettingCanObjectHash); err != nil {
		return err
	}
	s.uploaded = false
	logger.Info("Withdrew contact record", "cid", id.String())
	return nil
}

func (s *Service) persistCID(ctx context.Context, id cid.Cid) error {
	release, err := s.store.Locks().Acquire(store.SettingsLock)
	if err != nil {
		return err
	}
	defer release()
	return s.store.SetSetting(ctx, models.SettingCanObjectHash, id.String())
}
