package neighborhood

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// initializeFromNeighbor executes an AddNeighbor action: it records the
// peer's contact, pulls its full hosted profile set over one conversation
// and commits the mirror atomically. Nothing partial ever becomes visible;
// the neighbor row flips to initialized only after the commit.
func (s *Service) initializeFromNeighbor(ctx context.Context, networkID []byte, data *AddNeighborData) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.InitializationTimeout)
	defer cancel()

	if err := s.store.UpsertNeighbor(ctx, &models.Neighbor{
		PeerContact: models.PeerContact{
			NetworkID:       networkID,
			IPAddress:       data.IPAddress,
			PrimaryPort:     data.PrimaryPort,
			SrNeighborPort:  data.SrNeighborPort,
			LastRefreshTime: time.Now(),
		},
		Latitude:  data.Latitude,
		Longitude: data.Longitude,
	}); err != nil {
		return fmt.Errorf("failed to record neighbor contact: %w", err)
	}

	addr := net.JoinHostPort(data.IPAddress, strconv.FormatUint(uint64(data.SrNeighborPort), 10))
	conn, err := s.dial(ctx, addr, networkID)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	latitude, longitude := s.OwnLocation()
	rows, err := conn.RunInitialization(ctx, s.config.PrimaryPort, s.config.SrNeighborPort, latitude, longitude)
	if err != nil {
		return err
	}

	if err := s.store.ReplaceNeighborIdentities(ctx, networkID, rows); err != nil {
		return fmt.Errorf("failed to commit mirror: %w", err)
	}
	if err := s.store.SetNeighborInitialized(ctx, networkID, true); err != nil {
		return err
	}

	logger.Info("Neighbor initialized",
		"neighbor_id", fmt.Sprintf("%x", networkID),
		"address", addr,
		"profiles", len(rows))
	return nil
}
