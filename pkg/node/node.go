// Package node assembles a complete profiled server from configuration:
// store, key material, image backend, domain services, the four role
// listeners, the replication worker, the location-service client, the
// contact-record publisher, the maintenance scheduler and the operational
// endpoint. Dependencies are constructed once, here, and handed down
// explicitly; no component reaches for global state.
package node

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/adapter"
	iopadapter "github.com/iop-labs/profiled/pkg/adapter/iop"
	"github.com/iop-labs/profiled/pkg/can"
	"github.com/iop-labs/profiled/pkg/config"
	"github.com/iop-labs/profiled/pkg/hosting"
	"github.com/iop-labs/profiled/pkg/imagestore"
	"github.com/iop-labs/profiled/pkg/imagestore/fs"
	"github.com/iop-labs/profiled/pkg/imagestore/s3"
	"github.com/iop-labs/profiled/pkg/location"
	"github.com/iop-labs/profiled/pkg/maintenance"
	"github.com/iop-labs/profiled/pkg/metrics"
	"github.com/iop-labs/profiled/pkg/neighborhood"
	"github.com/iop-labs/profiled/pkg/ops"
	"github.com/iop-labs/profiled/pkg/search"
	"github.com/iop-labs/profiled/pkg/store"
)

// recordWithdrawTimeout bounds the contact-record deletion on shutdown.
// The process is already draining; a slow gateway must not hold it hostage.
const recordWithdrawTimeout = 10 * time.Second

// Node is a fully wired profiled server.
type Node struct {
	config  *config.Config
	version string

	store     *store.Store
	images    imagestore.Store
	neighbors *neighborhood.Service

	adapters  []*iopadapter.Adapter
	worker    *neighborhood.Worker
	locClient *location.Client
	record    *can.Service
	scheduler *maintenance.Scheduler
	ops       *ops.Server
}

// New constructs every component from cfg. The configuration must already
// be validated. The returned node owns the store and image backend; callers
// release them through Close after Run returns.
func New(ctx context.Context, cfg *config.Config, version string) (*Node, error) {
	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	n, err := build(ctx, cfg, version, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return n, nil
}

func build(ctx context.Context, cfg *config.Config, version string, st *store.Store) (*Node, error) {
	keys, err := st.LoadOrCreateServerKeyPair(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %w", err)
	}
	logger.Info("Server identity loaded", "network_id", keys.NetworkID())

	images, err := newImageStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	latitude := scaleCoordinate(cfg.Latitude)
	longitude := scaleCoordinate(cfg.Longitude)

	hostingSvc := hosting.NewService(st, images, hosting.Config{
		MaxHostedIdentities:   cfg.MaxHostedIdentities,
		CancellationRetention: cfg.Hosting.CancellationRetention,
		MaxRelatedIdentities:  cfg.Hosting.MaxRelatedIdentities,
		MaxImageBytes:         int(cfg.Images.MaxSize),
	})

	searchEngine := search.NewEngine(st, images, search.Config{
		MatchTimeout:  cfg.Search.MatchTimeout,
		RequestBudget: cfg.Search.RequestBudget,
		CacheTTL:      cfg.Search.CacheTTL,
	})

	neighbors := neighborhood.NewService(st, keys, neighborhood.Config{
		PrimaryPort:           uint32(cfg.PrimaryInterfacePort),
		SrNeighborPort:        uint32(cfg.SrNeighborInterfacePort),
		InitializationTimeout: cfg.Neighborhood.InitializationTimeout,
	})
	neighbors.SetOwnLocation(latitude, longitude)

	tlsConfig, err := config.LoadTLS(cfg.TLSServerCertificate)
	if err != nil {
		_ = images.Close()
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	services := &iopadapter.Services{
		Keys:         keys,
		Store:        st,
		Hosting:      hostingSvc,
		Search:       searchEngine,
		Neighborhood: neighbors,
		Registry:     iopadapter.NewCheckInRegistry(),
		Metrics:      metrics.NewRequestMetrics(),
		Roles: []*iop.ServerRoleInfo{
			{Role: uint32(iop.RolePrimary), Port: uint32(cfg.PrimaryInterfacePort)},
			{Role: uint32(iop.RoleNonCustomer), Port: uint32(cfg.ClientNonCustomerInterfacePort), IsTLS: true},
			{Role: uint32(iop.RoleCustomer), Port: uint32(cfg.ClientCustomerInterfacePort), IsTLS: true},
			{Role: uint32(iop.RoleSrNeighbor), Port: uint32(cfg.SrNeighborInterfacePort), IsTLS: true},
		},
	}

	connMetrics := metrics.NewConnectionMetrics()
	rolePorts := map[iop.Role]int{
		iop.RolePrimary:     cfg.PrimaryInterfacePort,
		iop.RoleNonCustomer: cfg.ClientNonCustomerInterfacePort,
		iop.RoleCustomer:    cfg.ClientCustomerInterfacePort,
		iop.RoleSrNeighbor:  cfg.SrNeighborInterfacePort,
	}
	adapters := make([]*iopadapter.Adapter, 0, len(rolePorts))
	for _, role := range []iop.Role{iop.RolePrimary, iop.RoleNonCustomer, iop.RoleCustomer, iop.RoleSrNeighbor} {
		baseCfg := adapter.BaseConfig{
			BindAddress:     cfg.BindAddress(),
			Port:            rolePorts[role],
			ShutdownTimeout: cfg.ShutdownTimeout,
		}
		if role.Encrypted() {
			baseCfg.TLS = tlsConfig
		}
		a := iopadapter.New(role, baseCfg, services)
		a.Metrics = connMetrics
		adapters = append(adapters, a)
	}

	var record *can.Service
	if cfg.CANEndpoint != "" {
		record = can.NewService(st, keys, can.NewHTTPGateway(cfg.CANEndpoint), can.Config{
			IPAddress:   cfg.AnnouncedAddress(),
			PrimaryPort: uint32(cfg.PrimaryInterfacePort),
			Latitude:    latitude,
			Longitude:   longitude,
		})
	} else {
		logger.Info("Contact record publishing disabled")
	}

	locClient := location.NewClient(location.Config{
		Endpoint:       cfg.LocationServiceEndpoint,
		NodeID:         keys.NetworkID().Bytes(),
		Latitude:       latitude,
		Longitude:      longitude,
		PrimaryPort:    uint32(cfg.PrimaryInterfacePort),
		SrNeighborPort: uint32(cfg.SrNeighborInterfacePort),
	}, neighbors)

	worker := neighborhood.NewWorker(neighbors, cfg.Neighborhood.WorkerInterval)
	worker.Metrics = metrics.NewQueueMetrics()

	scheduler := maintenance.NewScheduler(maintenance.StandardJobs(hostingSvc, neighbors, record, maintenance.Config{
		NeighborExpiration:    cfg.Neighborhood.Expiration,
		RecordRefreshInterval: cfg.Neighborhood.RecordRefreshInterval,
		FollowerRefreshPeriod: cfg.Neighborhood.FollowerRefreshPeriod,
	}))

	var opsServer *ops.Server
	if cfg.Metrics.Enabled {
		opsServer = ops.New(ops.Config{
			BindAddress: cfg.BindAddress(),
			Port:        cfg.Metrics.Port,
			Version:     version,
			Ready:       storeReady(st),
		})
	}

	return &Node{
		config:    cfg,
		version:   version,
		store:     st,
		images:    images,
		neighbors: neighbors,
		adapters:  adapters,
		worker:    worker,
		locClient: locClient,
		record:    record,
		scheduler: scheduler,
		ops:       opsServer,
	}, nil
}

// Run serves until ctx is cancelled or a listener fails, then drains.
//
// Shutdown order: the role listeners stop accepting and drain their
// conversations, the replication worker finishes in-flight queue runs, the
// maintenance jobs wind down, and finally the contact record is withdrawn
// so peers stop routing to a server that no longer answers.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.scheduler.Run(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range n.adapters {
		g.Go(func() error {
			return a.Serve(gctx)
		})
	}
	g.Go(func() error {
		if err := n.worker.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		n.locClient.Run(gctx)
		return nil
	})
	if n.ops != nil {
		g.Go(func() error {
			return n.ops.Run(gctx)
		})
	}

	logger.Info("Server is running",
		"primary_port", n.config.PrimaryInterfacePort,
		"non_customer_port", n.config.ClientNonCustomerInterfacePort,
		"customer_port", n.config.ClientCustomerInterfacePort,
		"sr_neighbor_port", n.config.SrNeighborInterfacePort)

	err := g.Wait()
	n.worker.Wait()
	n.scheduler.Wait()

	if n.record != nil {
		withdrawCtx, cancelWithdraw := context.WithTimeout(context.Background(), recordWithdrawTimeout)
		defer cancelWithdraw()
		if werr := n.record.Delete(withdrawCtx); werr != nil {
			logger.Warn("Failed to withdraw contact record", "error", werr)
		}
	}
	return err
}

// Close releases the store and the image backend. Call after Run returns.
func (n *Node) Close() error {
	var errs []error
	if err := n.images.Close(); err != nil {
		errs = append(errs, fmt.Errorf("image store: %w", err))
	}
	if err := n.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}

func newImageStore(ctx context.Context, cfg *config.Config) (imagestore.Store, error) {
	switch cfg.Images.Backend {
	case "s3":
		st, err := s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.Images.S3.Bucket,
			Region:          cfg.Images.S3.Region,
			Endpoint:        cfg.Images.S3.Endpoint,
			KeyPrefix:       cfg.Images.S3.Prefix,
			AccessKeyID:     cfg.Images.S3.AccessKey,
			SecretAccessKey: cfg.Images.S3.SecretKey,
			ForcePathStyle:  cfg.Images.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 image store: %w", err)
		}
		return st, nil
	default:
		st, err := fs.New(fs.Config{
			BasePath: cfg.ImageDataFolder,
			TempPath: cfg.TempDataFolder,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open image store: %w", err)
		}
		return st, nil
	}
}

// storeReady pings the underlying database for the readiness probe.
func storeReady(st *store.Store) ops.ReadyCheck {
	return func(ctx context.Context) error {
		db, err := st.DB().DB()
		if err != nil {
			return err
		}
		return db.PingContext(ctx)
	}
}

// scaleCoordinate converts decimal degrees to the wire's 1e6-scaled
// integer representation.
func scaleCoordinate(degrees float64) int32 {
	return int32(math.Round(degrees * 1e6))
}
