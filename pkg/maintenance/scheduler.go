// Package maintenance runs the periodic background jobs: reaping cancelled
// hostings, expiring stale neighbors, republishing the contact record and
// refreshing follower leases. Every job is idempotent and tolerates running
// concurrently with client traffic.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/iop-labs/profiled/internal/logger"
	"github.com/iop-labs/profiled/pkg/can"
	"github.com/iop-labs/profiled/pkg/hosting"
	"github.com/iop-labs/profiled/pkg/neighborhood"
)

// Default job periods.
const (
	DefaultHostingSweepInterval  = time.Hour
	DefaultNeighborSweepInterval = time.Hour
	DefaultRecordRefreshInterval = 17 * time.Second
	DefaultFollowerRefreshPeriod = 12 * time.Hour

	// DefaultNeighborExpiration is the refresh lease window: neighbors not
	// refreshed within it are expired by the sweep.
	DefaultNeighborExpiration = 24 * time.Hour
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Config parameterizes the standard job set.
type Config struct {
	HostingSweepInterval  time.Duration
	NeighborSweepInterval time.Duration
	NeighborExpiration    time.Duration
	RecordRefreshInterval time.Duration
	FollowerRefreshPeriod time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.HostingSweepInterval <= 0 {
		c.HostingSweepInterval = DefaultHostingSweepInterval
	}
	if c.NeighborSweepInterval <= 0 {
		c.NeighborSweepInterval = DefaultNeighborSweepInterval
	}
	if c.NeighborExpiration <= 0 {
		c.NeighborExpiration = DefaultNeighborExpiration
	}
	if c.RecordRefreshInterval <= 0 {
		c.RecordRefreshInterval = DefaultRecordRefreshInterval
	}
	if c.FollowerRefreshPeriod <= 0 {
		c.FollowerRefreshPeriod = DefaultFollowerRefreshPeriod
	}
}

// StandardJobs builds the server's maintenance job set. The contact record
// job is omitted when record is nil (CAN publishing disabled).
func StandardJobs(
	hostingSvc *hosting.Service,
	neighbors *neighborhood.Service,
	record *can.Service,
	config Config,
) []Job {
	config.ApplyDefaults()

	jobs := []Job{
		{
			Name:     "expire-cancelled-hostings",
			Interval: config.HostingSweepInterval,
			Run: func(ctx context.Context) error {
				reaped, err := hostingSvc.ExpireCancelled(ctx, time.Now())
				if reaped > 0 {
					logger.Info("Reaped cancelled hostings", "count", reaped)
				}
				return err
			},
		},
		{
			Name:     "expire-stale-neighbors",
			Interval: config.NeighborSweepInterval,
			Run: func(ctx context.Context) error {
				cutoff := time.Now().Add(-config.NeighborExpiration)
				expired, err := neighbors.ExpireNeighbors(ctx, cutoff)
				if expired > 0 {
					logger.Info("Expired stale neighbors", "count", expired)
				}
				return err
			},
		},
		{
			Name:     "refresh-followers",
			Interval: config.FollowerRefreshPeriod,
			Run:      neighbors.RefreshFollowers,
		},
	}
	if record != nil {
		jobs = append(jobs, Job{
			Name:     "refresh-contact-record",
			Interval: config.RecordRefreshInterval,
			Run:      record.Refresh,
		})
	}
	return jobs
}

// Scheduler drives a set of jobs, each on its own ticker.
type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
}

// NewScheduler builds a scheduler over the given jobs.
func NewScheduler(jobs []Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Run starts every job and returns immediately. Each job fires once at
// startup, then on its interval, until ctx is cancelled. A failing run is
// logged and does not affect the schedule.
func (s *Scheduler) Run(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.runJob(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Maintenance job failed",
				"job", job.Name, "duration", time.Since(start), "error", err)
		} else {
			logger.Debug("Maintenance job completed",
				"job", job.Name, "duration", time.Since(start))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
