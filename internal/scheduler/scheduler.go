// Package scheduler runs the background sweeps: the daily L2 cache expiry
// sweep and the daily metadata-provenance retention sweep. Both sweeps run
// under a bounded errgroup, the same pattern the teacher's Controller.Run
// uses for bounded background denormalization work. Run gives each round of
// both sweeps one shared 5-minute deadline, and sweeps never block request
// paths.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pagetrail/bookcore/internal/applog"
	"github.com/pagetrail/bookcore/internal/ingest"
)

// CacheSweeper deletes expired L2 cache rows. *cache.PostgresL2 implements it.
type CacheSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// ProvenanceSweeper purges aged BookMetadataSource rows.
// *storage.MetadataSourceRepo implements it. It reuses ingest.Querier (rather
// than declaring its own) so a *pgxpool.Pool and a storage repo's method
// signatures line up without a second structurally-identical interface type.
type ProvenanceSweeper interface {
	PurgeOlderThan(ctx context.Context, q ingest.Querier, before time.Time) (int64, error)
}

// Sweeper runs the two sweeps from spec.md §4.8.
type Sweeper struct {
	pool    ingest.Querier
	l2      CacheSweeper
	sources ProvenanceSweeper

	interval  time.Duration
	retention time.Duration
}

// New builds a Sweeper. pool is used directly (not through a transaction)
// for the provenance purge, since sweeps run independently of any ingestion.
func New(pool ingest.Querier, l2 CacheSweeper, sources ProvenanceSweeper) *Sweeper {
	return &Sweeper{
		pool:      pool,
		l2:        l2,
		sources:   sources,
		interval:  24 * time.Hour,
		retention: 90 * 24 * time.Hour,
	}
}

// RunOnce executes both sweeps a single time, bounded by an errgroup with a
// concurrency limit of 2. Used directly by the CLI's "sweep" command, and by
// Run on every tick.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)

	g.Go(func() error {
		n, err := s.l2.Sweep(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("scheduler: l2 cache sweep: %w", err)
		}
		applog.From(ctx).Info("l2 cache sweep complete", "deleted", n)
		return nil
	})
	g.Go(func() error {
		n, err := s.sources.PurgeOlderThan(ctx, s.pool, time.Now().Add(-s.retention))
		if err != nil {
			return fmt.Errorf("scheduler: provenance retention sweep: %w", err)
		}
		applog.From(ctx).Info("provenance retention sweep complete", "deleted", n)
		return nil
	})
	return g.Wait()
}

// Run blocks, executing RunOnce once per interval until ctx is cancelled.
// Losing a sweep run only delays deletion, so a failed RunOnce is logged and
// the loop continues rather than exiting.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := s.RunOnce(sweepCtx); err != nil {
				applog.From(ctx).Warn("scheduled sweep failed", "err", err)
			}
			cancel()
		}
	}
}
