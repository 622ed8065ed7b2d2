package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/route-beacon/ecom-indexer/internal/metrics"
	"go.uber.org/zap"
)

// PruneManager removes community_sets rows that no route references
// anymore and whose last_seen is older than the retention window. The
// indexer never deletes from community_sets on the hot path; orphans
// accumulate until this runs.
type PruneManager struct {
	pool       *pgxpool.Pool
	orphanDays int
	timezone   string
	logger     *zap.Logger
}

func NewPruneManager(pool *pgxpool.Pool, orphanDays int, timezone string, logger *zap.Logger) *PruneManager {
	return &PruneManager{
		pool:       pool,
		orphanDays: orphanDays,
		timezone:   timezone,
		logger:     logger,
	}
}

func (pm *PruneManager) Run(ctx context.Context) error {
	cutoff, err := pruneCutoff(time.Now(), pm.orphanDays, pm.timezone)
	if err != nil {
		return err
	}
	return pm.PruneOrphanedSets(ctx, cutoff)
}

// PruneOrphanedSets deletes unreferenced community sets last seen before
// the cutoff.
func (pm *PruneManager) PruneOrphanedSets(ctx context.Context, cutoff time.Time) error {
	start := time.Now()

	tag, err := pm.pool.Exec(ctx, `
		DELETE FROM community_sets cs
		WHERE cs.last_seen < $1
		AND NOT EXISTS (
			SELECT 1 FROM route_communities rc WHERE rc.set_id = cs.set_id
		)`, cutoff,
	)
	if err != nil {
		return fmt.Errorf("maintenance: pruning orphaned sets: %w", err)
	}

	pruned := tag.RowsAffected()
	metrics.SetsPrunedTotal.Add(float64(pruned))
	metrics.DBWriteDuration.WithLabelValues("prune").Observe(time.Since(start).Seconds())

	pm.logger.Info("pruned orphaned community sets",
		zap.Int64("pruned", pruned),
		zap.Time("cutoff", cutoff),
	)

	return nil
}

// pruneCutoff computes the start of day orphanDays ago in the configured
// timezone.
func pruneCutoff(now time.Time, orphanDays int, timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("maintenance: loading timezone %s: %w", timezone, err)
	}
	t := now.In(loc).AddDate(0, 0, -orphanDays)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}
