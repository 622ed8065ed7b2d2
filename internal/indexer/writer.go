package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
	"github.com/route-beacon/ecom-indexer/internal/ecommunity"
	"github.com/route-beacon/ecom-indexer/internal/metrics"
	"go.uber.org/zap"
)

var zstdEncoder, _ = zstd.NewWriter(nil)

type Writer struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	storeRaw    bool
	compressRaw bool
}

func NewWriter(pool *pgxpool.Pool, logger *zap.Logger, storeRaw, compressRaw bool) *Writer {
	return &Writer{
		pool:        pool,
		logger:      logger,
		storeRaw:    storeRaw,
		compressRaw: compressRaw,
	}
}

// Row represents one route event mapped to its community set.
// For action "A" with communities, SetID/Canonical/Display are populated.
// For action "D" (or "A" with no communities) the route's association row
// is removed.
type Row struct {
	RouterID  string
	TableName string
	AFI       int
	Prefix    string
	PathID    int64
	Action    string // "A" or "D"
	Nexthop   string
	ASPath    string

	SetID     []byte // 32-byte SHA256 of the canonical octets, nil for deletes
	Canonical []byte // canonical community set octets
	Display   string // human-readable rendering of the set
	RawAttr   []byte // attribute octets as they arrived on the wire

	interned *ecommunity.Set // pool reference, released after flush
}

// FlushBatch writes a batch of rows within a single transaction:
// community_sets rows are inserted on first sight, then route_communities
// associations are upserted or deleted.
func (w *Writer) FlushBatch(ctx context.Context, rows []*Row) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("indexer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var upserted, deleted int64

	for _, r := range rows {
		if r.SetID != nil {
			if err := w.upsertSet(ctx, tx, r); err != nil {
				return fmt.Errorf("indexer: upsert community set: %w", err)
			}
			n, err := w.upsertRoute(ctx, tx, r)
			if err != nil {
				return fmt.Errorf("indexer: upsert route: %w", err)
			}
			upserted += n
		} else {
			n, err := w.deleteRoute(ctx, tx, r)
			if err != nil {
				return fmt.Errorf("indexer: delete route: %w", err)
			}
			deleted += n
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("indexer: commit tx: %w", err)
	}

	dur := time.Since(start).Seconds()
	metrics.DBWriteDuration.WithLabelValues("batch").Observe(dur)
	metrics.DBRowsAffectedTotal.WithLabelValues("route_communities", "upsert").Add(float64(upserted))
	metrics.DBRowsAffectedTotal.WithLabelValues("route_communities", "delete").Add(float64(deleted))
	metrics.BatchSize.Observe(float64(len(rows)))

	return nil
}

func (w *Writer) upsertSet(ctx context.Context, tx pgx.Tx, r *Row) error {
	var rawBytes []byte
	if w.storeRaw && r.RawAttr != nil {
		if w.compressRaw {
			rawBytes = zstdEncoder.EncodeAll(r.RawAttr, nil)
		} else {
			rawBytes = r.RawAttr
		}
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO community_sets (set_id, octets, display, value_count, raw_attr, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (set_id) DO UPDATE SET last_seen = now()`,
		r.SetID, r.Canonical, r.Display, len(r.Canonical)/8, rawBytes,
	)
	return err
}

func (w *Writer) upsertRoute(ctx context.Context, tx pgx.Tx, r *Row) (int64, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO route_communities (router_id, table_name, afi, prefix, path_id,
			set_id, nexthop, as_path, first_seen, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (router_id, table_name, afi, prefix, path_id)
		DO UPDATE SET
			set_id = EXCLUDED.set_id,
			nexthop = EXCLUDED.nexthop,
			as_path = EXCLUDED.as_path,
			updated_at = now()`,
		r.RouterID, r.TableName, r.AFI, r.Prefix, r.PathID,
		r.SetID, nullableString(r.Nexthop), nullableString(r.ASPath),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (w *Writer) deleteRoute(ctx context.Context, tx pgx.Tx, r *Row) (int64, error) {
	tag, err := tx.Exec(ctx,
		`DELETE FROM route_communities WHERE router_id = $1 AND table_name = $2 AND afi = $3 AND prefix = $4 AND path_id = $5`,
		r.RouterID, r.TableName, r.AFI, r.Prefix, r.PathID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HandleSessionTermination purges all route associations for a disconnected
// router. When tableName is non-empty, only the specific table is purged.
// Orphaned community_sets rows are left for the pruner.
func (w *Writer) HandleSessionTermination(ctx context.Context, routerID, tableName string) error {
	start := time.Now()

	var tag pgconn.CommandTag
	var err error
	if tableName != "" {
		tag, err = w.pool.Exec(ctx,
			`DELETE FROM route_communities WHERE router_id = $1 AND table_name = $2`,
			routerID, tableName,
		)
	} else {
		tag, err = w.pool.Exec(ctx,
			`DELETE FROM route_communities WHERE router_id = $1`,
			routerID,
		)
	}
	if err != nil {
		return fmt.Errorf("indexer: purge routes for router %s: %w", routerID, err)
	}

	purged := tag.RowsAffected()
	dur := time.Since(start).Seconds()
	metrics.DBWriteDuration.WithLabelValues("session_termination").Observe(dur)
	if purged > 0 {
		metrics.RoutesPurgedTotal.WithLabelValues("session_down").Add(float64(purged))
	}

	w.logger.Info("purged route communities on session termination",
		zap.String("router_id", routerID),
		zap.String("table_name", tableName),
		zap.Int64("purged", purged),
	)

	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
