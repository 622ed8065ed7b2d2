package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/route-beacon/ecom-indexer/internal/bgp"
	"github.com/route-beacon/ecom-indexer/internal/bmp"
	"github.com/route-beacon/ecom-indexer/internal/ecommunity"
	"github.com/route-beacon/ecom-indexer/internal/metrics"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// batchWriter is the database surface the pipeline drives.
type batchWriter interface {
	FlushBatch(ctx context.Context, rows []*Row) error
	HandleSessionTermination(ctx context.Context, routerID, tableName string) error
}

type Pipeline struct {
	writer          batchWriter
	pool            *ecommunity.Pool
	batchSize       int
	flushInterval   time.Duration
	maxPayloadBytes int
	logger          *zap.Logger
}

// purgeRequest asks for all route associations of a router (or one of its
// tables) to be removed, triggered by a Loc-RIB Peer Down.
type purgeRequest struct {
	routerID  string
	tableName string
}

// recordOp is one ordered unit of work from a record: either rows to
// batch, or a purge. Order within the record is preserved so a purge
// applies after the routes that preceded it.
type recordOp struct {
	rows  []*Row
	purge *purgeRequest
}

func NewPipeline(writer batchWriter, pool *ecommunity.Pool, batchSize, flushIntervalMs, maxPayloadBytes int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		writer:          writer,
		pool:            pool,
		batchSize:       batchSize,
		flushInterval:   time.Duration(flushIntervalMs) * time.Millisecond,
		maxPayloadBytes: maxPayloadBytes,
		logger:          logger,
	}
}

// Run processes records from the channel until context is cancelled.
// Successfully flushed record groups are passed to the flushed channel so
// the consumer can commit offsets.
func (p *Pipeline) Run(ctx context.Context, records <-chan []*kgo.Record, flushed chan<- []*kgo.Record) {
	var batch []*Row
	var batchRecords []*kgo.Record
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batchRecords) > 0 {
				p.flush(ctx, batch, batchRecords, flushed)
			}
			return

		case recs, ok := <-records:
			if !ok {
				if len(batchRecords) > 0 {
					p.flush(ctx, batch, batchRecords, flushed)
				}
				return
			}

			for _, rec := range recs {
				for _, op := range p.processRecord(rec) {
					if op.purge == nil {
						batch = append(batch, op.rows...)
						continue
					}

					// Flush pending rows first: announcements batched
					// before the peer down must not be upserted after
					// the purge.
					if len(batch) > 0 || len(batchRecords) > 0 {
						if p.flush(ctx, batch, batchRecords, flushed) {
							batch = nil
							batchRecords = nil
						} else {
							p.logger.Error("pre-peerdown flush failed")
						}
					}
					if err := p.writer.HandleSessionTermination(ctx, op.purge.routerID, op.purge.tableName); err != nil {
						p.logger.Error("session termination purge failed",
							zap.String("router_id", op.purge.routerID),
							zap.Error(err),
						)
					}
				}
				batchRecords = append(batchRecords, rec)
			}

			if len(batchRecords) >= p.batchSize {
				if p.flush(ctx, batch, batchRecords, flushed) {
					batch = nil
					batchRecords = nil
				}
			}

			// Cap memory: if repeated flush failures cause the batch to
			// grow beyond 10x the configured size, drop it to prevent
			// unbounded memory growth during prolonged DB outages.
			if len(batchRecords) >= p.batchSize*10 {
				p.logger.Error("dropping oversized batch after repeated flush failures",
					zap.Int("dropped_records", len(batchRecords)),
					zap.Int("dropped_rows", len(batch)),
				)
				p.releaseBatch(batch)
				batch = nil
				batchRecords = nil
			}

		case <-ticker.C:
			if len(batchRecords) > 0 {
				if p.flush(ctx, batch, batchRecords, flushed) {
					batch = nil
					batchRecords = nil
				}
			}
		}
	}
}

func (p *Pipeline) processRecord(rec *kgo.Record) []recordOp {
	metrics.LastMessageTimestamp.WithLabelValues(rec.Topic).SetToCurrentTime()

	bmpBytes, err := bmp.DecodeFrame(rec.Value, p.maxPayloadBytes)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("openbmp", "decode").Inc()
		p.logger.Warn("failed to decode OpenBMP frame",
			zap.String("topic", rec.Topic),
			zap.Error(err),
		)
		return nil
	}

	parsed, err := bmp.ParseAll(bmpBytes)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("bmp", "parse").Inc()
		p.logger.Warn("failed to parse BMP payload",
			zap.String("topic", rec.Topic),
			zap.Error(err),
		)
		return nil
	}

	var ops []recordOp

	appendRow := func(row *Row) {
		if n := len(ops); n > 0 && ops[n-1].purge == nil {
			ops[n-1].rows = append(ops[n-1].rows, row)
			return
		}
		ops = append(ops, recordOp{rows: []*Row{row}})
	}

	for _, msg := range parsed {
		// Only Loc-RIB messages feed the index.
		if !msg.IsLocRIB {
			continue
		}

		switch msg.MsgType {
		case bmp.MsgTypePeerDown:
			ops = append(ops, recordOp{purge: &purgeRequest{
				routerID:  msg.RouterID,
				tableName: tableNameOrEmpty(msg.TableName),
			}})

		case bmp.MsgTypeRouteMonitoring:
			if msg.BGPData == nil {
				continue
			}
			events, err := bgp.ParseUpdate(msg.BGPData, msg.HasAddPath)
			if err != nil {
				metrics.ParseErrorsTotal.WithLabelValues("bgp", "parse").Inc()
				p.logger.Warn("failed to parse BGP UPDATE",
					zap.String("topic", rec.Topic),
					zap.Error(err),
				)
				continue
			}
			for _, ev := range events {
				if row := p.buildRow(rec.Topic, msg, ev); row != nil {
					appendRow(row)
				}
			}
		}
	}

	return ops
}

// buildRow turns one route event into a writer row. Announcements carrying
// extended communities are canonicalized and interned; announcements without
// them and withdrawals clear the route's association.
func (p *Pipeline) buildRow(topic string, msg *bmp.Message, ev *bgp.RouteEvent) *Row {
	afiStr := fmt.Sprintf("%d", ev.AFI)
	metrics.KafkaMessagesTotal.WithLabelValues(topic, afiStr, ev.Action).Inc()

	row := &Row{
		RouterID:  msg.RouterID,
		TableName: msg.TableName,
		AFI:       ev.AFI,
		Prefix:    ev.Prefix,
		PathID:    ev.PathID,
		Action:    ev.Action,
		Nexthop:   ev.Nexthop,
		ASPath:    ev.ASPath,
	}

	if ev.Action != "A" || ev.ExtCommunities == nil {
		return row
	}

	set, err := ecommunity.Parse(ev.ExtCommunities)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("ecommunity", "length").Inc()
		p.logger.Warn("malformed extended communities attribute",
			zap.String("prefix", ev.Prefix),
			zap.Int("attr_len", len(ev.ExtCommunities)),
		)
		return row
	}

	canon := set.UniqSort()
	interned := p.pool.Intern(canon)
	if interned == canon {
		metrics.InternTotal.WithLabelValues("miss").Inc()
		metrics.CommunitySetsTotal.WithLabelValues("new").Inc()
	} else {
		metrics.InternTotal.WithLabelValues("hit").Inc()
		metrics.CommunitySetsTotal.WithLabelValues("known").Inc()
	}
	metrics.InternPoolSize.Set(float64(p.pool.Len()))

	row.SetID = ComputeSetID(interned.Bytes())
	row.Canonical = interned.Bytes()
	row.Display = interned.String()
	row.RawAttr = ev.ExtCommunities
	row.interned = interned

	return row
}

func (p *Pipeline) flush(ctx context.Context, batch []*Row, records []*kgo.Record, flushed chan<- []*kgo.Record) bool {
	if err := p.writer.FlushBatch(ctx, batch); err != nil {
		p.logger.Error("batch flush failed", zap.Error(err))
		return false
	}

	p.logger.Debug("batch flushed",
		zap.Int("rows", len(batch)),
		zap.Int("records", len(records)),
	)

	p.releaseBatch(batch)

	// Signal successful flush for offset commit.
	select {
	case flushed <- records:
	case <-ctx.Done():
	}

	return true
}

// releaseBatch drops the batch's references into the intern pool. Rows
// without communities hold no reference; Release ignores them.
func (p *Pipeline) releaseBatch(batch []*Row) {
	for _, r := range batch {
		p.pool.Release(r.interned)
		r.interned = nil
	}
	metrics.InternPoolSize.Set(float64(p.pool.Len()))
}

func tableNameOrEmpty(name string) string {
	if name == "UNKNOWN" {
		return ""
	}
	return name
}
