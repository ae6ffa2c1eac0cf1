// Package indexer projects research:events stream entries into the ClickHouse events table.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/research-protocol/researchx/pkg/db"
	"github.com/research-protocol/researchx/pkg/db/models/events"
	"github.com/research-protocol/researchx/pkg/db/transform"
	"github.com/research-protocol/researchx/pkg/redis"
	"go.uber.org/zap"
)

const DefaultResyncPageSize = 500

// StreamReader pages through a stream in id order.
type StreamReader interface {
	XRange(ctx context.Context, stream, start, end string, count int64) ([]goredis.XMessage, error)
}

// Projector writes stream entries into an EventStore and keeps per-event counters.
type Projector struct {
	Store  db.EventStore
	Logger *zap.Logger
	// Now stamps indexed_at; later stamps win on merge.
	Now func() time.Time

	counts *xsync.Map[string, uint64]
}

func NewProjector(store db.EventStore, logger *zap.Logger) *Projector {
	return &Projector{
		Store:  store,
		Logger: logger,
		Now:    time.Now,
		counts: xsync.NewMap[string, uint64](),
	}
}

// HandleMessage is a redis.MessageHandler for the live consumer.
func (p *Projector) HandleMessage(ctx context.Context, msg redis.Message) error {
	row, err := transform.Event(msg.ID, msg.GetData(), p.Now())
	if err != nil {
		// acked and skipped
		p.Logger.Warn("Skipping undecodable stream entry", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	if err := p.Store.InsertEvents(ctx, []*events.EventRow{row}); err != nil {
		return fmt.Errorf("insert event %s: %w", msg.ID, err)
	}
	p.count(row.Event, 1)
	p.Logger.Debug("Event indexed",
		zap.String("id", msg.ID),
		zap.String("event", row.Event),
		zap.String("tx_id", row.TxID))
	return nil
}

// Resync replays the whole stream from its first entry. Pages are read sequentially and
// inserted concurrently on pool. It returns the number of rows written.
func (p *Projector) Resync(ctx context.Context, reader StreamReader, stream string, pool pond.Pool, pageSize int64) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultResyncPageSize
	}

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	var (
		mu        sync.Mutex
		errs      []error
		total     int
		skipped   int
		submitted int
		start     = "-"
	)
	for {
		if err := groupCtx.Err(); err != nil {
			break
		}
		page, err := reader.XRange(groupCtx, stream, start, "+", pageSize)
		if err != nil {
			if submitted > 0 {
				_ = group.Wait()
			}
			return total, fmt.Errorf("read %s from %s: %w", stream, start, err)
		}
		if len(page) == 0 {
			break
		}

		rows := make([]*events.EventRow, 0, len(page))
		for _, entry := range page {
			msg := redis.Message{ID: entry.ID, Stream: stream, Values: entry.Values}
			row, err := transform.Event(entry.ID, msg.GetData(), p.Now())
			if err != nil {
				skipped++
				continue
			}
			rows = append(rows, row)
		}
		total += len(rows)

		submitted++
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			if err := p.Store.InsertEvents(groupCtx, rows); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			for _, row := range rows {
				p.count(row.Event, 1)
			}
		})

		if int64(len(page)) < pageSize {
			break
		}
		// exclusive range start
		start = "(" + page[len(page)-1].ID
	}

	if submitted > 0 {
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return total, fmt.Errorf("resync insert: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return total, err
	}

	p.Logger.Info("Resync finished",
		zap.String("stream", stream),
		zap.Int("rows", total),
		zap.Int("skipped", skipped))
	return total, nil
}

func (p *Projector) count(event string, n uint64) {
	p.counts.Compute(event, func(old uint64, _ bool) (uint64, xsync.ComputeOp) {
		return old + n, xsync.UpdateOp
	})
}

// Counts returns the number of events indexed by this process, per event name.
func (p *Projector) Counts() map[string]uint64 {
	out := make(map[string]uint64)
	p.counts.Range(func(event string, n uint64) bool {
		out[event] = n
		return true
	})
	return out
}
