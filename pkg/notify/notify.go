// Package notify delivers research envelopes to off-ledger observers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/utils"
	"go.uber.org/zap"
)

// Publisher is the subset of the redis client used for notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{})
	XAdd(ctx context.Context, stream string, values map[string]interface{}) string
}

// RedisEmitter publishes each envelope on research:<event> and appends it to the
// research:events stream for durable consumers.
type RedisEmitter struct {
	pub    Publisher
	logger *zap.Logger
}

func NewRedisEmitter(pub Publisher, logger *zap.Logger) *RedisEmitter {
	return &RedisEmitter{pub: pub, logger: logger}
}

func (e *RedisEmitter) Emit(ctx context.Context, env research.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	e.pub.Publish(ctx, utils.GetEventChannel(env.Event), data)
	id := e.pub.XAdd(ctx, utils.EventsStream, map[string]interface{}{
		"event": env.Event,
		"data":  string(data),
	})
	if id == "" {
		return fmt.Errorf("append %s to %s failed", env.Event, utils.EventsStream)
	}
	e.logger.Debug("Event published",
		zap.String("event", env.Event),
		zap.String("tx_id", env.TxID),
		zap.String("stream_id", id))
	return nil
}

// LogEmitter writes every envelope to the log.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, env research.Envelope) error {
	e.logger.Info("Event",
		zap.String("event", env.Event),
		zap.String("tx_id", env.TxID),
		zap.Int64("timestamp", env.Timestamp),
		zap.Any("payload", env.Payload))
	return nil
}

// Fanout hands each envelope to every emitter concurrently and waits for all of them.
type Fanout struct {
	pool     pond.Pool
	emitters []research.Emitter
}

func NewFanout(maxConcurrency int, emitters ...research.Emitter) *Fanout {
	if maxConcurrency <= 0 {
		maxConcurrency = len(emitters)
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Fanout{
		pool:     pond.NewPool(maxConcurrency, pond.WithQueueSize(64)),
		emitters: emitters,
	}
}

func (f *Fanout) Emit(ctx context.Context, env research.Envelope) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	group := f.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, em := range f.emitters {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			if err := em.Emit(groupCtx, env); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stop waits for queued deliveries and releases the pool.
func (f *Fanout) Stop() {
	f.pool.StopAndWait()
}
