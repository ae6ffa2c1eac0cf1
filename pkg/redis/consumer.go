package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/research-protocol/researchx/pkg/retry"
	"go.uber.org/zap"
)

// StreamConsumerConfig configures a StreamConsumer.
type StreamConsumerConfig struct {
	// Stream to consume, normally research:events.
	Stream string
	// Group enables consumer-group mode with acknowledgements. Empty reads with plain XREAD.
	Group string
	// Consumer names this process within Group.
	Consumer string
	// Start is where a new group (or a plain reader) begins. Default "0", the first entry.
	Start string
	// Count is the batch size per read. Default 100.
	Count int64
	// Block is how long one read waits for new entries. Default 5s.
	Block time.Duration
	// Backoff paces reads after Redis errors. Zero value uses 1s doubling up to 30s.
	Backoff retry.Config

	Logger *zap.Logger
}

// MessageHandler processes one stream entry. A nil return acknowledges it in group mode;
// an error leaves it pending for redelivery.
type MessageHandler func(ctx context.Context, msg Message) error

// Message is one stream entry.
type Message struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// GetData returns the "data" field, the JSON-encoded research envelope.
func (m *Message) GetData() []byte {
	switch v := m.Values["data"].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	}
	return nil
}

// GetEvent returns the "event" field, the event name of a research envelope.
func (m *Message) GetEvent() string {
	switch v := m.Values["event"].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

type streamSource interface {
	read(ctx context.Context, args readArgs) ([]Message, error)
	ack(ctx context.Context, stream, group string, ids ...string) error
	ensureGroup(ctx context.Context, stream, group, start string) error
}

// StreamConsumer feeds stream entries to a handler, surviving Redis outages.
// In group mode it first drains the entries delivered to this consumer but never
// acknowledged, then follows new ones.
type StreamConsumer struct {
	src    streamSource
	cfg    StreamConsumerConfig
	logger *zap.Logger
}

func NewStreamConsumer(client *Client, cfg StreamConsumerConfig) (*StreamConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return newStreamConsumer(client, cfg)
}

func newStreamConsumer(src streamSource, cfg StreamConsumerConfig) (*StreamConsumer, error) {
	if cfg.Stream == "" {
		return nil, errors.New("stream name is required")
	}
	if cfg.Group != "" && cfg.Consumer == "" {
		return nil, errors.New("consumer name is required when using consumer groups")
	}

	if cfg.Start == "" {
		cfg.Start = "0"
	}
	if cfg.Count <= 0 {
		cfg.Count = 100
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Backoff.InitialDelay == 0 {
		cfg.Backoff = retry.Config{
			InitialDelay:  time.Second,
			MaxDelay:      30 * time.Second,
			Multiplier:    2,
			JitterEnabled: true,
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamConsumer{src: src, cfg: cfg, logger: logger}, nil
}

// Run blocks until ctx is cancelled, returning ctx.Err().
func (sc *StreamConsumer) Run(ctx context.Context, handler MessageHandler) error {
	grouped := sc.cfg.Group != ""
	if grouped {
		if err := sc.src.ensureGroup(ctx, sc.cfg.Stream, sc.cfg.Group, sc.cfg.Start); err != nil {
			return err
		}
		sc.logger.Info("Consumer group ready",
			zap.String("stream", sc.cfg.Stream),
			zap.String("group", sc.cfg.Group),
			zap.String("consumer", sc.cfg.Consumer))
	}

	args := readArgs{
		Stream:   sc.cfg.Stream,
		Group:    sc.cfg.Group,
		Consumer: sc.cfg.Consumer,
		Count:    sc.cfg.Count,
		Block:    sc.cfg.Block,
	}
	draining := grouped
	cursor := sc.cfg.Start
	if grouped {
		cursor = "0"
	}
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			sc.logger.Info("Stream consumer shutting down",
				zap.String("stream", sc.cfg.Stream),
				zap.String("group", sc.cfg.Group))
			return err
		}

		args.ID = cursor
		if grouped && !draining {
			args.ID = ">"
		}

		msgs, err := sc.src.read(ctx, args)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			failures++
			wait := retry.Delay(sc.cfg.Backoff, failures)
			sc.logger.Warn("Error reading from stream, will retry",
				zap.String("stream", sc.cfg.Stream),
				zap.Int("failures", failures),
				zap.Duration("retryIn", wait),
				zap.Error(err))
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			continue
		}
		failures = 0

		if len(msgs) == 0 {
			// an empty pending read means the backlog is drained
			draining = false
			continue
		}
		if draining || !grouped {
			cursor = msgs[len(msgs)-1].ID
		}

		for _, msg := range msgs {
			sc.deliver(ctx, handler, msg)
		}
	}
}

func (sc *StreamConsumer) deliver(ctx context.Context, handler MessageHandler, msg Message) {
	if err := handler(ctx, msg); err != nil {
		sc.logger.Error("Error processing message",
			zap.String("stream", sc.cfg.Stream),
			zap.String("id", msg.ID),
			zap.Error(err))
		return
	}
	if sc.cfg.Group == "" {
		return
	}
	if err := sc.src.ack(ctx, sc.cfg.Stream, sc.cfg.Group, msg.ID); err != nil {
		sc.logger.Warn("Failed to acknowledge message",
			zap.String("stream", sc.cfg.Stream),
			zap.String("id", msg.ID),
			zap.Error(err))
	}
}
