package redis

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/research-protocol/researchx/pkg/retry"
	"github.com/research-protocol/researchx/pkg/utils"
	"go.uber.org/zap"
)

// DefaultStreamMaxLen caps research:events at roughly this many entries.
const DefaultStreamMaxLen = 10000

// Config holds the connection settings of a Client.
type Config struct {
	Addr     string
	Password string
	DB       int
	// StreamMaxLen trims streams on append; 0 keeps every entry.
	StreamMaxLen int64
}

// ConfigFromEnv reads REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB and REDIS_STREAM_MAXLEN.
func ConfigFromEnv() Config {
	return Config{
		Addr:         net.JoinHostPort(utils.Env("REDIS_HOST", "localhost"), utils.Env("REDIS_PORT", "6379")),
		Password:     utils.Env("REDIS_PASSWORD", ""),
		DB:           utils.EnvInt("REDIS_DB", 0),
		StreamMaxLen: utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen),
	}
}

// Client carries research notifications over Redis Pub/Sub and the events stream.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
	cfg    Config
}

// NewClient connects with ConfigFromEnv.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	return Dial(ctx, ConfigFromEnv(), logger)
}

// Dial connects to cfg.Addr, retrying the initial ping a few times.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	dialCfg := retry.DefaultConfig()
	dialCfg.MaxRetries = 3
	dialCfg.InitialDelay = 500 * time.Millisecond
	err := retry.WithBackoff(ctx, dialCfg, logger, "redis_ping", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Int64("streamMaxLen", cfg.StreamMaxLen))

	return &Client{rdb: rdb, logger: logger, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish sends message on channel. Failures are logged, never returned: a missed
// live notification must not fail a committed transaction.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) {
	if err := c.rdb.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// PSubscribe subscribes to channel patterns such as research:*. The caller closes the PubSub.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	c.logger.Debug("Subscribing to Redis patterns", zap.Strings("patterns", patterns))
	return c.rdb.PSubscribe(ctx, patterns...)
}

// XAdd appends values to stream, trimming it approximately to StreamMaxLen.
// It returns the new entry id, or "" when the append failed (logged).
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]interface{}) string {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if c.cfg.StreamMaxLen > 0 {
		args.MaxLen = c.cfg.StreamMaxLen
		args.Approx = true
	}

	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		c.logger.Warn("Failed to add to Redis stream",
			zap.String("stream", stream),
			zap.Error(err))
		return ""
	}
	return id
}

// XRange returns at most count entries of stream between start and end, inclusive
// unless an id is prefixed with "(". "-" and "+" are the stream bounds.
func (c *Client) XRange(ctx context.Context, stream, start, end string, count int64) ([]redis.XMessage, error) {
	return c.rdb.XRangeN(ctx, stream, start, end, count).Result()
}

// readArgs selects a plain XREAD (Group empty) or an XREADGROUP.
type readArgs struct {
	Stream   string
	Group    string
	Consumer string
	ID       string
	Count    int64
	Block    time.Duration
}

// read returns the entries of one stream read with args.
func (c *Client) read(ctx context.Context, args readArgs) ([]Message, error) {
	var (
		streams []redis.XStream
		err     error
	)
	if args.Group != "" {
		streams, err = c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    args.Group,
			Consumer: args.Consumer,
			Streams:  []string{args.Stream, args.ID},
			Count:    args.Count,
			Block:    args.Block,
		}).Result()
	} else {
		streams, err = c.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{args.Stream, args.ID},
			Count:   args.Count,
			Block:   args.Block,
		}).Result()
	}
	if err != nil {
		return nil, err
	}

	var out []Message
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, Message{ID: m.ID, Stream: s.Stream, Values: m.Values})
		}
	}
	return out, nil
}

func (c *Client) ack(ctx context.Context, stream, group string, ids ...string) error {
	return c.rdb.XAck(ctx, stream, group, ids...).Err()
}

// ensureGroup creates group on stream (and the stream itself) starting at start.
func (c *Client) ensureGroup(ctx context.Context, stream, group, start string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if IsBusyGroup(err) {
		return nil
	}
	return err
}

// IsBusyGroup reports whether err is the BUSYGROUP reply for an existing consumer group.
func IsBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
