// Package clickhouse is the connection layer for the indexer and reporter databases.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/research-protocol/researchx/pkg/retry"
	"github.com/research-protocol/researchx/pkg/utils"
	"go.uber.org/zap"
)

// ReplacingMergeTree is the engine of every projection table: rows sharing a sorting key
// collapse to the one with the highest version column.
const ReplacingMergeTree = "ReplacingMergeTree"

type Client struct {
	Logger   *zap.Logger
	Db       driver.Conn
	Database string
	// Cluster is empty on single-node deployments.
	Cluster string
}

// PoolConfig defines connection pool settings for a specific component
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Component       string
}

// DSN is the parsed form of CLICKHOUSE_ADDR.
type DSN struct {
	Replicas []string
	Username string
	Password string
}

// ParseDSN reads clickhouse://[user[:pass]@]host1:port[,host2:port][/db][?params].
// The database path and params are ignored: each client names its own database.
func ParseDSN(raw string) DSN {
	rest := strings.TrimPrefix(strings.TrimPrefix(raw, "clickhouse://"), "tcp://")

	dsn := DSN{Username: "default"}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		user, pass, _ := strings.Cut(rest[:at], ":")
		dsn.Username, dsn.Password = user, pass
		rest = rest[at+1:]
	}
	if end := strings.IndexAny(rest, "/?"); end != -1 {
		rest = rest[:end]
	}
	for _, host := range strings.Split(rest, ",") {
		if host = strings.TrimSpace(host); host != "" {
			dsn.Replicas = append(dsn.Replicas, host)
		}
	}
	if len(dsn.Replicas) == 0 {
		dsn.Replicas = []string{"localhost:9000"}
	}
	return dsn
}

// New connects to ClickHouse, creates dbName if needed and returns a client bound to it.
func New(ctx context.Context, logger *zap.Logger, dbName string, pool *PoolConfig) (Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if pool == nil {
		pool = GetPoolConfigForComponent("")
	}
	dsn := ParseDSN(utils.Env("CLICKHOUSE_ADDR", "clickhouse://localhost:9000?sslmode=disable"))
	strategy := parseConnOpenStrategy(utils.Env("CLICKHOUSE_CONN_STRATEGY", "in_order"))

	client := Client{
		Logger:   logger,
		Database: dbName,
		Cluster:  utils.Env("CLICKHOUSE_CLUSTER", ""),
	}

	open := func(database string) (driver.Conn, error) {
		opts := &clickhouse.Options{
			Addr:             dsn.Replicas,
			ConnOpenStrategy: strategy,
			Auth:             clickhouse.Auth{Database: database, Username: dsn.Username, Password: dsn.Password},
			DialTimeout:      30 * time.Second,
			MaxOpenConns:     pool.MaxOpenConns,
			MaxIdleConns:     pool.MaxIdleConns,
			ConnMaxLifetime:  pool.ConnMaxLifetime,
			Compression:      &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
			// aggregate aliases in the request summary query shadow column names
			Settings: clickhouse.Settings{"prefer_column_name_to_alias": 1},
		}
		if logger.Core().Enabled(zap.DebugLevel) {
			opts.Debugf = logger.Named("clickhouse.driver").Sugar().Debugf
		}
		conn, err := clickhouse.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("open clickhouse connection: %w", err)
		}
		if err := conn.Ping(connCtx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ping clickhouse: %w", err)
		}
		return conn, nil
	}

	// dbName may not exist yet, so bootstrap through "default".
	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		bootstrap, err := open("default")
		if err != nil {
			return err
		}
		client.Db = bootstrap
		err = client.CreateDbIfNotExists(connCtx, dbName)
		_ = bootstrap.Close()
		if err != nil {
			return err
		}

		client.Db, err = open(dbName)
		return err
	})
	if err != nil {
		return Client{}, err
	}

	logger.Info("ClickHouse connection pool configured",
		zap.String("database", dbName),
		zap.String("component", pool.Component),
		zap.Strings("replicas", dsn.Replicas),
		zap.String("conn_strategy", formatConnOpenStrategy(strategy)),
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("max_idle_conns", pool.MaxIdleConns),
		zap.Duration("conn_max_lifetime", pool.ConnMaxLifetime),
	)
	return client, nil
}

// parseConnOpenStrategy accepts in_order, round_robin or random.
func parseConnOpenStrategy(strategy string) clickhouse.ConnOpenStrategy {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "round_robin", "roundrobin":
		return clickhouse.ConnOpenRoundRobin
	case "random":
		return clickhouse.ConnOpenRandom
	default:
		// in_order keeps read-after-write on the same replica
		return clickhouse.ConnOpenInOrder
	}
}

func formatConnOpenStrategy(strategy clickhouse.ConnOpenStrategy) string {
	switch strategy {
	case clickhouse.ConnOpenRoundRobin:
		return "round_robin"
	case clickhouse.ConnOpenRandom:
		return "random"
	case clickhouse.ConnOpenInOrder:
		return "in_order"
	}
	return "unknown"
}

// SanitizeName turns a configured database name into a bare ClickHouse identifier.
func SanitizeName(id string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToLower(id))
}

func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.Db.Exec(ctx, query, args...)
}

func (c *Client) QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row {
	return c.Db.QueryRow(ctx, query, args...)
}

func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.Db.PrepareBatch(ctx, query)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Db.Ping(ctx)
}

func (c *Client) Close() error {
	return c.Db.Close()
}

// OnCluster returns the ON CLUSTER clause, or "" on a single node.
// DDL needs it to reach every replica: https://clickhouse.com/docs/sql-reference/distributed-ddl
func (c *Client) OnCluster() string {
	if c.Cluster == "" {
		return ""
	}
	return "ON CLUSTER " + c.Cluster
}

func (c *Client) CreateDbIfNotExists(ctx context.Context, dbName string) error {
	c.Logger.Info("Creating database", zap.String("database", dbName))
	return c.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s %s ENGINE = Atomic", dbName, c.OnCluster()))
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// SelectWithFinal runs a Select that must read with FINAL, so ReplacingMergeTree
// duplicates not yet merged are collapsed.
func (c *Client) SelectWithFinal(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if !strings.Contains(query, "FINAL") {
		return errors.New("SelectWithFinal: query has no FINAL after the table name")
	}
	return c.Db.Select(ctx, dest, query, args...)
}

// OptimizeTable forces merges on a table, collapsing duplicates when final is set.
func (c *Client) OptimizeTable(ctx context.Context, database, table string, final bool) error {
	query := fmt.Sprintf(`OPTIMIZE TABLE "%s"."%s" %s`, database, table, c.OnCluster())
	if final {
		query += " FINAL"
	}
	if c.Cluster != "" {
		// wait for every replica
		query += " SETTINGS alter_sync = 2"
	}

	c.Logger.Info("Optimizing table",
		zap.String("database", database),
		zap.String("table", table),
		zap.Bool("final", final))

	if err := c.Exec(ctx, query); err != nil {
		return fmt.Errorf("optimize table %s.%s: %w", database, table, err)
	}
	return nil
}

// componentPools sizes the pool of each process. The indexer writes one row per
// stream entry plus resync pages; the reporter runs one rebuild at a time.
var componentPools = map[string]PoolConfig{
	"indexer":  {MaxOpenConns: 20, MaxIdleConns: 5},
	"reporter": {MaxOpenConns: 5, MaxIdleConns: 2},
}

// GetPoolConfigForComponent returns the pool of a known component. Other components are
// sized from CLICKHOUSE_MAX_OPEN_CONNS, CLICKHOUSE_MAX_IDLE_CONNS and
// CLICKHOUSE_CONN_MAX_LIFETIME.
func GetPoolConfigForComponent(component string) *PoolConfig {
	cfg, known := componentPools[component]
	cfg.Component = component
	cfg.ConnMaxLifetime = 5 * time.Minute
	if !known {
		cfg.MaxOpenConns = utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 75)
		cfg.MaxIdleConns = utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 75)
		cfg.ConnMaxLifetime = utils.EnvDuration("CLICKHOUSE_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	}
	cfg.MaxIdleConns = min(cfg.MaxIdleConns, cfg.MaxOpenConns)
	return &cfg
}
