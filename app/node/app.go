package node

import (
	"context"

	"github.com/research-protocol/researchx/app/node/types"
	"github.com/research-protocol/researchx/pkg/db"
	"github.com/research-protocol/researchx/pkg/logging"
	"github.com/research-protocol/researchx/pkg/notify"
	"github.com/research-protocol/researchx/pkg/redis"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/txn"
	"github.com/research-protocol/researchx/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	programID := research.DefaultProgramID
	if raw := utils.Env("PROGRAM_ID", ""); raw != "" {
		programID, err = research.ParsePubkey(raw)
		if err != nil {
			logger.Fatal("Invalid PROGRAM_ID", zap.Error(err))
		}
	}

	store, err := db.NewLedgerStore(ctx, logger, "node")
	if err != nil {
		logger.Fatal("Unable to open ledger store", zap.Error(err))
	}

	emitters := []research.Emitter{notify.NewLogEmitter(logger)}

	var redisClient *redis.Client
	if utils.EnvBool("REDIS_ENABLED", false) {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - events will only be logged",
				zap.Error(err))
			redisClient = nil
		} else {
			emitters = append(emitters, notify.NewRedisEmitter(redisClient, logger))
		}
	} else {
		logger.Info("Redis disabled - events will only be logged and WebSocket streaming is unavailable")
	}

	fanout := notify.NewFanout(0, emitters...)

	app := &types.App{
		Program:     research.NewProgram(programID, store, research.SystemClock{}, fanout, logger),
		Store:       store,
		Backend:     utils.Env("LEDGER_BACKEND", db.BackendMemory),
		Fanout:      fanout,
		RedisClient: redisClient,
		Replay:      txn.NewReplayGuard(),
		MaxTTL:      utils.EnvDuration("TX_MAX_TTL", txn.DefaultMaxTTL),
		CronSpec:    utils.Env("REPLAY_SWEEP_CRON", "0 * * * * *"),
		Logger:      logger,
	}

	if err := app.SetupScheduler(cron.DefaultLogger); err != nil {
		logger.Fatal("Unable to set up scheduler", zap.Error(err))
	}

	logger.Info("Program ready",
		zap.String("program_id", programID.String()),
		zap.String("backend", app.Backend),
		zap.Duration("tx_max_ttl", app.MaxTTL))

	return app
}
