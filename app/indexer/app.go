package indexer

import (
	"context"
	"os"

	"github.com/alitto/pond/v2"
	"github.com/research-protocol/researchx/app/indexer/types"
	"github.com/research-protocol/researchx/pkg/db"
	projection "github.com/research-protocol/researchx/pkg/indexer"
	"github.com/research-protocol/researchx/pkg/logging"
	"github.com/research-protocol/researchx/pkg/redis"
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

	eventsDB, err := db.NewEventsDB(ctx, logger, "indexer")
	if err != nil {
		logger.Fatal("Unable to initialize events database", zap.Error(err))
	}

	reportsDB, err := db.NewReportsDB(ctx, logger, "indexer")
	if err != nil {
		logger.Fatal("Unable to initialize reports database", zap.Error(err))
	}

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to Redis", zap.Error(err))
	}

	stream := utils.Env("EVENTS_STREAM", utils.EventsStream)
	hostname, _ := os.Hostname()
	consumer, err := redis.NewStreamConsumer(redisClient, redis.StreamConsumerConfig{
		Stream:   stream,
		Group:    utils.Env("INDEXER_GROUP", "indexer"),
		Consumer: utils.Env("INDEXER_CONSUMER", "indexer-"+hostname),
		Count:    utils.EnvInt64("INDEXER_BATCH", 100),
		Logger:   logger.Named("consumer"),
	})
	if err != nil {
		logger.Fatal("Unable to create stream consumer", zap.Error(err))
	}

	app := &types.App{
		EventsDB:       eventsDB,
		ReportsDB:      reportsDB,
		RedisClient:    redisClient,
		Consumer:       consumer,
		Reader:         redisClient,
		Stream:         stream,
		Projector:      projection.NewProjector(eventsDB, logger),
		ResyncPool:     pond.NewPool(utils.EnvInt("RESYNC_WORKERS", 4), pond.WithQueueSize(64)),
		ResyncPageSize: utils.EnvInt64("RESYNC_PAGE_SIZE", projection.DefaultResyncPageSize),
		CronSpec:       utils.Env("OPTIMIZE_CRON", "0 */15 * * * *"),
		Logger:         logger,
	}

	if err := app.SetupScheduler(cron.DefaultLogger); err != nil {
		logger.Fatal("Unable to set up scheduler", zap.Error(err))
	}

	logger.Info("Indexer ready",
		zap.String("events_db", eventsDB.DatabaseName()),
		zap.String("reports_db", reportsDB.DatabaseName()),
		zap.String("stream", stream))

	return app
}
