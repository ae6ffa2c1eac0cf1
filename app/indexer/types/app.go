package types

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/research-protocol/researchx/pkg/db"
	"github.com/research-protocol/researchx/pkg/indexer"
	"github.com/research-protocol/researchx/pkg/redis"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type App struct {
	EventsDB  db.EventStore
	ReportsDB db.ReportsStore

	RedisClient *redis.Client
	Consumer    *redis.StreamConsumer
	// Reader serves resync pages; normally RedisClient.
	Reader    indexer.StreamReader
	Stream    string
	Projector *indexer.Projector

	// ResyncPool inserts replayed pages concurrently.
	ResyncPool     pond.Pool
	ResyncPageSize int64

	// Cron runs OPTIMIZE ... FINAL on the events table.
	Cron     *cron.Cron
	CronSpec string

	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Resync replays the stream from its first entry into the events table.
func (a *App) Resync(ctx context.Context) (int, error) {
	if a.Reader == nil {
		return 0, errors.New("no stream reader configured")
	}
	return a.Projector.Resync(ctx, a.Reader, a.Stream, a.ResyncPool, a.ResyncPageSize)
}

// SetupScheduler registers the periodic table optimization.
func (a *App) SetupScheduler(logger cron.Logger) error {
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))
	_, err := a.Cron.AddFunc(a.CronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := a.EventsDB.Optimize(ctx); err != nil {
			a.Logger.Warn("Events optimize failed", zap.Error(err))
		}
	})
	return err
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("[indexer] Cron started", zap.String("cronSpec", a.CronSpec))
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if a.Consumer == nil {
			return
		}
		if err := a.Consumer.Run(ctx, a.Projector.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("Stream consumer stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)
	<-consumerDone

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	if a.ResyncPool != nil {
		a.ResyncPool.StopAndWait()
	}

	if err := a.EventsDB.Close(); err != nil {
		a.Logger.Error("Failed to close events database", zap.Error(err))
	}
	if a.ReportsDB != nil {
		if err := a.ReportsDB.Close(); err != nil {
			a.Logger.Error("Failed to close reports database", zap.Error(err))
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
