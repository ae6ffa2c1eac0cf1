package types

import (
	"context"
	"net/http"
	"time"

	"github.com/research-protocol/researchx/pkg/notify"
	"github.com/research-protocol/researchx/pkg/redis"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/txn"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type App struct {
	Program *research.Program
	Store   research.Store
	Backend string
	// Fanout delivers committed events to the log and, when enabled, to Redis.
	Fanout *notify.Fanout
	// RedisClient is nil when REDIS_ENABLED is not "true".
	RedisClient *redis.Client

	Replay *txn.ReplayGuard
	MaxTTL time.Duration

	// Cron sweeps expired envelope ids out of Replay.
	Cron     *cron.Cron
	CronSpec string

	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// SetupScheduler registers the replay sweep.
func (a *App) SetupScheduler(logger cron.Logger) error {
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))
	_, err := a.Cron.AddFunc(a.CronSpec, func() {
		if n := a.Replay.Sweep(); n > 0 {
			a.Logger.Debug("Expired envelope ids dropped", zap.Int("count", n))
		}
	})
	return err
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("[node] Cron started", zap.String("cronSpec", a.CronSpec))
	}
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}

	a.Fanout.Stop()

	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close ledger store", zap.Error(err))
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
