package workerreports

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	sdkworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/research-protocol/researchx/pkg/db"
	"github.com/research-protocol/researchx/pkg/logging"
	reportactivity "github.com/research-protocol/researchx/pkg/reporter/activity"
	"github.com/research-protocol/researchx/pkg/reporter/workflow"
	"github.com/research-protocol/researchx/pkg/temporal"
)

type App struct {
	Worker         worker.Worker
	TemporalClient *temporal.Client
	ReportsDB      db.ReportsStore
	Logger         *zap.Logger
}

// Start starts the worker and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	err := a.Worker.Start()
	if err != nil {
		a.Logger.Fatal("Unable to start worker", zap.Error(err))
	}
	if err := a.TemporalClient.EnsureResearchReportsSchedule(ctx); err != nil {
		a.Logger.Error("Unable to ensure research reports schedule", zap.Error(err))
	}
	<-ctx.Done()
	a.Stop()
}

// Stop stops the worker.
func (a *App) Stop() {
	a.Worker.Stop()
	a.TemporalClient.Close()
	if err := a.ReportsDB.Close(); err != nil {
		a.Logger.Error("Failed to close reports database", zap.Error(err))
	}
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	// The events table must exist before the first INSERT ... SELECT reads it.
	eventsDB, err := db.NewEventsDB(ctx, logger, "reporter")
	if err != nil {
		logger.Fatal("Unable to initialize events database", zap.Error(err))
	}
	eventsDBName := eventsDB.DatabaseName()
	_ = eventsDB.Close()

	reportsDB, err := db.NewReportsDB(ctx, logger, "reporter")
	if err != nil {
		logger.Fatal("Unable to initialize reports database", zap.Error(err))
	}

	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	activityContext := &reportactivity.Context{
		Logger:    logger,
		EventsDB:  eventsDBName,
		ReportsDB: reportsDB,
	}
	workflowContext := workflow.Context{
		ActivityContext: activityContext,
		TaskQueue:       temporalClient.ReportsQueue,
	}

	wkr := worker.New(
		temporalClient.TClient,
		temporalClient.ReportsQueue,
		worker.Options{},
	)

	wkr.RegisterWorkflowWithOptions(workflowContext.ComputeResearchStatsWorkflow,
		sdkworkflow.RegisterOptions{Name: temporal.ComputeResearchStatsWorkflowName})
	wkr.RegisterActivityWithOptions(activityContext.ComputeResearchStats,
		activity.RegisterOptions{Name: temporal.ComputeResearchStatsActivityName})

	logger.Info("Reporter ready",
		zap.String("events_db", eventsDBName),
		zap.String("reports_db", reportsDB.DatabaseName()),
		zap.String("namespace", temporalClient.Namespace),
		zap.String("queue", temporalClient.ReportsQueue))

	return &App{
		Worker:         wkr,
		TemporalClient: temporalClient,
		ReportsDB:      reportsDB,
		Logger:         logger,
	}
}
