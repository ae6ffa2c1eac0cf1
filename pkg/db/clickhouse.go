package db

import (
	"context"

	"github.com/research-protocol/researchx/pkg/db/clickhouse"
	"github.com/research-protocol/researchx/pkg/utils"
	"go.uber.org/zap"
)

// NewEventsDB connects to the database named by INDEXER_DB and creates the events table.
func NewEventsDB(ctx context.Context, logger *zap.Logger, component string) (*EventsDB, error) {
	name := clickhouse.SanitizeName(utils.Env("INDEXER_DB", "research_indexer"))
	client, err := clickhouse.New(ctx, logger.With(zap.String("db", name)), name, clickhouse.GetPoolConfigForComponent(component))
	if err != nil {
		return nil, err
	}

	eventsDB := &EventsDB{Client: client, Name: name}
	if err := eventsDB.InitializeDB(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return eventsDB, nil
}

// NewReportsDB connects to the database named by REPORTS_DB and creates the report tables.
func NewReportsDB(ctx context.Context, logger *zap.Logger, component string) (*ReportsDB, error) {
	name := clickhouse.SanitizeName(utils.Env("REPORTS_DB", "research_reports"))
	client, err := clickhouse.New(ctx, logger.With(zap.String("db", name)), name, clickhouse.GetPoolConfigForComponent(component))
	if err != nil {
		return nil, err
	}

	reportsDB := &ReportsDB{Client: client, Name: name}
	if err := reportsDB.InitializeDB(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return reportsDB, nil
}
