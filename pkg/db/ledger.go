package db

import (
	"context"
	"fmt"

	"github.com/research-protocol/researchx/pkg/db/memory"
	"github.com/research-protocol/researchx/pkg/db/postgres"
	"github.com/research-protocol/researchx/pkg/db/sqlite"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/utils"
	"go.uber.org/zap"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// NewLedgerStore opens the ledger backend selected by LEDGER_BACKEND.
func NewLedgerStore(ctx context.Context, logger *zap.Logger, component string) (research.Store, error) {
	backend := utils.Env("LEDGER_BACKEND", BackendMemory)
	logger.Info("Opening ledger store", zap.String("backend", backend))

	switch backend {
	case BackendMemory:
		return memory.New(), nil
	case BackendSQLite:
		return sqlite.Open(ctx, utils.Env("SQLITE_PATH", "research.db"), logger)
	case BackendPostgres:
		client, err := postgres.New(ctx, logger, postgres.GetPoolConfigForComponent(component))
		if err != nil {
			return nil, err
		}
		store, err := postgres.NewLedgerStore(ctx, &client)
		if err != nil {
			client.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", backend)
	}
}
