package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/research-protocol/researchx/pkg/research"
	"github.com/research-protocol/researchx/pkg/retry"
	"go.uber.org/zap"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	address    BYTEA PRIMARY KEY,
	kind       TEXT NOT NULL,
	data       BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// LedgerStore runs every transaction at SERIALIZABLE isolation and replays it on
// serialization failures.
type LedgerStore struct {
	client *Client
	retry  retry.Config
}

func NewLedgerStore(ctx context.Context, client *Client) (*LedgerStore, error) {
	if err := client.Exec(ctx, ledgerSchema); err != nil {
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return &LedgerStore{
		client: client,
		retry:  retry.ConflictConfig(IsSerializationFailure),
	}, nil
}

func (s *LedgerStore) Atomic(ctx context.Context, fn func(tx research.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	return retry.WithBackoff(ctx, s.retry, s.client.Logger, "ledger_tx", func() error {
		return s.client.BeginTxFunc(ctx, opts, func(tx pgx.Tx) error {
			return fn(&pgTx{tx: tx})
		})
	})
}

func (s *LedgerStore) Get(ctx context.Context, addr research.Pubkey) (*research.Account, error) {
	acct := &research.Account{Address: addr}
	err := s.client.Pool.QueryRow(ctx, `SELECT kind, data FROM accounts WHERE address = $1`, addr[:]).Scan(&acct.Kind, &acct.Data)
	if IsNoRows(err) {
		return nil, fmt.Errorf("%s: %w", addr, research.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select account %s: %w", addr, err)
	}
	return acct, nil
}

func (s *LedgerStore) Close() error {
	s.client.Logger.Debug("Closing postgres ledger", zap.Int32("total_conns", s.client.Pool.Stat().TotalConns()))
	s.client.Close()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, addr research.Pubkey) (*research.Account, error) {
	acct := &research.Account{Address: addr}
	err := t.tx.QueryRow(ctx, `SELECT kind, data FROM accounts WHERE address = $1 FOR UPDATE`, addr[:]).Scan(&acct.Kind, &acct.Data)
	if IsNoRows(err) {
		return nil, fmt.Errorf("%s: %w", addr, research.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select account %s: %w", addr, err)
	}
	return acct, nil
}

func (t *pgTx) Create(ctx context.Context, acct research.Account) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (address, kind, data) VALUES ($1, $2, $3) ON CONFLICT (address) DO NOTHING`,
		acct.Address[:], acct.Kind, acct.Data)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", acct.Address, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", acct.Address, research.ErrAccountInUse)
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, acct research.Account) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET data = $2, updated_at = now() WHERE address = $1 AND kind = $3`,
		acct.Address[:], acct.Data, acct.Kind)
	if err != nil {
		return fmt.Errorf("update account %s: %w", acct.Address, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := t.Get(ctx, acct.Address); err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", acct.Address, research.ErrAccountDiscriminatorMismatch)
}
