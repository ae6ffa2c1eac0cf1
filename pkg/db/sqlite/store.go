// Package sqlite is a single-file ledger store for local nodes and demos.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/research-protocol/researchx/pkg/research"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	address    BLOB PRIMARY KEY,
	kind       TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path. Writers are serialized by a single connection.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("SQLite ledger ready", zap.String("path", path))
	return s, nil
}

// New wraps an open handle and applies the schema.
func New(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Atomic(ctx context.Context, fn func(tx research.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("Rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, addr research.Pubkey) (*research.Account, error) {
	return get(ctx, s.db, addr)
}

func (s *Store) Close() error { return s.db.Close() }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q queryer, addr research.Pubkey) (*research.Account, error) {
	acct := &research.Account{Address: addr}
	err := q.QueryRowContext(ctx, `SELECT kind, data FROM accounts WHERE address = ?`, addr[:]).Scan(&acct.Kind, &acct.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", addr, research.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select account %s: %w", addr, err)
	}
	return acct, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Get(ctx context.Context, addr research.Pubkey) (*research.Account, error) {
	return get(ctx, t.tx, addr)
}

func (t *sqlTx) Create(ctx context.Context, acct research.Account) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (address, kind, data) VALUES (?, ?, ?) ON CONFLICT (address) DO NOTHING`,
		acct.Address[:], acct.Kind, acct.Data)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", acct.Address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert account %s: %w", acct.Address, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", acct.Address, research.ErrAccountInUse)
	}
	return nil
}

func (t *sqlTx) Update(ctx context.Context, acct research.Account) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE address = ? AND kind = ?`,
		acct.Data, acct.Address[:], acct.Kind)
	if err != nil {
		return fmt.Errorf("update account %s: %w", acct.Address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account %s: %w", acct.Address, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := t.Get(ctx, acct.Address); err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", acct.Address, research.ErrAccountDiscriminatorMismatch)
}
