// Package memory is an in-process ledger store. Transactions are serialized by a single
// mutex and their writes are buffered until the transaction function returns, then
// published together so readers never see part of a commit.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/research-protocol/researchx/pkg/research"
)

type Store struct {
	mu sync.Mutex
	// pub guards publication of a commit against Get and Len.
	pub      sync.RWMutex
	accounts *xsync.Map[research.Pubkey, research.Account]
}

func New() *Store {
	return &Store{accounts: xsync.NewMap[research.Pubkey, research.Account]()}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx research.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s, writes: make(map[research.Pubkey]research.Account)}
	if err := fn(tx); err != nil {
		return err
	}
	s.pub.Lock()
	for _, addr := range tx.order {
		s.accounts.Store(addr, tx.writes[addr])
	}
	s.pub.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, addr research.Pubkey) (*research.Account, error) {
	s.pub.RLock()
	acct, ok := s.accounts.Load(addr)
	s.pub.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, research.ErrAccountNotFound)
	}
	return cloneAccount(acct), nil
}

// Len reports the number of committed accounts.
func (s *Store) Len() int {
	s.pub.RLock()
	defer s.pub.RUnlock()
	return s.accounts.Size()
}

func (s *Store) Close() error { return nil }

type memTx struct {
	store  *Store
	writes map[research.Pubkey]research.Account
	order  []research.Pubkey
}

func (t *memTx) lookup(addr research.Pubkey) (research.Account, bool) {
	if acct, ok := t.writes[addr]; ok {
		return acct, true
	}
	return t.store.accounts.Load(addr)
}

func (t *memTx) Get(_ context.Context, addr research.Pubkey) (*research.Account, error) {
	acct, ok := t.lookup(addr)
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, research.ErrAccountNotFound)
	}
	return cloneAccount(acct), nil
}

func (t *memTx) Create(_ context.Context, acct research.Account) error {
	if _, ok := t.lookup(acct.Address); ok {
		return fmt.Errorf("%s: %w", acct.Address, research.ErrAccountInUse)
	}
	t.put(acct)
	return nil
}

func (t *memTx) Update(_ context.Context, acct research.Account) error {
	prev, ok := t.lookup(acct.Address)
	if !ok {
		return fmt.Errorf("%s: %w", acct.Address, research.ErrAccountNotFound)
	}
	if prev.Kind != acct.Kind {
		return fmt.Errorf("%s: %w", acct.Address, research.ErrAccountDiscriminatorMismatch)
	}
	t.put(acct)
	return nil
}

func (t *memTx) put(acct research.Account) {
	if _, seen := t.writes[acct.Address]; !seen {
		t.order = append(t.order, acct.Address)
	}
	t.writes[acct.Address] = *cloneAccount(acct)
}

func cloneAccount(acct research.Account) *research.Account {
	out := acct
	out.Data = append([]byte(nil), acct.Data...)
	return &out
}
