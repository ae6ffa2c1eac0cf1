package research

import "context"

// Account is a raw ledger record.
type Account struct {
	Address Pubkey
	Kind    string
	Data    []byte
}

// Tx is the view of the ledger inside one transaction. Writes become visible to other
// transactions only when the enclosing Atomic call returns nil.
type Tx interface {
	// Get returns ErrAccountNotFound when nothing is allocated at addr.
	Get(ctx context.Context, addr Pubkey) (*Account, error)
	// Create allocates a new account and returns ErrAccountInUse if addr is occupied.
	Create(ctx context.Context, acct Account) error
	// Update overwrites the data of an existing account.
	Update(ctx context.Context, acct Account) error
}

// Store is the serialized, all-or-nothing execution substrate.
type Store interface {
	// Atomic runs fn as one transaction. Any error returned by fn discards every write.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// Get reads committed state.
	Get(ctx context.Context, addr Pubkey) (*Account, error)
	Close() error
}
