package scanner

import (
	"context"

	"github.com/uivlis/sto/pkg/db"
)

// Store is the slice of the database the scanner needs: the per-token
// checkpoint and the holder-balance ledger. *db.Store wrapped by NewStore
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	// InTx runs fn atomically. A window's balance changes and its
	// checkpoint advance commit together or not at all.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	GetTokenScanStatus(ctx context.Context, network, tokenAddress string) (*db.TokenScanStatus, error)
	UpsertTokenScanStatus(ctx context.Context, st *db.TokenScanStatus) error
	GetTokenHolderAccount(ctx context.Context, network, tokenAddress, address string) (*db.TokenHolderAccount, error)
	UpsertTokenHolderAccount(ctx context.Context, h *db.TokenHolderAccount) error
	ListTokenHolderAccounts(ctx context.Context, network, tokenAddress string) ([]*db.TokenHolderAccount, error)
}

// NewStore adapts the concrete database store to the scanner's Store
// interface.
func NewStore(s *db.Store) Store {
	return storeAdapter{s}
}

type storeAdapter struct {
	*db.Store
}

func (a storeAdapter) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return a.Store.RunInTx(ctx, func(ctx context.Context, tx *db.Store) error {
		return fn(ctx, storeAdapter{tx})
	})
}
