package txservice

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uivlis/sto/pkg/db"
)

// ErrNonceOutOfSync is returned when a broadcast was rejected by the node and
// the local nonce counter can no longer be trusted. The caller must run a
// nonce resync before broadcasting again; the failed nonce is not reclaimed.
var ErrNonceOutOfSync = errors.New("local nonce counter is out of sync with the chain")

// Store is the persistence surface the queue service needs. *db.Store wrapped
// by NewStore satisfies it; tests substitute an in-memory fake.
type Store interface {
	// InTx runs fn against a transaction-scoped view of the store. The
	// changes fn makes are committed atomically, or rolled back when fn
	// returns an error.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	CreateTransaction(ctx context.Context, tx *db.PreparedTransaction) error
	GetTransaction(ctx context.Context, id string) (*db.PreparedTransaction, error)
	GetTransactionByExternalID(ctx context.Context, network, externalID string) (*db.PreparedTransaction, error)
	GetTransactionsInState(ctx context.Context, network, fromAddress string, state db.TxState) ([]*db.PreparedTransaction, error)
	ListRecentTransactions(ctx context.Context, network string, limit int) ([]*db.PreparedTransaction, error)
	MarkTransactionBroadcast(ctx context.Context, id, txHash string, at time.Time) error
	MarkTransactionFailed(ctx context.Context, id, reason string, at time.Time) error
	MarkTransactionResult(ctx context.Context, id string, success bool, blockNum int64, reason string, at time.Time) error
	GetBroadcastAccount(ctx context.Context, network, address string) (*db.BroadcastAccount, error)
	SetBroadcastAccountNonce(ctx context.Context, network, address string, nonce int64) error
}

// NewStore adapts the concrete database store to the Store interface,
// threading transaction scope through InTx.
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

// TxSigner signs transactions on behalf of the custodial broadcast account.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// CallParams describes one transaction to prepare. Exactly one of Deployment
// and To must be set: deployments carry the contract bytecode in CallData and
// have no destination, calls target an existing contract.
type CallParams struct {
	// ExternalID is an optional caller-supplied correlation id. When a
	// transaction with the same id already exists, Prepare returns it
	// instead of preparing a duplicate.
	ExternalID string

	To           *common.Address
	CallData     []byte
	ValueWei     *big.Int
	GasLimit     uint64   // 0 means the configured default
	GasPriceWei  *big.Int // nil means the configured default
	Deployment   bool
	ContractName string
	Receiver     *common.Address // token receiver, recorded for auditing
	Note         string
}

// DistributionEntry is one row of a token distribution: who receives how many
// base units, under which correlation id.
type DistributionEntry struct {
	ExternalID string
	Address    common.Address
	Name       string
	Email      string
	RawAmount  *big.Int
}

// Report is the result of a connectivity diagnosis against the configured
// node and broadcast account.
type Report struct {
	Network     string
	Address     string
	BlockNumber uint64
	BalanceWei  *big.Int
	Funded      bool
}
