package txservice

import (
	"context"
	"math/big"
	"sort"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uivlis/sto/pkg/db"
)

// mockNodeClient is a func-field fake of ethereum.NodeClient. Unset fields
// return zero values.
type mockNodeClient struct {
	transactionCount   func(ctx context.Context, account common.Address) (uint64, error)
	balance            func(ctx context.Context, account common.Address) (*big.Int, error)
	sendTransaction    func(ctx context.Context, tx *types.Transaction) error
	transactionReceipt func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	filterLogs         func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error)
	blockNumber        func(ctx context.Context) (uint64, error)
}

func (m *mockNodeClient) TransactionCount(ctx context.Context, account common.Address) (uint64, error) {
	if m.transactionCount == nil {
		return 0, nil
	}
	return m.transactionCount(ctx, account)
}

func (m *mockNodeClient) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	if m.balance == nil {
		return big.NewInt(0), nil
	}
	return m.balance(ctx, account)
}

func (m *mockNodeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if m.sendTransaction == nil {
		return nil
	}
	return m.sendTransaction(ctx, tx)
}

func (m *mockNodeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if m.transactionReceipt == nil {
		return nil, nil
	}
	return m.transactionReceipt(ctx, txHash)
}

func (m *mockNodeClient) FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
	if m.filterLogs == nil {
		return nil, nil
	}
	return m.filterLogs(ctx, q)
}

func (m *mockNodeClient) BlockNumber(ctx context.Context) (uint64, error) {
	if m.blockNumber == nil {
		return 0, nil
	}
	return m.blockNumber(ctx)
}

// memStore is an in-memory Store. InTx runs the callback against the same
// maps, so rollback is not modeled; tests that care about atomicity run
// against postgres instead.
type memStore struct {
	txs      map[string]*db.PreparedTransaction
	accounts map[string]*db.BroadcastAccount
}

func newMemStore() *memStore {
	return &memStore{
		txs:      make(map[string]*db.PreparedTransaction),
		accounts: make(map[string]*db.BroadcastAccount),
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, m)
}

func (m *memStore) CreateTransaction(_ context.Context, tx *db.PreparedTransaction) error {
	cp := *tx
	m.txs[tx.ID] = &cp
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, id string) (*db.PreparedTransaction, error) {
	tx, ok := m.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (m *memStore) GetTransactionByExternalID(_ context.Context, network, externalID string) (*db.PreparedTransaction, error) {
	if externalID == "" {
		return nil, nil
	}
	for _, tx := range m.txs {
		if tx.Network == network && tx.ExternalID == externalID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetTransactionsInState(_ context.Context, network, fromAddress string, state db.TxState) ([]*db.PreparedTransaction, error) {
	var out []*db.PreparedTransaction
	for _, tx := range m.txs {
		if tx.Network == network && tx.FromAddress == fromAddress && tx.State == state {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out, nil
}

func (m *memStore) ListRecentTransactions(_ context.Context, network string, limit int) ([]*db.PreparedTransaction, error) {
	var out []*db.PreparedTransaction
	for _, tx := range m.txs {
		if tx.Network == network {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkTransactionBroadcast(_ context.Context, id, txHash string, at time.Time) error {
	tx := m.txs[id]
	tx.State = db.TxStateBroadcast
	tx.TxHash = txHash
	tx.BroadcastAt = &at
	tx.UpdatedAt = at
	return nil
}

func (m *memStore) MarkTransactionFailed(_ context.Context, id, reason string, at time.Time) error {
	tx := m.txs[id]
	tx.State = db.TxStateFailed
	tx.FailureReason = reason
	tx.UpdatedAt = at
	return nil
}

func (m *memStore) MarkTransactionResult(_ context.Context, id string, success bool, blockNum int64, reason string, at time.Time) error {
	tx := m.txs[id]
	if success {
		tx.State = db.TxStateConfirmed
	} else {
		tx.State = db.TxStateFailed
		tx.FailureReason = reason
	}
	tx.ResultSuccess = &success
	tx.ResultBlockNum = &blockNum
	tx.ResultFetchedAt = &at
	tx.UpdatedAt = at
	return nil
}

func (m *memStore) GetBroadcastAccount(_ context.Context, network, address string) (*db.BroadcastAccount, error) {
	acct, ok := m.accounts[network+"/"+address]
	if !ok {
		return nil, nil
	}
	cp := *acct
	return &cp, nil
}

func (m *memStore) SetBroadcastAccountNonce(_ context.Context, network, address string, nonce int64) error {
	m.accounts[network+"/"+address] = &db.BroadcastAccount{
		Network:      network,
		Address:      address,
		CurrentNonce: nonce,
		UpdatedAt:    time.Now(),
	}
	return nil
}
