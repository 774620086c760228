package scanner

import (
	"context"
	"math/big"
	"sort"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uivlis/sto/pkg/db"
)

// mockNodeClient is a func-field fake of ethereum.NodeClient.
type mockNodeClient struct {
	filterLogs  func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error)
	blockNumber func(ctx context.Context) (uint64, error)
}

func (m *mockNodeClient) TransactionCount(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (m *mockNodeClient) Balance(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (m *mockNodeClient) SendTransaction(context.Context, *types.Transaction) error {
	return nil
}

func (m *mockNodeClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
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

// memStore is an in-memory Store. Rollback is not modeled; the scanner never
// writes before a window fully applies, so aborted windows leave it untouched.
type memStore struct {
	status  map[string]*db.TokenScanStatus
	holders map[string]*db.TokenHolderAccount
}

func newMemStore() *memStore {
	return &memStore{
		status:  make(map[string]*db.TokenScanStatus),
		holders: make(map[string]*db.TokenHolderAccount),
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, m)
}

func (m *memStore) GetTokenScanStatus(_ context.Context, network, tokenAddress string) (*db.TokenScanStatus, error) {
	st, ok := m.status[network+"/"+tokenAddress]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) UpsertTokenScanStatus(_ context.Context, st *db.TokenScanStatus) error {
	cp := *st
	m.status[st.Network+"/"+st.TokenAddress] = &cp
	return nil
}

func (m *memStore) GetTokenHolderAccount(_ context.Context, network, tokenAddress, address string) (*db.TokenHolderAccount, error) {
	h, ok := m.holders[network+"/"+tokenAddress+"/"+address]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (m *memStore) UpsertTokenHolderAccount(_ context.Context, h *db.TokenHolderAccount) error {
	cp := *h
	m.holders[h.Network+"/"+h.TokenAddress+"/"+h.Address] = &cp
	return nil
}

func (m *memStore) ListTokenHolderAccounts(_ context.Context, network, tokenAddress string) ([]*db.TokenHolderAccount, error) {
	var out []*db.TokenHolderAccount
	for _, h := range m.holders {
		if h.Network == network && h.TokenAddress == tokenAddress {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
