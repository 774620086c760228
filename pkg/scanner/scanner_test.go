package scanner

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/uivlis/sto/pkg/app/errors"
	"github.com/uivlis/sto/pkg/config"
	"github.com/uivlis/sto/pkg/db"
	"github.com/uivlis/sto/pkg/ethereum"
)

var (
	token = common.HexToAddress("0xAA00000000000000000000000000000000000001")
	alice = common.HexToAddress("0x100000000000000000000000000000000000000A")
	bob   = common.HexToAddress("0x200000000000000000000000000000000000000B")
	carol = common.HexToAddress("0x300000000000000000000000000000000000000C")
)

func newTestScanner(t *testing.T, store Store, client *mockNodeClient, cfg Config) *Scanner {
	t.Helper()
	s, err := New(store, client, config.NetworkLocal, cfg, zap.NewNop())
	require.NoError(t, err)
	return s
}

func transferLog(from, to common.Address, value int64, block uint64, idx uint) types.Log {
	return types.Log{
		Address:     token,
		Topics:      []common.Hash{ethereum.TransferTopic, addrTopic(from), addrTopic(to)},
		Data:        common.BigToHash(big.NewInt(value)).Bytes(),
		BlockNumber: block,
		TxHash:      common.HexToHash(fmt.Sprintf("0x%064x", block*1000+uint64(idx))),
		Index:       idx,
	}
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func holderBalance(t *testing.T, store *memStore, addr common.Address) string {
	t.Helper()
	h, err := store.GetTokenHolderAccount(context.Background(), "local", token.Hex(), addr.Hex())
	require.NoError(t, err)
	require.NotNil(t, h)
	return h.RawBalance
}

func uintPtr(v uint64) *uint64 { return &v }

func TestScanAppliesTransfersInLogOrder(t *testing.T) {
	store := newMemStore()
	client := &mockNodeClient{
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			return []types.Log{
				transferLog(ethereum.ZeroAddress, alice, 100, 5, 0), // mint
				transferLog(alice, bob, 60, 5, 1),
				transferLog(bob, carol, 60, 7, 0),
			}, nil
		},
	}
	s := newTestScanner(t, store, client, Config{})

	updated, err := s.Scan(context.Background(), token, Options{StartBlock: uintPtr(0), EndBlock: uintPtr(10)})
	require.NoError(t, err)
	assert.Len(t, updated, 3)

	assert.Equal(t, "40", holderBalance(t, store, alice))
	assert.Equal(t, "0", holderBalance(t, store, bob))
	assert.Equal(t, "60", holderBalance(t, store, carol))

	status, err := store.GetTokenScanStatus(context.Background(), "local", token.Hex())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, int64(10), status.LastScannedBlock)
	assert.Equal(t, "100", status.TotalSupply)
}

func TestScanRejectsNegativeBalance(t *testing.T) {
	store := newMemStore()
	client := &mockNodeClient{
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			// spend before the mint: out of order is an invariant breach,
			// not something to patch over
			return []types.Log{
				transferLog(alice, bob, 60, 5, 0),
				transferLog(ethereum.ZeroAddress, alice, 100, 5, 1),
			}, nil
		},
	}
	s := newTestScanner(t, store, client, Config{})

	_, err := s.Scan(context.Background(), token, Options{StartBlock: uintPtr(0), EndBlock: uintPtr(10)})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryInvariantViolation))

	// the failed window was not checkpointed and wrote no balances
	status, err := store.GetTokenScanStatus(context.Background(), "local", token.Hex())
	require.NoError(t, err)
	assert.Nil(t, status)
	holders, err := store.ListTokenHolderAccounts(context.Background(), "local", token.Hex())
	require.NoError(t, err)
	assert.Empty(t, holders)
}

func TestScanHandlesBurns(t *testing.T) {
	store := newMemStore()
	client := &mockNodeClient{
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			return []types.Log{
				transferLog(ethereum.ZeroAddress, alice, 100, 3, 0),
				transferLog(alice, ethereum.ZeroAddress, 30, 4, 0),
			}, nil
		},
	}
	s := newTestScanner(t, store, client, Config{})

	_, err := s.Scan(context.Background(), token, Options{StartBlock: uintPtr(0), EndBlock: uintPtr(5)})
	require.NoError(t, err)

	assert.Equal(t, "70", holderBalance(t, store, alice))
	status, err := store.GetTokenScanStatus(context.Background(), "local", token.Hex())
	require.NoError(t, err)
	assert.Equal(t, "70", status.TotalSupply)
}

func TestScanWalksWindowsInAscendingOrder(t *testing.T) {
	store := newMemStore()
	var windows [][2]uint64
	client := &mockNodeClient{
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			windows = append(windows, [2]uint64{q.FromBlock.Uint64(), q.ToBlock.Uint64()})
			return nil, nil
		},
	}
	s := newTestScanner(t, store, client, Config{WindowSize: 10})

	_, err := s.Scan(context.Background(), token, Options{StartBlock: uintPtr(0), EndBlock: uintPtr(25)})
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{0, 9}, {10, 19}, {20, 25}}, windows)
}

func TestScanResumesFromCheckpoint(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.UpsertTokenScanStatus(context.Background(), &db.TokenScanStatus{
		Network:          "local",
		TokenAddress:     token.Hex(),
		StartBlock:       0,
		EndBlock:         2000,
		LastScannedBlock: 999,
		TotalSupply:      "500",
	}))

	var firstFrom uint64
	client := &mockNodeClient{
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			if firstFrom == 0 {
				firstFrom = q.FromBlock.Uint64()
			}
			return nil, nil
		},
	}
	s := newTestScanner(t, store, client, Config{})

	_, err := s.Scan(context.Background(), token, Options{EndBlock: uintPtr(1500)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), firstFrom)

	// supply carried over from the previous run
	status, err := store.GetTokenScanStatus(context.Background(), "local", token.Hex())
	require.NoError(t, err)
	assert.Equal(t, "500", status.TotalSupply)
	assert.Equal(t, int64(1500), status.LastScannedBlock)
	assert.Equal(t, int64(0), status.StartBlock)
}

func TestScanDefaultsEndToLaggedHead(t *testing.T) {
	store := newMemStore()
	var last uint64
	client := &mockNodeClient{
		blockNumber: func(ctx context.Context) (uint64, error) { return 100, nil },
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			last = q.ToBlock.Uint64()
			return nil, nil
		},
	}
	s := newTestScanner(t, store, client, Config{ConfirmationLag: 6})

	_, err := s.Scan(context.Background(), token, Options{StartBlock: uintPtr(90)})
	require.NoError(t, err)
	assert.Equal(t, uint64(94), last)
}

func TestScanStopsBetweenWindows(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	client := &mockNodeClient{
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			calls++
			cancel() // cancellation lands mid-scan
			return []types.Log{transferLog(ethereum.ZeroAddress, alice, 10, q.FromBlock.Uint64(), 0)}, nil
		},
	}
	s := newTestScanner(t, store, client, Config{WindowSize: 10})

	updated, err := s.Scan(ctx, token, Options{StartBlock: uintPtr(0), EndBlock: uintPtr(100)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Len(t, updated, 1)

	// the committed window survives as the checkpoint
	status, err := store.GetTokenScanStatus(context.Background(), "local", token.Hex())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, int64(9), status.LastScannedBlock)

	// resuming picks up at block 10 and finishes the job
	var resumedFrom uint64
	client.filterLogs = func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
		if resumedFrom == 0 {
			resumedFrom = q.FromBlock.Uint64()
		}
		return nil, nil
	}
	_, err = s.Scan(context.Background(), token, Options{EndBlock: uintPtr(100)})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), resumedFrom)
}

func TestScanResumeMatchesUninterruptedRun(t *testing.T) {
	ledger := []types.Log{
		transferLog(ethereum.ZeroAddress, alice, 100, 2, 0),
		transferLog(alice, bob, 60, 12, 0),
		transferLog(bob, carol, 25, 23, 0),
		transferLog(alice, ethereum.ZeroAddress, 10, 27, 0),
	}
	serve := func(q goethereum.FilterQuery) []types.Log {
		var out []types.Log
		for _, l := range ledger {
			if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
				out = append(out, l)
			}
		}
		return out
	}

	straight := newMemStore()
	s := newTestScanner(t, straight, &mockNodeClient{
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			return serve(q), nil
		},
	}, Config{WindowSize: 10})
	_, err := s.Scan(context.Background(), token, Options{StartBlock: uintPtr(0), EndBlock: uintPtr(29)})
	require.NoError(t, err)

	// same ledger, but the run dies after the first committed window
	interrupted := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockNodeClient{
		filterLogs: func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
			cancel()
			return serve(q), nil
		},
	}
	r := newTestScanner(t, interrupted, client, Config{WindowSize: 10})
	_, err = r.Scan(ctx, token, Options{StartBlock: uintPtr(0), EndBlock: uintPtr(29)})
	require.ErrorIs(t, err, context.Canceled)

	client.filterLogs = func(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
		return serve(q), nil
	}
	_, err = r.Scan(context.Background(), token, Options{EndBlock: uintPtr(29)})
	require.NoError(t, err)

	for _, addr := range []common.Address{alice, bob, carol} {
		assert.Equal(t, holderBalance(t, straight, addr), holderBalance(t, interrupted, addr), addr.Hex())
	}
	want, err := straight.GetTokenScanStatus(context.Background(), "local", token.Hex())
	require.NoError(t, err)
	got, err := interrupted.GetTokenScanStatus(context.Background(), "local", token.Hex())
	require.NoError(t, err)
	assert.Equal(t, want.TotalSupply, got.TotalSupply)
	assert.Equal(t, want.LastScannedBlock, got.LastScannedBlock)
}

func TestScanNothingToDo(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.UpsertTokenScanStatus(context.Background(), &db.TokenScanStatus{
		Network:          "local",
		TokenAddress:     token.Hex(),
		LastScannedBlock: 100,
		TotalSupply:      "0",
	}))
	client := &mockNodeClient{
		blockNumber: func(ctx context.Context) (uint64, error) { return 100, nil },
	}
	s := newTestScanner(t, store, client, Config{ConfirmationLag: 6})

	updated, err := s.Scan(context.Background(), token, Options{})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(newMemStore(), &mockNodeClient{}, config.NetworkLocal, Config{}, zap.NewNop())
	require.NoError(t, err) // zero config takes defaults

	s, err := New(newMemStore(), &mockNodeClient{}, config.NetworkLocal, Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), s.cfg.WindowSize)
	assert.Equal(t, uint64(6), s.cfg.ConfirmationLag)
}
