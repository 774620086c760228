package ethereum

import (
	"context"
	"math/big"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NodeClient is the capability surface the rest of the tool needs from an
// Ethereum node. Implementations must be safe for concurrent use; a single
// long-lived client is shared by the transaction queue and any number of
// token scans. Tests substitute a fake.
type NodeClient interface {
	// TransactionCount returns the number of transactions the account has
	// ever sent, as of the latest block. This is the chain-side nonce floor.
	TransactionCount(ctx context.Context, account common.Address) (uint64, error)

	// Balance returns the account's wei balance at the latest block.
	Balance(ctx context.Context, account common.Address) (*big.Int, error)

	// SendTransaction submits a signed transaction to the network.
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// TransactionReceipt returns the receipt of a mined transaction, or
	// (nil, nil) while the transaction is still pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// FilterLogs fetches logs matching the query.
	FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error)

	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)
}

// TransferEvent is one decoded ERC-20 Transfer log.
type TransferEvent struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}
