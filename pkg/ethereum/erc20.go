package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABIJSON = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

var (
	erc20ABI abi.ABI

	// TransferTopic is keccak256("Transfer(address,address,uint256)"),
	// the topic0 of every ERC-20 transfer log.
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// ZeroAddress appears as sender on mints and receiver on burns
	ZeroAddress = common.Address{}
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in ERC-20 ABI: %v", err))
	}
	erc20ABI = parsed
}

// PackTransfer encodes an ERC-20 transfer(to, value) call
func PackTransfer(to common.Address, value *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", to, value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer call: %w", err)
	}
	return data, nil
}

// DecodeTransferLog decodes one ERC-20 Transfer log into its
// (from, to, value) triple. The log must carry TransferTopic as topic0.
func DecodeTransferLog(log *types.Log) (*TransferEvent, error) {
	if len(log.Topics) != 3 || log.Topics[0] != TransferTopic {
		return nil, fmt.Errorf("log %s[%d] is not an ERC-20 Transfer event", log.TxHash.Hex(), log.Index)
	}

	return &TransferEvent{
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		Value:       new(big.Int).SetBytes(log.Data),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}
