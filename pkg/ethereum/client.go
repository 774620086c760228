package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	apperrors "github.com/uivlis/sto/pkg/app/errors"
	"github.com/uivlis/sto/pkg/config"
)

// Client is a long-lived JSON-RPC client over one Ethereum node.
// It implements NodeClient with per-call timeouts and error classification.
type Client struct {
	client  *ethclient.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient connects to the configured Ethereum node
func NewClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	if cfg.NodeURL == "" {
		return nil, apperrors.ConfigurationError(nil, "ethereum node URL is not configured")
	}

	client, err := ethclient.Dial(cfg.NodeURL)
	if err != nil {
		return nil, apperrors.TransientError(err, fmt.Sprintf("failed to connect to Ethereum node %s", cfg.NodeURL))
	}

	logger.Info("Connected to Ethereum node",
		zap.String("network", cfg.Network.String()),
		zap.String("node_url", cfg.NodeURL))

	return &Client{
		client:  client,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

// Close closes the underlying connection
func (c *Client) Close() {
	c.client.Close()
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// TransactionCount returns the account's transaction count at the latest block
func (c *Client) TransactionCount(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	count, err := c.client.NonceAt(ctx, account, nil)
	if err != nil {
		return 0, classifyTransportError(err, "failed to get transaction count")
	}
	return count, nil
}

// Balance returns the account's wei balance at the latest block
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	balance, err := c.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, classifyTransportError(err, "failed to get balance")
	}
	return balance, nil
}

// SendTransaction submits a signed transaction to the network
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	if err := c.client.SendTransaction(ctx, tx); err != nil {
		if isNodeRejection(err) {
			return apperrors.ChainRejectedError(err, "node rejected transaction")
		}
		return classifyTransportError(err, "failed to submit transaction")
	}
	return nil
}

// TransactionReceipt returns the receipt of a mined transaction, or nil while
// the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, goethereum.NotFound) {
		// Still waiting for inclusion, not an error.
		return nil, nil
	}
	if err != nil {
		return nil, classifyTransportError(err, "failed to get transaction receipt")
	}
	return receipt, nil
}

// FilterLogs fetches logs matching the query
func (c *Client) FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	logs, err := c.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, classifyTransportError(err, "failed to fetch logs")
	}
	return logs, nil
}

// BlockNumber returns the current head block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	num, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, classifyTransportError(err, "failed to get block number")
	}
	return num, nil
}

// classifyTransportError maps transport failures into the retryable
// transient category, preserving the underlying error for diagnostics.
func classifyTransportError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.TransientError(err, message+": node request timed out")
	}
	return apperrors.TransientError(err, message+": node unreachable")
}

// isNodeRejection reports whether a send error is the node refusing the
// transaction itself rather than a transport failure. Geth and Parity word
// these differently, so this is a substring check by necessity.
func isNodeRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"nonce too low",
		"nonce too high",
		"underpriced",
		"replacement transaction",
		"already known",
		"insufficient funds",
		"exceeds block gas limit",
		"invalid sender",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
