package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/creasty/defaults"
	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uivlis/sto/internal/metrics"
	apperrors "github.com/uivlis/sto/pkg/app/errors"
	"github.com/uivlis/sto/pkg/config"
	"github.com/uivlis/sto/pkg/db"
	"github.com/uivlis/sto/pkg/ethereum"
)

// Config bounds how the scanner walks the chain. WindowSize limits a single
// get-logs query; ConfirmationLag is how many blocks behind the head the
// default scan endpoint stays, since the scanner has no reorg detection.
type Config struct {
	WindowSize      uint64 `default:"1000" validate:"gt=0"`
	ConfirmationLag uint64 `default:"6"`
}

// Scanner replays a token's ERC-20 Transfer events into the holder-balance
// ledger, one block window at a time. Each fully applied window advances the
// durable checkpoint, so a crashed scan resumes with at most one window of
// rework and never re-applies a committed window.
type Scanner struct {
	store   Store
	client  ethereum.NodeClient
	network config.Network
	cfg     Config
	logger  *zap.Logger
}

// Options narrows a single scan. Nil fields fall back to the checkpoint and
// the lagged chain head.
type Options struct {
	StartBlock *uint64
	EndBlock   *uint64
}

// New builds a scanner. Zero config fields take their defaults.
func New(store Store, client ethereum.NodeClient, network config.Network, cfg Config, logger *zap.Logger) (*Scanner, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, apperrors.ConfigurationError(err, "failed to apply scanner defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, apperrors.ConfigurationError(err, "invalid scanner configuration")
	}

	return &Scanner{
		store:   store,
		client:  client,
		network: network,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Scan walks [start, end] in ascending fixed-size windows and folds every
// Transfer event into holder balances, in log order within each window. It
// returns the addresses whose balance changed. Scan is safely interruptible
// between windows: cancellation loses at most the current uncommitted window.
func (s *Scanner) Scan(ctx context.Context, token common.Address, opts Options) ([]common.Address, error) {
	status, err := s.store.GetTokenScanStatus(ctx, s.network.String(), token.Hex())
	if err != nil {
		return nil, err
	}

	start, err := s.resolveStart(status, opts)
	if err != nil {
		return nil, err
	}
	end, err := s.resolveEnd(ctx, opts)
	if err != nil {
		return nil, err
	}
	if end < start {
		s.logger.Info("nothing to scan",
			zap.String("token", token.Hex()),
			zap.Uint64("start", start),
			zap.Uint64("end", end))
		return nil, nil
	}

	supply, err := currentSupply(status)
	if err != nil {
		return nil, err
	}
	scanStart := start
	if status != nil {
		scanStart = uint64(status.StartBlock)
	}

	s.logger.Info("scanning token transfers",
		zap.String("token", token.Hex()),
		zap.Uint64("start", start),
		zap.Uint64("end", end),
		zap.Uint64("window_size", s.cfg.WindowSize))

	updated := make(map[common.Address]struct{})
	for windowStart := start; windowStart <= end; {
		if err := ctx.Err(); err != nil {
			return sortedAddresses(updated), err
		}

		windowEnd := windowStart + s.cfg.WindowSize - 1
		if windowEnd > end {
			windowEnd = end
		}
		windowStarted := time.Now()

		logs, err := s.client.FilterLogs(ctx, goethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(windowStart),
			ToBlock:   new(big.Int).SetUint64(windowEnd),
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{ethereum.TransferTopic}},
		})
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("scanner", "get_logs").Inc()
			return sortedAddresses(updated), err
		}

		var touched []common.Address
		err = s.store.InTx(ctx, func(ctx context.Context, tx Store) error {
			var applyErr error
			touched, supply, applyErr = s.applyWindow(ctx, tx, token, logs, supply)
			if applyErr != nil {
				return applyErr
			}
			return tx.UpsertTokenScanStatus(ctx, &db.TokenScanStatus{
				Network:          s.network.String(),
				TokenAddress:     token.Hex(),
				StartBlock:       int64(scanStart),
				EndBlock:         int64(end),
				LastScannedBlock: int64(windowEnd),
				TotalSupply:      supply.String(),
				UpdatedAt:        time.Now(),
			})
		})
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("scanner", "apply_window").Inc()
			return sortedAddresses(updated), err
		}

		for _, addr := range touched {
			updated[addr] = struct{}{}
		}
		metrics.ScanWindowsProcessed.WithLabelValues(s.network.String(), token.Hex()).Inc()
		metrics.ScanEventsApplied.WithLabelValues(s.network.String(), token.Hex()).Add(float64(len(logs)))
		metrics.ScanWindowDuration.WithLabelValues(s.network.String(), token.Hex()).Observe(time.Since(windowStarted).Seconds())
		metrics.LastScannedBlock.WithLabelValues(s.network.String(), token.Hex()).Set(float64(windowEnd))
		s.logger.Debug("committed scan window",
			zap.Uint64("from", windowStart),
			zap.Uint64("to", windowEnd),
			zap.Int("events", len(logs)))

		windowStart = windowEnd + 1
	}

	if holders, err := s.store.ListTokenHolderAccounts(ctx, s.network.String(), token.Hex()); err == nil {
		metrics.TokenHolders.WithLabelValues(s.network.String(), token.Hex()).Set(float64(len(holders)))
	}

	s.logger.Info("scan complete",
		zap.String("token", token.Hex()),
		zap.Uint64("last_block", end),
		zap.Int("holders_updated", len(updated)),
		zap.String("total_supply", supply.String()))
	return sortedAddresses(updated), nil
}

// applyWindow folds one window's logs into holder balances, preserving log
// order. Transfers from the zero address mint supply, transfers to it burn.
// A balance that would go negative aborts the whole window.
func (s *Scanner) applyWindow(ctx context.Context, tx Store, token common.Address, logs []types.Log, supply *big.Int) ([]common.Address, *big.Int, error) {
	balances := make(map[common.Address]*big.Int)
	lastBlock := make(map[common.Address]uint64)
	var order []common.Address
	supply = new(big.Int).Set(supply)

	load := func(addr common.Address) (*big.Int, error) {
		if bal, ok := balances[addr]; ok {
			return bal, nil
		}
		holder, err := tx.GetTokenHolderAccount(ctx, s.network.String(), token.Hex(), addr.Hex())
		if err != nil {
			return nil, err
		}
		bal := big.NewInt(0)
		if holder != nil {
			parsed, ok := new(big.Int).SetString(holder.RawBalance, 10)
			if !ok {
				return nil, apperrors.InvariantViolationError(nil,
					fmt.Sprintf("stored balance %q for %s is not a decimal integer", holder.RawBalance, addr.Hex()))
			}
			bal = parsed
		}
		balances[addr] = bal
		order = append(order, addr)
		return bal, nil
	}

	for i := range logs {
		event, err := ethereum.DecodeTransferLog(&logs[i])
		if err != nil {
			// tokens occasionally emit lookalike events with fewer
			// indexed fields; those are not ERC-20 transfers
			s.logger.Warn("skipping undecodable transfer log",
				zap.String("tx_hash", logs[i].TxHash.Hex()),
				zap.Uint("log_index", logs[i].Index),
				zap.Error(err))
			continue
		}

		if event.From == ethereum.ZeroAddress {
			supply.Add(supply, event.Value)
		} else {
			bal, err := load(event.From)
			if err != nil {
				return nil, nil, err
			}
			bal.Sub(bal, event.Value)
			if bal.Sign() < 0 {
				return nil, nil, apperrors.InvariantViolationError(nil,
					fmt.Sprintf("balance of %s would go negative at block %d, tx %s",
						event.From.Hex(), event.BlockNumber, event.TxHash.Hex()))
			}
			lastBlock[event.From] = event.BlockNumber
		}

		if event.To == ethereum.ZeroAddress {
			supply.Sub(supply, event.Value)
			if supply.Sign() < 0 {
				return nil, nil, apperrors.InvariantViolationError(nil,
					fmt.Sprintf("total supply would go negative at block %d, tx %s",
						event.BlockNumber, event.TxHash.Hex()))
			}
		} else {
			bal, err := load(event.To)
			if err != nil {
				return nil, nil, err
			}
			bal.Add(bal, event.Value)
			lastBlock[event.To] = event.BlockNumber
		}
	}

	now := time.Now()
	for _, addr := range order {
		err := tx.UpsertTokenHolderAccount(ctx, &db.TokenHolderAccount{
			Network:          s.network.String(),
			TokenAddress:     token.Hex(),
			Address:          addr.Hex(),
			RawBalance:       balances[addr].String(),
			LastUpdatedBlock: int64(lastBlock[addr]),
			LastUpdatedAt:    now,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return order, supply, nil
}

// resolveStart picks the first block to scan: the explicit option, otherwise
// one past the checkpoint, otherwise block 0.
func (s *Scanner) resolveStart(status *db.TokenScanStatus, opts Options) (uint64, error) {
	if opts.StartBlock != nil {
		return *opts.StartBlock, nil
	}
	if status != nil {
		return uint64(status.LastScannedBlock) + 1, nil
	}
	return 0, nil
}

// resolveEnd picks the last block to scan: the explicit option, otherwise a
// snapshot of the head minus the confirmation lag. The snapshot fixes the
// endpoint even when new blocks arrive mid-scan.
func (s *Scanner) resolveEnd(ctx context.Context, opts Options) (uint64, error) {
	if opts.EndBlock != nil {
		return *opts.EndBlock, nil
	}
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if head < s.cfg.ConfirmationLag {
		return 0, nil
	}
	return head - s.cfg.ConfirmationLag, nil
}

func currentSupply(status *db.TokenScanStatus) (*big.Int, error) {
	if status == nil || status.TotalSupply == "" {
		return big.NewInt(0), nil
	}
	supply, ok := new(big.Int).SetString(status.TotalSupply, 10)
	if !ok {
		return nil, apperrors.InvariantViolationError(nil,
			fmt.Sprintf("stored total supply %q is not a decimal integer", status.TotalSupply))
	}
	return supply, nil
}

func sortedAddresses(set map[common.Address]struct{}) []common.Address {
	out := make([]common.Address, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out
}
