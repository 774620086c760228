package txservice

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uivlis/sto/internal/metrics"
	apperrors "github.com/uivlis/sto/pkg/app/errors"
	"github.com/uivlis/sto/pkg/config"
	"github.com/uivlis/sto/pkg/db"
	"github.com/uivlis/sto/pkg/ethereum"
)

// Service is the transaction queue: it prepares and signs transactions into
// durable storage, pushes signed ones to the network in nonce order, and
// resolves broadcast ones against their receipts. All transactions are sent
// from a single custodial broadcast account.
type Service struct {
	store    Store
	client   ethereum.NodeClient
	signer   TxSigner
	network  config.Network
	gasLimit uint64
	gasPrice *big.Int
	logger   *zap.Logger
	now      func() time.Time
}

// New builds the queue service from the configured defaults. The gas price is
// a wei amount in decimal notation.
func New(store Store, client ethereum.NodeClient, signer TxSigner, cfg config.EthereumConfig, logger *zap.Logger) (*Service, error) {
	if cfg.GasLimit == 0 {
		return nil, apperrors.ConfigurationError(nil, "ethereum gas_limit must be set")
	}

	gasPrice, ok := new(big.Int).SetString(cfg.GasPrice, 10)
	if !ok || gasPrice.Sign() <= 0 {
		return nil, apperrors.ConfigurationError(nil, fmt.Sprintf("invalid ethereum gas_price %q", cfg.GasPrice))
	}

	return &Service{
		store:    store,
		client:   client,
		signer:   signer,
		network:  cfg.Network,
		gasLimit: cfg.GasLimit,
		gasPrice: gasPrice,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Prepare allocates the next nonce, builds and signs the transaction, and
// persists it in a single database transaction. The returned record is in the
// signed state, ready for BroadcastPending. When params carries an external id
// that was already prepared, the existing record is returned unchanged.
func (s *Service) Prepare(ctx context.Context, params CallParams) (*db.PreparedTransaction, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	from := s.signer.Address()
	var prepared *db.PreparedTransaction

	err := s.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		if params.ExternalID != "" {
			existing, err := tx.GetTransactionByExternalID(ctx, s.network.String(), params.ExternalID)
			if err != nil {
				return err
			}
			if existing != nil {
				s.logger.Info("reusing previously prepared transaction",
					zap.String("external_id", params.ExternalID),
					zap.String("tx_id", existing.ID),
					zap.String("state", string(existing.State)))
				prepared = existing
				return nil
			}
		}

		nonce, err := s.allocateNext(ctx, tx, from)
		if err != nil {
			return err
		}

		record, err := s.buildAndSign(params, from, nonce)
		if err != nil {
			return err
		}

		if err := tx.CreateTransaction(ctx, record); err != nil {
			return err
		}
		prepared = record

		metrics.TransactionsPrepared.WithLabelValues(s.network.String(), txKind(params)).Inc()
		s.logger.Info("prepared and signed transaction",
			zap.String("tx_id", record.ID),
			zap.Int64("nonce", record.Nonce),
			zap.String("tx_hash", record.TxHash),
			zap.String("contract", record.ContractAddress),
			zap.Bool("deployment", record.Deployment))
		return nil
	})
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("txservice", "prepare").Inc()
		return nil, err
	}
	return prepared, nil
}

// buildAndSign assembles the legacy transaction for the allocated nonce and
// signs it with the custodial key.
func (s *Service) buildAndSign(params CallParams, from common.Address, nonce uint64) (*db.PreparedTransaction, error) {
	gasLimit := params.GasLimit
	if gasLimit == 0 {
		gasLimit = s.gasLimit
	}
	gasPrice := params.GasPriceWei
	if gasPrice == nil {
		gasPrice = s.gasPrice
	}
	value := params.ValueWei
	if value == nil {
		value = big.NewInt(0)
	}

	signed, err := s.signer.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       params.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     params.CallData,
	}))
	if err != nil {
		return nil, err
	}

	payload, err := signed.MarshalBinary()
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	contractAddress := ""
	if params.Deployment {
		contractAddress = ethereum.ContractAddress(from, nonce).Hex()
	} else {
		contractAddress = params.To.Hex()
	}
	receiver := ""
	if params.Receiver != nil {
		receiver = params.Receiver.Hex()
	}

	now := s.now()
	return &db.PreparedTransaction{
		ID:              uuid.New().String(),
		ExternalID:      params.ExternalID,
		Network:         s.network.String(),
		FromAddress:     from.Hex(),
		Nonce:           int64(nonce),
		State:           db.TxStateSigned,
		Deployment:      params.Deployment,
		ContractAddress: contractAddress,
		Receiver:        receiver,
		ContractName:    params.ContractName,
		Note:            params.Note,
		CallData:        params.CallData,
		ValueWei:        value.String(),
		GasLimit:        int64(gasLimit),
		GasPriceWei:     gasPrice.String(),
		SignedPayload:   payload,
		TxHash:          signed.Hash().Hex(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// BroadcastPending submits all signed transactions to the node in ascending
// nonce order and returns the ones that went out. Submission stops at the
// first failure: a node rejection marks the transaction failed and returns
// ErrNonceOutOfSync, a transport error leaves it signed for a later retry.
// Later nonces are never submitted past a failed one.
func (s *Service) BroadcastPending(ctx context.Context) ([]*db.PreparedTransaction, error) {
	from := s.signer.Address()
	pending, err := s.store.GetTransactionsInState(ctx, s.network.String(), from.Hex(), db.TxStateSigned)
	if err != nil {
		return nil, err
	}

	var sent []*db.PreparedTransaction
	for _, ptx := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		signed := new(types.Transaction)
		if err := signed.UnmarshalBinary(ptx.SignedPayload); err != nil {
			return sent, apperrors.InvariantViolationError(err,
				fmt.Sprintf("stored payload for transaction %s does not decode", ptx.ID))
		}

		if err := s.client.SendTransaction(ctx, signed); err != nil {
			if !apperrors.Is(err, apperrors.CategoryChainRejected) {
				metrics.ErrorsTotal.WithLabelValues("txservice", "broadcast").Inc()
				return sent, err
			}

			// A node that has already seen this exact payload means an
			// earlier broadcast attempt got through before we recorded it.
			if strings.Contains(err.Error(), "already known") {
				if markErr := s.markBroadcast(ctx, ptx, &sent); markErr != nil {
					return sent, markErr
				}
				continue
			}

			now := s.now()
			reason := err.Error()
			if markErr := s.store.MarkTransactionFailed(ctx, ptx.ID, reason, now); markErr != nil {
				return sent, markErr
			}
			metrics.TransactionsBroadcast.WithLabelValues(s.network.String(), "rejected").Inc()
			s.logger.Error("node rejected transaction",
				zap.String("tx_id", ptx.ID),
				zap.Int64("nonce", ptx.Nonce),
				zap.String("reason", reason))
			return sent, fmt.Errorf("nonce %d rejected by node: %w", ptx.Nonce, ErrNonceOutOfSync)
		}

		if err := s.markBroadcast(ctx, ptx, &sent); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func (s *Service) markBroadcast(ctx context.Context, ptx *db.PreparedTransaction, sent *[]*db.PreparedTransaction) error {
	now := s.now()
	if err := s.store.MarkTransactionBroadcast(ctx, ptx.ID, ptx.TxHash, now); err != nil {
		return err
	}
	ptx.State = db.TxStateBroadcast
	ptx.BroadcastAt = &now
	ptx.UpdatedAt = now
	*sent = append(*sent, ptx)

	metrics.TransactionsBroadcast.WithLabelValues(s.network.String(), "sent").Inc()
	s.logger.Info("broadcast transaction",
		zap.String("tx_id", ptx.ID),
		zap.Int64("nonce", ptx.Nonce),
		zap.String("tx_hash", ptx.TxHash))
	return nil
}

// RefreshStatus polls receipts for all broadcast transactions and moves the
// mined ones to their terminal state. Transactions without a receipt yet are
// left untouched, so the operation is safe to repeat.
func (s *Service) RefreshStatus(ctx context.Context) ([]*db.PreparedTransaction, error) {
	from := s.signer.Address()
	inflight, err := s.store.GetTransactionsInState(ctx, s.network.String(), from.Hex(), db.TxStateBroadcast)
	if err != nil {
		return nil, err
	}

	var resolved []*db.PreparedTransaction
	for _, ptx := range inflight {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}

		receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(ptx.TxHash))
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("txservice", "receipt").Inc()
			return resolved, err
		}
		if receipt == nil {
			continue
		}

		success := receipt.Status == types.ReceiptStatusSuccessful
		blockNum := receipt.BlockNumber.Int64()
		reason := ""
		status := "confirmed"
		if !success {
			reason = "transaction reverted"
			status = "failed"
		}

		now := s.now()
		if err := s.store.MarkTransactionResult(ctx, ptx.ID, success, blockNum, reason, now); err != nil {
			return resolved, err
		}
		if success {
			ptx.State = db.TxStateConfirmed
		} else {
			ptx.State = db.TxStateFailed
			ptx.FailureReason = reason
		}
		ptx.ResultSuccess = &success
		ptx.ResultBlockNum = &blockNum
		ptx.ResultFetchedAt = &now
		ptx.UpdatedAt = now
		resolved = append(resolved, ptx)

		metrics.TransactionsResolved.WithLabelValues(s.network.String(), status).Inc()
		s.logger.Info("resolved transaction",
			zap.String("tx_id", ptx.ID),
			zap.String("tx_hash", ptx.TxHash),
			zap.String("status", status),
			zap.Int64("block", blockNum))
	}
	return resolved, nil
}

// LastTransactions lists the most recently created transactions, newest first.
func (s *Service) LastTransactions(ctx context.Context, limit int) ([]*db.PreparedTransaction, error) {
	return s.store.ListRecentTransactions(ctx, s.network.String(), limit)
}

// Diagnose checks node connectivity and whether the broadcast account holds
// any ether to pay for gas.
func (s *Service) Diagnose(ctx context.Context) (*Report, error) {
	from := s.signer.Address()

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.client.Balance(ctx, from)
	if err != nil {
		return nil, err
	}

	return &Report{
		Network:     s.network.String(),
		Address:     from.Hex(),
		BlockNumber: head,
		BalanceWei:  balance,
		Funded:      balance.Sign() > 0,
	}, nil
}

func validateParams(params CallParams) error {
	if params.Deployment {
		if params.To != nil {
			return apperrors.InvariantViolationError(nil, "deployment cannot have a destination address")
		}
		if len(params.CallData) == 0 {
			return apperrors.InvariantViolationError(nil, "deployment requires contract bytecode")
		}
		return nil
	}
	if params.To == nil {
		return apperrors.InvariantViolationError(nil, "non-deployment transaction requires a destination address")
	}
	return nil
}

func txKind(params CallParams) string {
	switch {
	case params.Deployment:
		return "deploy"
	case params.Receiver != nil:
		return "transfer"
	default:
		return "call"
	}
}
