package txservice

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	apperrors "github.com/uivlis/sto/pkg/app/errors"
	"github.com/uivlis/sto/pkg/db"
	"github.com/uivlis/sto/pkg/ethereum"
)

// DeployContract queues a contract deployment. The deployed address is
// derived from the broadcast account and the allocated nonce and recorded on
// the prepared transaction before anything reaches the chain.
func (s *Service) DeployContract(ctx context.Context, bytecode []byte, contractName, note, externalID string) (*db.PreparedTransaction, error) {
	return s.Prepare(ctx, CallParams{
		ExternalID:   externalID,
		CallData:     bytecode,
		Deployment:   true,
		ContractName: contractName,
		Note:         note,
	})
}

// TransferTokens queues an ERC-20 transfer of rawAmount base units from the
// token contract to the receiver.
func (s *Service) TransferTokens(ctx context.Context, token, receiver common.Address, rawAmount *big.Int, externalID, note string) (*db.PreparedTransaction, error) {
	if rawAmount == nil || rawAmount.Sign() <= 0 {
		return nil, apperrors.InvariantViolationError(nil, "transfer amount must be positive")
	}

	data, err := ethereum.PackTransfer(receiver, rawAmount)
	if err != nil {
		return nil, err
	}

	return s.Prepare(ctx, CallParams{
		ExternalID: externalID,
		To:         &token,
		CallData:   data,
		Receiver:   &receiver,
		Note:       note,
	})
}

// DistributeTokens queues one transfer per distribution entry, keyed by the
// entry's external id so a re-run of the same distribution list never issues
// a transfer twice. It returns how many entries were newly queued and how
// many had already been prepared earlier.
func (s *Service) DistributeTokens(ctx context.Context, token common.Address, entries []DistributionEntry) (created, existing int, err error) {
	for _, entry := range entries {
		if entry.ExternalID == "" {
			return created, existing, apperrors.InvariantViolationError(nil,
				fmt.Sprintf("distribution entry for %s has no external id", entry.Address.Hex()))
		}

		prior, err := s.store.GetTransactionByExternalID(ctx, s.network.String(), entry.ExternalID)
		if err != nil {
			return created, existing, err
		}
		if prior != nil {
			existing++
			continue
		}

		note := fmt.Sprintf("Distributing tokens to %s", entry.Name)
		if _, err := s.TransferTokens(ctx, token, entry.Address, entry.RawAmount, entry.ExternalID, note); err != nil {
			return created, existing, err
		}
		created++
	}

	s.logger.Info("queued token distribution",
		zap.String("token", token.Hex()),
		zap.Int("new", created),
		zap.Int("existing", existing))
	return created, existing, nil
}
