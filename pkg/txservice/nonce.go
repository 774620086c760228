package txservice

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Nonce management for the broadcast account.
//
// The durable counter stores the NEXT nonce to hand out. Allocation takes the
// larger of the local counter and the node's reported transaction count, so a
// fresh database starts from wherever the account already is on chain.
// Allocated nonces are never reclaimed: when a transaction fails, its nonce
// stays burned and the counter only moves via an explicit resync.

// allocateNext hands out the next nonce inside the caller's database
// transaction and advances the durable counter past it.
func (s *Service) allocateNext(ctx context.Context, tx Store, from common.Address) (uint64, error) {
	account, err := tx.GetBroadcastAccount(ctx, s.network.String(), from.Hex())
	if err != nil {
		return 0, err
	}
	var local uint64
	if account != nil {
		local = uint64(account.CurrentNonce)
	}

	chainCount, err := s.client.TransactionCount(ctx, from)
	if err != nil {
		return 0, err
	}

	nonce := local
	if chainCount > nonce {
		nonce = chainCount
	}

	if err := tx.SetBroadcastAccountNonce(ctx, s.network.String(), from.Hex(), int64(nonce)+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

// NextNonce returns the nonce the next Prepare call would allocate, without
// allocating it.
func (s *Service) NextNonce(ctx context.Context) (uint64, error) {
	from := s.signer.Address()
	account, err := s.store.GetBroadcastAccount(ctx, s.network.String(), from.Hex())
	if err != nil {
		return 0, err
	}
	var local uint64
	if account != nil {
		local = uint64(account.CurrentNonce)
	}

	chainCount, err := s.client.TransactionCount(ctx, from)
	if err != nil {
		return 0, err
	}
	if chainCount > local {
		return chainCount, nil
	}
	return local, nil
}

// SeedNonceIfUnset initializes the counter from the chain's transaction count
// the first time the broadcast account is seen. An existing counter is left
// alone regardless of what the queue holds; only ResyncNonce overwrites it.
func (s *Service) SeedNonceIfUnset(ctx context.Context) (bool, error) {
	from := s.signer.Address()
	account, err := s.store.GetBroadcastAccount(ctx, s.network.String(), from.Hex())
	if err != nil {
		return false, err
	}
	if account != nil {
		return false, nil
	}

	chainCount, err := s.client.TransactionCount(ctx, from)
	if err != nil {
		return false, err
	}
	if err := s.store.SetBroadcastAccountNonce(ctx, s.network.String(), from.Hex(), int64(chainCount)); err != nil {
		return false, err
	}
	s.logger.Info("seeded nonce counter from chain",
		zap.String("address", from.Hex()),
		zap.Uint64("next_nonce", chainCount))
	return true, nil
}

// ResyncNonce overwrites the local counter with the node's transaction count.
// This is the recovery step after a rejected broadcast; it discards any
// allocated-but-unbroadcast nonces, so it must not run while signed
// transactions are still queued.
func (s *Service) ResyncNonce(ctx context.Context) (uint64, error) {
	from := s.signer.Address()
	chainCount, err := s.client.TransactionCount(ctx, from)
	if err != nil {
		return 0, err
	}
	if err := s.store.SetBroadcastAccountNonce(ctx, s.network.String(), from.Hex(), int64(chainCount)); err != nil {
		return 0, err
	}
	s.logger.Info("resynced nonce counter from chain",
		zap.String("address", from.Hex()),
		zap.Uint64("next_nonce", chainCount))
	return chainCount, nil
}
