package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/uivlis/sto/pkg/db/dao"
)

// Store provides database operations over the four sto tables.
// All mutation of a table goes through the component owning it; the store
// itself enforces nothing beyond the schema.
type Store struct {
	db  *bun.DB
	idb bun.IDB
}

// NewStore creates a new database store
func NewStore(db *bun.DB) *Store {
	return &Store{db: db, idb: db}
}

// RunInTx runs fn with a store bound to a single database transaction.
// Used for prepare+sign+nonce persistence and for per-window scan commits.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	if s.db == nil {
		return errors.New("store is already transaction-scoped")
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{idb: tx})
	})
}

// --- prepared transactions ---

// CreateTransaction inserts a new prepared transaction row
func (s *Store) CreateTransaction(ctx context.Context, tx *PreparedTransaction) error {
	_, err := s.idb.NewInsert().
		Model(toTransactionDao(tx)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create prepared transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a prepared transaction by id
func (s *Store) GetTransaction(ctx context.Context, id string) (*PreparedTransaction, error) {
	d := new(dao.PreparedTransactionDao)
	err := s.idb.NewSelect().Model(d).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prepared transaction: %w", err)
	}
	return toTransaction(d), nil
}

// GetTransactionByExternalID retrieves the transaction carrying the given
// correlation id, or nil when none exists.
func (s *Store) GetTransactionByExternalID(ctx context.Context, network, externalID string) (*PreparedTransaction, error) {
	d := new(dao.PreparedTransactionDao)
	err := s.idb.NewSelect().Model(d).
		Where("network = ?", network).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by external id: %w", err)
	}
	return toTransaction(d), nil
}

// GetTransactionsInState retrieves all of the account's transactions in the
// given state, in ascending nonce order.
func (s *Store) GetTransactionsInState(ctx context.Context, network, fromAddress string, state TxState) ([]*PreparedTransaction, error) {
	var daos []dao.PreparedTransactionDao
	err := s.idb.NewSelect().Model(&daos).
		Where("network = ?", network).
		Where("from_address = ?", fromAddress).
		Where("state = ?", string(state)).
		Order("nonce ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions in state %s: %w", state, err)
	}
	return toTransactions(daos), nil
}

// ListRecentTransactions retrieves the most recently created transactions
func (s *Store) ListRecentTransactions(ctx context.Context, network string, limit int) ([]*PreparedTransaction, error) {
	var daos []dao.PreparedTransactionDao
	err := s.idb.NewSelect().Model(&daos).
		Where("network = ?", network).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}
	return toTransactions(daos), nil
}

// MarkTransactionBroadcast records a successful submission to the network
func (s *Store) MarkTransactionBroadcast(ctx context.Context, id, txHash string, at time.Time) error {
	_, err := s.idb.NewUpdate().
		Model((*dao.PreparedTransactionDao)(nil)).
		Set("state = ?", string(TxStateBroadcast)).
		Set("tx_hash = ?", txHash).
		Set("broadcast_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark transaction broadcast: %w", err)
	}
	return nil
}

// MarkTransactionFailed moves a transaction to the terminal failed state
func (s *Store) MarkTransactionFailed(ctx context.Context, id, reason string, at time.Time) error {
	_, err := s.idb.NewUpdate().
		Model((*dao.PreparedTransactionDao)(nil)).
		Set("state = ?", string(TxStateFailed)).
		Set("failure_reason = ?", reason).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	return nil
}

// MarkTransactionResult records the receipt outcome of a broadcast
// transaction: confirmed on success, failed on revert.
func (s *Store) MarkTransactionResult(ctx context.Context, id string, success bool, blockNum int64, reason string, at time.Time) error {
	state := TxStateConfirmed
	if !success {
		state = TxStateFailed
	}
	q := s.idb.NewUpdate().
		Model((*dao.PreparedTransactionDao)(nil)).
		Set("state = ?", string(state)).
		Set("result_success = ?", success).
		Set("result_block_num = ?", blockNum).
		Set("result_fetched_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id)
	if reason != "" {
		q = q.Set("failure_reason = ?", reason)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark transaction result: %w", err)
	}
	return nil
}

// --- broadcast accounts ---

// GetBroadcastAccount retrieves the nonce counter row for an account,
// or nil when the account has no local history yet.
func (s *Store) GetBroadcastAccount(ctx context.Context, network, address string) (*BroadcastAccount, error) {
	d := new(dao.BroadcastAccountDao)
	err := s.idb.NewSelect().Model(d).
		Where("network = ?", network).
		Where("address = ?", address).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast account: %w", err)
	}
	return &BroadcastAccount{
		Network:      d.Network,
		Address:      d.Address,
		CurrentNonce: d.CurrentNonce,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

// SetBroadcastAccountNonce creates or updates the account's nonce counter
func (s *Store) SetBroadcastAccountNonce(ctx context.Context, network, address string, nonce int64) error {
	d := &dao.BroadcastAccountDao{
		Network:      network,
		Address:      address,
		CurrentNonce: nonce,
		UpdatedAt:    time.Now().UTC(),
	}
	_, err := s.idb.NewInsert().
		Model(d).
		On("CONFLICT (network, address) DO UPDATE").
		Set("current_nonce = EXCLUDED.current_nonce").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set broadcast account nonce: %w", err)
	}
	return nil
}

// --- token scan status ---

// GetTokenScanStatus retrieves the scan checkpoint for a token contract,
// or nil when the token has never been scanned.
func (s *Store) GetTokenScanStatus(ctx context.Context, network, tokenAddress string) (*TokenScanStatus, error) {
	d := new(dao.TokenScanStatusDao)
	err := s.idb.NewSelect().Model(d).
		Where("network = ?", network).
		Where("token_address = ?", tokenAddress).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token scan status: %w", err)
	}
	return &TokenScanStatus{
		Network:          d.Network,
		TokenAddress:     d.TokenAddress,
		StartBlock:       d.StartBlock,
		EndBlock:         d.EndBlock,
		LastScannedBlock: d.LastScannedBlock,
		TotalSupply:      d.TotalSupply,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

// UpsertTokenScanStatus advances the scan checkpoint
func (s *Store) UpsertTokenScanStatus(ctx context.Context, st *TokenScanStatus) error {
	d := &dao.TokenScanStatusDao{
		Network:          st.Network,
		TokenAddress:     st.TokenAddress,
		StartBlock:       st.StartBlock,
		EndBlock:         st.EndBlock,
		LastScannedBlock: st.LastScannedBlock,
		TotalSupply:      st.TotalSupply,
		UpdatedAt:        time.Now().UTC(),
	}
	_, err := s.idb.NewInsert().
		Model(d).
		On("CONFLICT (network, token_address) DO UPDATE").
		Set("start_block = EXCLUDED.start_block").
		Set("end_block = EXCLUDED.end_block").
		Set("last_scanned_block = EXCLUDED.last_scanned_block").
		Set("total_supply = EXCLUDED.total_supply").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert token scan status: %w", err)
	}
	return nil
}

// --- token holder accounts ---

// GetTokenHolderAccount retrieves one holder's balance row, or nil
func (s *Store) GetTokenHolderAccount(ctx context.Context, network, tokenAddress, address string) (*TokenHolderAccount, error) {
	d := new(dao.TokenHolderAccountDao)
	err := s.idb.NewSelect().Model(d).
		Where("network = ?", network).
		Where("token_address = ?", tokenAddress).
		Where("address = ?", address).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token holder account: %w", err)
	}
	return toHolder(d), nil
}

// UpsertTokenHolderAccount writes one holder's balance row
func (s *Store) UpsertTokenHolderAccount(ctx context.Context, h *TokenHolderAccount) error {
	d := &dao.TokenHolderAccountDao{
		Network:          h.Network,
		TokenAddress:     h.TokenAddress,
		Address:          h.Address,
		RawBalance:       h.RawBalance,
		LastUpdatedBlock: h.LastUpdatedBlock,
		LastUpdatedAt:    time.Now().UTC(),
	}
	_, err := s.idb.NewInsert().
		Model(d).
		On("CONFLICT (network, token_address, address) DO UPDATE").
		Set("raw_balance = EXCLUDED.raw_balance").
		Set("last_updated_block = EXCLUDED.last_updated_block").
		Set("last_updated_at = EXCLUDED.last_updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert token holder account: %w", err)
	}
	return nil
}

// ListTokenHolderAccounts retrieves every holder row of one token
func (s *Store) ListTokenHolderAccounts(ctx context.Context, network, tokenAddress string) ([]*TokenHolderAccount, error) {
	var daos []dao.TokenHolderAccountDao
	err := s.idb.NewSelect().Model(&daos).
		Where("network = ?", network).
		Where("token_address = ?", tokenAddress).
		Order("address ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list token holder accounts: %w", err)
	}
	holders := make([]*TokenHolderAccount, len(daos))
	for i := range daos {
		holders[i] = toHolder(&daos[i])
	}
	return holders, nil
}

// --- dao conversions ---

func toTransactionDao(tx *PreparedTransaction) *dao.PreparedTransactionDao {
	d := &dao.PreparedTransactionDao{
		ID:              tx.ID,
		Network:         tx.Network,
		FromAddress:     tx.FromAddress,
		Nonce:           tx.Nonce,
		State:           string(tx.State),
		Deployment:      tx.Deployment,
		Note:            tx.Note,
		CallData:        tx.CallData,
		ValueWei:        tx.ValueWei,
		GasLimit:        tx.GasLimit,
		GasPriceWei:     tx.GasPriceWei,
		SignedPayload:   tx.SignedPayload,
		ResultSuccess:   tx.ResultSuccess,
		ResultBlockNum:  tx.ResultBlockNum,
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
		BroadcastAt:     tx.BroadcastAt,
		ResultFetchedAt: tx.ResultFetchedAt,
	}
	if tx.ExternalID != "" {
		d.ExternalID = &tx.ExternalID
	}
	if tx.ContractAddress != "" {
		d.ContractAddress = &tx.ContractAddress
	}
	if tx.Receiver != "" {
		d.Receiver = &tx.Receiver
	}
	if tx.ContractName != "" {
		d.ContractName = &tx.ContractName
	}
	if tx.TxHash != "" {
		d.TxHash = &tx.TxHash
	}
	if tx.FailureReason != "" {
		d.FailureReason = &tx.FailureReason
	}
	return d
}

func toTransaction(d *dao.PreparedTransactionDao) *PreparedTransaction {
	tx := &PreparedTransaction{
		ID:              d.ID,
		Network:         d.Network,
		FromAddress:     d.FromAddress,
		Nonce:           d.Nonce,
		State:           TxState(d.State),
		Deployment:      d.Deployment,
		Note:            d.Note,
		CallData:        d.CallData,
		ValueWei:        d.ValueWei,
		GasLimit:        d.GasLimit,
		GasPriceWei:     d.GasPriceWei,
		SignedPayload:   d.SignedPayload,
		ResultSuccess:   d.ResultSuccess,
		ResultBlockNum:  d.ResultBlockNum,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		BroadcastAt:     d.BroadcastAt,
		ResultFetchedAt: d.ResultFetchedAt,
	}
	if d.ExternalID != nil {
		tx.ExternalID = *d.ExternalID
	}
	if d.ContractAddress != nil {
		tx.ContractAddress = *d.ContractAddress
	}
	if d.Receiver != nil {
		tx.Receiver = *d.Receiver
	}
	if d.ContractName != nil {
		tx.ContractName = *d.ContractName
	}
	if d.TxHash != nil {
		tx.TxHash = *d.TxHash
	}
	if d.FailureReason != nil {
		tx.FailureReason = *d.FailureReason
	}
	return tx
}

func toTransactions(daos []dao.PreparedTransactionDao) []*PreparedTransaction {
	txs := make([]*PreparedTransaction, len(daos))
	for i := range daos {
		txs[i] = toTransaction(&daos[i])
	}
	return txs
}

func toHolder(d *dao.TokenHolderAccountDao) *TokenHolderAccount {
	return &TokenHolderAccount{
		Network:          d.Network,
		TokenAddress:     d.TokenAddress,
		Address:          d.Address,
		RawBalance:       d.RawBalance,
		LastUpdatedBlock: d.LastUpdatedBlock,
		LastUpdatedAt:    d.LastUpdatedAt,
	}
}
