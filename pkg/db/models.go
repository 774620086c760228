package db

import (
	"time"
)

// TxState represents the lifecycle state of a prepared transaction.
//
// Transitions: created -> signed -> broadcast -> confirmed | failed.
// confirmed and failed are terminal. A persisted row is always at least
// signed: preparing and signing happen in the same database transaction so a
// crash can never leave an unsigned row behind.
type TxState string

const (
	TxStateCreated   TxState = "created"
	TxStateSigned    TxState = "signed"
	TxStateBroadcast TxState = "broadcast"
	TxStateConfirmed TxState = "confirmed"
	TxStateFailed    TxState = "failed"
)

// Terminal reports whether no further transition is possible from the state.
func (s TxState) Terminal() bool {
	return s == TxStateConfirmed || s == TxStateFailed
}

// PreparedTransaction is one logical transaction the tool intends to put on
// chain, together with everything learned about it since.
type PreparedTransaction struct {
	ID              string
	ExternalID      string // correlation id, empty when none; unique when set
	Network         string
	FromAddress     string
	Nonce           int64
	State           TxState
	Deployment      bool
	ContractAddress string // deployment target or token contract interacted with
	Receiver        string // token receiver, empty for deployments
	ContractName    string
	Note            string
	CallData        []byte
	ValueWei        string
	GasLimit        int64
	GasPriceWei     string
	SignedPayload   []byte
	TxHash          string
	ResultSuccess   *bool
	ResultBlockNum  *int64
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	BroadcastAt     *time.Time
	ResultFetchedAt *time.Time
}

// To returns the destination address of the transaction: the receiver when
// set, otherwise the contract interacted with or to be deployed.
func (tx *PreparedTransaction) To() string {
	if tx.Receiver != "" {
		return tx.Receiver
	}
	return tx.ContractAddress
}

// BroadcastAccount tracks the nonce counter for one managing account.
// current_nonce is the next nonce to hand out, not the last one used.
type BroadcastAccount struct {
	Network      string
	Address      string
	CurrentNonce int64
	UpdatedAt    time.Time
}

// TokenScanStatus is the resumability checkpoint for one token contract scan.
type TokenScanStatus struct {
	Network          string
	TokenAddress     string
	StartBlock       int64
	EndBlock         int64
	LastScannedBlock int64
	TotalSupply      string
	UpdatedAt        time.Time
}

// TokenHolderAccount is the current balance of one holder of one token,
// expressed in raw base units.
type TokenHolderAccount struct {
	Network          string
	TokenAddress     string
	Address          string
	RawBalance       string
	LastUpdatedBlock int64
	LastUpdatedAt    time.Time
}
