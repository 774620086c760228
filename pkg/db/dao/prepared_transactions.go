package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// PreparedTransactionDao is a data access object that maps directly to the
// 'prepared_transactions' table in PostgreSQL.
type PreparedTransactionDao struct {
	bun.BaseModel    `bun:"table:prepared_transactions,alias:pt"`
	ID               string     `bun:"id,pk,type:varchar(36)"`
	ExternalID       *string    `bun:"external_id,type:varchar(256)"`
	Network          string     `bun:"network,notnull,type:varchar(32)"`
	FromAddress      string     `bun:"from_address,notnull,type:varchar(42)"`
	Nonce            int64      `bun:"nonce,notnull"`
	State            string     `bun:"state,notnull,type:varchar(16)"`
	Deployment       bool       `bun:"deployment,notnull,default:false"`
	ContractAddress  *string    `bun:"contract_address,type:varchar(42)"`
	Receiver         *string    `bun:"receiver,type:varchar(42)"`
	ContractName     *string    `bun:"contract_name,type:varchar(128)"`
	Note             string     `bun:"note,notnull,type:text"`
	CallData         []byte     `bun:"call_data,type:bytea"`
	ValueWei         string     `bun:"value_wei,notnull,type:numeric(78,0)"`
	GasLimit         int64      `bun:"gas_limit,notnull"`
	GasPriceWei      string     `bun:"gas_price_wei,notnull,type:numeric(78,0)"`
	SignedPayload    []byte     `bun:"signed_payload,type:bytea"`
	TxHash           *string    `bun:"tx_hash,type:varchar(66)"`
	ResultSuccess    *bool      `bun:"result_success"`
	ResultBlockNum   *int64     `bun:"result_block_num"`
	FailureReason    *string    `bun:"failure_reason,type:text"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,default:current_timestamp"`
	BroadcastAt      *time.Time `bun:"broadcast_at"`
	ResultFetchedAt  *time.Time `bun:"result_fetched_at"`
}
