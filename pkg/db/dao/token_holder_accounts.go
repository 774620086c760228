package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// TokenHolderAccountDao is a data access object that maps directly to the
// 'token_holder_accounts' table in PostgreSQL.
type TokenHolderAccountDao struct {
	bun.BaseModel    `bun:"table:token_holder_accounts,alias:tha"`
	Network          string    `bun:"network,pk,type:varchar(32)"`
	TokenAddress     string    `bun:"token_address,pk,type:varchar(42)"`
	Address          string    `bun:"address,pk,type:varchar(42)"`
	RawBalance       string    `bun:"raw_balance,notnull,type:numeric(78,0)"`
	LastUpdatedBlock int64     `bun:"last_updated_block,notnull"`
	LastUpdatedAt    time.Time `bun:"last_updated_at,nullzero,default:current_timestamp"`
}
