package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// BroadcastAccountDao is a data access object that maps directly to the
// 'broadcast_accounts' table in PostgreSQL.
type BroadcastAccountDao struct {
	bun.BaseModel `bun:"table:broadcast_accounts,alias:ba"`
	Network       string    `bun:"network,pk,type:varchar(32)"`
	Address       string    `bun:"address,pk,type:varchar(42)"`
	CurrentNonce  int64     `bun:"current_nonce,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}
