package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// TokenScanStatusDao is a data access object that maps directly to the
// 'token_scan_status' table in PostgreSQL.
type TokenScanStatusDao struct {
	bun.BaseModel    `bun:"table:token_scan_status,alias:tss"`
	Network          string    `bun:"network,pk,type:varchar(32)"`
	TokenAddress     string    `bun:"token_address,pk,type:varchar(42)"`
	StartBlock       int64     `bun:"start_block,notnull"`
	EndBlock         int64     `bun:"end_block,notnull"`
	LastScannedBlock int64     `bun:"last_scanned_block,notnull"`
	TotalSupply      string    `bun:"total_supply,notnull,type:numeric(78,0)"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}
