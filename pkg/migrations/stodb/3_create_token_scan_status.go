package stodb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/uivlis/sto/pkg/db/dao"
	mghelper "github.com/uivlis/sto/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating token_scan_status table...")
		return mghelper.CreateSchema(ctx, db, &dao.TokenScanStatusDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping token_scan_status table...")
		return mghelper.DropTables(ctx, db, &dao.TokenScanStatusDao{})
	})
}
