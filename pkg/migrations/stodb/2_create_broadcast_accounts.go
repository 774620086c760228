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
		log.Println("creating broadcast_accounts table...")
		return mghelper.CreateSchema(ctx, db, &dao.BroadcastAccountDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping broadcast_accounts table...")
		return mghelper.DropTables(ctx, db, &dao.BroadcastAccountDao{})
	})
}
