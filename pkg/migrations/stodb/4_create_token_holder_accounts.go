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
		log.Println("creating token_holder_accounts table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.TokenHolderAccountDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.TokenHolderAccountDao{}, "token_address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping token_holder_accounts table...")
		return mghelper.DropTables(ctx, db, &dao.TokenHolderAccountDao{})
	})
}
