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
		log.Println("creating prepared_transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.PreparedTransactionDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.PreparedTransactionDao{}, "state", "from_address"); err != nil {
			return err
		}
		// Correlation ids are scoped per network, matching the lookups.
		if err := mghelper.CreateCompositeUniqueIndex(ctx, db, &dao.PreparedTransactionDao{},
			"idx_prepared_transactions_network_external_id", "network", "external_id"); err != nil {
			return err
		}
		// One live nonce per account. Failed rows fall out of the
		// constraint so an operator resync can hand their nonce out again.
		return mghelper.CreatePartialUniqueIndex(ctx, db, &dao.PreparedTransactionDao{},
			"idx_prepared_transactions_account_nonce", "state <> 'failed'",
			"network", "from_address", "nonce")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping prepared_transactions table...")
		return mghelper.DropTables(ctx, db, &dao.PreparedTransactionDao{})
	})
}
