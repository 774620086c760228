package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/uptrace/bun/migrate"

	"github.com/uivlis/sto/pkg/config"
	"github.com/uivlis/sto/pkg/migrations/stodb"
	"github.com/uivlis/sto/pkg/pgutil"
	mghelper "github.com/uivlis/sto/pkg/pgutil/migrations"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [-config path] <command>

Commands:
  init    create the migration bookkeeping tables
  up      run all unapplied migrations
  down    roll back the last migration group
  status  show applied and unapplied migrations
`, os.Args[0])
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	migrator := migrate.NewMigrator(db, stodb.Migrations)
	if err := mghelper.RunMigrations(migrator, flag.Args()...); err != nil {
		usage()
		log.Fatalf("migration failed: %s", err.Error())
	}
}
