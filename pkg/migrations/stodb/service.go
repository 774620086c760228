// Package stodb holds all the migrations for the sto database
package stodb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the sto database
var Migrations = migrate.NewMigrations()
