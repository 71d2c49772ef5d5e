// Package repomanager vends repository implementations bound to a database
// handle, and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/ovenbird/recipebook/internal/dbx"
	"github.com/ovenbird/recipebook/internal/server/repositories/recipes"
	"github.com/ovenbird/recipebook/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to the provided DBTX, which may
// be a bare connection or a transaction.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Recipes(db dbx.DBTX) recipes.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
