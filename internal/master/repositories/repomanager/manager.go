package repomanager

import (
	"context"
	"database/sql"

	"github.com/thaispalmer/yn-automation/internal/dbx"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/applications"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/plans"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/shards"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// runs against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Shards(db dbx.DBTX) shards.Repository
	Applications(db dbx.DBTX) applications.Repository
	Plans(db dbx.DBTX) plans.Repository
}
