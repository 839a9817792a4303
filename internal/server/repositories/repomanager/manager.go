// Package repomanager vends repository implementations bound to a DBTX,
// so services can run the same repository code on a plain connection or
// inside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dropvault/dropvault/internal/dbx"
	"github.com/dropvault/dropvault/internal/server/repositories/files"
	"github.com/dropvault/dropvault/internal/server/repositories/sessions"
	"github.com/dropvault/dropvault/internal/server/repositories/shares"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Shares(db dbx.DBTX) shares.Repository
}
