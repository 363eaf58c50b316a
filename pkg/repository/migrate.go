package repository

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	"github.com/cuemby/landctl/pkg/apierr"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending goose migration embedded in this package.
// It is the Go-native replacement for the teacher's standalone
// warren-migrate binary: same "inspect, then apply" shape, but against a
// goose-managed schema instead of a bbolt bucket rename.
func Migrate(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect(dialect); err != nil {
		return apierr.Wrap(apierr.KindUpstream, "set migration dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return apierr.Wrap(apierr.KindUpstream, "apply migrations", err)
	}
	return nil
}

// MigrationStatus reports the current migration version without applying
// anything, used by `landctl migrate status`.
func MigrationStatus(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect(dialect); err != nil {
		return apierr.Wrap(apierr.KindUpstream, "set migration dialect", err)
	}
	return goose.Status(db, "migrations")
}
