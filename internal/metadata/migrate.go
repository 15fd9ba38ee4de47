package metadata

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending embedded migration to the database
// reachable via the pgx stdlib driver's *sql.DB (sqlx.DB.DB).
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// DB exposes the underlying *sql.DB for callers that need to run Migrate.
func (d *DB) SQLDB() *sql.DB { return d.conn.DB }
