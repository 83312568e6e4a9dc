// Package migrate applies the embedded SQL migrations.
package migrate

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"vouchr.org/migrations"
)

var setupOnce sync.Once
var setupErr error

func setup() error {
	setupOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		setupErr = goose.SetDialect("postgres")
	})
	return setupErr
}

// Up runs all pending migrations against dsn.
func Up(ctx context.Context, dsn string) error {
	return withDB(dsn, func(db *sql.DB) error { return UpDB(ctx, db) })
}

// UpDB runs all pending migrations on an open handle.
func UpDB(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Down rolls back the latest migration.
func Down(ctx context.Context, dsn string) error {
	return withDB(dsn, func(db *sql.DB) error {
		if err := setup(); err != nil {
			return err
		}
		return goose.DownContext(ctx, db, ".")
	})
}

// Status prints the applied state of every migration through the goose logger.
func Status(ctx context.Context, dsn string) error {
	return withDB(dsn, func(db *sql.DB) error {
		if err := setup(); err != nil {
			return err
		}
		return goose.StatusContext(ctx, db, ".")
	})
}

func withDB(dsn string, fn func(*sql.DB) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
