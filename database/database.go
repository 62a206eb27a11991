// Package database is the SQLite implementation of taxlot.Store.
//
// Decimals are stored as TEXT so that no precision is lost, times as RFC3339 TEXT
// with a unix nanosecond column for ordering.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is a taxlot.Store backed by a SQLite file.
type DB struct {
	db *sql.DB
}

var _ taxlot.Store = (*DB)(nil)

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database at %s: %w", taxlot.ErrPersistence, path, err)
	}
	// Limit open connections to 1 for SQLite to avoid locking issues
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %w", taxlot.ErrPersistence, err)
	}
	if err := migrateUp(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", taxlot.ErrPersistence, err)
	}
	logger.FromContext(ctx).Info("database ready", "path", path)
	return &DB{db: db}, nil
}

func migrateUp(ctx context.Context, db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}
	// m.Close would close db too: only the source is released.
	defer src.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.FromContext(ctx).Debug("no new database migrations to apply")
	case err != nil:
		return fmt.Errorf("applying migrations: %w", err)
	default:
		v, _, _ := m.Version()
		logger.FromContext(ctx).Info("database migrations applied", "version", v)
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// tx runs fn in a transaction, committed when fn succeeds.
func (d *DB) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
