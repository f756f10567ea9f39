// Package store implements the durable ordered key/value queues the
// harvester uses as its URL frontier and saver buffer (SPEC_FULL.md §4.2),
// backed by a single-file SQLite database — the "embedded KV store" referred
// to throughout spec.md.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migsqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	drsqlite3 "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

const driverName = "sqlite3_harvester_hooked"

var registerDriverOnce sync.Once

func registerDriver() {
	registerDriverOnce.Do(func() {
		sql.Register(driverName, sqlhooks.Wrap(&drsqlite3.SQLiteDriver{}, &Hooks{}))
	})
}

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps a *sqlx.DB pointed at the harvester's SQLite file.
type DB struct {
	*sqlx.DB
}

// Open creates dir if needed, opens (or creates) store.db inside it, and
// brings the schema up to date. SQLite does not support concurrent writers,
// so the pool is capped at one connection — the same technique the teacher
// uses for its own sqlite3 backend — which doubles as the serialization
// PopMin needs for linearizable delivery.
func Open(dir string) (*DB, error) {
	registerDriver()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating db dir %s: %w", dir, err)
	}

	dsn := filepath.Join(dir, "store.db")
	sqlxDB, err := sqlx.Open(driverName, fmt.Sprintf("%s?_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", dsn, err)
	}
	sqlxDB.SetMaxOpenConns(1)

	if err := migrateUp(sqlxDB.DB); err != nil {
		sqlxDB.Close()
		return nil, err
	}

	return &DB{sqlxDB}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := migsqlite3.WithInstance(db, &migsqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: migrate driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("store: migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}
