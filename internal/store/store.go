// Package store is the persistence layer: it opens the relational store,
// bootstraps the schema and runs the generic persistence engine driven by the
// domain entity contract. Two drivers are supported, PostgreSQL for shared
// deployments and SQLite for embedded and test use.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"seminarhub/internal/config"
)

// dialect captures the driver differences the engine cares about: placeholder
// syntax and how generated identities are read back.
type dialect string

const (
	dialectPostgres dialect = config.DriverPostgres
	dialectSQLite   dialect = config.DriverSQLite
)

// rebind rewrites ? placeholders into the driver's syntax. Queries are written
// with ? throughout; PostgreSQL needs ordinal $n markers.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// supportsReturning reports whether inserts read identities back via
// RETURNING instead of LastInsertId.
func (d dialect) supportsReturning() bool {
	return d == dialectPostgres
}

// Open connects to the configured store, applies pool settings and verifies
// connectivity.
func Open(cfg config.StoreConfig, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	// An in-memory SQLite database exists per connection; the pool must not
	// grow past one or connections see different databases.
	if cfg.Driver == config.DriverSQLite && strings.Contains(cfg.Path, ":memory:") {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.Driver == config.DriverSQLite {
		if err := applySQLitePragmas(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach store: %w", err)
	}

	log.Info("store connected",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", maxConns),
	)
	return db, nil
}

func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
