// Package store provides the sqlx-backed persistence layer for domain
// entities and sync bookkeeping.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Connect opens a Postgres connection pool and verifies it with a ping.
func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// queryLogger logs executed statements when verbose command logging is
// enabled. A no-op otherwise so hot paths pay nothing beyond a branch.
type queryLogger struct {
	enabled bool
	logger  *slog.Logger
}

func (q queryLogger) log(query string, args ...any) {
	if !q.enabled {
		return
	}
	q.logger.Debug("sql", "query", query, "args", args)
}
