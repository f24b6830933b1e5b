// Package duckdb is the collector's submission index: one row per received
// log plus its attachment metadata. Blob contents live elsewhere.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/diaglog/internal/duckdb/migrate"
	"github.com/tinytelemetry/diaglog/internal/mlog"
)

// Store manages the DuckDB database connection and provides query methods.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		// Ensure parent directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("duckdb: mkdir: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt)
	defer cancel()
	runner := migrate.NewRunner(db)
	applied, err := runner.Run(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: migrate: %w", err)
	}
	for _, name := range applied {
		mlog.Debug("duckdb: applied migration " + name)
	}
	version, pending, err := runner.Status(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: migration status: %w", err)
	}
	if pending > 0 {
		db.Close()
		return nil, fmt.Errorf("duckdb: %d migrations still pending after migrate", pending)
	}
	mlog.Debug(fmt.Sprintf("duckdb: schema at version %d", version))

	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the configured DuckDB path. Empty means in-memory DB.
func (s *Store) DBPath() string {
	return s.dbPath
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}
