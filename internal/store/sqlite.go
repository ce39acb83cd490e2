package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/sommelier/internal/shared"
	_ "modernc.org/sqlite"
)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(ctx context.Context, dbPath string, retry shared.RetryPolicy) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers. Immediate transactions take the write lock on
	// BEGIN so two feed requests for one session cannot interleave.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s, err := newSQLStore(ctx, db, sqliteDialect, retry)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
