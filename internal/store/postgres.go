package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashureev/sommelier/internal/shared"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const defaultPostgresDSN = "postgres://localhost/sommelier?sslmode=disable"

// NewPostgres creates a Postgres-backed repository using the pgx driver.
func NewPostgres(ctx context.Context, dsn string, retry shared.RetryPolicy) (*SQLStore, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s, err := newSQLStore(ctx, db, postgresDialect, retry)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
