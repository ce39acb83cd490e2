package store

import (
	"context"
	"fmt"

	"github.com/ashureev/sommelier/internal/shared"
)

// Driver identifies a concrete storage implementation.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Options selects and configures a backend.
type Options struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
	Retry       shared.RetryPolicy
}

// Open selects a backend by driver. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return NewSQLite(ctx, opts.SQLitePath, opts.Retry)
	case DriverPostgres:
		return NewPostgres(ctx, opts.PostgresDSN, opts.Retry)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
