package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsConflictError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite busy", errors.New("step: SQLITE_BUSY (5)"), true},
		{"sqlite locked", errors.New("database is locked"), true},
		{"postgres serialization", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"postgres deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConflictError(tt.err); got != tt.want {
				t.Errorf("IsConflictError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryOnConflictRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	calls := 0
	want := errors.New("constraint failed")
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}, "test", func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, "test", func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	if !IsConflictError(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}
