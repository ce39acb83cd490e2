// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"math"
	"time"

	"github.com/ashureev/sommelier/internal/domain"
)

// Repository is the backing store of the feed service.
type Repository interface {
	// WithTx runs fn inside a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. fn may be invoked more than once when
	// the store reports a retryable concurrency conflict.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// ReadTx is WithTx for callers that only read. It does not take the write lock.
	ReadTx(ctx context.Context, fn func(tx Tx) error) error

	// GetUser retrieves a user by ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpsertItems inserts or replaces catalog items.
	UpsertItems(ctx context.Context, items []domain.CatalogItem) error

	// DeleteStaleSessions removes sessions (and their ledgers) not updated within ttl.
	DeleteStaleSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Tx is the set of collaborators available inside one transaction.
type Tx interface {
	SessionStore
	QuizStore
	CatalogStore
	ImpressionLedger
	CartLedger
}

// SessionStore manages session lifecycle rows.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	// GetSession returns nil, nil when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	// LockSession is GetSession that also serializes concurrent writers of the session.
	LockSession(ctx context.Context, sessionID string) (*domain.Session, error)
	SetSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, at time.Time) error
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
}

// QuizStore persists quiz answers per session.
type QuizStore interface {
	// GetQuiz returns nil, nil when no quiz was saved for the session.
	GetQuiz(ctx context.Context, sessionID string) (*domain.QuizAnswers, error)
	UpsertQuiz(ctx context.Context, sessionID string, quiz *domain.QuizAnswers) error
}

// CatalogStore reads catalog items.
type CatalogStore interface {
	FindCandidates(ctx context.Context, filter CandidateFilter, limit int) ([]domain.CatalogItem, error)
	// EachCandidate calls fn for every item matching filter and stops at the first error.
	EachCandidate(ctx context.Context, filter CandidateFilter, fn func(item *domain.CatalogItem) error) error
	// GetItem returns nil, nil when the sku is unknown.
	GetItem(ctx context.Context, sku string) (*domain.CatalogItem, error)
	// FindRelated returns in-stock items sharing grape, colour, country or producer
	// with source, ordered by attribute similarity before rating.
	FindRelated(ctx context.Context, source *domain.CatalogItem, limit int) ([]domain.CatalogItem, error)
}

// ImpressionLedger records which skus a session has seen and how it reacted.
type ImpressionLedger interface {
	GetLiked(ctx context.Context, sessionID string) ([]domain.CatalogItem, error)
	// LogImpressions inserts impression-only records. Existing records are left untouched.
	LogImpressions(ctx context.Context, sessionID string, skus []string, at time.Time) error
	// SetReaction upserts a reaction without changing the original impression time.
	SetReaction(ctx context.Context, sessionID, sku string, reaction domain.Reaction, at time.Time) error
	// GetImpression returns nil, nil when the sku was never shown to the session.
	GetImpression(ctx context.Context, sessionID, sku string) (*domain.ImpressionRecord, error)
}

// CartLedger manages cart lines.
type CartLedger interface {
	GetCartTotals(ctx context.Context, sessionID string) (domain.CartTotals, error)
	// UpsertCartLine adds qtyDelta to the line, creating it when missing. The stored
	// quantity never drops below 1.
	UpsertCartLine(ctx context.Context, sessionID, sku string, qtyDelta int, price float64, at time.Time) error
	RemoveCartLine(ctx context.Context, sessionID, sku string) error
	ListCartLines(ctx context.Context, sessionID string) ([]domain.CartLine, error)
}

// CandidateFilter narrows FindCandidates. Colours and category tokens are lowercase
// and are OR-ed together; leaving both empty applies no category constraint.
type CandidateFilter struct {
	ExcludeSessionID string
	MinPrice         float64
	MaxPrice         float64 // +Inf or 0 means unbounded
	ABVRange         *Range
	Colors           []string
	CategoryTokens   []string
	RequireRated     bool
}

// Range is a closed numeric interval.
type Range struct {
	Min float64
	Max float64
}

// Unbounded reports whether the upper limit is infinite.
func (r Range) Unbounded() bool {
	return math.IsInf(r.Max, 1)
}

func (f CandidateFilter) hasMaxPrice() bool {
	return f.MaxPrice > 0 && !math.IsInf(f.MaxPrice, 1)
}
