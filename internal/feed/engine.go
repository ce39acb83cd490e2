package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/metrics"
	"github.com/ashureev/sommelier/internal/store"
	"github.com/google/uuid"
)

// CartExporter receives the cart of every session that completes.
type CartExporter interface {
	ExportCart(ctx context.Context, summary *CartSummary) error
}

// Engine orchestrates feed sessions. It is safe for concurrent use; all state
// lives in the repository.
type Engine struct {
	repo     store.Repository
	cfg      Config
	exporter CartExporter
	now      func() time.Time
	newID    func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithExporter sets the sink for completed carts.
func WithExporter(x CartExporter) Option {
	return func(e *Engine) { e.exporter = x }
}

// NewEngine creates an engine over repo with a private copy of cfg.
func NewEngine(repo store.Repository, cfg Config, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("feed engine requires a repository")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feed config: %w", err)
	}
	e := &Engine{
		repo:  repo,
		cfg:   cfg.clone(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// FeedPage is one page of recommendations with the session's budget status.
type FeedPage struct {
	SessionID string       `json:"session_id"`
	Items     []ScoredItem `json:"items"`
	BudgetState
	CanStop bool `json:"can_stop"`
}

// Event is one entry of a batched event upload. Action is like, dislike or none.
type Event struct {
	SKU    string `json:"sku"`
	Action string `json:"action"`
}

// StartSession creates a new in-progress session, optionally tied to a user.
func (e *Engine) StartSession(ctx context.Context, userID string) (*domain.Session, error) {
	now := e.now()
	session := &domain.Session{
		ID:        e.newID(),
		UserID:    userID,
		Status:    domain.SessionInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := e.inTx(ctx, "start_session", func(tx store.Tx) error {
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsStarted.Inc()
	slog.Info("Session started", "session_id", session.ID, "user_id", userID)
	return session, nil
}

// SaveQuiz validates and persists the quiz answers of a session, replacing earlier answers.
func (e *Engine) SaveQuiz(ctx context.Context, sessionID string, quiz domain.QuizAnswers) (*Profile, error) {
	if err := quiz.Validate(); err != nil {
		return nil, err
	}
	now := e.now()
	quiz.UpdatedAt = now

	err := e.inTx(ctx, "save_quiz", func(tx store.Tx) error {
		if _, err := lockMutable(ctx, tx, sessionID); err != nil {
			return err
		}
		if err := tx.UpsertQuiz(ctx, sessionID, &quiz); err != nil {
			return err
		}
		return tx.TouchSession(ctx, sessionID, now)
	})
	if err != nil {
		return nil, err
	}

	profile := e.cfg.NewProfile(quiz)
	return &profile, nil
}

// GetFeed assembles the next page for a session. Every returned sku is logged as
// an impression in the same transaction, so it is never returned again.
func (e *Engine) GetFeed(ctx context.Context, sessionID string, pageSize int, overrides map[string]float64) (*FeedPage, error) {
	weights, err := e.cfg.Weights.Merge(overrides)
	if err != nil {
		return nil, err
	}
	pageSize = e.pageSize(pageSize)
	start := e.now()

	var page *FeedPage
	var candidateCount int
	err = e.inTx(ctx, "get_feed", func(tx store.Tx) error {
		page, candidateCount = nil, 0

		if _, err := lockMutable(ctx, tx, sessionID); err != nil {
			return err
		}
		quiz, err := tx.GetQuiz(ctx, sessionID)
		if err != nil {
			return err
		}
		if quiz == nil {
			return fmt.Errorf("%w: no quiz saved for session %s", domain.ErrInvalidQuiz, sessionID)
		}

		profile := e.cfg.NewProfile(*quiz)
		totals, err := tx.GetCartTotals(ctx, sessionID)
		if err != nil {
			return err
		}
		budget := e.cfg.budgetState(profile, totals)

		liked, err := tx.GetLiked(ctx, sessionID)
		if err != nil {
			return err
		}
		prefs := LearnPreferences(liked)

		candidates, err := tx.FindCandidates(ctx, profile.Filter(sessionID),
			e.cfg.fetchSize(pageSize, quiz.PeopleCount))
		if err != nil {
			return err
		}
		candidateCount = len(candidates)

		sc := &scorer{profile: profile, budget: budget, prefs: prefs, weights: weights}
		scored := make([]ScoredItem, 0, len(candidates))
		for i := range candidates {
			score, breakdown := sc.Score(&candidates[i])
			scored = append(scored, ScoredItem{Item: candidates[i], Score: score, Breakdown: breakdown})
		}
		selected := e.cfg.selectDiverse(scored, pageSize, quiz.PeopleCount)

		now := e.now()
		if len(selected) > 0 {
			skus := make([]string, len(selected))
			for i, s := range selected {
				skus[i] = s.Item.SKU
			}
			if err := tx.LogImpressions(ctx, sessionID, skus, now); err != nil {
				return err
			}
		}
		if err := tx.TouchSession(ctx, sessionID, now); err != nil {
			return err
		}

		page = &FeedPage{
			SessionID:   sessionID,
			Items:       selected,
			BudgetState: budget,
			CanStop:     e.cfg.canStop(budget, len(selected) == 0),
		}
		if page.Items == nil {
			page.Items = []ScoredItem{}
		}
		return nil
	})
	if err != nil {
		metrics.FeedRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.RecordFeedPage(candidateCount, len(page.Items), e.now().Sub(start))
	slog.Debug("Feed page served",
		"session_id", sessionID,
		"candidates", candidateCount,
		"items", len(page.Items),
		"can_stop", page.CanStop)
	return page, nil
}

// RecordReaction stores a like or dislike. Repeating the same reaction is a no-op.
func (e *Engine) RecordReaction(ctx context.Context, sessionID, sku, reaction string) error {
	r, err := domain.ParseReaction(reaction)
	if err != nil {
		return err
	}
	err = e.inTx(ctx, "record_reaction", func(tx store.Tx) error {
		if _, err := lockMutable(ctx, tx, sessionID); err != nil {
			return err
		}
		now := e.now()
		if err := applyEvent(ctx, tx, sessionID, sku, r, now); err != nil {
			return err
		}
		return tx.TouchSession(ctx, sessionID, now)
	})
	if err != nil {
		return err
	}
	metrics.ReactionsTotal.WithLabelValues(string(r)).Inc()
	return nil
}

// RecordEvents applies a batch of impressions and reactions atomically. Any
// invalid action rejects the whole batch.
func (e *Engine) RecordEvents(ctx context.Context, sessionID string, events []Event) (int, error) {
	actions := make([]domain.Reaction, len(events))
	for i, ev := range events {
		r, err := domain.ParseEventAction(ev.Action)
		if err != nil {
			return 0, err
		}
		actions[i] = r
	}

	err := e.inTx(ctx, "record_events", func(tx store.Tx) error {
		if _, err := lockMutable(ctx, tx, sessionID); err != nil {
			return err
		}
		now := e.now()
		for i, ev := range events {
			if err := applyEvent(ctx, tx, sessionID, ev.SKU, actions[i], now); err != nil {
				return err
			}
		}
		return tx.TouchSession(ctx, sessionID, now)
	})
	if err != nil {
		return 0, err
	}

	for _, r := range actions {
		if r != domain.ReactionNone {
			metrics.ReactionsTotal.WithLabelValues(string(r)).Inc()
		}
	}
	return len(events), nil
}

func applyEvent(ctx context.Context, tx store.Tx, sessionID, sku string, r domain.Reaction, now time.Time) error {
	item, err := tx.GetItem(ctx, sku)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, sku)
	}
	if r == domain.ReactionNone {
		return tx.LogImpressions(ctx, sessionID, []string{sku}, now)
	}

	existing, err := tx.GetImpression(ctx, sessionID, sku)
	if err != nil {
		return err
	}
	if existing != nil && existing.Reaction == r {
		return nil
	}
	return tx.SetReaction(ctx, sessionID, sku, r, now)
}

// inTx runs fn in a store transaction. Failures that are not caused by the
// request are reported as ErrStoreFailure.
func (e *Engine) inTx(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	return e.run(ctx, op, e.repo.WithTx, fn)
}

// inReadTx is inTx for operations that never write.
func (e *Engine) inReadTx(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	return e.run(ctx, op, e.repo.ReadTx, fn)
}

func (e *Engine) run(ctx context.Context, op string,
	begin func(context.Context, func(store.Tx) error) error, fn func(tx store.Tx) error,
) error {
	start := time.Now()
	err := begin(ctx, fn)
	if err == nil || domain.IsClientError(err) {
		metrics.RecordStoreTx(op, time.Since(start), nil)
		return err
	}
	metrics.RecordStoreTx(op, time.Since(start), err)
	slog.Error("Store transaction failed", "op", op, "error", err)
	if errors.Is(err, domain.ErrStoreFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreFailure, op, err)
}

func (e *Engine) pageSize(n int) int {
	if n <= 0 {
		return e.cfg.DefaultPageSize
	}
	return min(n, e.cfg.MaxPageSize)
}

// lockMutable locks the session and rejects completed ones.
func lockMutable(ctx context.Context, tx store.Tx, sessionID string) (*domain.Session, error) {
	session, err := lockExisting(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.CheckMutable(); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return session, nil
}

func lockExisting(ctx context.Context, tx store.Tx, sessionID string) (*domain.Session, error) {
	session, err := tx.LockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return session, nil
}
