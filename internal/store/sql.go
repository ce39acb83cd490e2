package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/shared"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q queryer
	d dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// SQLStore implements Repository on database/sql for SQLite and Postgres.
type SQLStore struct {
	conn
	db    *sql.DB
	retry shared.RetryPolicy
}

// Compile-time contract assertions.
var (
	_ Repository = (*SQLStore)(nil)
	_ Tx         = (*sqlTx)(nil)
)

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, retry shared.RetryPolicy) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLStore{conn: conn{q: db, d: d}, db: db, retry: retry}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction, re-running it on busy or serialization conflicts.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return shared.RetryOnConflict(ctx, s.retry, "transaction", func() error {
		return s.runTx(ctx, nil, fn)
	})
}

// ReadTx runs fn in a read-only transaction. On SQLite it starts deferred, so
// readers do not queue behind the write lock.
func (s *SQLStore) ReadTx(ctx context.Context, fn func(tx Tx) error) error {
	return shared.RetryOnConflict(ctx, s.retry, "read transaction", func() error {
		return s.runTx(ctx, &sql.TxOptions{ReadOnly: true}, fn)
	})
}

func (s *SQLStore) runTx(ctx context.Context, opts *sql.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("Transaction rollback failed", "error", rbErr)
			}
		}
	}()

	if err := fn(&sqlTx{conn: conn{q: tx, d: s.d}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.queryRow(ctx, `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLStore) UpsertUser(ctx context.Context, user *domain.User) error {
	_, err := s.exec(ctx, `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpsertItems inserts or replaces catalog items in one transaction.
func (s *SQLStore) UpsertItems(ctx context.Context, items []domain.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx Tx) error {
		t := tx.(*sqlTx)
		now := time.Now().Unix()
		for i := range items {
			if err := t.upsertItem(ctx, &items[i], now); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteStaleSessions removes sessions not updated within ttl, together with their
// quiz, impressions and cart lines.
func (s *SQLStore) DeleteStaleSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	var deleted int64
	err := s.WithTx(ctx, func(tx Tx) error {
		t := tx.(*sqlTx)
		for _, table := range []string{"session_impressions", "session_cart", "session_quiz"} {
			query := `DELETE FROM ` + table + ` WHERE session_id IN (SELECT session_id FROM sessions WHERE updated_at < ?)`
			if _, err := t.exec(ctx, query, threshold); err != nil {
				return fmt.Errorf("delete stale %s: %w", table, err)
			}
		}
		res, err := t.exec(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("delete stale sessions: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("stale sessions rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// sqlTx implements Tx on top of one database transaction.
type sqlTx struct {
	conn
}

// CreateSession inserts a new session row.
func (t *sqlTx) CreateSession(ctx context.Context, session *domain.Session) error {
	var userID any
	if session.UserID != "" {
		userID = session.UserID
	}
	_, err := t.exec(ctx, `
		INSERT INTO sessions (session_id, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		session.ID, userID, string(session.Status),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (t *sqlTx) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return t.getSession(ctx, sessionID, "")
}

// LockSession retrieves a session and, on Postgres, holds its row lock until commit.
// SQLite transactions already hold the database write lock.
func (t *sqlTx) LockSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return t.getSession(ctx, sessionID, t.d.lockClause)
}

func (t *sqlTx) getSession(ctx context.Context, sessionID, suffix string) (*domain.Session, error) {
	row := t.queryRow(ctx, `
		SELECT session_id, user_id, status, created_at, updated_at
		FROM sessions WHERE session_id = ?`+suffix, sessionID)

	var session domain.Session
	var userID sql.NullString
	var status string
	var createdAt, updatedAt int64
	err := row.Scan(&session.ID, &userID, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	session.UserID = userID.String
	session.Status = domain.SessionStatus(status)
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// SetSessionStatus changes the lifecycle status of a session.
func (t *sqlTx) SetSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, at time.Time) error {
	res, err := t.exec(ctx, `UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		string(status), at.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return requireRow(res, sessionID)
}

// TouchSession bumps updated_at so the retention worker keeps the session.
func (t *sqlTx) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := t.exec(ctx, `UPDATE sessions SET updated_at = ? WHERE session_id = ?`, at.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return requireRow(res, sessionID)
}

func requireRow(res sql.Result, sessionID string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return nil
}

// GetQuiz retrieves the persisted quiz answers of a session.
func (t *sqlTx) GetQuiz(ctx context.Context, sessionID string) (*domain.QuizAnswers, error) {
	row := t.queryRow(ctx, `
		SELECT occasion, style, drink_type, people_count, budget, updated_at
		FROM session_quiz WHERE session_id = ?`, sessionID)

	var quiz domain.QuizAnswers
	var occasion, style, drinkType, budget string
	var updatedAt int64
	err := row.Scan(&occasion, &style, &drinkType, &quiz.PeopleCount, &budget, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan quiz row: %w", err)
	}
	quiz.Occasion = domain.Occasion(occasion)
	quiz.Style = domain.Style(style)
	quiz.DrinkType = domain.DrinkType(drinkType)
	quiz.Budget = domain.Budget(budget)
	quiz.UpdatedAt = time.Unix(updatedAt, 0)
	return &quiz, nil
}

// UpsertQuiz creates or replaces the quiz answers of a session.
func (t *sqlTx) UpsertQuiz(ctx context.Context, sessionID string, quiz *domain.QuizAnswers) error {
	_, err := t.exec(ctx, `
		INSERT INTO session_quiz (session_id, occasion, style, drink_type, people_count, budget, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			occasion = excluded.occasion,
			style = excluded.style,
			drink_type = excluded.drink_type,
			people_count = excluded.people_count,
			budget = excluded.budget,
			updated_at = excluded.updated_at`,
		sessionID, string(quiz.Occasion), string(quiz.Style), string(quiz.DrinkType),
		quiz.PeopleCount, string(quiz.Budget), quiz.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert quiz: %w", err)
	}
	return nil
}

// FindCandidates returns eligible in-stock items ordered by rating, rating count, price and sku.
func (t *sqlTx) FindCandidates(ctx context.Context, f CandidateFilter, limit int) ([]domain.CatalogItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	where, args := f.where()
	query := `SELECT ` + itemColumns("") + ` FROM products WHERE ` + where +
		` ORDER BY COALESCE(rating_value, 0) DESC, rating_count DESC, price ASC, sku ASC LIMIT ?`
	args = append(args, limit)

	return t.queryItems(ctx, "find candidates", query, args...)
}

// EachCandidate streams every item matching f in sku order.
func (t *sqlTx) EachCandidate(ctx context.Context, f CandidateFilter, fn func(item *domain.CatalogItem) error) error {
	where, args := f.where()
	rows, err := t.query(ctx, `SELECT `+itemColumns("")+` FROM products WHERE `+where+` ORDER BY sku ASC`, args...)
	if err != nil {
		return fmt.Errorf("scan candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return fmt.Errorf("scan candidate row: %w", err)
		}
		if err := fn(&item); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate candidates: %w", err)
	}
	return nil
}

// where renders the filter as a WHERE clause over products.
func (f CandidateFilter) where() (string, []any) {
	where := []string{"availability = ?", "price > 0"}
	args := []any{domain.AvailabilityInStock}

	if f.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, f.MinPrice)
	}
	if f.hasMaxPrice() {
		where = append(where, "price < ?")
		args = append(args, f.MaxPrice)
	}
	if r := f.ABVRange; r != nil {
		if r.Unbounded() {
			where = append(where, "(abv IS NULL OR abv >= ?)")
			args = append(args, r.Min)
		} else {
			where = append(where, "(abv IS NULL OR (abv >= ? AND abv <= ?))")
			args = append(args, r.Min, r.Max)
		}
	}
	if f.RequireRated {
		where = append(where, "rating_count > 0")
	}

	var match []string
	if len(f.Colors) > 0 {
		match = append(match, "color_norm IN ("+placeholders(len(f.Colors))+")")
		for _, c := range f.Colors {
			args = append(args, c)
		}
	}
	for _, token := range f.CategoryTokens {
		match = append(match, "category_norm LIKE ?")
		args = append(args, "%"+token+"%")
	}
	if len(match) > 0 {
		where = append(where, "("+strings.Join(match, " OR ")+")")
	}

	if f.ExcludeSessionID != "" {
		where = append(where, `NOT EXISTS (
			SELECT 1 FROM session_impressions si
			WHERE si.session_id = ? AND si.sku = products.sku)`)
		args = append(args, f.ExcludeSessionID)
	}
	return strings.Join(where, " AND "), args
}

// GetItem retrieves a single catalog item.
func (t *sqlTx) GetItem(ctx context.Context, sku string) (*domain.CatalogItem, error) {
	row := t.queryRow(ctx, `SELECT `+itemColumns("")+` FROM products WHERE sku = ?`, sku)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan item row: %w", err)
	}
	return &item, nil
}

// FindRelated returns in-stock items sharing at least one of grape, colour, country
// or producer, most similar first. Similarity weighs grape 3, colour 2, sugar 1,
// country 2, producer 1 and a price within 500 of the source 1; ties go to the
// better rated item, then the closer price.
func (t *sqlTx) FindRelated(ctx context.Context, source *domain.CatalogItem, limit int) ([]domain.CatalogItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT ` + itemColumns("") + ` FROM products
		WHERE availability = ? AND sku <> ? AND price > 0 AND (
			(grape <> '' AND grape = ?)
			OR (color_norm <> '' AND color_norm = ?)
			OR (country <> '' AND country = ?)
			OR (producer <> '' AND producer = ?)
		)
		ORDER BY (
			CASE WHEN grape <> '' AND grape = ? THEN 3 ELSE 0 END
			+ CASE WHEN color_norm <> '' AND color_norm = ? THEN 2 ELSE 0 END
			+ CASE WHEN sugar <> '' AND sugar = ? THEN 1 ELSE 0 END
			+ CASE WHEN country <> '' AND country = ? THEN 2 ELSE 0 END
			+ CASE WHEN producer <> '' AND producer = ? THEN 1 ELSE 0 END
			+ CASE WHEN ABS(price - ?) < 500 THEN 1 ELSE 0 END
		) DESC, COALESCE(rating_value, 0) DESC, ABS(price - ?) ASC, sku ASC
		LIMIT ?`
	grape, color := source.Attributes.Grape, normalize(source.Attributes.Color)
	return t.queryItems(ctx, "find related", query,
		domain.AvailabilityInStock, source.SKU,
		grape, color, source.Country, source.Producer,
		grape, color, source.Attributes.Sugar, source.Country, source.Producer, source.Price,
		source.Price, limit,
	)
}

// GetLiked returns the catalog items the session reacted to with "like", oldest first.
func (t *sqlTx) GetLiked(ctx context.Context, sessionID string) ([]domain.CatalogItem, error) {
	query := `SELECT ` + itemColumns("p.") + `
		FROM session_impressions si
		JOIN products p ON p.sku = si.sku
		WHERE si.session_id = ? AND si.action = ?
		ORDER BY si.reacted_at ASC, p.sku ASC`
	return t.queryItems(ctx, "get liked", query, sessionID, string(domain.ReactionLike))
}

// LogImpressions records impression-only rows; rows that already exist are left as they are.
func (t *sqlTx) LogImpressions(ctx context.Context, sessionID string, skus []string, at time.Time) error {
	for _, sku := range skus {
		_, err := t.exec(ctx, `
			INSERT INTO session_impressions (session_id, sku, action, created_at, reacted_at)
			VALUES (?, ?, NULL, ?, NULL)
			ON CONFLICT (session_id, sku) DO NOTHING`,
			sessionID, sku, at.Unix(),
		)
		if err != nil {
			return fmt.Errorf("log impression %s: %w", sku, err)
		}
	}
	return nil
}

// SetReaction upserts a reaction. created_at keeps the time of the first impression.
func (t *sqlTx) SetReaction(ctx context.Context, sessionID, sku string, reaction domain.Reaction, at time.Time) error {
	_, err := t.exec(ctx, `
		INSERT INTO session_impressions (session_id, sku, action, created_at, reacted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, sku) DO UPDATE SET
			action = excluded.action,
			reacted_at = excluded.reacted_at`,
		sessionID, sku, string(reaction), at.Unix(), at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}
	return nil
}

// GetImpression retrieves the impression record of a sku in a session.
func (t *sqlTx) GetImpression(ctx context.Context, sessionID, sku string) (*domain.ImpressionRecord, error) {
	row := t.queryRow(ctx, `
		SELECT action, created_at, reacted_at
		FROM session_impressions WHERE session_id = ? AND sku = ?`, sessionID, sku)

	var action sql.NullString
	var createdAt int64
	var reactedAt sql.NullInt64
	err := row.Scan(&action, &createdAt, &reactedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan impression row: %w", err)
	}

	rec := &domain.ImpressionRecord{
		SessionID: sessionID,
		SKU:       sku,
		Reaction:  domain.Reaction(action.String),
		CreatedAt: time.Unix(createdAt, 0),
	}
	if reactedAt.Valid {
		ts := time.Unix(reactedAt.Int64, 0)
		rec.ReactedAt = &ts
	}
	return rec, nil
}

// GetCartTotals returns the cart value and the number of distinct skus in it.
func (t *sqlTx) GetCartTotals(ctx context.Context, sessionID string) (domain.CartTotals, error) {
	row := t.queryRow(ctx, `
		SELECT COALESCE(SUM(qty * price_at_add), 0), COUNT(*)
		FROM session_cart WHERE session_id = ?`, sessionID)

	var totals domain.CartTotals
	if err := row.Scan(&totals.Total, &totals.DistinctItems); err != nil {
		return domain.CartTotals{}, fmt.Errorf("scan cart totals: %w", err)
	}
	return totals, nil
}

// UpsertCartLine merges qtyDelta into the line with quantity = max(1, quantity + delta).
func (t *sqlTx) UpsertCartLine(ctx context.Context, sessionID, sku string, qtyDelta int, price float64, at time.Time) error {
	initial := qtyDelta
	if initial < 1 {
		initial = 1
	}
	_, err := t.exec(ctx, `
		INSERT INTO session_cart (session_id, sku, qty, price_at_add, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, sku) DO UPDATE SET
			qty = `+t.d.greatest+`(1, session_cart.qty + ?),
			price_at_add = excluded.price_at_add,
			updated_at = excluded.updated_at`,
		sessionID, sku, initial, price, at.Unix(), at.Unix(), qtyDelta,
	)
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return nil
}

// RemoveCartLine deletes a line. Removing an absent line is not an error.
func (t *sqlTx) RemoveCartLine(ctx context.Context, sessionID, sku string) error {
	if _, err := t.exec(ctx, `DELETE FROM session_cart WHERE session_id = ? AND sku = ?`, sessionID, sku); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	return nil
}

// ListCartLines returns the cart lines of a session in the order they were added.
func (t *sqlTx) ListCartLines(ctx context.Context, sessionID string) ([]domain.CartLine, error) {
	rows, err := t.query(ctx, `
		SELECT c.sku, COALESCE(p.name, ''), c.qty, c.price_at_add, c.added_at, c.updated_at
		FROM session_cart c
		LEFT JOIN products p ON p.sku = c.sku
		WHERE c.session_id = ?
		ORDER BY c.added_at ASC, c.sku ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close cart rows", "error", closeErr)
		}
	}()

	var lines []domain.CartLine
	for rows.Next() {
		line := domain.CartLine{SessionID: sessionID}
		var addedAt, updatedAt int64
		if err := rows.Scan(&line.SKU, &line.Name, &line.Quantity, &line.PriceAtAdd, &addedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		line.AddedAt = time.Unix(addedAt, 0)
		line.UpdatedAt = time.Unix(updatedAt, 0)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

func (t *sqlTx) upsertItem(ctx context.Context, item *domain.CatalogItem, now int64) error {
	_, err := t.exec(ctx, `
		INSERT INTO products (
			sku, name, price, abv, category_path, category_norm, country, producer,
			rating_value, rating_count, availability, volume_l, image_url, product_url,
			color, color_norm, grape, sugar, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sku) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			abv = excluded.abv,
			category_path = excluded.category_path,
			category_norm = excluded.category_norm,
			country = excluded.country,
			producer = excluded.producer,
			rating_value = excluded.rating_value,
			rating_count = excluded.rating_count,
			availability = excluded.availability,
			volume_l = excluded.volume_l,
			image_url = excluded.image_url,
			product_url = excluded.product_url,
			color = excluded.color,
			color_norm = excluded.color_norm,
			grape = excluded.grape,
			sugar = excluded.sugar,
			updated_at = excluded.updated_at`,
		item.SKU, item.Name, nullPrice(item.Price), nullFloat(item.ABV),
		item.CategoryPath, normalize(item.CategoryPath), item.Country, item.Producer,
		nullFloat(item.RatingValue), item.RatingCount, item.Availability, nullFloat(item.VolumeL),
		item.ImageURL, item.ProductURL,
		item.Attributes.Color, normalize(item.Attributes.Color), item.Attributes.Grape, item.Attributes.Sugar,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.SKU, err)
	}
	return nil
}

func (t *sqlTx) queryItems(ctx context.Context, op, query string, args ...any) ([]domain.CatalogItem, error) {
	rows, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close item rows", "op", op, "error", closeErr)
		}
	}()

	var items []domain.CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan item: %w", op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate items: %w", op, err)
	}
	return items, nil
}

var itemColumnNames = []string{
	"sku", "name", "price", "abv", "category_path", "country", "producer",
	"rating_value", "rating_count", "availability", "volume_l", "image_url", "product_url",
	"color", "grape", "sugar",
}

func itemColumns(prefix string) string {
	cols := make([]string, len(itemColumnNames))
	for i, c := range itemColumnNames {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (domain.CatalogItem, error) {
	var item domain.CatalogItem
	var price, abv, rating, volume sql.NullFloat64
	err := row.Scan(
		&item.SKU, &item.Name, &price, &abv, &item.CategoryPath, &item.Country, &item.Producer,
		&rating, &item.RatingCount, &item.Availability, &volume, &item.ImageURL, &item.ProductURL,
		&item.Attributes.Color, &item.Attributes.Grape, &item.Attributes.Sugar,
	)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	item.Price = price.Float64
	item.ABV = floatPtr(abv)
	item.RatingValue = floatPtr(rating)
	item.VolumeL = floatPtr(volume)
	return item, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullPrice(p float64) any {
	if p <= 0 {
		return nil
	}
	return p
}

// normalize lowercases with full Unicode folding; SQLite's LOWER only handles ASCII.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
