package feed

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/shared"
	"github.com/ashureev/sommelier/internal/store"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_700_000_000, 0)

type fakeExporter struct {
	mu       sync.Mutex
	err      error
	exported []*CartSummary
}

func (f *fakeExporter) ExportCart(_ context.Context, summary *CartSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported = append(f.exported, summary)
	return f.err
}

func newTestRepo(t *testing.T) *store.SQLStore {
	t.Helper()
	repo, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "feed.db"),
		shared.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestEngine(t *testing.T, repo store.Repository, opts ...Option) *Engine {
	t.Helper()
	clock := testNow
	var mu sync.Mutex
	opts = append([]Option{WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})}, opts...)
	e, err := NewEngine(repo, DefaultConfig(), opts...)
	require.NoError(t, err)
	return e
}

// seedReds inserts n in-stock red wines priced from 1000 in steps of 100.
func seedReds(t *testing.T, repo *store.SQLStore, n int) {
	t.Helper()
	items := make([]domain.CatalogItem, n)
	for i := range items {
		items[i] = domain.CatalogItem{
			SKU:          fmt.Sprintf("red-%03d", i),
			Name:         fmt.Sprintf("Red %d", i),
			Price:        float64(1000 + 100*i),
			ABV:          f64(12.5),
			CategoryPath: "Вино/Красное вино",
			Country:      []string{"Италия", "Франция", "Испания"}[i%3],
			Producer:     fmt.Sprintf("Producer %d", i%7),
			RatingValue:  f64(3.5 + float64(i%4)*0.4),
			RatingCount:  i * 3,
			Availability: domain.AvailabilityInStock,
			Attributes:   domain.Attributes{Color: "Красное", Grape: []string{"Мерло", "Каберне"}[i%2]},
		}
	}
	require.NoError(t, repo.UpsertItems(context.Background(), items))
}

func startWithQuiz(t *testing.T, e *Engine, q domain.QuizAnswers) string {
	t.Helper()
	ctx := context.Background()
	session, err := e.StartSession(ctx, "")
	require.NoError(t, err)
	_, err = e.SaveQuiz(ctx, session.ID, q)
	require.NoError(t, err)
	return session.ID
}

func TestFeedNeverRepeatsSkus(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 23)
	e := newTestEngine(t, repo)
	ctx := context.Background()
	id := startWithQuiz(t, e, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	seen := map[string]bool{}
	for page := 0; page < 10; page++ {
		feed, err := e.GetFeed(ctx, id, 5, nil)
		require.NoError(t, err)
		require.LessOrEqual(t, len(feed.Items), 5)
		if len(feed.Items) == 0 {
			require.False(t, feed.CanStop, "empty cart cannot stop")
			break
		}
		for _, it := range feed.Items {
			require.False(t, seen[it.Item.SKU], "sku %s served twice", it.Item.SKU)
			seen[it.Item.SKU] = true
			require.GreaterOrEqual(t, it.Score, 0.0)
			require.LessOrEqual(t, it.Score, 1.0)
		}
		require.InDelta(t, 1800, feed.TargetTotal, 1e-9)
	}
	// Items priced at 3000 or more fall outside the medium budget.
	require.Len(t, seen, 20)
}

func TestFeedRequiresQuizAndSession(t *testing.T) {
	repo := newTestRepo(t)
	e := newTestEngine(t, repo, WithIDGenerator(func() string { return "session-1" }))
	ctx := context.Background()

	_, err := e.GetFeed(ctx, "missing", 5, nil)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	session, err := e.StartSession(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "session-1", session.ID)
	require.Equal(t, domain.SessionInProgress, session.Status)

	_, err = e.GetFeed(ctx, session.ID, 5, nil)
	require.ErrorIs(t, err, domain.ErrInvalidQuiz)

	_, err = e.GetFeed(ctx, session.ID, 5, map[string]float64{"price": -1})
	require.ErrorIs(t, err, domain.ErrInvalidWeights)

	_, err = e.SaveQuiz(ctx, session.ID, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 11))
	require.ErrorIs(t, err, domain.ErrInvalidQuiz)
}

func TestFeedBudgetTracksCart(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 10)
	e := newTestEngine(t, repo)
	ctx := context.Background()
	id := startWithQuiz(t, e, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	feed, err := e.GetFeed(ctx, id, 3, nil)
	require.NoError(t, err)
	require.InDelta(t, 1530, feed.PriceTarget, 1e-9)
	require.Equal(t, 6, feed.RemainingSlots)
	require.False(t, feed.CanStop)

	// red-009 costs 1900, which is over the 1800 target total.
	_, err = e.AddToCart(ctx, id, "red-009", 1)
	require.NoError(t, err)

	feed, err = e.GetFeed(ctx, id, 3, nil)
	require.NoError(t, err)
	require.InDelta(t, 1900, feed.CartTotal, 1e-9)
	require.Equal(t, 1, feed.DistinctItems)
	require.Equal(t, 5, feed.RemainingSlots)
	require.Equal(t, 300.0, feed.PriceTarget)
	require.True(t, feed.CanStop)
}

func TestAddToCartRejectsNegativeDelta(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 3)
	e := newTestEngine(t, repo)
	ctx := context.Background()
	id := startWithQuiz(t, e, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	summary, err := e.AddToCart(ctx, id, "red-001", 2)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Items[0].Quantity)

	_, err = e.AddToCart(ctx, id, "red-001", -1)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	summary, err = e.GetCartSummary(ctx, id)
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	require.Equal(t, 2, summary.Items[0].Quantity)
	require.InDelta(t, 2200, summary.CartTotal, 1e-9)

	_, err = e.AddToCart(ctx, id, "nope", 1)
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	summary, err = e.RemoveFromCart(ctx, id, "red-001")
	require.NoError(t, err)
	require.Empty(t, summary.Items)
	require.Equal(t, 0.0, summary.CartTotal)
}

func TestAddToCartRejectsOutOfStockItems(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 3)
	gone := domain.CatalogItem{
		SKU:          "gone",
		Name:         "Sold out",
		Price:        1200,
		CategoryPath: "Вино/Красное вино",
		Availability: domain.AvailabilityOutOfStock,
	}
	require.NoError(t, repo.UpsertItems(context.Background(), []domain.CatalogItem{gone}))
	e := newTestEngine(t, repo)
	ctx := context.Background()
	id := startWithQuiz(t, e, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	_, err := e.AddToCart(ctx, id, "gone", 1)
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	summary, err := e.GetCartSummary(ctx, id)
	require.NoError(t, err)
	require.Empty(t, summary.Items)
}

func TestRecordReactionIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 3)
	e := newTestEngine(t, repo)
	ctx := context.Background()
	id := startWithQuiz(t, e, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	require.NoError(t, e.RecordReaction(ctx, id, "red-001", "like"))
	var first *domain.ImpressionRecord
	require.NoError(t, repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		first, err = tx.GetImpression(ctx, id, "red-001")
		return err
	}))

	require.NoError(t, e.RecordReaction(ctx, id, "red-001", "like"))
	require.NoError(t, repo.WithTx(ctx, func(tx store.Tx) error {
		again, err := tx.GetImpression(ctx, id, "red-001")
		require.NoError(t, err)
		require.Equal(t, domain.ReactionLike, again.Reaction)
		require.True(t, again.CreatedAt.Equal(first.CreatedAt))
		require.True(t, again.ReactedAt.Equal(*first.ReactedAt))

		liked, err := tx.GetLiked(ctx, id)
		require.NoError(t, err)
		require.Len(t, liked, 1)
		return nil
	}))

	err := e.RecordReaction(ctx, id, "red-001", "love")
	require.ErrorIs(t, err, domain.ErrInvalidReaction)
}

func TestLikedItemsAreExcludedAndShapePreferences(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 12)
	e := newTestEngine(t, repo)
	ctx := context.Background()
	id := startWithQuiz(t, e, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	require.NoError(t, e.RecordReaction(ctx, id, "red-000", "like"))

	feed, err := e.GetFeed(ctx, id, 20, nil)
	require.NoError(t, err)
	require.Len(t, feed.Items, 11)
	for _, it := range feed.Items {
		require.NotEqual(t, "red-000", it.Item.SKU)
		require.Contains(t, it.Breakdown, WeightBehavior)
	}
}

func TestRecordEventsIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 5)
	e := newTestEngine(t, repo)
	ctx := context.Background()
	id := startWithQuiz(t, e, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	_, err := e.RecordEvents(ctx, id, []Event{{SKU: "red-000", Action: "like"}, {SKU: "red-001", Action: "meh"}})
	require.ErrorIs(t, err, domain.ErrInvalidReaction)

	_, err = e.RecordEvents(ctx, id, []Event{{SKU: "red-000", Action: "like"}, {SKU: "ghost", Action: "none"}})
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	n, err := e.RecordEvents(ctx, id, []Event{
		{SKU: "red-000", Action: "none"},
		{SKU: "red-001", Action: "dislike"},
		{SKU: "red-002", Action: "like"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	feed, err := e.GetFeed(ctx, id, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"red-003", "red-004"}, sortedSkus(feed.Items))

	require.NoError(t, repo.WithTx(ctx, func(tx store.Tx) error {
		liked, err := tx.GetLiked(ctx, id)
		require.NoError(t, err)
		require.Len(t, liked, 1)
		require.Equal(t, "red-002", liked[0].SKU)
		return nil
	}))
}

func sortedSkus(items []ScoredItem) []string {
	skus := skusOf(items)
	slices.Sort(skus)
	return skus
}

func TestCompletedSessionRejectsMutations(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 5)
	exporter := &fakeExporter{}
	e := newTestEngine(t, repo, WithExporter(exporter))
	ctx := context.Background()
	q := quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2)
	id := startWithQuiz(t, e, q)

	_, err := e.AddToCart(ctx, id, "red-002", 3)
	require.NoError(t, err)

	summary, err := e.StopSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.SessionCompleted, summary.Status)
	require.Equal(t, 1, summary.CartItemsCount)

	again, err := e.StopSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, summary.CartTotal, again.CartTotal)
	require.Len(t, exporter.exported, 1, "export runs once per completion")

	_, err = e.GetFeed(ctx, id, 5, nil)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.ErrorIs(t, e.RecordReaction(ctx, id, "red-001", "like"), domain.ErrInvalidState)
	_, err = e.AddToCart(ctx, id, "red-001", 1)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = e.RemoveFromCart(ctx, id, "red-002")
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = e.SaveQuiz(ctx, id, q)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	cart, err := e.GetCartSummary(ctx, id)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	_, err = e.StopSession(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestExportFailureDoesNotFailCompletion(t *testing.T) {
	repo := newTestRepo(t)
	e := newTestEngine(t, repo, WithExporter(&fakeExporter{err: errors.New("bucket missing")}))
	ctx := context.Background()

	session, err := e.StartSession(ctx, "")
	require.NoError(t, err)
	summary, err := e.StopSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionCompleted, summary.Status)
}

// faultyRepo fails TouchSession, which every feed call runs after logging impressions.
type faultyRepo struct {
	store.Repository
}

func (f *faultyRepo) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Repository.WithTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx})
	})
}

type faultyTx struct {
	store.Tx
}

func (t *faultyTx) TouchSession(context.Context, string, time.Time) error {
	return errors.New("disk I/O error")
}

func TestFeedFailureRollsBackImpressions(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 6)
	ctx := context.Background()

	healthy := newTestEngine(t, repo)
	id := startWithQuiz(t, healthy, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	broken := newTestEngine(t, &faultyRepo{Repository: repo})
	_, err := broken.GetFeed(ctx, id, 3, nil)
	require.ErrorIs(t, err, domain.ErrStoreFailure)

	feed, err := healthy.GetFeed(ctx, id, 10, nil)
	require.NoError(t, err)
	require.Len(t, feed.Items, 6, "no impression survives a failed feed call")
}

func TestSimilarAndTrending(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 10)
	require.NoError(t, repo.UpsertItems(context.Background(), []domain.CatalogItem{{
		SKU:          "beer-1",
		Name:         "Lager",
		Price:        150,
		CategoryPath: "Пиво/Лагер",
		Country:      "Германия",
		Producer:     "Brewery",
		RatingValue:  f64(4.9),
		RatingCount:  5000,
		Availability: domain.AvailabilityInStock,
	}}))
	e := newTestEngine(t, repo)
	ctx := context.Background()

	similar, err := e.Similar(ctx, "red-000", 3)
	require.NoError(t, err)
	require.Len(t, similar, 3)
	for i, s := range similar {
		require.NotEqual(t, "red-000", s.Item.SKU)
		require.NotEqual(t, "beer-1", s.Item.SKU)
		if i > 0 {
			require.LessOrEqual(t, s.Similarity, similar[i-1].Similarity)
		}
	}
	// red-006 shares grape, colour and country with red-000.
	require.Equal(t, "red-006", similar[0].Item.SKU)

	_, err = e.Similar(ctx, "ghost", 3)
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	trending, err := e.Trending(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, trending, 3)
	require.Equal(t, "beer-1", trending[0].Item.SKU)

	reds, err := e.Trending(ctx, domain.DrinkWineRed, 50)
	require.NoError(t, err)
	// red-000 has no reviews and is not trending.
	require.Len(t, reds, 9)
	for i := 1; i < len(reds); i++ {
		require.LessOrEqual(t, reds[i].Score, reds[i-1].Score)
	}
}

func TestSimilarRanksBySimilarityBeforeRating(t *testing.T) {
	repo := newTestRepo(t)
	source := domain.CatalogItem{
		SKU:          "src",
		Name:         "Source",
		Price:        1000,
		CategoryPath: "Вино/Красное вино",
		Country:      "Италия",
		Producer:     "Antinori",
		RatingValue:  f64(4),
		RatingCount:  10,
		Availability: domain.AvailabilityInStock,
		Attributes:   domain.Attributes{Color: "Красное", Grape: "Санджовезе", Sugar: "Сухое"},
	}
	twin := source
	twin.SKU, twin.Name, twin.Price, twin.RatingValue = "twin", "Twin", 1600, f64(3)

	items := []domain.CatalogItem{source, twin}
	// More well rated items than any fixed prefetch, sharing only the country.
	for i := 0; i < 60; i++ {
		items = append(items, domain.CatalogItem{
			SKU:          fmt.Sprintf("country-%02d", i),
			Name:         fmt.Sprintf("Country %d", i),
			Price:        5000,
			CategoryPath: "Вино/Белое вино",
			Country:      "Италия",
			Producer:     fmt.Sprintf("Other %d", i),
			RatingValue:  f64(5),
			RatingCount:  100,
			Availability: domain.AvailabilityInStock,
			Attributes:   domain.Attributes{Color: "Белое", Grape: "Шардоне"},
		})
	}
	require.NoError(t, repo.UpsertItems(context.Background(), items))
	e := newTestEngine(t, repo)

	similar, err := e.Similar(context.Background(), "src", 6)
	require.NoError(t, err)
	require.Len(t, similar, 6)
	require.Equal(t, "twin", similar[0].Item.SKU)
	// grape 3 + colour 2 + sugar 1 + country 2 + producer 1
	require.Equal(t, 9, similar[0].Similarity)
	for _, s := range similar[1:] {
		require.Equal(t, 2, s.Similarity)
	}
}

func TestTrendingScoresEveryRatedItem(t *testing.T) {
	repo := newTestRepo(t)
	item := func(sku string, rating float64, count int) domain.CatalogItem {
		return domain.CatalogItem{
			SKU:          sku,
			Name:         sku,
			Price:        900,
			CategoryPath: "Вино/Красное вино",
			RatingValue:  f64(rating),
			RatingCount:  count,
			Availability: domain.AvailabilityInStock,
		}
	}
	var items []domain.CatalogItem
	for i := 0; i < 100; i++ {
		items = append(items,
			item(fmt.Sprintf("acclaimed-%03d", i), 5, 1),
			item(fmt.Sprintf("popular-%03d", i), 1, 2000))
	}
	// Neither the best rated nor the most reviewed, but the best by score.
	items = append(items, item("best", 4.5, 1000))
	require.NoError(t, repo.UpsertItems(context.Background(), items))
	e := newTestEngine(t, repo)

	trending, err := e.Trending(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, trending, 10)
	require.Equal(t, "best", trending[0].Item.SKU)
	require.InDelta(t, 31.13, trending[0].Score, 0.01)
	for i, it := range trending[1:] {
		// 5 × ln(11) beats 1 × ln(2010); equal scores keep sku order.
		require.Equal(t, fmt.Sprintf("acclaimed-%03d", i), it.Item.SKU)
		require.LessOrEqual(t, it.Score, trending[i].Score)
	}
}

func TestReadOnlyOperationsRunBesideAWriter(t *testing.T) {
	repo := newTestRepo(t)
	seedReds(t, repo, 10)
	e := newTestEngine(t, repo)
	ctx := context.Background()
	id := startWithQuiz(t, e, quiz(domain.DrinkWineRed, domain.StyleModerate, domain.BudgetMedium, 2))

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	var once sync.Once
	go func() {
		done <- repo.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.TouchSession(ctx, id, testNow); err != nil {
				return err
			}
			once.Do(func() { close(locked) })
			<-release
			return nil
		})
	}()
	<-locked

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, cartErr := e.GetCartSummary(readCtx, id)
	_, similarErr := e.Similar(readCtx, "red-000", 3)
	_, trendingErr := e.Trending(readCtx, domain.DrinkWineRed, 3)
	close(release)

	require.NoError(t, cartErr)
	require.NoError(t, similarErr)
	require.NoError(t, trendingErr)
	require.NoError(t, <-done)
}
