package feed

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/store"
)

// SimilarItem is a catalog item related to a source item.
type SimilarItem struct {
	Item       domain.CatalogItem `json:"item"`
	Similarity int                `json:"similarity"`
}

// TrendingItem is a catalog item ranked by rating and review volume.
type TrendingItem struct {
	Item  domain.CatalogItem `json:"item"`
	Score float64            `json:"trending_score"`
}

// Similar returns in-stock items sharing attributes with sku, most similar first.
func (e *Engine) Similar(ctx context.Context, sku string, limit int) ([]SimilarItem, error) {
	limit = e.listLimit(limit, e.cfg.SimilarLimit)

	var related []domain.CatalogItem
	var source *domain.CatalogItem
	err := e.inReadTx(ctx, "similar_items", func(tx store.Tx) error {
		var err error
		source, err = tx.GetItem(ctx, sku)
		if err != nil {
			return err
		}
		if source == nil {
			return fmt.Errorf("%w: %s", domain.ErrItemNotFound, sku)
		}
		related, err = tx.FindRelated(ctx, source, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]SimilarItem, len(related))
	for i := range related {
		out[i] = SimilarItem{Item: related[i], Similarity: similarity(source, &related[i])}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		ra, rb := ratingOrZero(&a.Item), ratingOrZero(&b.Item)
		if ra != rb {
			return ra > rb
		}
		return math.Abs(a.Item.Price-source.Price) < math.Abs(b.Item.Price-source.Price)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func similarity(src, it *domain.CatalogItem) int {
	score := 0
	if src.Attributes.Grape != "" && it.Attributes.Grape == src.Attributes.Grape {
		score += 3
	}
	if c := strings.ToLower(strings.TrimSpace(src.Attributes.Color)); c != "" &&
		strings.ToLower(strings.TrimSpace(it.Attributes.Color)) == c {
		score += 2
	}
	if src.Attributes.Sugar != "" && it.Attributes.Sugar == src.Attributes.Sugar {
		score++
	}
	if src.Country != "" && it.Country == src.Country {
		score += 2
	}
	if src.Producer != "" && it.Producer == src.Producer {
		score++
	}
	if math.Abs(it.Price-src.Price) < 500 {
		score++
	}
	return score
}

// Trending returns rated in-stock items ranked by rating × ln(count + 10). An
// empty or mixed drink type applies no category filter. Every matching item is
// scored; only the best limit are kept in memory.
func (e *Engine) Trending(ctx context.Context, drinkType domain.DrinkType, limit int) ([]TrendingItem, error) {
	limit = e.listLimit(limit, e.cfg.TrendingLimit)

	filter := store.CandidateFilter{
		RequireRated:   true,
		Colors:         wineColors(drinkType),
		CategoryTokens: categoryTokens(drinkType),
	}

	var top trendingHeap
	err := e.inReadTx(ctx, "trending_items", func(tx store.Tx) error {
		top = top[:0]
		return tx.EachCandidate(ctx, filter, func(item *domain.CatalogItem) error {
			top.offer(TrendingItem{Item: *item, Score: trendingScore(item)}, limit)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]TrendingItem, top.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&top).(TrendingItem)
	}
	return out, nil
}

// trendingHeap is a min-heap whose root is the weakest kept item.
type trendingHeap []TrendingItem

func (h trendingHeap) Len() int           { return len(h) }
func (h trendingHeap) Less(i, j int) bool { return trendingBefore(h[j], h[i]) }
func (h trendingHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *trendingHeap) Push(x any)        { *h = append(*h, x.(TrendingItem)) }

func (h *trendingHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// offer keeps it when fewer than limit items are held or it beats the weakest.
func (h *trendingHeap) offer(it TrendingItem, limit int) {
	if h.Len() < limit {
		heap.Push(h, it)
		return
	}
	if trendingBefore(it, (*h)[0]) {
		(*h)[0] = it
		heap.Fix(h, 0)
	}
}

// trendingBefore orders by score descending, then sku.
func trendingBefore(a, b TrendingItem) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Item.SKU < b.Item.SKU
}

func trendingScore(it *domain.CatalogItem) float64 {
	rating := 3.0
	if it.RatingValue != nil {
		rating = *it.RatingValue
	}
	return rating * math.Log(float64(it.RatingCount)+10)
}

func ratingOrZero(it *domain.CatalogItem) float64 {
	if it.RatingValue == nil {
		return 0
	}
	return *it.RatingValue
}

func (e *Engine) listLimit(n, def int) int {
	if n <= 0 {
		return def
	}
	return min(n, e.cfg.MaxPageSize)
}
