package feed

import (
	"fmt"
	"testing"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/stretchr/testify/require"
)

func scoredItem(sku, producer, country string, price, score float64) ScoredItem {
	return ScoredItem{
		Item:  domain.CatalogItem{SKU: sku, Producer: producer, Country: country, Price: price},
		Score: score,
	}
}

func skusOf(items []ScoredItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Item.SKU
	}
	return out
}

func TestSelectDiverseBounds(t *testing.T) {
	cfg := DefaultConfig()
	var candidates []ScoredItem
	for i := 0; i < 20; i++ {
		candidates = append(candidates, scoredItem(fmt.Sprintf("sku-%02d", i), "P", "C", 1000, 0.5))
	}
	// Duplicate skus must never be returned twice.
	candidates = append(candidates, candidates[0], candidates[1])

	page := cfg.selectDiverse(candidates, 5, 2)
	require.Len(t, page, 5)

	all := cfg.selectDiverse(candidates, 100, 2)
	require.Len(t, all, 20)
	seen := map[string]bool{}
	for _, it := range all {
		require.False(t, seen[it.Item.SKU], "duplicate %s", it.Item.SKU)
		seen[it.Item.SKU] = true
	}

	require.Empty(t, cfg.selectDiverse(candidates, 0, 2))
	require.Empty(t, cfg.selectDiverse(nil, 5, 2))
}

func TestSelectDiversePenalizesRepeats(t *testing.T) {
	cfg := DefaultConfig()
	candidates := []ScoredItem{
		scoredItem("a1", "A", "Италия", 1000, 0.90),
		scoredItem("a2", "A", "Италия", 1000, 0.85),
		scoredItem("b1", "B", "Франция", 2000, 0.80),
	}

	page := cfg.selectDiverse(candidates, 2, 2)
	// a2 drops to 0.85 - (0.15 + 0.10 + 0.05) = 0.55 after a1 is picked.
	require.Equal(t, []string{"a1", "b1"}, skusOf(page))
}

func TestSelectDiverseGroupScale(t *testing.T) {
	cfg := DefaultConfig()
	candidates := []ScoredItem{
		scoredItem("a1", "A", "", 100, 0.90),
		scoredItem("a2", "A", "", 5000, 0.70),
		scoredItem("b1", "B", "", 5000, 0.53),
	}

	// Small group: a2 = 0.70 - 0.25 = 0.45 beats b1 = 0.53 - 0.10 = 0.43.
	require.Equal(t, []string{"a1", "a2"}, skusOf(cfg.selectDiverse(candidates, 2, 2)))
	// Group of four: a2 = 0.70 - 0.30 = 0.40 loses to b1 = 0.53 - 0.12 = 0.41.
	require.Equal(t, []string{"a1", "b1"}, skusOf(cfg.selectDiverse(candidates, 2, 4)))
}

func TestSelectDiverseCountsMissingProducerAndCountry(t *testing.T) {
	cfg := DefaultConfig()
	candidates := []ScoredItem{
		scoredItem("u1", "", "", 100, 0.90),
		scoredItem("u2", "", "", 5000, 0.80),
		scoredItem("b1", "B", "Франция", 5000, 0.60),
	}

	// Unknown producer and country repeat like any other value:
	// u2 = 0.80 - (0.15 + 0.10) = 0.55 loses to b1 = 0.60.
	require.Equal(t, []string{"u1", "b1"}, skusOf(cfg.selectDiverse(candidates, 2, 2)))
}

func TestSelectDiverseTiesKeepInputOrder(t *testing.T) {
	cfg := DefaultConfig()
	candidates := []ScoredItem{
		scoredItem("x", "", "", 1000, 0.5),
		scoredItem("y", "", "", 2000, 0.5),
		scoredItem("z", "", "", 4000, 0.5),
	}
	first := cfg.selectDiverse(candidates, 3, 2)
	require.Equal(t, []string{"x", "y", "z"}, skusOf(first))

	for i := 0; i < 10; i++ {
		require.Equal(t, skusOf(first), skusOf(cfg.selectDiverse(candidates, 3, 2)))
	}
}

func TestPriceTier(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 0, cfg.priceTier(499))
	require.Equal(t, 1, cfg.priceTier(500))
	require.Equal(t, 2, cfg.priceTier(1500))
	require.Equal(t, 3, cfg.priceTier(3000))
	require.Equal(t, 3, cfg.priceTier(90000))
}

func TestFetchSize(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 80, cfg.fetchSize(10, 3))
	require.Equal(t, 100, cfg.fetchSize(10, 4))
}
