package feed

import "github.com/ashureev/sommelier/internal/domain"

// ScoredItem is a candidate with its relevance.
type ScoredItem struct {
	Item      domain.CatalogItem `json:"item"`
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"score_breakdown,omitempty"`
}

// selectDiverse greedily builds a page of at most pageSize items. Each pick is the
// candidate with the highest score after penalties for producers, countries and
// price tiers already on the page; the first candidate in input order wins ties.
func (c Config) selectDiverse(candidates []ScoredItem, pageSize, people int) []ScoredItem {
	if pageSize <= 0 || len(candidates) == 0 {
		return nil
	}

	scale := 1.0
	if people >= c.GroupSize {
		scale = c.GroupPenaltyScale
	}

	seen := make(map[string]bool, len(candidates))
	remaining := make([]ScoredItem, 0, len(candidates))
	for _, cand := range candidates {
		if seen[cand.Item.SKU] {
			continue
		}
		seen[cand.Item.SKU] = true
		remaining = append(remaining, cand)
	}

	producers := map[string]int{}
	countries := map[string]int{}
	tiers := map[int]int{}

	page := make([]ScoredItem, 0, min(pageSize, len(remaining)))
	for len(page) < pageSize && len(remaining) > 0 {
		best := 0
		bestScore := 0.0
		for i := range remaining {
			it := &remaining[i].Item
			penalty := float64(producers[it.Producer])*c.ProducerPenalty +
				float64(countries[it.Country])*c.CountryPenalty +
				float64(tiers[c.priceTier(it.Price)])*c.PriceTierPenalty
			adjusted := remaining[i].Score - penalty*scale
			if i == 0 || adjusted > bestScore {
				best, bestScore = i, adjusted
			}
		}

		picked := remaining[best]
		page = append(page, picked)
		remaining = append(remaining[:best], remaining[best+1:]...)

		producers[picked.Item.Producer]++
		countries[picked.Item.Country]++
		tiers[c.priceTier(picked.Item.Price)]++
	}
	return page
}
