package feed

import (
	"sort"
	"strings"

	"github.com/ashureev/sommelier/internal/domain"
)

// PreferenceProfile summarizes the items a session liked. The zero value means
// nothing has been learned yet.
type PreferenceProfile struct {
	Country     string   `json:"country,omitempty"`
	Producer    string   `json:"producer,omitempty"`
	Color       string   `json:"color,omitempty"`
	Grape       string   `json:"grape,omitempty"`
	Sugar       string   `json:"sugar,omitempty"`
	MedianPrice *float64 `json:"median_price,omitempty"`
	MedianABV   *float64 `json:"median_abv,omitempty"`
	Samples     int      `json:"samples"`
}

// Empty reports whether no liked items contributed to the profile.
func (p PreferenceProfile) Empty() bool {
	return p.Samples == 0
}

// LearnPreferences derives the most frequent attribute values and the median
// price and ABV of liked items. Ties go to the lexicographically smallest value.
func LearnPreferences(liked []domain.CatalogItem) PreferenceProfile {
	if len(liked) == 0 {
		return PreferenceProfile{}
	}

	var countries, producers, colors, grapes, sugars []string
	var prices, abvs []float64
	for i := range liked {
		it := &liked[i]
		countries = append(countries, it.Country)
		producers = append(producers, it.Producer)
		colors = append(colors, strings.ToLower(strings.TrimSpace(it.Attributes.Color)))
		grapes = append(grapes, it.Attributes.Grape)
		sugars = append(sugars, it.Attributes.Sugar)
		if it.Priced() {
			prices = append(prices, it.Price)
		}
		if it.ABV != nil {
			abvs = append(abvs, *it.ABV)
		}
	}

	return PreferenceProfile{
		Country:     mode(countries),
		Producer:    mode(producers),
		Color:       mode(colors),
		Grape:       mode(grapes),
		Sugar:       mode(sugars),
		MedianPrice: median(prices),
		MedianABV:   median(abvs),
		Samples:     len(liked),
	}
}

// mode returns the most frequent non-empty value.
func mode(values []string) string {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}
	best, bestCount := "", 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}

func median(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	m := sorted[mid]
	if len(sorted)%2 == 0 {
		m = (sorted[mid-1] + sorted[mid]) / 2
	}
	return &m
}
