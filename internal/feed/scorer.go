package feed

import (
	"math"
	"strings"

	"github.com/ashureev/sommelier/internal/domain"
)

// scorer computes the relevance of candidates for one feed call.
type scorer struct {
	profile Profile
	budget  BudgetState
	prefs   PreferenceProfile
	weights Weights
}

// Score returns the weighted relevance in [0,1] and the sub-scores that were
// applied. Sub-scores whose inputs are unknown are left out of both the sum
// and the weight normalization.
func (s *scorer) Score(item *domain.CatalogItem) (float64, map[string]float64) {
	breakdown := make(map[string]float64, 6)
	var sum, weightSum float64
	apply := func(key string, weight, value float64) {
		breakdown[key] = value
		sum += weight * value
		weightSum += weight
	}

	apply(WeightPrice, s.weights.Price, s.priceFit(item.Price))
	if item.ABV != nil {
		apply(WeightABV, s.weights.ABV, abvFit(*item.ABV, s.profile.ABVRange.Min, s.profile.ABVRange.Max))
	}
	apply(WeightCategory, s.weights.Category, s.categoryFit(item))
	if v, ok := ratingFit(item); ok {
		apply(WeightRating, s.weights.Rating, v)
	}
	apply(WeightPopularity, s.weights.Popularity, popularity(item.RatingCount))
	if !s.prefs.Empty() {
		apply(WeightBehavior, s.weights.Behavior, behaviorFit(item, s.prefs))
	}

	if weightSum <= 0 {
		return 0, breakdown
	}
	return clamp01(sum / weightSum), breakdown
}

func (s *scorer) priceFit(price float64) float64 {
	target := s.budget.PriceTarget
	denom := math.Max(math.Max(target*0.5, s.profile.Window()), 1)
	return 1 - math.Min(1, math.Abs(price-target)/denom)
}

func abvFit(abv, lo, hi float64) float64 {
	var distance float64
	switch {
	case abv < lo:
		distance = lo - abv
	case abv > hi:
		distance = abv - hi
	default:
		return 1
	}
	return math.Max(0, 1-distance/7)
}

func (s *scorer) categoryFit(item *domain.CatalogItem) float64 {
	d := s.profile.Quiz.DrinkType
	category := strings.ToLower(item.CategoryPath)
	switch {
	case d.IsWine():
		color := strings.ToLower(strings.TrimSpace(item.Attributes.Color))
		for _, c := range s.profile.Colors {
			if color == c {
				return 1
			}
		}
		if containsAny(category, s.profile.CategoryTokens) {
			return 0.5
		}
		return 0
	case len(s.profile.CategoryTokens) > 0:
		if containsAny(category, s.profile.CategoryTokens) {
			return 1
		}
		return 0
	default:
		return 0.5
	}
}

// ratingFit is not applied when the item has reviews but no rating value.
func ratingFit(item *domain.CatalogItem) (float64, bool) {
	if item.RatingCount <= 0 {
		return 0.4, true
	}
	if item.RatingValue == nil {
		return 0, false
	}
	bonus := math.Min(0.2, float64(item.RatingCount)/50*0.2)
	return math.Min(1, *item.RatingValue/5+bonus), true
}

func popularity(count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(1, math.Log(float64(count)+1)/math.Log(100))
}

func behaviorFit(item *domain.CatalogItem, p PreferenceProfile) float64 {
	var score float64
	if p.Country != "" && item.Country == p.Country {
		score += 0.3
	}
	if p.Producer != "" && item.Producer == p.Producer {
		score += 0.2
	}
	if p.Color != "" && strings.ToLower(strings.TrimSpace(item.Attributes.Color)) == p.Color {
		score += 0.15
	}
	if p.Grape != "" && item.Attributes.Grape == p.Grape {
		score += 0.1
	}
	if p.Sugar != "" && item.Attributes.Sugar == p.Sugar {
		score += 0.05
	}
	if p.MedianPrice != nil && item.Priced() {
		m := *p.MedianPrice
		score += 0.2 * math.Max(0, 1-math.Abs(item.Price-m)/math.Max(m*0.5, 300))
	}
	if p.MedianABV != nil && item.ABV != nil {
		score += 0.1 * math.Max(0, 1-math.Abs(*item.ABV-*p.MedianABV)/5)
	}
	return math.Min(1, score)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
