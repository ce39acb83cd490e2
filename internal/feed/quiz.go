package feed

import (
	"math"
	"strings"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/store"
)

// Profile is the retrieval and scoring context derived from quiz answers.
// It is rebuilt on every call and never stored.
type Profile struct {
	Quiz           domain.QuizAnswers
	PriceRange     store.Range
	ABVRange       store.Range
	CategoryTokens []string
	Colors         []string
	referenceMax   float64
}

// NewProfile derives the profile of quiz answers. Unknown values fall back to
// an unbounded budget, the moderate ABV band and the mixed drink type.
func (c Config) NewProfile(q domain.QuizAnswers) Profile {
	p := Profile{
		Quiz:           q,
		PriceRange:     c.budgetRange(q.Budget),
		ABVRange:       c.abvRange(q.DrinkType, q.Style),
		CategoryTokens: categoryTokens(q.DrinkType),
		Colors:         wineColors(q.DrinkType),
	}
	p.referenceMax = p.PriceRange.Max
	if p.PriceRange.Unbounded() {
		p.referenceMax = math.Max(c.ReferenceCeiling, p.PriceRange.Min)
	}
	return p
}

// Midpoint is the centre of the budget range, using the reference ceiling for
// an open upper bound.
func (p Profile) Midpoint() float64 {
	return (p.PriceRange.Min + p.referenceMax) / 2
}

// Window is half the width of the budget range.
func (p Profile) Window() float64 {
	return (p.referenceMax - p.PriceRange.Min) / 2
}

// Filter builds the candidate filter for a session.
func (p Profile) Filter(sessionID string) store.CandidateFilter {
	abv := p.ABVRange
	return store.CandidateFilter{
		ExcludeSessionID: sessionID,
		MinPrice:         p.PriceRange.Min,
		MaxPrice:         p.PriceRange.Max,
		ABVRange:         &abv,
		Colors:           p.Colors,
		CategoryTokens:   p.CategoryTokens,
	}
}

func (c Config) budgetRange(b domain.Budget) store.Range {
	switch b {
	case domain.BudgetLow:
		return c.Budgets.Low
	case domain.BudgetMedium:
		return c.Budgets.Medium
	case domain.BudgetHigh:
		return c.Budgets.High
	case domain.BudgetPremium:
		return c.Budgets.Premium
	default:
		return store.Range{Min: 0, Max: math.Inf(1)}
	}
}

func (c Config) abvRange(d domain.DrinkType, s domain.Style) store.Range {
	bands := c.DefaultABV
	if d == domain.DrinkSpirits {
		bands = c.SpiritsABV
	}
	switch s {
	case domain.StyleLight:
		return bands.Light
	case domain.StyleIntense:
		return bands.Intense
	default:
		return bands.Moderate
	}
}

// categoryTokens are lowercase substrings matched against the category path.
func categoryTokens(d domain.DrinkType) []string {
	switch d {
	case domain.DrinkWineRed:
		return []string{"красное", "red"}
	case domain.DrinkWineWhite:
		return []string{"белое", "white"}
	case domain.DrinkWineRose:
		return []string{"розовое", "rose", "розе"}
	case domain.DrinkSparkling:
		return []string{"игрист", "шампан", "sparkling", "champagne"}
	case domain.DrinkSpirits:
		return []string{"крепк", "виски", "коньяк", "водка", "джин", "ром",
			"whisky", "cognac", "vodka", "gin", "rum"}
	case domain.DrinkBeer:
		return []string{"пиво", "beer"}
	default:
		return nil
	}
}

// wineColors are lowercase values of the colour attribute.
func wineColors(d domain.DrinkType) []string {
	switch d {
	case domain.DrinkWineRed:
		return []string{"красное"}
	case domain.DrinkWineWhite:
		return []string{"белое", "белый"}
	case domain.DrinkWineRose:
		return []string{"розовое"}
	default:
		return nil
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
