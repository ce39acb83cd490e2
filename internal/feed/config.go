// Package feed implements the session-scoped recommendation feed: quiz profiling,
// candidate retrieval, relevance scoring, diversity-aware selection and budget tracking.
package feed

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/store"
)

// Weight keys accepted by Weights.Merge.
const (
	WeightPrice      = "price"
	WeightABV        = "abv"
	WeightCategory   = "category"
	WeightRating     = "rating"
	WeightPopularity = "popularity"
	WeightBehavior   = "behavior"
)

// Weights are the relative importances of the relevance sub-scores.
type Weights struct {
	Price      float64 `json:"price"`
	ABV        float64 `json:"abv"`
	Category   float64 `json:"category"`
	Rating     float64 `json:"rating"`
	Popularity float64 `json:"popularity"`
	Behavior   float64 `json:"behavior"`
}

// Merge returns a copy of w with overrides applied. Unknown keys and negative or
// non-finite values are rejected with ErrInvalidWeights.
func (w Weights) Merge(overrides map[string]float64) (Weights, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := w
	for _, k := range keys {
		v := overrides[k]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, fmt.Errorf("%w: %s=%v", domain.ErrInvalidWeights, k, v)
		}
		switch strings.ToLower(k) {
		case WeightPrice:
			out.Price = v
		case WeightABV:
			out.ABV = v
		case WeightCategory:
			out.Category = v
		case WeightRating:
			out.Rating = v
		case WeightPopularity:
			out.Popularity = v
		case WeightBehavior:
			out.Behavior = v
		default:
			return Weights{}, fmt.Errorf("%w: unknown key %q", domain.ErrInvalidWeights, k)
		}
	}
	return out, nil
}

// BudgetRanges maps each budget bucket to a price interval.
type BudgetRanges struct {
	Low     store.Range
	Medium  store.Range
	High    store.Range
	Premium store.Range
}

// ABVBands are the ABV intervals of one drink family per style.
type ABVBands struct {
	Light    store.Range
	Moderate store.Range
	Intense  store.Range
}

// Config holds the heuristic constants of the engine. NewEngine copies it, so a
// Config value is never shared mutably between engines.
type Config struct {
	Budgets BudgetRanges
	// ReferenceCeiling stands in for an unbounded upper price when a finite
	// midpoint or window is needed.
	ReferenceCeiling float64

	SpiritsABV ABVBands
	DefaultABV ABVBands

	Weights Weights

	BudgetTargetRatio float64
	EmptyCartRatio    float64
	MinPriceTarget    float64
	TargetItems       int
	StopProgress      float64

	ProducerPenalty    float64
	CountryPenalty     float64
	PriceTierPenalty   float64
	PriceTiers         []float64
	GroupSize          int
	GroupPenaltyScale  float64
	FetchMultiplier    int
	GroupFetchMultiple int

	DefaultPageSize int
	MaxPageSize     int

	SimilarLimit  int
	TrendingLimit int
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	inf := math.Inf(1)
	return Config{
		Budgets: BudgetRanges{
			Low:     store.Range{Min: 0, Max: 1000},
			Medium:  store.Range{Min: 1000, Max: 3000},
			High:    store.Range{Min: 3000, Max: 7000},
			Premium: store.Range{Min: 7000, Max: inf},
		},
		ReferenceCeiling: 100000,

		SpiritsABV: ABVBands{
			Light:    store.Range{Min: 30, Max: 40},
			Moderate: store.Range{Min: 35, Max: 45},
			Intense:  store.Range{Min: 40, Max: 70},
		},
		DefaultABV: ABVBands{
			Light:    store.Range{Min: 0, Max: 12},
			Moderate: store.Range{Min: 11, Max: 14},
			Intense:  store.Range{Min: 13, Max: 20},
		},

		Weights: Weights{
			Price:      0.25,
			ABV:        0.2,
			Category:   0.2,
			Rating:     0.2,
			Popularity: 0.05,
			Behavior:   0.1,
		},

		BudgetTargetRatio: 0.9,
		EmptyCartRatio:    0.85,
		MinPriceTarget:    300,
		TargetItems:       6,
		StopProgress:      0.8,

		ProducerPenalty:    0.15,
		CountryPenalty:     0.10,
		PriceTierPenalty:   0.05,
		PriceTiers:         []float64{500, 1500, 3000},
		GroupSize:          4,
		GroupPenaltyScale:  1.2,
		FetchMultiplier:    8,
		GroupFetchMultiple: 10,

		DefaultPageSize: 10,
		MaxPageSize:     50,

		SimilarLimit:  6,
		TrendingLimit: 10,
	}
}

func (c Config) clone() Config {
	c.PriceTiers = slices.Clone(c.PriceTiers)
	return c
}

// Validate checks that the constants can drive the engine.
func (c Config) Validate() error {
	if c.ReferenceCeiling <= 0 {
		return fmt.Errorf("reference ceiling must be positive")
	}
	if c.TargetItems < 1 {
		return fmt.Errorf("target items must be at least 1")
	}
	if c.MinPriceTarget <= 0 {
		return fmt.Errorf("minimum price target must be positive")
	}
	if c.FetchMultiplier < 1 || c.GroupFetchMultiple < 1 {
		return fmt.Errorf("fetch multipliers must be at least 1")
	}
	if c.DefaultPageSize < 1 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.DefaultPageSize, c.MaxPageSize)
	}
	if !slices.IsSorted(c.PriceTiers) {
		return fmt.Errorf("price tiers must be ascending")
	}
	if _, err := (Weights{}).Merge(map[string]float64{
		WeightPrice: c.Weights.Price, WeightABV: c.Weights.ABV, WeightCategory: c.Weights.Category,
		WeightRating: c.Weights.Rating, WeightPopularity: c.Weights.Popularity, WeightBehavior: c.Weights.Behavior,
	}); err != nil {
		return err
	}
	return nil
}

// fetchSize is the number of candidates retrieved for one page.
func (c Config) fetchSize(pageSize, people int) int {
	if people >= c.GroupSize {
		return pageSize * c.GroupFetchMultiple
	}
	return pageSize * c.FetchMultiplier
}

// priceTier returns the index of the first tier boundary above price.
func (c Config) priceTier(price float64) int {
	for i, bound := range c.PriceTiers {
		if price < bound {
			return i
		}
	}
	return len(c.PriceTiers)
}
