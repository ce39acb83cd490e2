package feed

import (
	"math"

	"github.com/ashureev/sommelier/internal/domain"
)

// BudgetState tracks cart spend against the quiz budget. Derived per request.
type BudgetState struct {
	TargetTotal   float64 `json:"budget_target_total"`
	CartTotal     float64 `json:"cart_total"`
	DistinctItems int     `json:"cart_items_count"`
	PriceTarget   float64 `json:"price_target"`
	Progress      float64 `json:"budget_progress"`

	// RemainingSlots is how many more distinct items the target cart holds.
	RemainingSlots int `json:"remaining_slots"`
}

// budgetState computes the per-item price target for the next page. The target
// is always positive: an empty cart aims at a share of the total, a non-empty one
// spreads the remainder over the missing items but never drops below MinPriceTarget.
func (c Config) budgetState(p Profile, totals domain.CartTotals) BudgetState {
	target := p.Midpoint() * c.BudgetTargetRatio
	s := BudgetState{
		TargetTotal:    target,
		CartTotal:      totals.Total,
		DistinctItems:  totals.DistinctItems,
		RemainingSlots: max(0, c.TargetItems-totals.DistinctItems),
	}

	if totals.DistinctItems == 0 {
		s.PriceTarget = target * c.EmptyCartRatio
	} else {
		missing := max(1, c.TargetItems-totals.DistinctItems)
		s.PriceTarget = math.Max(c.MinPriceTarget, (target-totals.Total)/float64(missing))
	}
	if s.PriceTarget <= 0 {
		s.PriceTarget = c.MinPriceTarget
	}

	if target > 0 {
		s.Progress = totals.Total / target
	}
	return s
}

// canStop reports whether the user has gathered enough to finish the session.
func (c Config) canStop(s BudgetState, pageEmpty bool) bool {
	if s.DistinctItems == 0 {
		return false
	}
	return s.Progress >= c.StopProgress || s.DistinctItems >= c.TargetItems || pageEmpty
}
