package domain

import (
	"fmt"
	"time"
)

// Reaction is a user's explicit feedback on a shown item.
type Reaction string

const (
	ReactionNone    Reaction = ""
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// ParseReaction accepts only "like" and "dislike".
func ParseReaction(s string) (Reaction, error) {
	switch Reaction(s) {
	case ReactionLike, ReactionDislike:
		return Reaction(s), nil
	default:
		return ReactionNone, fmt.Errorf("%w: %q", ErrInvalidReaction, s)
	}
}

// ParseEventAction is ParseReaction extended with "none", which records an impression only.
func ParseEventAction(s string) (Reaction, error) {
	if s == "none" {
		return ReactionNone, nil
	}
	return ParseReaction(s)
}

// ImpressionRecord marks a sku as shown to a session, optionally with a reaction.
type ImpressionRecord struct {
	SessionID string
	SKU       string
	Reaction  Reaction
	CreatedAt time.Time
	ReactedAt *time.Time
}

// CartLine is one sku in a session's cart.
type CartLine struct {
	SessionID  string    `json:"-"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	Quantity   int       `json:"qty"`
	PriceAtAdd float64   `json:"price_at_add"`
	AddedAt    time.Time `json:"added_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LineTotal is quantity times the price captured when the line was last added to.
func (l *CartLine) LineTotal() float64 {
	return float64(l.Quantity) * l.PriceAtAdd
}

// CartTotals summarizes a cart for budget tracking.
type CartTotals struct {
	Total         float64
	DistinctItems int
}
