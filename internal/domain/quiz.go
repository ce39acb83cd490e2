package domain

import (
	"fmt"
	"time"
)

// Occasion is the reason the user is shopping.
type Occasion string

const (
	OccasionParty  Occasion = "party"
	OccasionDinner Occasion = "dinner"
	OccasionDate   Occasion = "date"
	OccasionGift   Occasion = "gift"
	OccasionRelax  Occasion = "relax"
)

// Style describes how strong the drinks should be.
type Style string

const (
	StyleLight    Style = "light"
	StyleModerate Style = "moderate"
	StyleIntense  Style = "intense"
)

// DrinkType is the drink family chosen in the quiz.
type DrinkType string

const (
	DrinkWineRed   DrinkType = "wine_red"
	DrinkWineWhite DrinkType = "wine_white"
	DrinkWineRose  DrinkType = "wine_rose"
	DrinkSparkling DrinkType = "sparkling"
	DrinkSpirits   DrinkType = "spirits"
	DrinkBeer      DrinkType = "beer"
	DrinkMixed     DrinkType = "mixed"
)

// IsWine reports whether the drink type is matched on the wine colour attribute.
func (d DrinkType) IsWine() bool {
	switch d {
	case DrinkWineRed, DrinkWineWhite, DrinkWineRose:
		return true
	default:
		return false
	}
}

// Budget is the coarse price band picked by the user.
type Budget string

const (
	BudgetLow     Budget = "low"
	BudgetMedium  Budget = "medium"
	BudgetHigh    Budget = "high"
	BudgetPremium Budget = "premium"
)

const (
	MinPeopleCount = 1
	MaxPeopleCount = 10
)

// QuizAnswers are the persisted answers of a session's quiz.
type QuizAnswers struct {
	Occasion    Occasion  `json:"occasion"`
	Style       Style     `json:"style"`
	DrinkType   DrinkType `json:"drink_type"`
	PeopleCount int       `json:"people_count"`
	Budget      Budget    `json:"budget"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks every answer against its enumeration.
func (q *QuizAnswers) Validate() error {
	switch q.Occasion {
	case OccasionParty, OccasionDinner, OccasionDate, OccasionGift, OccasionRelax:
	default:
		return fmt.Errorf("%w: unknown occasion %q", ErrInvalidQuiz, q.Occasion)
	}
	switch q.Style {
	case StyleLight, StyleModerate, StyleIntense:
	default:
		return fmt.Errorf("%w: unknown style %q", ErrInvalidQuiz, q.Style)
	}
	switch q.DrinkType {
	case DrinkWineRed, DrinkWineWhite, DrinkWineRose, DrinkSparkling, DrinkSpirits, DrinkBeer, DrinkMixed:
	default:
		return fmt.Errorf("%w: unknown drink type %q", ErrInvalidQuiz, q.DrinkType)
	}
	switch q.Budget {
	case BudgetLow, BudgetMedium, BudgetHigh, BudgetPremium:
	default:
		return fmt.Errorf("%w: unknown budget %q", ErrInvalidQuiz, q.Budget)
	}
	if q.PeopleCount < MinPeopleCount || q.PeopleCount > MaxPeopleCount {
		return fmt.Errorf("%w: people count %d out of range", ErrInvalidQuiz, q.PeopleCount)
	}
	return nil
}
