package api

import (
	"net/http"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/feed"
	"github.com/ashureev/sommelier/internal/identity"
	"github.com/ashureev/sommelier/internal/store"
	"github.com/go-chi/chi/v5"
)

type startSessionRequest struct {
	UserID string `json:"user_id" validate:"omitempty,max=128"`
}

type quizRequest struct {
	Occasion    string `json:"occasion" validate:"required,oneof=party dinner date gift relax"`
	Style       string `json:"style" validate:"required,oneof=light moderate intense"`
	DrinkType   string `json:"drink_type" validate:"required,oneof=wine_red wine_white wine_rose sparkling spirits beer mixed"`
	PeopleCount int    `json:"people_count" validate:"gte=1,lte=10"`
	Budget      string `json:"budget" validate:"required,oneof=low medium high premium"`
}

type feedRequest struct {
	PageSize int                `json:"page_size" validate:"gte=0"`
	Weights  map[string]float64 `json:"weights"`
}

type reactionRequest struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Reaction string `json:"reaction" validate:"required"`
}

type eventRequest struct {
	SKU    string `json:"sku" validate:"required,max=64"`
	Action string `json:"action" validate:"required"`
}

type eventsRequest struct {
	Events []eventRequest `json:"events" validate:"required,min=1,max=200,dive"`
}

type cartRequest struct {
	SKU string `json:"sku" validate:"required,max=64"`
	Qty *int   `json:"qty"`
}

// rangeJSON encodes a range; an open upper bound is omitted.
type rangeJSON struct {
	Min float64  `json:"min"`
	Max *float64 `json:"max,omitempty"`
}

func newRangeJSON(r store.Range) rangeJSON {
	out := rangeJSON{Min: r.Min}
	if !r.Unbounded() {
		hi := r.Max
		out.Max = &hi
	}
	return out
}

type quizResponse struct {
	SessionID  string             `json:"session_id"`
	Quiz       domain.QuizAnswers `json:"quiz"`
	PriceRange rangeJSON          `json:"price_range"`
	ABVRange   rangeJSON          `json:"abv_range"`
}

// StartSession opens a session for the body's user id, falling back to the
// anonymous device identity.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = identity.UserIDFromContext(r.Context())
	}

	session, err := h.engine.StartSession(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, session)
}

// SaveQuiz stores the quiz answers and returns the derived ranges.
func (h *Handler) SaveQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	profile, err := h.engine.SaveQuiz(r.Context(), sessionID, domain.QuizAnswers{
		Occasion:    domain.Occasion(req.Occasion),
		Style:       domain.Style(req.Style),
		DrinkType:   domain.DrinkType(req.DrinkType),
		PeopleCount: req.PeopleCount,
		Budget:      domain.Budget(req.Budget),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, quizResponse{
		SessionID:  sessionID,
		Quiz:       profile.Quiz,
		PriceRange: newRangeJSON(profile.PriceRange),
		ABVRange:   newRangeJSON(profile.ABVRange),
	})
}

// GetFeed returns the next page of recommendations.
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.engine.GetFeed(r.Context(), chi.URLParam(r, "sessionID"), req.PageSize, req.Weights)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, page)
}

// RecordReaction stores a like or dislike for a shown item.
func (h *Handler) RecordReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.engine.RecordReaction(r.Context(), sessionID, req.SKU, req.Reaction); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"sku":        req.SKU,
		"reaction":   req.Reaction,
	})
}

// RecordEvents stores a batch of impressions and reactions.
func (h *Handler) RecordEvents(w http.ResponseWriter, r *http.Request) {
	var req eventsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	events := make([]feed.Event, len(req.Events))
	for i, ev := range req.Events {
		events[i] = feed.Event{SKU: ev.SKU, Action: ev.Action}
	}

	n, err := h.engine.RecordEvents(r.Context(), sessionID, events)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "recorded": n})
}

// AddToCart adds qty units of an item, one when qty is omitted.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	qty := 1
	if req.Qty != nil {
		qty = *req.Qty
	}

	summary, err := h.engine.AddToCart(r.Context(), chi.URLParam(r, "sessionID"), req.SKU, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}

// GetCart returns the cart of a session, including completed ones.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.GetCartSummary(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}

// RemoveFromCart drops an item from the cart.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.RemoveFromCart(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "sku"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}

// CompleteSession stops the session and returns the final cart.
func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.StopSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}
