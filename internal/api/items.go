package api

import (
	"net/http"
	"strconv"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/validation"
	"github.com/go-chi/chi/v5"
)

type trendingQuery struct {
	DrinkType string `json:"drink_type" validate:"omitempty,oneof=wine_red wine_white wine_rose sparkling spirits beer mixed"`
	Limit     int    `json:"limit" validate:"gte=0"`
}

// Similar lists items related to the path sku.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := h.engine.Similar(r.Context(), chi.URLParam(r, "sku"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"sku": chi.URLParam(r, "sku"), "items": items})
}

// Trending lists well-rated items, optionally for one drink type.
func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := trendingQuery{DrinkType: r.URL.Query().Get("drink_type"), Limit: limit}
	if err := validation.Struct(&q); err != nil {
		writeError(w, r, err)
		return
	}

	items, err := h.engine.Trending(r.Context(), domain.DrinkType(q.DrinkType), q.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"items": items})
}

// queryInt parses an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &validation.RequestError{Fields: []validation.FieldError{{
			Field:   key,
			Tag:     "int",
			Message: key + " must be a non-negative integer",
		}}}
	}
	return n, nil
}
