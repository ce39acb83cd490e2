// Package api provides HTTP handlers for the sommelier API.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/feed"
	"github.com/ashureev/sommelier/internal/store"
	"github.com/ashureev/sommelier/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("malformed request body")

// Handler serves the session, cart and catalog endpoints.
type Handler struct {
	engine *feed.Engine
}

// NewHandler creates a new Handler over the feed engine.
func NewHandler(engine *feed.Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes registers the session and item routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/start", h.StartSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/quiz", h.SaveQuiz)
			r.Post("/feed", h.GetFeed)
			r.Post("/reactions", h.RecordReaction)
			r.Post("/events", h.RecordEvents)
			r.Post("/cart", h.AddToCart)
			r.Get("/cart", h.GetCart)
			r.Delete("/cart/{sku}", h.RemoveFromCart)
			r.Post("/complete", h.CompleteSession)
		})
	})
	r.Route("/items", func(r chi.Router) {
		r.Get("/trending", h.Trending)
		r.Get("/{sku}/similar", h.Similar)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type errorResponse struct {
	Error  string                  `json:"error"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

// writeError maps engine and validation failures onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *validation.RequestError
	switch {
	case errors.As(err, &reqErr):
		JSON(w, http.StatusBadRequest, errorResponse{Error: reqErr.Error(), Fields: reqErr.Fields})
	case errors.Is(err, errBadBody),
		errors.Is(err, domain.ErrInvalidReaction),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidWeights):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrItemNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidQuiz), errors.Is(err, domain.ErrInvalidState):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		w.Header().Set("Retry-After", "30")
		Error(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads and validates a request body. An empty body leaves v at its
// zero value when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if len(bytes.TrimSpace(raw)) > 0 || !optional {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: %v", errBadBody, err)
		}
	}
	return validation.Struct(v)
}
