package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/metrics"
	"github.com/ashureev/sommelier/internal/store"
)

// CartSummary is the content of a session's cart.
type CartSummary struct {
	SessionID      string               `json:"session_id"`
	Status         domain.SessionStatus `json:"status"`
	Items          []domain.CartLine    `json:"items"`
	CartTotal      float64              `json:"cart_total"`
	CartItemsCount int                  `json:"cart_items_count"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// AddToCart adds qtyDelta units of sku at the item's current price. The delta
// must be positive; a negative delta leaves the cart untouched.
func (e *Engine) AddToCart(ctx context.Context, sessionID, sku string, qtyDelta int) (*CartSummary, error) {
	if qtyDelta < 1 {
		return nil, fmt.Errorf("%w: quantity delta %d", domain.ErrInvalidQuantity, qtyDelta)
	}

	var summary *CartSummary
	err := e.inTx(ctx, "add_to_cart", func(tx store.Tx) error {
		session, err := lockMutable(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		item, err := tx.GetItem(ctx, sku)
		if err != nil {
			return err
		}
		if item == nil || !item.Priced() || !item.InStock() {
			return fmt.Errorf("%w: %s", domain.ErrItemNotFound, sku)
		}

		now := e.now()
		if err := tx.UpsertCartLine(ctx, sessionID, sku, qtyDelta, item.Price, now); err != nil {
			return err
		}
		if err := tx.TouchSession(ctx, sessionID, now); err != nil {
			return err
		}
		session.UpdatedAt = now
		summary, err = cartSummary(ctx, tx, session)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.CartUpdatesTotal.WithLabelValues("add").Inc()
	return summary, nil
}

// RemoveFromCart deletes the line of sku. Removing an absent line succeeds.
func (e *Engine) RemoveFromCart(ctx context.Context, sessionID, sku string) (*CartSummary, error) {
	var summary *CartSummary
	err := e.inTx(ctx, "remove_from_cart", func(tx store.Tx) error {
		session, err := lockMutable(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		now := e.now()
		if err := tx.RemoveCartLine(ctx, sessionID, sku); err != nil {
			return err
		}
		if err := tx.TouchSession(ctx, sessionID, now); err != nil {
			return err
		}
		session.UpdatedAt = now
		summary, err = cartSummary(ctx, tx, session)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.CartUpdatesTotal.WithLabelValues("remove").Inc()
	return summary, nil
}

// GetCartSummary returns the cart of a session, completed or not.
func (e *Engine) GetCartSummary(ctx context.Context, sessionID string) (*CartSummary, error) {
	var summary *CartSummary
	err := e.inReadTx(ctx, "get_cart", func(tx store.Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		summary, err = cartSummary(ctx, tx, session)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// StopSession completes a session and returns its final cart. Completing an
// already completed session returns the cart without side effects.
func (e *Engine) StopSession(ctx context.Context, sessionID string) (*CartSummary, error) {
	var summary *CartSummary
	var transitioned bool
	err := e.inTx(ctx, "stop_session", func(tx store.Tx) error {
		summary, transitioned = nil, false

		session, err := lockExisting(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if !session.IsCompleted() {
			now := e.now()
			if err := tx.SetSessionStatus(ctx, sessionID, domain.SessionCompleted, now); err != nil {
				return err
			}
			session.Status = domain.SessionCompleted
			session.UpdatedAt = now
			transitioned = true
		}
		summary, err = cartSummary(ctx, tx, session)
		return err
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		metrics.SessionsCompleted.Inc()
		slog.Info("Session completed",
			"session_id", sessionID,
			"cart_items", summary.CartItemsCount,
			"cart_total", summary.CartTotal)
		e.export(ctx, summary)
	}
	return summary, nil
}

// export hands the cart to the exporter. Export failures never fail the completion.
func (e *Engine) export(ctx context.Context, summary *CartSummary) {
	if e.exporter == nil {
		return
	}
	if err := e.exporter.ExportCart(ctx, summary); err != nil {
		metrics.CartExportsTotal.WithLabelValues("failure").Inc()
		slog.Warn("Cart export failed", "session_id", summary.SessionID, "error", err)
		return
	}
	metrics.CartExportsTotal.WithLabelValues("success").Inc()
}

func cartSummary(ctx context.Context, tx store.Tx, session *domain.Session) (*CartSummary, error) {
	lines, err := tx.ListCartLines(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	summary := &CartSummary{
		SessionID:      session.ID,
		Status:         session.Status,
		Items:          lines,
		CartItemsCount: len(lines),
		UpdatedAt:      session.UpdatedAt,
	}
	for i := range lines {
		summary.CartTotal += lines[i].LineTotal()
	}
	return summary, nil
}
