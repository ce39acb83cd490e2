package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/sommelier/internal/domain"
	"github.com/ashureev/sommelier/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the circuit breaker rejects transactions.
var ErrUnavailable = errors.New("store unavailable")

// BreakerSettings configures WithBreaker.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

type breakerRepository struct {
	Repository
	cb   *gobreaker.CircuitBreaker[struct{}]
	name string
}

// WithBreaker wraps repo so that WithTx and ReadTx fail fast after FailureThreshold
// consecutive store failures. Client errors returned by fn never trip it.
func WithBreaker(repo Repository, s BreakerSettings) Repository {
	if s.Name == "" {
		s.Name = "store"
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || domain.IsClientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state transition",
				"name", name,
				"from", from.String(),
				"to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &breakerRepository{Repository: repo, cb: cb, name: s.Name}
}

// WithTx runs the transaction through the circuit breaker.
func (b *breakerRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return b.execute(func() error { return b.Repository.WithTx(ctx, fn) })
}

// ReadTx runs the read-only transaction through the circuit breaker.
func (b *breakerRepository) ReadTx(ctx context.Context, fn func(tx Tx) error) error {
	return b.execute(func() error { return b.Repository.ReadTx(ctx, fn) })
}

func (b *breakerRepository) execute(run func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, run()
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return err
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
