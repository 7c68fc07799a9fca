package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rcliao/memory-engine/internal/model"
)

// BreakerConfig configures the circuit breaker in front of a backend.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before a trial request.
	Timeout time.Duration
}

// DefaultBreakerConfig trips after 3 failures and retries after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 3, Timeout: 30 * time.Second}
}

// Breaker wraps a Store so that a failing backend is not hammered. While the
// circuit is open every call fails fast with ErrUnavailable. Failed calls are
// never retried here; the caller decides.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Store, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state change", "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Put(ctx context.Context, e *model.Entry) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Put(ctx, e)
	})
	return translate(err)
}

func (b *Breaker) GetAll(ctx context.Context) ([]*model.Entry, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetAll(ctx)
	})
	if err != nil {
		return nil, translate(err)
	}
	entries, _ := res.([]*model.Entry)
	return entries, nil
}

func (b *Breaker) Delete(ctx context.Context, id string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, id)
	})
	return translate(err)
}

func (b *Breaker) Close() error { return b.next.Close() }

// State reports the breaker state: "closed", "half-open" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
