// Package resilience wraps the Run Claimer's store call with a circuit
// breaker so a failing store stops being hammered every poll interval.
// This does not change core semantics: the breaker only short-circuits the
// poll call itself, never claim or execution semantics.
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flowforge/pipeline/internal/claim"
)

// Claimer is the subset of claim.Claimer the breaker wraps.
type Claimer interface {
	ClaimPending(ctx context.Context) (*claim.Claimed, error)
}

// BreakerClaimer decorates a Claimer with a circuit breaker keyed on
// consecutive storage failures.
type BreakerClaimer struct {
	inner   Claimer
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClaimer builds a BreakerClaimer that opens after 5 consecutive
// failures and stays open for 30 seconds before allowing a trial request.
func NewBreakerClaimer(inner Claimer) *BreakerClaimer {
	settings := gobreaker.Settings{
		Name:        "run-claimer",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerClaimer{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// ClaimPending proxies to the wrapped Claimer through the breaker. When the
// breaker is open, it returns gobreaker.ErrOpenState without calling the
// store at all.
func (b *BreakerClaimer) ClaimPending(ctx context.Context) (*claim.Claimed, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.ClaimPending(ctx)
	})
	if err != nil {
		return nil, err
	}
	claimed, _ := result.(*claim.Claimed)
	return claimed, nil
}

// State reports the breaker's current state, for logging and diagnostics.
func (b *BreakerClaimer) State() gobreaker.State {
	return b.breaker.State()
}
