package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "half-open"
	}
}

// BreakerProvider stops calling a provider after maxFailures consecutive
// failures. Once resetTimeout has passed a single trial call is let through;
// its outcome closes or reopens the circuit.
type BreakerProvider struct {
	provider     Provider
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	state    CircuitState
	trial    bool
}

// NewBreakerProvider wraps provider with a circuit breaker
func NewBreakerProvider(provider Provider, maxFailures int, resetTimeout time.Duration) *BreakerProvider {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &BreakerProvider{
		provider:     provider,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Breaker returns a wrapper for BuildRegistry
func Breaker(maxFailures int, resetTimeout time.Duration) func(Provider) Provider {
	return func(p Provider) Provider {
		return NewBreakerProvider(p, maxFailures, resetTimeout)
	}
}

// Name returns the underlying provider name
func (b *BreakerProvider) Name() string {
	return b.provider.Name()
}

// State returns the current circuit state
func (b *BreakerProvider) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CreateCompletion forwards the request unless the circuit is open
func (b *BreakerProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	if err := b.admit(); err != nil {
		return nil, err
	}

	resp, err := b.provider.CreateCompletion(ctx, request)
	b.record(err)
	return resp, err
}

func (b *BreakerProvider) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.state = CircuitHalfOpen
		b.trial = false
	}

	switch b.state {
	case CircuitOpen:
		return NewProviderError(b.provider.Name(), ErrorCodeCircuitOpen,
			fmt.Sprintf("circuit open after %d consecutive failures", b.failures), nil)
	case CircuitHalfOpen:
		if b.trial {
			return NewProviderError(b.provider.Name(), ErrorCodeCircuitOpen, "circuit half-open, trial call in flight", nil)
		}
		b.trial = true
	}
	return nil
}

// record updates the circuit. Calls cancelled by the caller say nothing about
// provider health and are ignored.
func (b *BreakerProvider) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && errors.Is(err, context.Canceled) {
		if b.state == CircuitHalfOpen {
			b.trial = false
		}
		return
	}

	if err == nil {
		b.failures = 0
		b.state = CircuitClosed
		return
	}

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.maxFailures {
		b.state = CircuitOpen
		b.openedAt = b.now()
	}
}
