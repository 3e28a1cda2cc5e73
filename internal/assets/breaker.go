package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/telos-labs/catalogd/internal/reconcile"
)

// BreakerChecker wraps a Checker with per-host circuit breakers so one
// dead CDN cannot stall a whole reconciliation run behind timeouts.
type BreakerChecker struct {
	checker  *Checker
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

// NewBreakerChecker creates a circuit breaker wrapper for a checker.
func NewBreakerChecker(ch *Checker) *BreakerChecker {
	return &BreakerChecker{
		checker:  ch,
		breakers: make(map[string]*circuit.Breaker),
	}
}

// getBreaker returns or creates a circuit breaker for the given host.
func (bc *BreakerChecker) getBreaker(host string) *circuit.Breaker {
	bc.mu.RLock()
	breaker, exists := bc.breakers[host]
	bc.mu.RUnlock()

	if exists {
		return breaker
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := bc.breakers[host]; exists {
		return breaker
	}

	// Trips after 5 consecutive failures, reopens on exponential backoff
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	opts := &circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	}
	breaker = circuit.NewBreakerWithOptions(opts)

	bc.breakers[host] = breaker
	return breaker
}

// Probe runs the underlying probe behind the host's circuit breaker.
func (bc *BreakerChecker) Probe(ctx context.Context, assetRef string) error {
	host := extractHost(assetRef)
	breaker := bc.getBreaker(host)

	if !breaker.Ready() {
		return fmt.Errorf("circuit breaker open for host %s: %w", host, ErrUpstreamDown)
	}

	var probeErr error
	err := breaker.Call(func() error {
		probeErr = bc.checker.Probe(ctx, assetRef)
		if errors.Is(probeErr, ErrGone) {
			// A gone asset is a definitive answer, not a host failure.
			return nil
		}
		return probeErr
	}, 0)
	if err != nil {
		return err
	}
	return probeErr
}

// Check implements the reconciler's validity signal with breaker
// protection. An open breaker means the host is unreachable, which is
// never a corrupt determination.
func (bc *BreakerChecker) Check(ctx context.Context, assetRef string) reconcile.Verdict {
	if assetRef == "" {
		return reconcile.VerdictCorrupt
	}
	if errors.Is(bc.Probe(ctx, assetRef), ErrGone) {
		return reconcile.VerdictCorrupt
	}
	return reconcile.VerdictValid
}

// BreakerStates returns the current state of each host's breaker.
func (bc *BreakerChecker) BreakerStates() map[string]string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	states := make(map[string]string)
	for host, breaker := range bc.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

// extractHost extracts a host identifier from a URL for breaker grouping.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
