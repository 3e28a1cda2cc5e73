// Package assets confirms that catalog asset references are still
// retrievable from their hosting CDN. Probes are HEAD only; archives are
// never downloaded here.
package assets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	"github.com/telos-labs/catalogd/internal/reconcile"
)

var (
	ErrGone         = errors.New("asset no longer hosted")
	ErrRateLimited  = errors.New("rate limited by asset host")
	ErrUpstreamDown = errors.New("asset host unavailable")
)

// Checker probes asset references over HTTP HEAD.
type Checker struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Checker) {
		ch.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(ch *Checker) {
		ch.userAgent = ua
	}
}

// WithMaxRetries sets the maximum retry attempts per probe.
func WithMaxRetries(n int) Option {
	return func(ch *Checker) {
		ch.maxRetries = n
	}
}

// WithBaseDelay sets the base delay for exponential backoff between retries.
func WithBaseDelay(d time.Duration) Option {
	return func(ch *Checker) {
		ch.baseDelay = d
	}
}

// NewChecker creates a Checker with the given options.
func NewChecker(opts ...Option) *Checker {
	// DNS cache with 5 minute refresh; passes probe many URLs on few hosts
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	ch := &Checker{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP")
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  "catalogd/1.0",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Probe performs one HEAD request cycle against the asset reference,
// retrying transient failures with exponential backoff.
func (ch *Checker) Probe(ctx context.Context, assetRef string) error {
	var lastErr error

	for attempt := 0; attempt <= ch.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with 10% jitter to prevent thundering herd
			delay := ch.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(float64(delay) * (rand.Float64() * 0.1))
			delay += jitter

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := ch.doProbe(ctx, assetRef)
		if err == nil {
			return nil
		}

		lastErr = err

		// A definitive gone answer never improves with retries
		if errors.Is(err, ErrGone) {
			return err
		}

		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
			continue
		}

		return err
	}

	return lastErr
}

func (ch *Checker) doProbe(ctx context.Context, assetRef string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, assetRef, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", ch.userAgent)

	resp, err := ch.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing asset: %w", err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrGone
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return ErrUpstreamDown
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// Check implements the reconciler's validity signal. Only a definitive
// gone answer counts as corrupt; transient upstream trouble keeps an
// entry's last known state rather than flapping the whole catalog.
func (ch *Checker) Check(ctx context.Context, assetRef string) reconcile.Verdict {
	if assetRef == "" {
		return reconcile.VerdictCorrupt
	}
	err := ch.Probe(ctx, assetRef)
	if errors.Is(err, ErrGone) {
		return reconcile.VerdictCorrupt
	}
	return reconcile.VerdictValid
}
