package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/telos-labs/catalogd/internal/reconcile"
)

func TestProbeSuccess(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Length", "1024")
	}))
	defer server.Close()

	ch := NewChecker()
	if err := ch.Probe(context.Background(), server.URL+"/app.ipa"); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if method != http.MethodHead {
		t.Errorf("method = %q, want HEAD", method)
	}
}

func TestProbeGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	ch := NewChecker()
	err := ch.Probe(context.Background(), server.URL+"/missing.ipa")
	if !errors.Is(err, ErrGone) {
		t.Errorf("Probe = %v, want ErrGone", err)
	}
}

func TestProbeGoneNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	ch := NewChecker(WithBaseDelay(10 * time.Millisecond))
	_ = ch.Probe(context.Background(), server.URL+"/pulled.ipa")
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestProbeServerErrorRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	ch := NewChecker(WithBaseDelay(10 * time.Millisecond))
	if err := ch.Probe(context.Background(), server.URL+"/app.ipa"); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestProbeRateLimitRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer server.Close()

	ch := NewChecker(WithBaseDelay(10 * time.Millisecond))
	if err := ch.Probe(context.Background(), server.URL+"/app.ipa"); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestProbeExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ch := NewChecker(WithMaxRetries(1), WithBaseDelay(10*time.Millisecond))
	err := ch.Probe(context.Background(), server.URL+"/app.ipa")
	if !errors.Is(err, ErrUpstreamDown) {
		t.Errorf("Probe = %v, want ErrUpstreamDown", err)
	}
}

func TestProbeContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := NewChecker(WithBaseDelay(time.Hour))
	err := ch.Probe(ctx, server.URL+"/app.ipa")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Probe = %v, want context.Canceled", err)
	}
}

func TestCheckVerdicts(t *testing.T) {
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer gone.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer healthy.Close()

	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer flaky.Close()

	ch := NewChecker(WithMaxRetries(0), WithBaseDelay(10*time.Millisecond))

	tests := []struct {
		name     string
		assetRef string
		want     reconcile.Verdict
	}{
		{"healthy asset", healthy.URL + "/app.ipa", reconcile.VerdictValid},
		{"gone asset", gone.URL + "/app.ipa", reconcile.VerdictCorrupt},
		{"empty reference", "", reconcile.VerdictCorrupt},
		{"transient failure stays valid", flaky.URL + "/app.ipa", reconcile.VerdictValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ch.Check(context.Background(), tt.assetRef); got != tt.want {
				t.Errorf("Check = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreakerCheckerTripsAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	bc := NewBreakerChecker(NewChecker(WithMaxRetries(0), WithBaseDelay(10*time.Millisecond)))

	for i := 0; i < 5; i++ {
		if err := bc.Probe(context.Background(), server.URL+"/app.ipa"); err == nil {
			t.Fatalf("probe %d: expected failure", i)
		}
	}

	states := bc.BreakerStates()
	if len(states) != 1 {
		t.Fatalf("expected one breaker, got %d", len(states))
	}
	for _, state := range states {
		if state != "open" {
			t.Errorf("breaker state = %q, want open", state)
		}
	}
}

func TestBreakerCheckerGoneDoesNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	bc := NewBreakerChecker(NewChecker(WithMaxRetries(0)))

	for i := 0; i < 10; i++ {
		if got := bc.Check(context.Background(), server.URL+"/app.ipa"); got != reconcile.VerdictCorrupt {
			t.Fatalf("check %d: got %v, want corrupt", i, got)
		}
	}

	for _, state := range bc.BreakerStates() {
		if state != "closed" {
			t.Errorf("breaker state = %q, want closed", state)
		}
	}
}

func TestBreakerCheckerOpenCircuitStaysValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	bc := NewBreakerChecker(NewChecker(WithMaxRetries(0), WithBaseDelay(10*time.Millisecond)))

	for i := 0; i < 6; i++ {
		_ = bc.Probe(context.Background(), server.URL+"/app.ipa")
	}

	if got := bc.Check(context.Background(), server.URL+"/app.ipa"); got != reconcile.VerdictValid {
		t.Errorf("open circuit Check = %v, want valid", got)
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		rawURL string
		want   string
	}{
		{"https://cdn.example.com/ipas/app.ipa", "cdn.example.com"},
		{"https://cdn.example.com:8443/app.ipa", "cdn.example.com:8443"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := extractHost(tt.rawURL); got != tt.want {
			t.Errorf("extractHost(%q) = %q, want %q", tt.rawURL, got, tt.want)
		}
	}
}
