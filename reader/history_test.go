package reader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"signalflow/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			BaseURL: baseURL,
			Timeout: 5 * time.Second,
			RateLimit: config.RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         100,
			},
			Retry: config.RetryConfig{
				MaxAttempts:       3,
				BaseDelay:         time.Millisecond,
				MaxDelay:          10 * time.Millisecond,
				BackoffMultiplier: 2,
			},
		},
	}
}

func TestHistoryFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ticker"); got != "AAPL" {
			t.Errorf("unexpected ticker: %s", got)
		}
		fmt.Fprint(w, `{"ticker":"AAPL","bars":[
			{"date":"2024-03-04","open":1,"high":2,"low":0.5,"close":1.5,"volume":100},
			{"date":"2024-03-01","open":1,"high":2,"low":0.5,"close":1.2,"volume":200},
			{"date":"2024-03-04","open":1,"high":2,"low":0.5,"close":1.6,"volume":150}
		]}`)
	}))
	defer srv.Close()

	r := NewVendorReader(testConfig(srv.URL))
	bars, err := r.History(context.Background(), "AAPL", "2024-03-01", "2024-03-04", "1d")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	// Bars are normalized: ascending by date, later duplicates win.
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Date != "2024-03-01" || bars[1].Date != "2024-03-04" {
		t.Errorf("bars not sorted: %v", bars)
	}
	if bars[1].Close != 1.6 {
		t.Errorf("duplicate date not collapsed to last bar: %v", bars[1])
	}
}

func TestHistoryForwardsInterval(t *testing.T) {
	var gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInterval = r.URL.Query().Get("interval")
		fmt.Fprint(w, `{"ticker":"AAPL","bars":[{"date":"2024-03-01","open":1,"high":1,"low":1,"close":1,"volume":1}]}`)
	}))
	defer srv.Close()

	r := NewVendorReader(testConfig(srv.URL))
	if _, err := r.History(context.Background(), "AAPL", "2024-03-01", "2024-03-01", "1wk"); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if gotInterval != "1wk" {
		t.Errorf("vendor asked for interval %q, want 1wk", gotInterval)
	}
}

func TestHistoryRetriesTransientFailures(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ticker":"MSFT","bars":[{"date":"2024-03-01","open":1,"high":1,"low":1,"close":1,"volume":1}]}`)
	}))
	defer srv.Close()

	r := NewVendorReader(testConfig(srv.URL))
	bars, err := r.History(context.Background(), "MSFT", "2024-03-01", "2024-03-01", "1d")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	if atomic.LoadInt64(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestHistoryDoesNotRetryClientErrors(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewVendorReader(testConfig(srv.URL))
	if _, err := r.History(context.Background(), "NOPE", "2024-03-01", "2024-03-01", "1d"); err == nil {
		t.Fatalf("expected error for 404")
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
}

func TestHistoryContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewVendorReader(testConfig(srv.URL))
	if _, err := r.History(ctx, "AAPL", "2024-03-01", "2024-03-01", "1d"); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
