package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"signalflow/config"
	"signalflow/logger"
	"signalflow/models"

	"golang.org/x/time/rate"
)

// HistoricalSource provides price history for a ticker over an inclusive
// date range at the requested bar interval. Dates are ISO YYYY-MM-DD strings.
type HistoricalSource interface {
	History(ctx context.Context, ticker, start, end, interval string) ([]models.PriceBar, error)
}

// VendorReader fetches bars from an HTTP history vendor. Requests are
// rate limited and retried with exponential backoff on transient failures.
type VendorReader struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   config.RetryConfig
	log     *logger.Log
}

// NewVendorReader creates a VendorReader from the source configuration.
func NewVendorReader(cfg *config.Config) *VendorReader {
	log := logger.GetLogger()

	r := &VendorReader{
		baseURL: cfg.Source.BaseURL,
		client:  &http.Client{Timeout: cfg.Source.Timeout},
		limiter: rate.NewLimiter(
			rate.Limit(cfg.Source.RateLimit.RequestsPerSecond),
			cfg.Source.RateLimit.BurstSize,
		),
		retry: cfg.Source.Retry,
		log:   log,
	}

	log.WithComponent("vendor_reader").WithFields(logger.Fields{
		"base_url":            cfg.Source.BaseURL,
		"timeout":             cfg.Source.Timeout,
		"requests_per_second": cfg.Source.RateLimit.RequestsPerSecond,
	}).Info("vendor reader initialized")

	return r
}

// historyResponse is the vendor wire format for a history request.
type historyResponse struct {
	Ticker string `json:"ticker"`
	Bars   []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"bars"`
}

// History fetches bars for the ticker between start and end inclusive. Bars
// come back sorted ascending by date with duplicate dates collapsed.
func (r *VendorReader) History(ctx context.Context, ticker, start, end, interval string) ([]models.PriceBar, error) {
	log := r.log.WithComponent("vendor_reader").WithFields(logger.Fields{
		"ticker":    ticker,
		"interval":  interval,
		"operation": "history",
	})

	var lastErr error
	delay := r.retry.BaseDelay
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		fetchStart := time.Now()
		bars, retryable, err := r.fetchOnce(ctx, ticker, start, end, interval)
		if err == nil {
			logger.LogPerformanceEntry(log, "vendor_reader", "api_request", time.Since(fetchStart), logger.Fields{
				"bars": len(bars),
			})
			logger.IncrementFetch(len(bars))
			return bars, nil
		}

		lastErr = err
		if !retryable {
			break
		}

		log.WithError(err).WithFields(logger.Fields{"attempt": attempt}).Warn("history fetch failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= time.Duration(r.retry.BackoffMultiplier)
		if delay > r.retry.MaxDelay {
			delay = r.retry.MaxDelay
		}
	}

	return nil, fmt.Errorf("history fetch for %s failed: %w", ticker, lastErr)
}

// fetchOnce performs a single request. The second return value reports
// whether the failure is worth retrying.
func (r *VendorReader) fetchOnce(ctx context.Context, ticker, start, end, interval string) ([]models.PriceBar, bool, error) {
	u, err := url.Parse(r.baseURL + "/history")
	if err != nil {
		return nil, false, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("ticker", ticker)
	q.Set("start", start)
	q.Set("end", end)
	q.Set("interval", interval)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("vendor returned status %d", resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("vendor returned status %d", resp.StatusCode)
	}

	var hr historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, false, fmt.Errorf("failed to decode history response: %w", err)
	}

	bars := make([]models.PriceBar, 0, len(hr.Bars))
	for _, b := range hr.Bars {
		bars = append(bars, models.PriceBar{
			Date:   b.Date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return models.NormalizeBars(bars), false, nil
}
