package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	appconfig "signalflow/config"
	"signalflow/internal/indicator"
	"signalflow/models"
)

// fakeSource serves canned bars per ticker.
type fakeSource struct {
	bars map[string][]models.PriceBar
	errs map[string]error

	mu        sync.Mutex
	intervals []string
}

func (f *fakeSource) History(_ context.Context, ticker, _, _, interval string) ([]models.PriceBar, error) {
	f.mu.Lock()
	f.intervals = append(f.intervals, interval)
	f.mu.Unlock()
	if err, ok := f.errs[ticker]; ok {
		return nil, err
	}
	return f.bars[ticker], nil
}

func barsFor(closes ...float64) []models.PriceBar {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Date:  fmt.Sprintf("2024-03-%02d", i+1),
			Close: c,
		}
	}
	return bars
}

func runnerConfig(indicators ...appconfig.IndicatorInstanceConfig) *appconfig.Config {
	return &appconfig.Config{
		Scan:       appconfig.ScanConfig{MaxWorkers: 2, Interval: "1d"},
		Channels:   appconfig.ChannelsConfig{TickerBuffer: 8},
		Indicators: indicators,
	}
}

func testUniverse(tickers ...string) *appconfig.Universe {
	return &appconfig.Universe{Tickers: tickers}
}

// One evaluator always fails, another always emits. The failing one must
// not suppress the other's signals, and each ticker gets exactly one
// evaluation issue.
func TestRunIsolatesFailingInstance(t *testing.T) {
	registry := indicator.NewRegistry()
	registry.Register("always_err", func(_ []models.PriceBar, _ indicator.Settings, _ *indicator.Context) ([]models.IndicatorSignal, error) {
		return nil, errors.New("boom")
	})
	registry.Register("always_hit", func(bars []models.PriceBar, _ indicator.Settings, _ *indicator.Context) ([]models.IndicatorSignal, error) {
		return []models.IndicatorSignal{{SignalDate: bars[len(bars)-1].Date, SignalType: "hit"}}, nil
	})

	cfg := runnerConfig(
		appconfig.IndicatorInstanceConfig{ID: "always_err"},
		appconfig.IndicatorInstanceConfig{ID: "always_hit"},
	)
	source := &fakeSource{bars: map[string][]models.PriceBar{
		"AAPL": barsFor(1, 2, 3),
		"MSFT": barsFor(3, 2, 1),
	}}

	payload, err := NewRunner(cfg, source, registry).Run(context.Background(), testUniverse("AAPL", "MSFT"), "2024-03-01", "2024-03-03")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(payload.Signals) != 2 {
		t.Fatalf("expected 2 signals, got %d: %v", len(payload.Signals), payload.Signals)
	}
	for _, sig := range payload.Signals {
		if sig.IndicatorID != "always_hit_1" {
			t.Errorf("unexpected signal source: %s", sig.IndicatorID)
		}
	}

	errCount := map[string]int{}
	for _, iss := range payload.Issues {
		if iss.Issue == models.IssueIndicatorError {
			errCount[iss.Ticker]++
		}
	}
	if errCount["AAPL"] != 1 || errCount["MSFT"] != 1 {
		t.Errorf("expected one indicator_error per ticker, got %v", errCount)
	}
}

// The configured scan interval must reach every history fetch, benchmarks
// included, so stored metric keys describe the bars that were actually
// evaluated.
func TestRunFetchesConfiguredInterval(t *testing.T) {
	registry := indicator.NewRegistry()
	registry.Register("always_hit", func(bars []models.PriceBar, _ indicator.Settings, _ *indicator.Context) ([]models.IndicatorSignal, error) {
		return []models.IndicatorSignal{{SignalDate: bars[len(bars)-1].Date, SignalType: "hit"}}, nil
	})

	cfg := runnerConfig(appconfig.IndicatorInstanceConfig{ID: "always_hit"})
	cfg.Scan.Interval = "1wk"
	cfg.Scan.Benchmarks = []string{"SPY"}
	source := &fakeSource{bars: map[string][]models.PriceBar{
		"AAPL": barsFor(1, 2, 3),
		"SPY":  barsFor(2, 2, 2),
	}}

	payload, err := NewRunner(cfg, source, registry).Run(context.Background(), testUniverse("AAPL"), "2024-03-01", "2024-03-03")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if payload.RunMetadata.Interval != "1wk" {
		t.Errorf("payload interval = %q, want 1wk", payload.RunMetadata.Interval)
	}
	if len(source.intervals) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(source.intervals))
	}
	for _, iv := range source.intervals {
		if iv != "1wk" {
			t.Errorf("fetch asked for interval %q although scan interval is 1wk", iv)
		}
	}
}

func TestRunRecoversPanickingEvaluator(t *testing.T) {
	registry := indicator.NewRegistry()
	registry.Register("panics", func(_ []models.PriceBar, _ indicator.Settings, _ *indicator.Context) ([]models.IndicatorSignal, error) {
		panic("index out of range")
	})

	cfg := runnerConfig(appconfig.IndicatorInstanceConfig{ID: "panics"})
	source := &fakeSource{bars: map[string][]models.PriceBar{"AAPL": barsFor(1, 2)}}

	payload, err := NewRunner(cfg, source, registry).Run(context.Background(), testUniverse("AAPL"), "2024-03-01", "2024-03-02")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	found := false
	for _, iss := range payload.Issues {
		if iss.Issue == models.IssueIndicatorError && iss.Ticker == "AAPL" {
			found = true
		}
	}
	if !found {
		t.Errorf("panic not recorded as indicator_error: %v", payload.Issues)
	}
}

func TestRunUnknownIndicatorIsSoft(t *testing.T) {
	cfg := runnerConfig(appconfig.IndicatorInstanceConfig{ID: "no_such"})
	source := &fakeSource{bars: map[string][]models.PriceBar{"AAPL": barsFor(1, 2)}}

	payload, err := NewRunner(cfg, source, indicator.NewRegistry()).Run(context.Background(), testUniverse("AAPL"), "2024-03-01", "2024-03-02")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	found := false
	for _, iss := range payload.Issues {
		if iss.Issue == models.IssueUnknownIndicator && iss.IndicatorID == "no_such" {
			found = true
		}
	}
	if !found {
		t.Errorf("unknown indicator not recorded: %v", payload.Issues)
	}
}

func TestRunRejectsMalformedCriteria(t *testing.T) {
	cfg := runnerConfig(appconfig.IndicatorInstanceConfig{
		ID:       "roc",
		Criteria: map[string]interface{}{"type": "bogus"},
	})
	source := &fakeSource{}

	if _, err := NewRunner(cfg, source, indicator.NewRegistry()).Run(context.Background(), testUniverse("AAPL"), "2024-03-01", "2024-03-02"); err == nil {
		t.Fatalf("expected fatal error for malformed criteria")
	}
}

func TestRunRejectsBadDateRange(t *testing.T) {
	cfg := runnerConfig(appconfig.IndicatorInstanceConfig{ID: "roc"})
	r := NewRunner(cfg, &fakeSource{}, indicator.NewRegistry())

	if _, err := r.Run(context.Background(), testUniverse("AAPL"), "2024-03-05", "2024-03-01"); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := r.Run(context.Background(), testUniverse("AAPL"), "03/01/2024", "2024-03-05"); err == nil {
		t.Fatalf("expected error for malformed date")
	}
}

func TestRunFetchErrorIsSoft(t *testing.T) {
	registry := indicator.NewRegistry()
	registry.Register("always_hit", func(bars []models.PriceBar, _ indicator.Settings, _ *indicator.Context) ([]models.IndicatorSignal, error) {
		return []models.IndicatorSignal{{SignalDate: bars[len(bars)-1].Date, SignalType: "hit"}}, nil
	})
	cfg := runnerConfig(appconfig.IndicatorInstanceConfig{ID: "always_hit"})
	source := &fakeSource{
		bars: map[string][]models.PriceBar{"MSFT": barsFor(1, 2)},
		errs: map[string]error{"AAPL": errors.New("vendor down")},
	}

	payload, err := NewRunner(cfg, source, registry).Run(context.Background(), testUniverse("AAPL", "MSFT"), "2024-03-01", "2024-03-02")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(payload.Signals) != 1 || payload.Signals[0].Ticker != "MSFT" {
		t.Errorf("healthy ticker should still produce signals: %v", payload.Signals)
	}
	if payload.TickerSummaries[0].Ticker != "AAPL" {
		t.Fatalf("summaries not in universe order: %v", payload.TickerSummaries)
	}
	if got := payload.TickerSummaries[0].IssueTags; len(got) != 1 || got[0] != models.IssueFetchError {
		t.Errorf("fetch error not tagged: %v", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	cfg := runnerConfig(appconfig.IndicatorInstanceConfig{ID: "roc"})
	source := &fakeSource{bars: map[string][]models.PriceBar{"AAPL": barsFor(1, 2)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	payload, err := NewRunner(cfg, source, indicator.NewRegistry()).Run(ctx, testUniverse("AAPL", "MSFT"), "2024-03-01", "2024-03-02")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	cancelled := 0
	for _, iss := range payload.Issues {
		if iss.Issue == models.IssueRunCancelled {
			cancelled++
		}
	}
	if cancelled != 2 {
		t.Errorf("expected run_cancelled for both tickers, got %d", cancelled)
	}
}

func TestInstanceIDDefaults(t *testing.T) {
	cfg := runnerConfig(
		appconfig.IndicatorInstanceConfig{ID: "roc"},
		appconfig.IndicatorInstanceConfig{ID: "roc"},
		appconfig.IndicatorInstanceConfig{ID: "roc", InstanceID: "roc_fast"},
	)
	r := NewRunner(cfg, &fakeSource{}, indicator.NewRegistry())

	instances, _, err := r.resolveInstances()
	if err != nil {
		t.Fatalf("resolveInstances failed: %v", err)
	}
	got := []string{instances[0].instanceID, instances[1].instanceID, instances[2].instanceID}
	want := []string{"roc_1", "roc_2", "roc_fast"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instance %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMetricRows(t *testing.T) {
	last := 10.0
	pct := 5.0
	ratio := 2.0
	advPct := 66.0
	p := &models.RunPayload{
		RunMetadata: models.RunMetadata{RunID: "r1", EndDate: "2024-03-05", Interval: "1d"},
		TickerSummaries: []models.TickerSummary{
			{Ticker: "AAPL", LastClose: &last, CloseChangePct: &pct},
			{Ticker: "MSFT"},
		},
		Signals: []models.Signal{
			{Ticker: "AAPL", IndicatorID: "roc_1"},
			{Ticker: "AAPL", IndicatorID: "roc_1"},
		},
		Aggregates: models.BreadthAggregates{
			Advances: 2, Declines: 1, NetAdvances: 1, ValidTickerCount: 3,
			AdvanceDeclineRatio: &ratio, AdvancePct: &advPct,
		},
	}

	rows := MetricRows(p)
	byKey := map[string]models.MetricRow{}
	for _, row := range rows {
		byKey[row.ScopeKey+"/"+row.MetricKey] = row
		if row.AsOfDate != "2024-03-05" || row.Interval != "1d" || row.RunID != "r1" {
			t.Errorf("row missing run keys: %+v", row)
		}
	}

	if r, ok := byKey["AAPL/last_close"]; !ok || r.Value != 10 {
		t.Errorf("missing last_close row: %+v", r)
	}
	if r, ok := byKey["AAPL/signals_roc_1"]; !ok || r.Value != 2 {
		t.Errorf("missing signal count row: %+v", r)
	}
	if r, ok := byKey["_breadth/advance_decline_ratio"]; !ok || r.Value != 2 {
		t.Errorf("missing breadth ratio row: %+v", r)
	}
	if _, ok := byKey["MSFT/last_close"]; ok {
		t.Errorf("nil close must not produce a row")
	}
}
