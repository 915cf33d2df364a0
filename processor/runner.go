package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "signalflow/config"
	"signalflow/internal/criteria"
	"signalflow/internal/indicator"
	"signalflow/internal/metrics"
	"signalflow/logger"
	"signalflow/models"
	"signalflow/reader"
)

// Runner executes one scan over a ticker universe: fetch history, run every
// configured indicator instance, summarize each ticker and aggregate
// breadth. Indicator failures never abort the run; only configuration and
// date-range problems do.
type Runner struct {
	config   *appconfig.Config
	source   reader.HistoricalSource
	registry *indicator.Registry
	log      *logger.Log

	mu      sync.Mutex
	running bool
}

// instance is one resolved indicator instance from configuration.
type instance struct {
	id         string
	instanceID string
	evaluator  indicator.Evaluator
	settings   indicator.Settings
}

// tickerResult collects everything one worker produced for one ticker.
type tickerResult struct {
	summary models.TickerSummary
	signals []models.Signal
	issues  []models.Issue
}

// NewRunner wires a runner from its collaborators. The registry is
// injected so tests can substitute evaluators.
func NewRunner(cfg *appconfig.Config, source reader.HistoricalSource, registry *indicator.Registry) *Runner {
	return &Runner{
		config:   cfg,
		source:   source,
		registry: registry,
		log:      logger.GetLogger(),
	}
}

// Run scans the universe over the inclusive [start, end] date range and
// returns the run payload. It is an error to call Run concurrently on the
// same Runner.
func (r *Runner) Run(ctx context.Context, universe *appconfig.Universe, start, end string) (*models.RunPayload, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	log := r.log.WithComponent("scan_runner").WithFields(logger.Fields{"operation": "run"})

	lookbackDays, err := validateDateRange(start, end)
	if err != nil {
		return nil, err
	}

	instances, configIssues, err := r.resolveInstances()
	if err != nil {
		return nil, err
	}

	runStart := time.Now()
	runID := uuid.New().String()

	log.WithFields(logger.Fields{
		"run_id":    runID,
		"tickers":   len(universe.Tickers),
		"instances": len(instances),
		"start":     start,
		"end":       end,
	}).Info("starting scan run")

	ectx := r.fetchBenchmarks(ctx, universe, start, end, &configIssues)

	results := r.scanTickers(ctx, universe.Tickers, instances, ectx, start, end)

	var (
		summaries []models.TickerSummary
		signals   []models.Signal
		issues    []models.Issue
	)
	issues = append(issues, configIssues...)
	for _, t := range universe.Tickers {
		res := results[t]
		summaries = append(summaries, res.summary)
		signals = append(signals, res.signals...)
		issues = append(issues, res.issues...)
	}

	aggregates := ComputeBreadth(summaries)

	instanceIDs := make([]string, len(instances))
	for i, inst := range instances {
		instanceIDs[i] = inst.instanceID
	}

	payload := &models.RunPayload{
		RunMetadata: models.RunMetadata{
			RunID:              runID,
			RunTimestamp:       runStart.UTC().Format(time.RFC3339),
			Tickers:            universe.Tickers,
			LookbackDays:       lookbackDays,
			Interval:           r.config.Scan.Interval,
			StartDate:          start,
			EndDate:            end,
			DurationSeconds:    time.Since(runStart).Seconds(),
			IndicatorInstances: instanceIDs,
		},
		TickerSummaries: summaries,
		Signals:         signals,
		Aggregates:      aggregates,
		Issues:          issues,
	}

	log.WithFields(logger.Fields{
		"run_id":   runID,
		"signals":  len(signals),
		"issues":   len(issues),
		"duration": payload.RunMetadata.DurationSeconds,
	}).Info("scan run completed")
	logger.IncrementSignals(len(signals))
	metrics.ObserveRunDuration(payload.RunMetadata.DurationSeconds)

	return payload, nil
}

// validateDateRange checks both dates parse as ISO days and start is not
// after end, returning the inclusive span in days.
func validateDateRange(start, end string) (int, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return 0, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if s.After(e) {
		return 0, fmt.Errorf("start date %s is after end date %s", start, end)
	}
	return int(e.Sub(s).Hours()/24) + 1, nil
}

// resolveInstances turns the indicator configuration into evaluator
// instances. Unknown ids become issues so the rest of the scan proceeds;
// malformed criteria are fatal because every ticker would fail the same way.
func (r *Runner) resolveInstances() ([]instance, []models.Issue, error) {
	var (
		instances []instance
		issues    []models.Issue
	)
	ordinals := make(map[string]int)
	for _, cfg := range r.config.Indicators {
		ev, ok := r.registry.Lookup(cfg.ID)
		if !ok {
			r.log.WithComponent("scan_runner").WithFields(logger.Fields{"indicator": cfg.ID}).Warn("unknown indicator id")
			issues = append(issues, models.Issue{
				IndicatorID: cfg.ID,
				Issue:       models.IssueUnknownIndicator,
				Detail:      fmt.Sprintf("no evaluator registered for %q", cfg.ID),
			})
			continue
		}

		if _, err := criteria.ParseRules(cfg.Criteria); err != nil {
			return nil, nil, fmt.Errorf("indicator %q: %w", cfg.ID, err)
		}

		settings := make(indicator.Settings, len(cfg.Settings)+1)
		for k, v := range cfg.Settings {
			settings[k] = v
		}
		if cfg.Criteria != nil {
			settings["criteria"] = cfg.Criteria
		}

		instanceID := cfg.InstanceID
		if instanceID == "" {
			ordinals[cfg.ID]++
			instanceID = fmt.Sprintf("%s_%d", cfg.ID, ordinals[cfg.ID])
		}

		instances = append(instances, instance{
			id:         cfg.ID,
			instanceID: instanceID,
			evaluator:  ev,
			settings:   settings,
		})
	}
	return instances, issues, nil
}

// fetchBenchmarks pre-fetches every benchmark series once so workers share
// a read-only context. A failed benchmark fetch is recorded and the series
// omitted; relative-strength evaluators then degrade per ticker.
func (r *Runner) fetchBenchmarks(ctx context.Context, universe *appconfig.Universe, start, end string, issues *[]models.Issue) *indicator.Context {
	log := r.log.WithComponent("scan_runner")

	seen := make(map[string]struct{})
	var tickers []string
	for _, b := range append(append([]string{}, r.config.Scan.Benchmarks...), universe.Benchmarks...) {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		tickers = append(tickers, b)
	}

	ectx := &indicator.Context{
		BenchmarkSeries: make(map[string][]models.PriceBar, len(tickers)),
	}
	for _, b := range tickers {
		bars, err := r.source.History(ctx, b, start, end, r.config.Scan.Interval)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"benchmark": b}).Warn("benchmark fetch failed")
			*issues = append(*issues, models.Issue{
				Ticker: b,
				Issue:  models.IssueFetchError,
				Detail: err.Error(),
			})
			continue
		}
		ectx.BenchmarkTickers = append(ectx.BenchmarkTickers, b)
		ectx.BenchmarkSeries[b] = bars
	}
	return ectx
}

// scanTickers fans the universe over a bounded worker pool and returns the
// per-ticker results keyed by ticker.
func (r *Runner) scanTickers(ctx context.Context, tickers []string, instances []instance, ectx *indicator.Context, start, end string) map[string]*tickerResult {
	numWorkers := r.config.Scan.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(tickers) && len(tickers) > 0 {
		numWorkers = len(tickers)
	}

	buffer := r.config.Channels.TickerBuffer
	if buffer < 1 {
		buffer = 1
	}
	tickerCh := make(chan string, buffer)

	results := make(map[string]*tickerResult, len(tickers))
	var resMu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for t := range tickerCh {
				res := r.scanTicker(ctx, workerID, t, instances, ectx, start, end)
				resMu.Lock()
				results[t] = res
				resMu.Unlock()
			}
		}(i)
	}

	for _, t := range tickers {
		tickerCh <- t
	}
	close(tickerCh)
	wg.Wait()

	return results
}

// scanTicker processes one ticker end to end. Every failure is soft: it
// lands in the result's issue list while the scan moves on.
func (r *Runner) scanTicker(ctx context.Context, workerID int, ticker string, instances []instance, ectx *indicator.Context, start, end string) *tickerResult {
	log := r.log.WithComponent("scan_runner").WithFields(logger.Fields{
		"worker_id": workerID,
		"ticker":    ticker,
	})

	res := &tickerResult{}

	if ctx.Err() != nil {
		res.summary = models.TickerSummary{Ticker: ticker, IssueTags: []string{models.IssueRunCancelled}}
		res.issues = append(res.issues, models.Issue{
			Ticker: ticker,
			Issue:  models.IssueRunCancelled,
			Detail: "scan cancelled before ticker was processed",
		})
		return res
	}

	fetchStart := time.Now()
	bars, err := r.source.History(ctx, ticker, start, end, r.config.Scan.Interval)
	if err != nil {
		log.WithError(err).Warn("history fetch failed")
		metrics.IncrementError(models.IssueFetchError)
		res.summary = models.TickerSummary{Ticker: ticker, IssueTags: []string{models.IssueFetchError}}
		res.issues = append(res.issues, models.Issue{
			Ticker: ticker,
			Issue:  models.IssueFetchError,
			Detail: err.Error(),
		})
		return res
	}
	logger.LogPerformanceEntry(log, "scan_runner", "fetch_history", time.Since(fetchStart), logger.Fields{
		"bars": len(bars),
	})

	for _, inst := range instances {
		sigs, err := r.evaluateInstance(inst, bars, ectx)
		logger.IncrementEvaluation()
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"instance": inst.instanceID}).Warn("indicator evaluation failed")
			metrics.IncrementError(models.IssueIndicatorError)
			res.issues = append(res.issues, models.Issue{
				Ticker:      ticker,
				IndicatorID: inst.instanceID,
				Issue:       models.IssueIndicatorError,
				Detail:      err.Error(),
			})
			continue
		}
		metrics.IncrementSignals(inst.instanceID, len(sigs))
		for _, sig := range sigs {
			res.signals = append(res.signals, models.Signal{
				Ticker:          ticker,
				IndicatorID:     inst.instanceID,
				IndicatorType:   inst.id,
				IndicatorSignal: sig,
			})
		}
	}

	res.summary = summarizeTicker(ticker, bars)
	if len(res.summary.IssueTags) == 0 {
		metrics.IncrementScanned("clean")
	} else {
		metrics.IncrementScanned("issues")
	}
	for _, tag := range res.summary.IssueTags {
		res.issues = append(res.issues, models.Issue{Ticker: ticker, Issue: tag})
	}

	return res
}

// evaluateInstance runs one evaluator with panic isolation. A panicking
// evaluator must not take the whole run down with it.
func (r *Runner) evaluateInstance(inst instance, bars []models.PriceBar, ectx *indicator.Context) (sigs []models.IndicatorSignal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sigs = nil
			err = fmt.Errorf("evaluator %s panicked: %v", inst.instanceID, rec)
		}
	}()
	return inst.evaluator(bars, inst.settings, ectx)
}

// summarizeTicker derives the per-ticker summary from its normalized bars.
func summarizeTicker(ticker string, bars []models.PriceBar) models.TickerSummary {
	s := models.TickerSummary{
		Ticker:       ticker,
		SeriesLength: len(bars),
	}
	if len(bars) == 0 {
		s.IssueTags = append(s.IssueTags, models.IssueEmptySeries)
		return s
	}

	s.FirstDate = bars[0].Date
	s.LastDate = bars[len(bars)-1].Date

	last := bars[len(bars)-1].Close
	s.LastClose = &last

	if len(bars) < 2 {
		s.IssueTags = append(s.IssueTags, models.IssueMissingPriorClose)
		return s
	}

	prior := bars[len(bars)-2].Close
	s.PriorClose = &prior

	change := last - prior
	s.CloseChange = &change

	if prior == 0 {
		s.IssueTags = append(s.IssueTags, models.IssuePriorCloseZero)
		return s
	}
	pct := change / prior * 100
	s.CloseChangePct = &pct
	return s
}

// MetricRows flattens a run payload into persistence rows keyed by
// (scope, date, interval, metric). Signal counts are rolled up per
// indicator instance and the breadth aggregates stored under the
// "_breadth" scope.
func MetricRows(p *models.RunPayload) []models.MetricRow {
	meta := p.RunMetadata
	var rows []models.MetricRow

	add := func(scope, key string, value float64) {
		rows = append(rows, models.MetricRow{
			ScopeKey:  scope,
			AsOfDate:  meta.EndDate,
			Interval:  meta.Interval,
			MetricKey: key,
			Value:     value,
			RunID:     meta.RunID,
		})
	}

	for _, s := range p.TickerSummaries {
		if s.LastClose != nil {
			add(s.Ticker, "last_close", *s.LastClose)
		}
		if s.CloseChangePct != nil {
			add(s.Ticker, "close_change_pct", *s.CloseChangePct)
		}
	}

	counts := make(map[string]map[string]int)
	for _, sig := range p.Signals {
		byInst := counts[sig.Ticker]
		if byInst == nil {
			byInst = make(map[string]int)
			counts[sig.Ticker] = byInst
		}
		byInst[sig.IndicatorID]++
	}
	tickers := make([]string, 0, len(counts))
	for t := range counts {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		insts := make([]string, 0, len(counts[t]))
		for id := range counts[t] {
			insts = append(insts, id)
		}
		sort.Strings(insts)
		for _, id := range insts {
			add(t, "signals_"+id, float64(counts[t][id]))
		}
	}

	agg := p.Aggregates
	add("_breadth", "advances", float64(agg.Advances))
	add("_breadth", "declines", float64(agg.Declines))
	add("_breadth", "unchanged", float64(agg.Unchanged))
	add("_breadth", "net_advances", float64(agg.NetAdvances))
	if agg.AdvanceDeclineRatio != nil {
		add("_breadth", "advance_decline_ratio", *agg.AdvanceDeclineRatio)
	}
	if agg.AdvancePct != nil {
		add("_breadth", "advance_pct", *agg.AdvancePct)
	}

	return rows
}
