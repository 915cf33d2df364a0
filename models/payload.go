package models

// RunMetadata describes one scan run.
type RunMetadata struct {
	RunID              string   `json:"run_id"`
	RunTimestamp       string   `json:"run_timestamp"`
	Tickers            []string `json:"tickers"`
	LookbackDays       int      `json:"lookback_days"`
	Interval           string   `json:"interval"`
	StartDate          string   `json:"start_date"`
	EndDate            string   `json:"end_date"`
	DurationSeconds    float64  `json:"duration_seconds"`
	IndicatorInstances []string `json:"indicator_instances"`
}

// BreadthAggregates holds the cross-sectional advance/decline statistics
// for one run. Ratio and percentage are nil where undefined.
type BreadthAggregates struct {
	Advances            int      `json:"advances"`
	Declines            int      `json:"declines"`
	Unchanged           int      `json:"unchanged"`
	NetAdvances         int      `json:"net_advances"`
	AdvanceDeclineRatio *float64 `json:"advance_decline_ratio"`
	AdvancePct          *float64 `json:"advance_pct"`
	ValidTickerCount    int      `json:"valid_ticker_count"`
	MissingTickerCount  int      `json:"missing_ticker_count"`
}

// RunPayload is the engine's sole externally visible artifact. It is
// created once per run, never mutated afterwards, and safe to serialize
// verbatim.
type RunPayload struct {
	RunMetadata     RunMetadata       `json:"run_metadata"`
	TickerSummaries []TickerSummary   `json:"ticker_summaries"`
	Signals         []Signal          `json:"signals"`
	Aggregates      BreadthAggregates `json:"aggregates"`
	Issues          []Issue           `json:"issues"`
}

// MetricRow is the shape the persistence collaborator upserts, keyed by
// (ScopeKey, AsOfDate, Interval, MetricKey).
type MetricRow struct {
	ScopeKey  string  `json:"scope_key"`
	AsOfDate  string  `json:"as_of_date"`
	Interval  string  `json:"interval"`
	MetricKey string  `json:"metric_key"`
	Value     float64 `json:"value"`
	RunID     string  `json:"run_id"`
}
