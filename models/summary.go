package models

// Issue tags for soft failures recorded during a run.
const (
	IssueEmptySeries       = "empty_series"
	IssueMissingLastClose  = "missing_last_close"
	IssueMissingPriorClose = "missing_prior_close"
	IssuePriorCloseZero    = "prior_close_zero"
	IssueFetchError        = "fetch_error"
	IssueIndicatorError    = "indicator_error"
	IssueUnknownIndicator  = "unknown_indicator"
	IssueRunCancelled      = "run_cancelled"
)

// TickerSummary carries per-ticker run statistics. Close fields are nil
// when the underlying bar is absent; IssueTags lists the reasons.
type TickerSummary struct {
	Ticker         string   `json:"ticker"`
	SeriesLength   int      `json:"series_length"`
	FirstDate      string   `json:"first_date,omitempty"`
	LastDate       string   `json:"last_date,omitempty"`
	LastClose      *float64 `json:"last_close"`
	PriorClose     *float64 `json:"prior_close"`
	CloseChange    *float64 `json:"close_change"`
	CloseChangePct *float64 `json:"close_change_pct"`
	IssueTags      []string `json:"issues,omitempty"`
}

// Issue is a soft-failure record. It never aborts the run.
type Issue struct {
	Ticker      string `json:"ticker,omitempty"`
	IndicatorID string `json:"indicator_id,omitempty"`
	Issue       string `json:"issue"`
	Detail      string `json:"detail,omitempty"`
}
