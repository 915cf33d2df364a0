package models

// IndicatorSignal is one event produced by an evaluator for one ticker.
// Metadata is free-form and carries levels, prior/current values and a
// human readable label. Duplicates across dates are expected.
type IndicatorSignal struct {
	SignalDate string                 `json:"signal_date"`
	SignalType string                 `json:"signal_type"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Signal is an IndicatorSignal enriched with its origin, the unit stored
// in the run payload.
type Signal struct {
	Ticker        string `json:"ticker"`
	IndicatorID   string `json:"indicator_id"`
	IndicatorType string `json:"indicator_type"`
	IndicatorSignal
}
