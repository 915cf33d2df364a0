package models

import "sort"

// PriceBar is one normalized daily (or intraday) OHLCV record for a ticker.
// Date is an ISO YYYY-MM-DD string so lexical order equals calendar order.
type PriceBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// NormalizeBars sorts bars ascending by date and drops duplicate dates,
// keeping the last bar seen for each date. Every indicator assumes this
// ordering, so it runs once per fetch before any computation.
func NormalizeBars(bars []PriceBar) []PriceBar {
	if len(bars) == 0 {
		return bars
	}
	sorted := make([]PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date < sorted[j].Date
	})
	out := sorted[:0]
	for _, b := range sorted {
		if n := len(out); n > 0 && out[n-1].Date == b.Date {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// Closes extracts the close prices as a series.
func Closes(bars []PriceBar) []SeriesPoint {
	pts := make([]SeriesPoint, len(bars))
	for i, b := range bars {
		pts[i] = Point(b.Date, b.Close)
	}
	return pts
}
