package processor

import "signalflow/models"

// ComputeBreadth classifies every ticker summary by its close change and
// aggregates the advance/decline counts. Tickers without a computable
// change count as missing, never as unchanged. The ratio is nil when
// declines is zero and the percentage nil when no ticker was classifiable.
func ComputeBreadth(summaries []models.TickerSummary) models.BreadthAggregates {
	var agg models.BreadthAggregates
	for _, s := range summaries {
		if s.CloseChange == nil {
			agg.MissingTickerCount++
			continue
		}
		switch {
		case *s.CloseChange > 0:
			agg.Advances++
		case *s.CloseChange < 0:
			agg.Declines++
		default:
			agg.Unchanged++
		}
	}

	agg.NetAdvances = agg.Advances - agg.Declines
	agg.ValidTickerCount = agg.Advances + agg.Declines + agg.Unchanged

	if agg.Declines > 0 {
		ratio := float64(agg.Advances) / float64(agg.Declines)
		agg.AdvanceDeclineRatio = &ratio
	}
	if agg.ValidTickerCount > 0 {
		pct := float64(agg.Advances) / float64(agg.ValidTickerCount) * 100
		agg.AdvancePct = &pct
	}
	return agg
}
