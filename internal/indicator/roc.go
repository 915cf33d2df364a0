package indicator

import (
	"signalflow/internal/criteria"
	"signalflow/models"
)

// EvaluateROC computes a rate-of-change series over the close price and
// delegates all signal decisions to the criteria engine.
func EvaluateROC(bars []models.PriceBar, settings Settings, _ *Context) ([]models.IndicatorSignal, error) {
	lookback, err := settings.PositiveInt("roc_lookback", 10)
	if err != nil {
		return nil, err
	}
	rules, err := criteria.ParseRules(settings["criteria"])
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	roc := rocNeutral(models.Closes(bars), lookback)
	return criteria.Evaluate("roc", roc, rules), nil
}

// rocNeutral is the percent change against the value lookback bars back,
// with the same neutral fallback as PercentChange: 0.0 when either value
// is unavailable or the prior value is zero.
func rocNeutral(pts []models.SeriesPoint, lookback int) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(pts))
	for i := range pts {
		v := 0.0
		if j := i - lookback; j >= 0 && pts[i].Valid && pts[j].Valid && pts[j].Value != 0 {
			v = (pts[i].Value/pts[j].Value - 1) * 100
		}
		out[i] = models.Point(pts[i].Date, v)
	}
	return out
}

// rocStrict marks unavailable references as missing instead of neutral.
// The breadth oscillator needs that distinction to void partial scores.
func rocStrict(pts []models.SeriesPoint, lookback int) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(pts))
	for i := range pts {
		j := i - lookback
		if j < 0 || !pts[i].Valid || !pts[j].Valid || pts[j].Value == 0 {
			out[i] = models.Missing(pts[i].Date)
			continue
		}
		out[i] = models.Point(pts[i].Date, (pts[i].Value/pts[j].Value-1)*100)
	}
	return out
}
