package indicator

import (
	"fmt"

	"signalflow/internal/series"
	"signalflow/models"
)

// EvaluateROCAggregate builds the breadth oscillator: for every pair of
// (roc lookback, change lookback) it compares the current ROC value with
// the ROC value change-lookback bars earlier and awards +1/-1 per pair.
// Any missing input for any pair voids the date entirely; there are no
// partial scores. The raw composite is smoothed by two SMAs and signals
// fire when the composite crosses above or below both of them.
func EvaluateROCAggregate(bars []models.PriceBar, settings Settings, _ *Context) ([]models.IndicatorSignal, error) {
	rocLookbacks, err := settings.Ints("roc_lookbacks", []int{5, 10, 20})
	if err != nil {
		return nil, err
	}
	changeLookbacks, err := settings.Ints("change_lookbacks", []int{1, 3, 5})
	if err != nil {
		return nil, err
	}
	maShort, err := settings.PositiveInt("ma_short", 5)
	if err != nil {
		return nil, err
	}
	maLong, err := settings.PositiveInt("ma_long", 20)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}

	closes := models.Closes(bars)
	rocs := make(map[int][]models.SeriesPoint, len(rocLookbacks))
	for _, rl := range rocLookbacks {
		rocs[rl] = rocStrict(closes, rl)
	}

	composite := make([]models.SeriesPoint, len(bars))
	for i := range bars {
		score := 0
		void := false
		for _, rl := range rocLookbacks {
			r := rocs[rl]
			for _, cl := range changeLookbacks {
				j := i - cl
				if j < 0 || !r[i].Valid || !r[j].Valid {
					void = true
					break
				}
				switch {
				case r[i].Value > r[j].Value:
					score++
				case r[i].Value < r[j].Value:
					score--
				}
			}
			if void {
				break
			}
		}
		if void {
			composite[i] = models.Missing(bars[i].Date)
			continue
		}
		composite[i] = models.Point(bars[i].Date, float64(score))
	}

	smaShort := series.SMA(composite, maShort)
	smaLong := series.SMA(composite, maLong)

	aboveBoth := func(i int) bool {
		return smaShort[i].Valid && smaLong[i].Valid &&
			composite[i].Value > smaShort[i].Value && composite[i].Value > smaLong[i].Value
	}
	belowBoth := func(i int) bool {
		return smaShort[i].Valid && smaLong[i].Valid &&
			composite[i].Value < smaShort[i].Value && composite[i].Value < smaLong[i].Value
	}

	var signals []models.IndicatorSignal
	for i := 1; i < len(composite); i++ {
		if !composite[i].Valid || !composite[i-1].Valid {
			continue
		}
		var sigType string
		switch {
		case aboveBoth(i) && !aboveBoth(i-1):
			sigType = "cross_above_both"
		case belowBoth(i) && !belowBoth(i-1):
			sigType = "cross_below_both"
		default:
			continue
		}
		signals = append(signals, models.IndicatorSignal{
			SignalDate: composite[i].Date,
			SignalType: sigType,
			Metadata: map[string]interface{}{
				"value":    composite[i].Value,
				"ma_short": smaShort[i].Value,
				"ma_long":  smaLong[i].Value,
				"label":    fmt.Sprintf("breadth composite %s", sigType),
			},
		})
	}
	return signals, nil
}
