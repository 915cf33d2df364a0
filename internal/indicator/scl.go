package indicator

import (
	"signalflow/internal/series"
	"signalflow/models"
)

type sclSettings struct {
	lags      []int
	cdOffsets []int
	maShort   int
	maLong    int
	lookback  int
}

func readSCLSettings(settings Settings) (sclSettings, error) {
	var s sclSettings
	var err error
	if s.lags, err = settings.Ints("lags", []int{2, 3, 4, 5, 11}); err != nil {
		return s, err
	}
	if s.cdOffsets, err = settings.Ints("cd_offsets", []int{2, 5}); err != nil {
		return s, err
	}
	if s.maShort, err = settings.PositiveInt("ma_short", 5); err != nil {
		return s, err
	}
	if s.maLong, err = settings.PositiveInt("ma_long", 13); err != nil {
		return s, err
	}
	if s.lookback, err = settings.PositiveInt("lookback", 7); err != nil {
		return s, err
	}
	return s, nil
}

// EvaluateSCL computes the sequential/countdown oscillator: summed
// up-streaks minus down-streaks against several lagged closes, adjusted
// by the countdown qualifiers, then checked against the trailing window
// of prior values for fresh highs and lows.
func EvaluateSCL(bars []models.PriceBar, settings Settings, _ *Context) ([]models.IndicatorSignal, error) {
	s, err := readSCLSettings(settings)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}

	countdown := sclCountdown(bars, s)
	maShort := series.SMA(countdown, s.maShort)
	maLong := series.SMA(countdown, s.maLong)

	var signals []models.IndicatorSignal
	for i := s.lookback; i < len(countdown); i++ {
		winMax, winMin := countdown[i-s.lookback].Value, countdown[i-s.lookback].Value
		for j := i - s.lookback + 1; j < i; j++ {
			if countdown[j].Value > winMax {
				winMax = countdown[j].Value
			}
			if countdown[j].Value < winMin {
				winMin = countdown[j].Value
			}
		}
		cur := countdown[i].Value

		emit := func(sigType string, extreme float64) {
			signals = append(signals, models.IndicatorSignal{
				SignalDate: countdown[i].Date,
				SignalType: sigType,
				Metadata: map[string]interface{}{
					"value":          cur,
					"window_extreme": extreme,
					"ma_short":       maShort[i].Value,
					"ma_long":        maLong[i].Value,
					"label":          "countdown " + sigType,
				},
			})
		}
		if cur >= winMax {
			emit("seven_bar_high", winMax)
		}
		if cur <= winMin {
			emit("seven_bar_low", winMin)
		}
	}
	return signals, nil
}

// sclCountdown builds the raw countdown series. Streak lengths come from
// BarsSince over the "not up"/"not down" conditions, so a comparison
// that has never failed counts from the series start.
func sclCountdown(bars []models.PriceBar, s sclSettings) []models.SeriesPoint {
	n := len(bars)
	seq := make([]int, n)
	for _, lag := range s.lags {
		notUp := make([]bool, n)
		notDown := make([]bool, n)
		for i := 0; i < n; i++ {
			up, down := false, false
			if j := i - lag; j >= 0 {
				up = bars[i].Close > bars[j].Close
				down = bars[i].Close < bars[j].Close
			}
			notUp[i] = !up
			notDown[i] = !down
		}
		upStreak := series.BarsSince(notUp)
		downStreak := series.BarsSince(notDown)
		for i := 0; i < n; i++ {
			seq[i] += upStreak[i] - downStreak[i]
		}
	}

	out := make([]models.SeriesPoint, n)
	for i := 0; i < n; i++ {
		v := seq[i]
		for _, off := range s.cdOffsets {
			j := i - off
			if j < 0 {
				continue
			}
			if bars[i].Close >= bars[j].High {
				v++
			}
			if bars[i].Close <= bars[j].Low {
				v--
			}
		}
		out[i] = models.Point(bars[i].Date, float64(v))
	}
	return out
}
