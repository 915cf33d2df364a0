package indicator

import (
	"fmt"

	"signalflow/internal/series"
	"signalflow/models"
)

type qrsVariant int

const (
	// qrsV1 gates the score to a hard zero when the window is too thin
	// or entirely one-sided.
	qrsV1 qrsVariant = iota
	// qrsV2 attenuates the score by a three-factor confidence term
	// instead of zeroing it.
	qrsV2
)

const (
	qrsSampleFloor    = 0.4  // minimum active-day fraction of the lookback
	qrsBalanceFloor   = 0.2  // floor for the up/down balance ratio
	qrsAlignPenalty   = 0.25 // confidence when excess and consistency disagree in sign
	qrsExcessStdFloor = 1e-4 // floor for the excess-return stddev normalizer
)

type qrsSettings struct {
	lookback     int
	deadbandMult float64
	consWeight   float64
	excessWeight float64
	mapPeriods   [3]int
	maShift      int
}

func readQRSSettings(settings Settings) (qrsSettings, error) {
	var s qrsSettings
	var err error
	if s.lookback, err = settings.PositiveInt("lookback", 60); err != nil {
		return s, err
	}
	if s.deadbandMult, err = settings.Float("deadband_mult", 0.5); err != nil {
		return s, err
	}
	if s.consWeight, err = settings.Float("cons_weight", 0.6); err != nil {
		return s, err
	}
	if s.excessWeight, err = settings.Float("excess_weight", 0.4); err != nil {
		return s, err
	}
	if s.mapPeriods[0], err = settings.PositiveInt("map1", 7); err != nil {
		return s, err
	}
	if s.mapPeriods[1], err = settings.PositiveInt("map2", 21); err != nil {
		return s, err
	}
	if s.mapPeriods[2], err = settings.PositiveInt("map3", 56); err != nil {
		return s, err
	}
	if s.maShift, err = settings.Int("ma_shift", 3); err != nil {
		return s, err
	}
	if s.maShift < 0 {
		return s, fmt.Errorf("setting %q must not be negative, got %d", "ma_shift", s.maShift)
	}
	return s, nil
}

func evaluateQRSVariant(variant qrsVariant) Evaluator {
	return func(bars []models.PriceBar, settings Settings, ectx *Context) ([]models.IndicatorSignal, error) {
		s, err := readQRSSettings(settings)
		if err != nil {
			return nil, err
		}
		if ectx == nil || len(ectx.BenchmarkSeries) == 0 {
			return nil, fmt.Errorf("qrs requires benchmark series in the evaluation context")
		}
		if len(bars) < 2 {
			return nil, nil
		}
		score := qrsScore(bars, s, variant, ectx)
		m1 := series.Ref(series.SMA(score, s.mapPeriods[0]), s.maShift)
		m2 := series.Ref(series.SMA(score, s.mapPeriods[1]), s.maShift)
		m3 := series.Ref(series.SMA(score, s.mapPeriods[2]), s.maShift)

		var signals []models.IndicatorSignal
		signals = append(signals, qrsZeroCrossSignals(score)...)
		signals = append(signals, qrsOverlayCrossSignals(m1, m2)...)
		signals = append(signals, qrsRegimeSignals(score, m1, m2, m3)...)
		return signals, nil
	}
}

// qrsScore computes the consistency/excess relative-strength score.
// Benchmark closes are aligned to the ticker's own dates; the benchmark
// return on a day is the equal-weighted average of the available
// benchmark returns.
func qrsScore(bars []models.PriceBar, s qrsSettings, variant qrsVariant, ectx *Context) []models.SeriesPoint {
	n := len(bars)
	stockRet := returnSeries(models.Closes(bars))

	benchRets := make([][]models.SeriesPoint, 0, len(ectx.BenchmarkSeries))
	for _, ticker := range benchmarkOrder(ectx) {
		aligned := alignCloses(bars, ectx.BenchmarkSeries[ticker])
		benchRets = append(benchRets, returnSeries(aligned))
	}

	benchRet := make([]models.SeriesPoint, n)
	for i := 0; i < n; i++ {
		sum, cnt := 0.0, 0
		for _, br := range benchRets {
			if br[i].Valid {
				sum += br[i].Value
				cnt++
			}
		}
		if cnt == 0 {
			benchRet[i] = models.Missing(bars[i].Date)
			continue
		}
		benchRet[i] = models.Point(bars[i].Date, sum/float64(cnt))
	}

	deadband := series.RollingStdDev(benchRet, s.lookback)

	// day state: +1 above the deadband, -1 below, 0 inactive
	state := make([]int, n)
	excess := make([]models.SeriesPoint, n)
	for i := 0; i < n; i++ {
		excess[i] = models.Missing(bars[i].Date)
		if !benchRet[i].Valid {
			continue
		}
		db := deadband[i].Value * s.deadbandMult
		switch {
		case benchRet[i].Value > db:
			state[i] = 1
		case benchRet[i].Value < -db:
			state[i] = -1
		}
		if stockRet[i].Valid {
			excess[i] = models.Point(bars[i].Date, stockRet[i].Value-benchRet[i].Value)
		}
	}

	excessStd := series.RollingStdDev(excess, s.lookback)

	score := make([]models.SeriesPoint, n)
	score[0] = models.Missing(bars[0].Date)
	for i := 1; i < n; i++ {
		start := i - s.lookback + 1
		if start < 0 {
			start = 0
		}
		var consSum float64
		var active, upDays, downDays int
		var upSum, downSum float64
		for j := start; j <= i; j++ {
			if state[j] == 0 || !excess[j].Valid {
				continue
			}
			active++
			if excess[j].Value > 0 {
				consSum++
			} else {
				consSum--
			}
			if state[j] > 0 {
				upDays++
				upSum += excess[j].Value
			} else {
				downDays++
				downSum += excess[j].Value
			}
		}

		denom := active
		if denom < 1 {
			denom = 1
		}
		consistency := consSum / float64(denom)

		var avgUp, avgDown float64
		if upDays > 0 {
			avgUp = upSum / float64(upDays)
		}
		if downDays > 0 {
			avgDown = downSum / float64(downDays)
		}
		stdFloor := excessStd[i].Value
		if stdFloor < qrsExcessStdFloor {
			stdFloor = qrsExcessStdFloor
		}
		rawExcess := avgUp/stdFloor + avgDown/stdFloor

		base := consistency*s.consWeight + rawExcess*s.excessWeight

		var v float64
		switch variant {
		case qrsV1:
			// hard gate: thin or one-sided windows score exactly zero
			minActive := int(qrsSampleFloor*float64(s.lookback) + 0.5)
			if active < minActive || upDays == 0 || downDays == 0 {
				v = 0
			} else {
				v = base
			}
		case qrsV2:
			v = base * qrsConfidence(active, upDays, downDays, s.lookback, rawExcess, consistency)
		}
		score[i] = models.Point(bars[i].Date, v)
	}
	return score
}

// qrsConfidence is the v2 three-factor confidence term: sample size,
// up/down balance and sign alignment between the raw excess and the
// consistency score.
func qrsConfidence(active, upDays, downDays, lookback int, rawExcess, consistency float64) float64 {
	activeFrac := float64(active) / float64(lookback)
	sample := activeFrac / qrsSampleFloor
	if sample > 1 {
		sample = 1
	}

	balance := 0.0
	hi, lo := upDays, downDays
	if lo > hi {
		hi, lo = lo, hi
	}
	if hi > 0 {
		balance = float64(lo) / float64(hi)
		if balance < qrsBalanceFloor {
			balance = qrsBalanceFloor
		}
	}

	align := 1.0
	if rawExcess*consistency < 0 {
		align = qrsAlignPenalty
	}
	return sample * balance * align
}

// qrsZeroCrossSignals fires on a zero crossing of the main score only
// when the three prior bars were all on the departing side. A single-bar
// flip does not fire.
func qrsZeroCrossSignals(score []models.SeriesPoint) []models.IndicatorSignal {
	valid := validPoints(score)
	var out []models.IndicatorSignal
	for i := 3; i < len(valid); i++ {
		cur := valid[i].Value
		var sigType string
		switch {
		case cur > 0 && valid[i-1].Value <= 0 && valid[i-2].Value <= 0 && valid[i-3].Value <= 0:
			sigType = "main_cross_above_zero_3d"
		case cur < 0 && valid[i-1].Value >= 0 && valid[i-2].Value >= 0 && valid[i-3].Value >= 0:
			sigType = "main_cross_below_zero_3d"
		default:
			continue
		}
		out = append(out, models.IndicatorSignal{
			SignalDate: valid[i].Date,
			SignalType: sigType,
			Metadata: map[string]interface{}{
				"value":       cur,
				"prior_value": valid[i-1].Value,
				"label":       "qrs confirmed zero cross",
			},
		})
	}
	return out
}

// qrsOverlayCrossSignals is the fast/slow overlay crossover family.
func qrsOverlayCrossSignals(m1, m2 []models.SeriesPoint) []models.IndicatorSignal {
	var out []models.IndicatorSignal
	for i := 1; i < len(m1); i++ {
		if !m1[i].Valid || !m2[i].Valid || !m1[i-1].Valid || !m2[i-1].Valid {
			continue
		}
		var sigType string
		switch {
		case m1[i].Value > m2[i].Value && m1[i-1].Value <= m2[i-1].Value:
			sigType = "ma1_cross_above_ma2"
		case m1[i].Value < m2[i].Value && m1[i-1].Value >= m2[i-1].Value:
			sigType = "ma1_cross_below_ma2"
		default:
			continue
		}
		out = append(out, models.IndicatorSignal{
			SignalDate: m1[i].Date,
			SignalType: sigType,
			Metadata: map[string]interface{}{
				"ma1":   m1[i].Value,
				"ma2":   m2[i].Value,
				"label": "qrs overlay cross",
			},
		})
	}
	return out
}

// qrsRegimeSignals requires all three overlays strictly on one side and
// the score crossing to strictly beyond all of them on that side,
// edge-triggered against the prior bar.
func qrsRegimeSignals(score, m1, m2, m3 []models.SeriesPoint) []models.IndicatorSignal {
	beyondUp := func(i int) bool {
		return score[i].Value > m1[i].Value && score[i].Value > m2[i].Value && score[i].Value > m3[i].Value
	}
	beyondDown := func(i int) bool {
		return score[i].Value < m1[i].Value && score[i].Value < m2[i].Value && score[i].Value < m3[i].Value
	}
	allValid := func(i int) bool {
		return score[i].Valid && m1[i].Valid && m2[i].Valid && m3[i].Valid
	}

	var out []models.IndicatorSignal
	for i := 1; i < len(score); i++ {
		if !allValid(i) || !allValid(i-1) {
			continue
		}
		allPos := m1[i].Value > 0 && m2[i].Value > 0 && m3[i].Value > 0
		allNeg := m1[i].Value < 0 && m2[i].Value < 0 && m3[i].Value < 0

		var sigType string
		switch {
		case allPos && beyondUp(i) && !beyondUp(i-1):
			sigType = "regime_cross_up"
		case allNeg && beyondDown(i) && !beyondDown(i-1):
			sigType = "regime_cross_down"
		default:
			continue
		}
		out = append(out, models.IndicatorSignal{
			SignalDate: score[i].Date,
			SignalType: sigType,
			Metadata: map[string]interface{}{
				"value": score[i].Value,
				"ma1":   m1[i].Value,
				"ma2":   m2[i].Value,
				"ma3":   m3[i].Value,
				"label": "qrs full regime cross",
			},
		})
	}
	return out
}

// returnSeries computes per-bar fractional returns; missing when either
// endpoint is unavailable or the prior close is zero.
func returnSeries(closes []models.SeriesPoint) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(closes))
	for i := range closes {
		if i == 0 || !closes[i].Valid || !closes[i-1].Valid || closes[i-1].Value == 0 {
			out[i] = models.Missing(closes[i].Date)
			continue
		}
		out[i] = models.Point(closes[i].Date, closes[i].Value/closes[i-1].Value-1)
	}
	return out
}

// alignCloses projects a benchmark's closes onto the ticker's dates.
func alignCloses(bars []models.PriceBar, bench []models.PriceBar) []models.SeriesPoint {
	byDate := make(map[string]float64, len(bench))
	for _, b := range bench {
		byDate[b.Date] = b.Close
	}
	out := make([]models.SeriesPoint, len(bars))
	for i, b := range bars {
		if c, ok := byDate[b.Date]; ok {
			out[i] = models.Point(b.Date, c)
			continue
		}
		out[i] = models.Missing(b.Date)
	}
	return out
}

func benchmarkOrder(ectx *Context) []string {
	if len(ectx.BenchmarkTickers) > 0 {
		return ectx.BenchmarkTickers
	}
	order := make([]string, 0, len(ectx.BenchmarkSeries))
	for t := range ectx.BenchmarkSeries {
		order = append(order, t)
	}
	return order
}

func validPoints(pts []models.SeriesPoint) []models.SeriesPoint {
	out := make([]models.SeriesPoint, 0, len(pts))
	for _, p := range pts {
		if p.Valid {
			out = append(out, p)
		}
	}
	return out
}
