package indicator

import (
	"fmt"

	"signalflow/internal/series"
	"signalflow/models"
)

// EvaluateDualBreakout independently recomputes the countdown's long
// smoothing line and the QRS fast overlay for the same ticker, aligns
// them by date, and fires only when both series strictly exceed their
// own trailing prior-window extremes on the same date. Equality to the
// prior extreme never counts as a breakout.
func EvaluateDualBreakout(bars []models.PriceBar, settings Settings, ectx *Context) ([]models.IndicatorSignal, error) {
	lookback, err := settings.PositiveInt("lookback", 7)
	if err != nil {
		return nil, err
	}
	sclSub, err := subSettings(settings, "scl_settings")
	if err != nil {
		return nil, err
	}
	qrsSub, err := subSettings(settings, "qrs_settings")
	if err != nil {
		return nil, err
	}
	scl, err := readSCLSettings(sclSub)
	if err != nil {
		return nil, err
	}
	qrs, err := readQRSSettings(qrsSub)
	if err != nil {
		return nil, err
	}
	if ectx == nil || len(ectx.BenchmarkSeries) == 0 {
		return nil, fmt.Errorf("dual breakout requires benchmark series in the evaluation context")
	}
	if len(bars) < 2 {
		return nil, nil
	}

	sclLine := series.SMA(sclCountdown(bars, scl), scl.maLong)
	score := qrsScore(bars, qrs, qrsV2, ectx)
	qrsLine := series.Ref(series.SMA(score, qrs.mapPeriods[0]), qrs.maShift)

	// intersect on dates where both legs have a value
	type legPoint struct {
		date     string
		scl, qrs float64
	}
	joint := make([]legPoint, 0, len(bars))
	for i := range bars {
		if sclLine[i].Valid && qrsLine[i].Valid {
			joint = append(joint, legPoint{date: bars[i].Date, scl: sclLine[i].Value, qrs: qrsLine[i].Value})
		}
	}

	var signals []models.IndicatorSignal
	for j := lookback; j < len(joint); j++ {
		sclHigh, sclLow := joint[j-lookback].scl, joint[j-lookback].scl
		qrsHigh, qrsLow := joint[j-lookback].qrs, joint[j-lookback].qrs
		for k := j - lookback + 1; k < j; k++ {
			if joint[k].scl > sclHigh {
				sclHigh = joint[k].scl
			}
			if joint[k].scl < sclLow {
				sclLow = joint[k].scl
			}
			if joint[k].qrs > qrsHigh {
				qrsHigh = joint[k].qrs
			}
			if joint[k].qrs < qrsLow {
				qrsLow = joint[k].qrs
			}
		}

		cur := joint[j]
		var sigType string
		switch {
		case cur.scl > sclHigh && cur.qrs > qrsHigh:
			sigType = "dual_breakout_up"
		case cur.scl < sclLow && cur.qrs < qrsLow:
			sigType = "dual_breakout_down"
		default:
			continue
		}
		signals = append(signals, models.IndicatorSignal{
			SignalDate: cur.date,
			SignalType: sigType,
			Metadata: map[string]interface{}{
				"scl_value": cur.scl,
				"qrs_value": cur.qrs,
				"scl_high":  sclHigh,
				"scl_low":   sclLow,
				"qrs_high":  qrsHigh,
				"qrs_low":   qrsLow,
				"label":     "dual indicator breakout",
			},
		})
	}
	return signals, nil
}

func subSettings(settings Settings, key string) (Settings, error) {
	v, ok := settings[key]
	if !ok {
		return Settings{}, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("setting %q: expected object, got %T", key, v)
	}
	return Settings(m), nil
}
