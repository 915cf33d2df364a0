package indicator

import "testing"

func TestSCLCountdownRisingCloses(t *testing.T) {
	s, err := readSCLSettings(Settings{"lags": []interface{}{1}, "cd_offsets": []interface{}{1}})
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	bars := barsFromCloses(1, 2, 3, 4)
	out := sclCountdown(bars, s)
	// up streak grows 0,1,2,3; down streak stays 0 after index 0 flips to
	// "not down" forever, so BarsSince counts from the last not-down bar.
	// With flat OHLC rows close >= prior high also adds the qualifier.
	for i := 1; i < len(out); i++ {
		if out[i].Value <= out[i-1].Value {
			t.Errorf("countdown must rise with the streak: %v", out)
			break
		}
	}
}

func TestSCLNeverTrueStreakCountsFromStart(t *testing.T) {
	// closes strictly falling: the up condition never holds, so notUp is
	// always true and the up streak stays 0 while the down streak grows.
	s, err := readSCLSettings(Settings{"lags": []interface{}{1}, "cd_offsets": []interface{}{1}})
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	out := sclCountdown(barsFromCloses(5, 4, 3, 2), s)
	if out[len(out)-1].Value >= 0 {
		t.Errorf("falling closes must drive the countdown negative: %v", out)
	}
}

func TestSCLWindowExtremeSignals(t *testing.T) {
	settings := Settings{
		"lags":       []interface{}{1},
		"cd_offsets": []interface{}{1},
		"lookback":   3,
	}
	sigs, err := EvaluateSCL(barsFromCloses(1, 2, 3, 4, 5, 6), settings, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(sigs) == 0 {
		t.Fatal("rising closes must print fresh window highs")
	}
	for _, sig := range sigs {
		if sig.SignalType != "seven_bar_high" {
			t.Errorf("unexpected %s on a monotone rise", sig.SignalType)
		}
	}
	// prior-window-only: the first eligible bar is index lookback
	if sigs[0].SignalDate != "2024-03-04" {
		t.Errorf("first signal on %s, want 2024-03-04", sigs[0].SignalDate)
	}
}

func TestSCLEmptySeries(t *testing.T) {
	sigs, err := EvaluateSCL(nil, Settings{}, nil)
	if err != nil || len(sigs) != 0 {
		t.Fatalf("empty series must degrade softly, got %v, %v", sigs, err)
	}
}

func TestSCLFlatSeriesFiresBothExtremes(t *testing.T) {
	settings := Settings{"lookback": 2}
	sigs, err := EvaluateSCL(barsFromCloses(5, 5, 5, 5), settings, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var highs, lows int
	for _, sig := range sigs {
		switch sig.SignalType {
		case "seven_bar_high":
			highs++
		case "seven_bar_low":
			lows++
		}
	}
	if highs == 0 || lows == 0 {
		t.Errorf("flat countdown equals both extremes (>=/<=): highs=%d lows=%d", highs, lows)
	}
}
