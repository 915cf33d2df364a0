package indicator

import (
	"fmt"
	"testing"

	"signalflow/models"
)

func barsFromCloses(closes ...float64) []models.PriceBar {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Date:   fmt.Sprintf("2024-03-%02d", i+1),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func TestROCCrossoverUpOnFinalDate(t *testing.T) {
	settings := Settings{
		"roc_lookback": 1,
		"criteria": map[string]interface{}{
			"type": "crossover", "level": 0.0, "direction": "both",
		},
	}
	sigs, err := EvaluateROC(barsFromCloses(100, 90, 95), settings, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	ups := 0
	for _, s := range sigs {
		if s.SignalType == "crossover_up" {
			ups++
			if s.SignalDate != "2024-03-03" {
				t.Errorf("crossover_up on %s, want final date", s.SignalDate)
			}
		}
	}
	if ups != 1 {
		t.Fatalf("expected exactly one crossover_up, got %d (all: %+v)", ups, sigs)
	}
}

func TestROCNoCriteriaNoSignals(t *testing.T) {
	sigs, err := EvaluateROC(barsFromCloses(100, 110, 120), Settings{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("signals without criteria: %+v", sigs)
	}
}

func TestROCMalformedSettingsFatal(t *testing.T) {
	if _, err := EvaluateROC(barsFromCloses(100), Settings{"roc_lookback": -1}, nil); err == nil {
		t.Error("expected error for non-positive lookback")
	}
	if _, err := EvaluateROC(barsFromCloses(100), Settings{"criteria": "bad"}, nil); err == nil {
		t.Error("expected error for malformed criteria")
	}
}

func TestROCEmptySeriesSoft(t *testing.T) {
	sigs, err := EvaluateROC(nil, Settings{}, nil)
	if err != nil || len(sigs) != 0 {
		t.Fatalf("empty series must degrade softly, got %v, %v", sigs, err)
	}
}

func TestRocStrictVoidsEarlyBars(t *testing.T) {
	pts := models.Closes(barsFromCloses(10, 11, 12))
	out := rocStrict(pts, 2)
	if out[0].Valid || out[1].Valid {
		t.Error("references before the lookback must be missing")
	}
	if !out[2].Valid {
		t.Error("full lookback reference must be valid")
	}
}
