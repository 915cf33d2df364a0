package indicator

import "testing"

func TestROCAggregateAlternatingCrosses(t *testing.T) {
	settings := Settings{
		"roc_lookbacks":    []interface{}{1},
		"change_lookbacks": []interface{}{1},
		"ma_short":         2,
		"ma_long":          3,
	}
	sigs, err := EvaluateROCAggregate(barsFromCloses(10, 9, 8, 10, 12, 15, 14), settings, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := []struct {
		sigType string
		date    string
	}{
		{"cross_above_both", "2024-03-04"},
		{"cross_below_both", "2024-03-05"},
		{"cross_above_both", "2024-03-06"},
		{"cross_below_both", "2024-03-07"},
	}
	if len(sigs) != len(want) {
		t.Fatalf("expected %d signals, got %d: %+v", len(want), len(sigs), sigs)
	}
	for i, w := range want {
		if sigs[i].SignalType != w.sigType || sigs[i].SignalDate != w.date {
			t.Errorf("signal %d: got %s@%s want %s@%s",
				i, sigs[i].SignalType, sigs[i].SignalDate, w.sigType, w.date)
		}
	}
}

func TestROCAggregateVoidsShortSeries(t *testing.T) {
	// defaults need max(roc)=20 plus max(change)=5 bars of history
	sigs, err := EvaluateROCAggregate(barsFromCloses(1, 2, 3, 4, 5), Settings{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("short series must produce no partial scores, got %+v", sigs)
	}
}

func TestROCAggregateRejectsEmptyLookbackList(t *testing.T) {
	_, err := EvaluateROCAggregate(barsFromCloses(1, 2), Settings{"roc_lookbacks": []interface{}{}}, nil)
	if err == nil {
		t.Error("expected error for empty lookback list")
	}
}
