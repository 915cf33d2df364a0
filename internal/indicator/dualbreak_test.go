package indicator

import (
	"testing"

	"signalflow/models"
)

func flatContext(n int) *Context {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 50
	}
	return &Context{
		BenchmarkTickers: []string{"BENCH"},
		BenchmarkSeries: map[string][]models.PriceBar{
			"BENCH": barsFromCloses(closes...),
		},
	}
}

func TestDualBreakoutEqualityNeverFires(t *testing.T) {
	// flat prices keep both legs constant, so the candidate always equals
	// the prior extreme and strict comparison must yield zero signals
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	settings := Settings{"lookback": 3}
	sigs, err := EvaluateDualBreakout(barsFromCloses(closes...), settings, flatContext(40))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("equality to the prior extreme fired: %+v", sigs)
	}
}

func TestDualBreakoutRequiresContext(t *testing.T) {
	if _, err := EvaluateDualBreakout(barsFromCloses(1, 2, 3), Settings{}, nil); err == nil {
		t.Error("expected error without benchmark context")
	}
}

func TestDualBreakoutShortSeriesSoft(t *testing.T) {
	sigs, err := EvaluateDualBreakout(barsFromCloses(1), Settings{}, flatContext(1))
	if err != nil || len(sigs) != 0 {
		t.Fatalf("short series must degrade softly, got %v, %v", sigs, err)
	}
}

func TestDualBreakoutMalformedSubSettings(t *testing.T) {
	_, err := EvaluateDualBreakout(barsFromCloses(1, 2, 3), Settings{"scl_settings": "nope"}, flatContext(3))
	if err == nil {
		t.Error("expected error for malformed sub settings")
	}
}

func TestRegistryHasAllIndicators(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{IDROC, IDROCAggregate, IDQRS, IDQRSV2, IDSCL, IDDualBreakout} {
		if _, ok := reg.Lookup(id); !ok {
			t.Errorf("missing evaluator for %s", id)
		}
	}
	if _, ok := reg.Lookup("macd"); ok {
		t.Error("unexpected evaluator for unregistered id")
	}
	if len(reg.IDs()) != 6 {
		t.Errorf("expected 6 registered ids, got %v", reg.IDs())
	}
}
