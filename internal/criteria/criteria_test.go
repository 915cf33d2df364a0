package criteria

import (
	"fmt"
	"testing"

	"signalflow/models"
)

func pts(vals ...float64) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(vals))
	for i, v := range vals {
		out[i] = models.Point(fmt.Sprintf("2024-02-%02d", i+1), v)
	}
	return out
}

func TestParseRulesSingleObject(t *testing.T) {
	rules, err := ParseRules(map[string]interface{}{"type": "crossover", "level": 0.0})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rules) != 1 || rules[0].Kind != Crossover || rules[0].Direction != "both" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}

func TestParseRulesRejectsMalformed(t *testing.T) {
	cases := []interface{}{
		map[string]interface{}{"type": "sideways"},
		map[string]interface{}{"type": "threshold", "op": "!="},
		map[string]interface{}{"type": "crossover", "direction": "diagonal"},
		map[string]interface{}{"type": "direction", "lookback": -2},
		"not a rule",
	}
	for i, c := range cases {
		if _, err := ParseRules(c); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestCrossoverBothDirections(t *testing.T) {
	rules := []Rule{{Kind: Crossover, Level: 0, Direction: "both"}}
	sigs := Evaluate("roc", pts(0, -10, 5.56), rules)
	var ups, downs int
	for _, s := range sigs {
		switch s.SignalType {
		case "crossover_up":
			ups++
			if s.SignalDate != "2024-02-03" {
				t.Errorf("crossover_up on %s, want final date", s.SignalDate)
			}
		case "crossover_down":
			downs++
		}
	}
	if ups != 1 {
		t.Errorf("expected exactly one crossover_up, got %d", ups)
	}
	if downs != 1 {
		t.Errorf("expected one crossover_down, got %d", downs)
	}
}

func TestCrossoverDirectionFilter(t *testing.T) {
	rules := []Rule{{Kind: Crossover, Level: 0, Direction: "up"}}
	sigs := Evaluate("x", pts(1, -1, 1, -1), rules)
	for _, s := range sigs {
		if s.SignalType != "crossover_up" {
			t.Errorf("unexpected %s with direction=up", s.SignalType)
		}
	}
	if len(sigs) != 1 {
		t.Errorf("expected 1 up cross, got %d", len(sigs))
	}
}

func TestThresholdFiresEveryHit(t *testing.T) {
	rules := []Rule{{Kind: Threshold, Op: ">=", Level: 5}}
	sigs := Evaluate("x", pts(4, 5, 6, 3, 9), rules)
	if len(sigs) != 3 {
		t.Fatalf("expected 3 threshold signals, got %d", len(sigs))
	}
}

func TestDirectionClassification(t *testing.T) {
	rules := []Rule{{Kind: Direction, Lookback: 2}}
	sigs := Evaluate("x", pts(1, 1, 3, 1, 3), rules)
	want := []string{"direction_up", "direction_flat", "direction_flat"}
	if len(sigs) != len(want) {
		t.Fatalf("expected %d signals, got %d", len(want), len(sigs))
	}
	for i, w := range want {
		if sigs[i].SignalType != w {
			t.Errorf("signal %d: got %s want %s", i, sigs[i].SignalType, w)
		}
	}
}

func TestMissingPointsFilteredBeforeEvaluation(t *testing.T) {
	in := pts(-1, 0, 1)
	in[1] = models.Missing(in[1].Date)
	rules := []Rule{{Kind: Crossover, Level: 0, Direction: "up"}}
	sigs := Evaluate("x", in, rules)
	// -1 at day1 and 1 at day3 are consecutive after filtering
	if len(sigs) != 1 || sigs[0].SignalDate != "2024-02-03" {
		t.Fatalf("expected single up cross on day 3, got %+v", sigs)
	}
}

func TestSeriesNameFilter(t *testing.T) {
	rules := []Rule{{Kind: Threshold, Op: ">", Level: 0, Series: "other"}}
	if sigs := Evaluate("x", pts(1, 2), rules); len(sigs) != 0 {
		t.Fatalf("rule for another series must be skipped, got %d signals", len(sigs))
	}
}
