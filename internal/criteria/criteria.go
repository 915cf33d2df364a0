// Package criteria implements the generic rule interpreter applied to
// named numeric series. Simpler indicators delegate their entire signal
// logic to it instead of hand-writing crossover/threshold checks.
package criteria

import (
	"fmt"

	"signalflow/models"
)

// RuleKind enumerates the supported rule types.
type RuleKind int

const (
	Crossover RuleKind = iota
	Threshold
	Direction
)

func (k RuleKind) String() string {
	switch k {
	case Crossover:
		return "crossover"
	case Threshold:
		return "threshold"
	case Direction:
		return "direction"
	default:
		return "unknown"
	}
}

// Rule is one parsed criteria rule. Series, when set, restricts the rule
// to the series with that name.
type Rule struct {
	Kind      RuleKind
	Series    string
	Level     float64
	Direction string // crossover: "up", "down" or "both"
	Op        string // threshold: ">", ">=", "<", "<="
	Lookback  int    // direction: bars between compared values
	Label     string
}

// ParseRules converts the raw `criteria` entry of an indicator settings
// map (a single rule object or a list of them) into validated rules.
// Any malformed rule is a fatal configuration error.
func ParseRules(raw interface{}) ([]Rule, error) {
	if raw == nil {
		return nil, nil
	}
	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items = []interface{}{v}
	default:
		return nil, fmt.Errorf("criteria must be a rule object or list, got %T", raw)
	}

	rules := make([]Rule, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("criteria[%d]: expected object, got %T", i, item)
		}
		r, err := parseRule(m)
		if err != nil {
			return nil, fmt.Errorf("criteria[%d]: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func parseRule(m map[string]interface{}) (Rule, error) {
	var r Rule

	kind, _ := m["type"].(string)
	switch kind {
	case "crossover":
		r.Kind = Crossover
	case "threshold":
		r.Kind = Threshold
	case "direction":
		r.Kind = Direction
	default:
		return r, fmt.Errorf("unknown rule type %q", kind)
	}

	r.Series, _ = m["series"].(string)
	r.Label, _ = m["label"].(string)
	if lvl, ok := m["level"]; ok {
		f, err := toFloat(lvl)
		if err != nil {
			return r, fmt.Errorf("level: %w", err)
		}
		r.Level = f
	}

	switch r.Kind {
	case Crossover:
		dir, _ := m["direction"].(string)
		if dir == "" {
			dir = "both"
		}
		if dir != "up" && dir != "down" && dir != "both" {
			return r, fmt.Errorf("invalid crossover direction %q", dir)
		}
		r.Direction = dir
	case Threshold:
		op, _ := m["op"].(string)
		switch op {
		case ">", ">=", "<", "<=":
			r.Op = op
		default:
			return r, fmt.Errorf("invalid threshold op %q", op)
		}
	case Direction:
		lb := 1
		if v, ok := m["lookback"]; ok {
			f, err := toFloat(v)
			if err != nil {
				return r, fmt.Errorf("lookback: %w", err)
			}
			lb = int(f)
		}
		if lb <= 0 {
			return r, fmt.Errorf("lookback must be positive, got %d", lb)
		}
		r.Lookback = lb
	}
	return r, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// Evaluate runs every rule applicable to the named series over its
// points, in rule order. Points with missing values are filtered out
// before any comparison.
func Evaluate(name string, pts []models.SeriesPoint, rules []Rule) []models.IndicatorSignal {
	valid := make([]models.SeriesPoint, 0, len(pts))
	for _, p := range pts {
		if p.Valid {
			valid = append(valid, p)
		}
	}

	var signals []models.IndicatorSignal
	for _, r := range rules {
		if r.Series != "" && r.Series != name {
			continue
		}
		switch r.Kind {
		case Crossover:
			signals = append(signals, evalCrossover(name, valid, r)...)
		case Threshold:
			signals = append(signals, evalThreshold(name, valid, r)...)
		case Direction:
			signals = append(signals, evalDirection(name, valid, r)...)
		}
	}
	return signals
}

func evalCrossover(name string, pts []models.SeriesPoint, r Rule) []models.IndicatorSignal {
	var out []models.IndicatorSignal
	for i := 1; i < len(pts); i++ {
		prior, cur := pts[i-1].Value, pts[i].Value
		up := prior <= r.Level && cur > r.Level
		down := prior >= r.Level && cur < r.Level

		var sigType string
		switch {
		case up && (r.Direction == "up" || r.Direction == "both"):
			sigType = "crossover_up"
		case down && (r.Direction == "down" || r.Direction == "both"):
			sigType = "crossover_down"
		default:
			continue
		}

		label := r.Label
		if label == "" {
			label = fmt.Sprintf("%s %s %g", name, sigType, r.Level)
		}
		out = append(out, models.IndicatorSignal{
			SignalDate: pts[i].Date,
			SignalType: sigType,
			Metadata: map[string]interface{}{
				"series":      name,
				"level":       r.Level,
				"prior_value": prior,
				"value":       cur,
				"label":       label,
			},
		})
	}
	return out
}

func evalThreshold(name string, pts []models.SeriesPoint, r Rule) []models.IndicatorSignal {
	var out []models.IndicatorSignal
	for _, p := range pts {
		hit := false
		switch r.Op {
		case ">":
			hit = p.Value > r.Level
		case ">=":
			hit = p.Value >= r.Level
		case "<":
			hit = p.Value < r.Level
		case "<=":
			hit = p.Value <= r.Level
		}
		if !hit {
			continue
		}
		label := r.Label
		if label == "" {
			label = fmt.Sprintf("%s %s %g", name, r.Op, r.Level)
		}
		out = append(out, models.IndicatorSignal{
			SignalDate: p.Date,
			SignalType: "threshold",
			Metadata: map[string]interface{}{
				"series": name,
				"op":     r.Op,
				"level":  r.Level,
				"value":  p.Value,
				"label":  label,
			},
		})
	}
	return out
}

func evalDirection(name string, pts []models.SeriesPoint, r Rule) []models.IndicatorSignal {
	var out []models.IndicatorSignal
	for i := r.Lookback; i < len(pts); i++ {
		prior, cur := pts[i-r.Lookback].Value, pts[i].Value
		var sigType string
		switch {
		case cur > prior:
			sigType = "direction_up"
		case cur < prior:
			sigType = "direction_down"
		default:
			sigType = "direction_flat"
		}
		label := r.Label
		if label == "" {
			label = fmt.Sprintf("%s %s over %d bars", name, sigType, r.Lookback)
		}
		out = append(out, models.IndicatorSignal{
			SignalDate: pts[i].Date,
			SignalType: sigType,
			Metadata: map[string]interface{}{
				"series":      name,
				"lookback":    r.Lookback,
				"prior_value": prior,
				"value":       cur,
				"label":       label,
			},
		})
	}
	return out
}
