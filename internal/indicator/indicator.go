// Package indicator implements the five indicator evaluators and the
// static registry that maps configured indicator ids onto them.
//
// Every evaluator is a pure function over an already-fetched, immutable
// price series. Errors are reserved for malformed settings; insufficient
// history degrades to an empty signal list.
package indicator

import (
	"fmt"

	"signalflow/models"
)

// Context carries the read-only cross-ticker inputs an evaluator may
// need, populated once before any worker starts. Evaluators that do not
// use it simply ignore it.
type Context struct {
	BenchmarkTickers []string
	BenchmarkSeries  map[string][]models.PriceBar
}

// Evaluator computes signals for one ticker from its price bars.
type Evaluator func(bars []models.PriceBar, settings Settings, ectx *Context) ([]models.IndicatorSignal, error)

// Settings is the free-form per-instance configuration map loaded from
// the indicator instance config.
type Settings map[string]interface{}

// Int reads an integer setting, falling back to def when absent.
func (s Settings) Int(key string, def int) (int, error) {
	v, ok := s[key]
	if !ok {
		return def, nil
	}
	f, err := settingFloat(v)
	if err != nil {
		return 0, fmt.Errorf("setting %q: %w", key, err)
	}
	return int(f), nil
}

// PositiveInt is Int with a positivity check, the usual shape for
// lookbacks and periods.
func (s Settings) PositiveInt(key string, def int) (int, error) {
	n, err := s.Int(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("setting %q must be positive, got %d", key, n)
	}
	return n, nil
}

// Float reads a float setting, falling back to def when absent.
func (s Settings) Float(key string, def float64) (float64, error) {
	v, ok := s[key]
	if !ok {
		return def, nil
	}
	f, err := settingFloat(v)
	if err != nil {
		return 0, fmt.Errorf("setting %q: %w", key, err)
	}
	return f, nil
}

// Ints reads a list of positive integers, falling back to def when absent.
func (s Settings) Ints(key string, def []int) ([]int, error) {
	v, ok := s[key]
	if !ok {
		return def, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("setting %q: expected list, got %T", key, v)
	}
	out := make([]int, 0, len(items))
	for i, item := range items {
		f, err := settingFloat(item)
		if err != nil {
			return nil, fmt.Errorf("setting %q[%d]: %w", key, i, err)
		}
		n := int(f)
		if n <= 0 {
			return nil, fmt.Errorf("setting %q[%d] must be positive, got %d", key, i, n)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("setting %q must not be empty", key)
	}
	return out, nil
}

func settingFloat(v interface{}) (float64, error) {
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
