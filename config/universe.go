package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Universe defines the set of tickers a scan run covers. Benchmarks listed
// here are fetched in addition to the universe so relative-strength
// indicators always have their reference series available.
type Universe struct {
	Tickers    []string `yaml:"tickers"`
	Benchmarks []string `yaml:"benchmarks"`
}

// LoadUniverse loads a universe file from the given path. Tickers are
// upper-cased and de-duplicated while preserving order.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}
	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to parse universe file: %w", err)
	}
	u.Tickers = normalizeTickers(u.Tickers)
	u.Benchmarks = normalizeTickers(u.Benchmarks)
	if len(u.Tickers) == 0 {
		return nil, fmt.Errorf("universe file '%s' contains no tickers", path)
	}
	return &u, nil
}

func normalizeTickers(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
