package models

import "testing"

func TestNormalizeBars(t *testing.T) {
	bars := []PriceBar{
		{Date: "2024-03-05", Close: 3},
		{Date: "2024-03-01", Close: 1},
		{Date: "2024-03-05", Close: 4},
		{Date: "2024-03-03", Close: 2},
	}

	out := NormalizeBars(bars)
	if len(out) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(out))
	}
	wantDates := []string{"2024-03-01", "2024-03-03", "2024-03-05"}
	for i, d := range wantDates {
		if out[i].Date != d {
			t.Errorf("bar %d: got date %s, want %s", i, out[i].Date, d)
		}
	}
	// The later duplicate for 2024-03-05 wins.
	if out[2].Close != 4 {
		t.Errorf("duplicate date: got close %v, want 4", out[2].Close)
	}
}

func TestNormalizeBarsEmpty(t *testing.T) {
	if out := NormalizeBars(nil); len(out) != 0 {
		t.Errorf("expected empty result, got %v", out)
	}
}

func TestCloses(t *testing.T) {
	pts := Closes([]PriceBar{{Date: "2024-03-01", Close: 1.5}})
	if len(pts) != 1 || !pts[0].Valid || pts[0].Value != 1.5 || pts[0].Date != "2024-03-01" {
		t.Errorf("unexpected series: %v", pts)
	}
}
