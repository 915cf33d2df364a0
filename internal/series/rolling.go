// Package series implements the rolling-window numeric primitives every
// indicator evaluator is built on. All functions are pure: they never
// mutate their input and always return a series aligned date-for-date
// with it.
//
// Early-bar behaviour is deliberately "neutral": averages and deviations
// fall back to 0.0 (a valid value) rather than propagating missingness,
// so downstream math never special-cases a warm-up period.
package series

import (
	"math"

	"signalflow/models"
)

// SMA returns the trailing simple moving average over windows of size at
// most period. Only non-missing values are averaged; a window with no
// valid value yields 0.0, not missing.
func SMA(pts []models.SeriesPoint, period int) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(pts))
	for i := range pts {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		sum, n := 0.0, 0
		for j := start; j <= i; j++ {
			if pts[j].Valid {
				sum += pts[j].Value
				n++
			}
		}
		v := 0.0
		if n > 0 {
			v = sum / float64(n)
		}
		out[i] = models.Point(pts[i].Date, v)
	}
	return out
}

// RollingSum returns the trailing sum over windows of size at most
// period, treating missing values as 0.0.
func RollingSum(pts []models.SeriesPoint, period int) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(pts))
	for i := range pts {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		sum := 0.0
		for j := start; j <= i; j++ {
			if pts[j].Valid {
				sum += pts[j].Value
			}
		}
		out[i] = models.Point(pts[i].Date, sum)
	}
	return out
}

// RollingStdDev returns the trailing population standard deviation
// (divide by N) over the valid values in the window. Fewer than 2 valid
// values yields 0.0.
func RollingStdDev(pts []models.SeriesPoint, period int) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(pts))
	for i := range pts {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		sum, n := 0.0, 0
		for j := start; j <= i; j++ {
			if pts[j].Valid {
				sum += pts[j].Value
				n++
			}
		}
		v := 0.0
		if n >= 2 {
			mean := sum / float64(n)
			ss := 0.0
			for j := start; j <= i; j++ {
				if pts[j].Valid {
					d := pts[j].Value - mean
					ss += d * d
				}
			}
			v = math.Sqrt(ss / float64(n))
		}
		out[i] = models.Point(pts[i].Date, v)
	}
	return out
}

// PercentChange returns (cur/prev - 1) * 100 over consecutive points.
// When either value is missing, or the prior value is zero, the result
// is 0.0 to keep early bars neutral.
func PercentChange(pts []models.SeriesPoint) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(pts))
	for i := range pts {
		v := 0.0
		if i > 0 && pts[i].Valid && pts[i-1].Valid && pts[i-1].Value != 0 {
			v = (pts[i].Value/pts[i-1].Value - 1) * 100
		}
		out[i] = models.Point(pts[i].Date, v)
	}
	return out
}

// Ref shifts a series by offset bars: offset < 0 looks backward (lag),
// offset > 0 looks forward (lead). Out-of-range references are missing.
// The result keeps the original dates.
func Ref(pts []models.SeriesPoint, offset int) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(pts))
	for i := range pts {
		j := i + offset
		if j < 0 || j >= len(pts) || !pts[j].Valid {
			out[i] = models.Missing(pts[i].Date)
			continue
		}
		out[i] = models.Point(pts[i].Date, pts[j].Value)
	}
	return out
}

// BarsSince reports, at each index, how many bars have elapsed since the
// condition was last true: 0 when true at the index itself. When the
// condition has never been true up to an index i the result is i+1, a
// 1-based count from the series start. Several oscillators depend on that
// exact value, so it is not a sentinel.
func BarsSince(cond []bool) []int {
	out := make([]int, len(cond))
	last := -1
	for i, c := range cond {
		if c {
			last = i
		}
		if last < 0 {
			out[i] = i + 1
			continue
		}
		out[i] = i - last
	}
	return out
}
