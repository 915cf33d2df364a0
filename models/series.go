package models

// SeriesPoint is the universal shape indicator math consumes and produces.
// A missing value is carried as Valid=false rather than a NaN sentinel, so
// "no value" is a first-class state distinct from zero.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Point builds a valid series point.
func Point(date string, value float64) SeriesPoint {
	return SeriesPoint{Date: date, Value: value, Valid: true}
}

// Missing builds a missing point for the given date.
func Missing(date string) SeriesPoint {
	return SeriesPoint{Date: date}
}
