package model

import (
	"math"
	"time"
)

// RateSnapshot is the full set of exchange rates known for one calendar day,
// each expressed as units of currency per one unit of the base currency.
type RateSnapshot struct {
	Date        string             `json:"date"`
	Base        string             `json:"base"`
	Rates       map[string]float64 `json:"rates"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// Rate returns the usable rate for currency, if any.
func (s *RateSnapshot) Rate(currency string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	rate, ok := s.Rates[currency]
	if !ok || !UsableRate(rate) {
		return 0, false
	}
	return rate, true
}

// UsableRate reports whether rate can be divided by.
func UsableRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}
