package domain

import "time"

// Direction says which venue is mispriced relative to the other.
type Direction string

const (
	// ExchangeCheap: the exchange ask is below the books' fair value;
	// buy the exchange leg.
	ExchangeCheap Direction = "EXCHANGE_CHEAP"
	// ExchangeRich: the exchange bid is above the books' fair value;
	// sell the exchange leg.
	ExchangeRich Direction = "EXCHANGE_RICH"
)

// Confidence is the coarse tier derived from the confidence score.
type Confidence string

const (
	ConfidenceLow  Confidence = "LOW"
	ConfidenceMed  Confidence = "MED"
	ConfidenceHigh Confidence = "HIGH"
)

// ConfidenceTier maps a score in [0,1] onto a tier. Boundaries are
// 0.50 and 0.75.
func ConfidenceTier(score float64) Confidence {
	switch {
	case score >= 0.75:
		return ConfidenceHigh
	case score >= 0.50:
		return ConfidenceMed
	default:
		return ConfidenceLow
	}
}

// Alert is one dislocation between the exchange and one bookmaker, in
// one direction. Immutable once emitted.
type Alert struct {
	ID         string
	MappingKey string
	ContractID string
	Direction  Direction

	EdgeBps         float64
	Confidence      Confidence
	ConfidenceScore float64

	// Exchange leg at emission time.
	ExchangePrice float64 // decimal, the adjusted buy/sell price
	ExchangeSize  int     // contracts available at that leg

	// Bookmaker leg.
	Bookmaker  string
	Selection  string
	BookProb   float64 // no-vig, pre-friction
	OddsString string  // display form preserving the source format
	Overround  float64

	ExchangeAge time.Duration
	QuoteAge    time.Duration
	Notes       string
	EmittedAt   time.Time
}
