package domain

import "time"

// OddsFormat tags how a bookmaker price was quoted.
type OddsFormat string

const (
	OddsAmerican OddsFormat = "american"
	OddsDecimal  OddsFormat = "decimal"
)

// MarketType is the aggregator-side market classification. Only the
// types the scanner understands are parsed; everything else is skipped
// at ingest.
type MarketType string

const (
	MarketMoneyline MarketType = "h2h"
	MarketSpread    MarketType = "spreads"
	MarketTotal     MarketType = "totals"
)

// SportEvent is one scheduled game on the aggregator side.
type SportEvent struct {
	ID           string
	Sport        string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
}

// Quote is one bookmaker price for one selection of one event. Quotes
// are append-only: a newer capture never mutates an older row.
type Quote struct {
	Source     string
	Bookmaker  string
	EventID    string
	EventTitle string
	Sport      string
	MarketType MarketType
	Selection  string
	Format     OddsFormat
	Odds       float64
	// Point is the handicap/total line for spreads and totals; zero for
	// moneylines.
	Point      float64
	StartTime  time.Time
	CapturedAt time.Time
}

// Age returns the elapsed time since capture.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.CapturedAt)
}

// Stale reports whether the quote is older than maxAge.
func (q Quote) Stale(now time.Time, maxAge time.Duration) bool {
	return q.Age(now) > maxAge
}

// SameMarket reports whether other prices the same bookmaker market as
// q (same bookmaker, event and market type).
func (q Quote) SameMarket(other Quote) bool {
	return q.Bookmaker == other.Bookmaker &&
		q.EventID == other.EventID &&
		q.MarketType == other.MarketType
}
