package domain

import (
	"math"
	"time"
)

// Opportunity fuses every alert on the same (mapping key, direction)
// into one actionable row.
type Opportunity struct {
	MappingKey string
	ContractID string
	GameLabel  string
	Direction  Direction

	// Consensus across the participating books.
	BookFairProb float64 // median no-vig probability
	BookCount    int
	EdgeBps      float64 // median of the group
	EdgeCents    float64 // EdgeBps / 100

	BestBook      string
	BestBookOdds  string
	BestBookBps   float64
	WorstBook     string
	WorstBookBps  float64

	ExchangeAction string
	HedgeAction    string

	ExchangePrice float64
	MaxShares     int     // exchange leg liquidity
	PnlPer100     float64 // dollars per 100 shares at the median edge

	Confidence Confidence
	RankScore  float64
	AlertCount int
	URL        string
	ScannedAt  time.Time
}

// RankScore weights edge by available size and book agreement:
// edge_cents · √max(1, liquidity) · (1 + ln(1 + books)).
func RankScore(edgeCents float64, liquidity, bookCount int) float64 {
	liq := math.Max(1, float64(liquidity))
	return edgeCents * math.Sqrt(liq) * (1 + math.Log(1+float64(bookCount)))
}
