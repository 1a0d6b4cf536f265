package domain

import "time"

// ContractStatus is the exchange-reported lifecycle state of a contract.
type ContractStatus string

const (
	StatusActive  ContractStatus = "active"
	StatusClosed  ContractStatus = "closed"
	StatusSettled ContractStatus = "settled"
)

// Contract is a binary-outcome market on the exchange. Prices clear at
// 0 or 100 cents.
type Contract struct {
	Ticker       string
	EventTicker  string
	SeriesTicker string
	Title        string
	Category     string
	Status       ContractStatus
	CloseTime    time.Time
	LastPrice    int // cents, 0 when never traded
	Volume24h    int
	// Settlement is 0 or 1 once Status is settled, -1 before.
	Settlement int
	FetchedAt  time.Time
}

// IsTradeable reports whether the contract still accepts orders.
func (c Contract) IsTradeable() bool {
	return c.Status == StatusActive && c.Settlement < 0
}

// MinutesToClose returns the minutes remaining until close relative to now.
func (c Contract) MinutesToClose(now time.Time) float64 {
	return c.CloseTime.Sub(now).Minutes()
}

// ExpiresOnUTCDate reports whether the contract closes on the same UTC
// calendar date as ref. Local times are presentational only.
func (c Contract) ExpiresOnUTCDate(ref time.Time) bool {
	y1, m1, d1 := c.CloseTime.UTC().Date()
	y2, m2, d2 := ref.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// TopOfBook is the best bid/ask of a contract at a capture instant.
// Prices are decimals in [0,1]; sizes are contracts.
type TopOfBook struct {
	Ticker     string
	YesBid     float64
	YesAsk     float64
	YesBidSize int
	YesAskSize int
	NoBid      float64
	NoAsk      float64
	NoBidSize  int
	NoAskSize  int
	CapturedAt time.Time
}

// Valid reports whether the book can be used for comparison: both YES
// sides present with positive size and bid strictly under ask.
func (b TopOfBook) Valid() bool {
	if b.YesBid <= 0 || b.YesAsk <= 0 {
		return false
	}
	if b.YesBidSize <= 0 || b.YesAskSize <= 0 {
		return false
	}
	return b.YesBid < b.YesAsk
}

// Age returns the elapsed time since capture.
func (b TopOfBook) Age(now time.Time) time.Duration {
	return now.Sub(b.CapturedAt)
}

// Stale reports whether the book is older than maxAge.
func (b TopOfBook) Stale(now time.Time, maxAge time.Duration) bool {
	return b.Age(now) > maxAge
}

// Mid returns the YES midpoint price.
func (b TopOfBook) Mid() float64 {
	return (b.YesBid + b.YesAsk) / 2
}

// SpreadCents returns the YES spread in cents.
func (b TopOfBook) SpreadCents() float64 {
	return (b.YesAsk - b.YesBid) * 100
}
