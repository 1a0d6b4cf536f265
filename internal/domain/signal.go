package domain

import "time"

// SignalSide is the direction a strategy wants to trade. SideNone means
// the strategy evaluated the market and declined.
type SignalSide string

const (
	SideYes  SignalSide = "yes"
	SideNo   SignalSide = "no"
	SideNone SignalSide = "none"
)

// Signal is a strategy's verdict on one contract at one instant.
type Signal struct {
	Strategy   string
	Ticker     string
	Side       SignalSide
	Confidence float64 // [0,1]

	FairProb      float64
	MarketProb    float64
	Edge          float64
	ExpectedValue float64
	EntryPrice    int // cents

	Features  map[string]float64
	Reasoning string
	CreatedAt time.Time

	// Set by the walk-forward validator, nil until validated.
	Backtest *BacktestStats
}

// Actionable reports whether the signal proposes a trade.
func (s Signal) Actionable() bool {
	return s.Side == SideYes || s.Side == SideNo
}

// BacktestStats is the validation summary attached to a signal after
// walk-forward evaluation.
type BacktestStats struct {
	WinRate float64
	Samples int
	Sharpe  float64
}
