package domain

import "time"

// Position is the net open state for one ticker.
type Position struct {
	Ticker     string
	Side       OrderSide
	Quantity   int
	EntryPrice float64 // volume-weighted, cents
	Mark       float64 // current mark, cents
}

// CostBasisDollars returns entry price × quantity in dollars.
func (p Position) CostBasisDollars() float64 {
	return p.EntryPrice * float64(p.Quantity) / 100
}

// UnrealizedPnl returns the mark-to-market P&L in dollars. For a NO
// position a falling YES mark is a gain.
func (p Position) UnrealizedPnl() float64 {
	diff := p.Mark - p.EntryPrice
	if p.Side == OrderNo {
		diff = -diff
	}
	return diff * float64(p.Quantity) / 100
}

// UnrealizedPnlPct returns the unrealized P&L as a fraction of cost.
func (p Position) UnrealizedPnlPct() float64 {
	basis := p.CostBasisDollars()
	if basis == 0 {
		return 0
	}
	return p.UnrealizedPnl() / basis
}

// Add folds an additional fill into the position with weighted-average
// entry pricing.
func (p *Position) Add(qty int, price float64) {
	total := p.EntryPrice*float64(p.Quantity) + price*float64(qty)
	p.Quantity += qty
	if p.Quantity > 0 {
		p.EntryPrice = total / float64(p.Quantity)
	}
}

// DailyPnl is the per-local-date ledger row.
type DailyPnl struct {
	Date          time.Time
	Realized      float64
	Unrealized    float64
	Fees          float64
	TradesPlaced  int
	TradesFilled  int
	TradesWon     int
	TradesLost    int
	PeakExposure  float64
	EndExposure   float64
	MarketsTraded []string
}

// Total returns realized + unrealized − fees.
func (d DailyPnl) Total() float64 {
	return d.Realized + d.Unrealized - d.Fees
}

// WinRate returns wins over decided trades, 0 when none decided.
func (d DailyPnl) WinRate() float64 {
	decided := d.TradesWon + d.TradesLost
	if decided == 0 {
		return 0
	}
	return float64(d.TradesWon) / float64(decided)
}
