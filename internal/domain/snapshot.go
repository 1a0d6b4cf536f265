package domain

import "time"

// Snapshot is one historical top-of-book capture, the unit the backtest
// harness and the mean-reversion strategy consume.
type Snapshot struct {
	Ticker         string
	Timestamp      time.Time
	LastPrice      int     // cents
	Bid            float64 // decimal
	Ask            float64
	Mid            float64
	SpreadCents    float64
	Volume24h      int
	BidDepth       int
	AskDepth       int
	DepthImbalance float64
	OrderbookJSON  string // optional serialized full book
}

// SnapshotFromBook derives a snapshot from the current top-of-book.
func SnapshotFromBook(c Contract, b TopOfBook) Snapshot {
	return Snapshot{
		Ticker:         c.Ticker,
		Timestamp:      b.CapturedAt,
		LastPrice:      c.LastPrice,
		Bid:            b.YesBid,
		Ask:            b.YesAsk,
		Mid:            b.Mid(),
		SpreadCents:    b.SpreadCents(),
		Volume24h:      c.Volume24h,
		BidDepth:       b.YesBidSize,
		AskDepth:       b.YesAskSize,
		DepthImbalance: DepthImbalance(b.YesBidSize, b.YesAskSize),
	}
}

// DepthImbalance is (bid − ask)/max(1, bid + ask), in [−1, 1].
func DepthImbalance(bidDepth, askDepth int) float64 {
	total := bidDepth + askDepth
	if total < 1 {
		total = 1
	}
	return float64(bidDepth-askDepth) / float64(total)
}

// MidCents returns the midpoint in cents.
func (s Snapshot) MidCents() float64 {
	return s.Mid * 100
}
