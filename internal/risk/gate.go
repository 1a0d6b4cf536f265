// Package risk is the pre-trade gate and intraday accounting for the
// trading runner. One Gate instance covers one trading day.
package risk

import (
	"fmt"
	"math"
	"sync"

	"kalshi-edge/config"
	"kalshi-edge/internal/domain"
)

// Rejection reasons returned by Check.
const (
	ReasonDailyLossLimit   = "daily_loss_limit"
	ReasonTradeCapReached  = "trade_cap_reached"
	ReasonTooManyPositions = "too_many_positions"
	ReasonTotalExposure    = "total_exposure"
	ReasonMarketExposure   = "market_exposure"
	ReasonLowExpectedValue = "low_expected_value"
	ReasonLowConfidence    = "low_confidence"
	ReasonWeakBacktest     = "weak_backtest"
)

// Verdict is the outcome of a pre-trade check.
type Verdict struct {
	Allowed   bool
	Reason    string
	Contracts int
	Dollars   float64
}

// Gate holds the day's mutable risk state. All methods are safe for
// concurrent use; the runner resets the gate at cycle start.
type Gate struct {
	cfg config.RiskConfig

	mu              sync.Mutex
	realizedPnl     float64
	tradesToday     int
	pendingExposure float64
	positions       map[string]*domain.Position
	idempotency     map[string]bool
}

// NewGate builds a fresh gate for a trading day.
func NewGate(cfg config.RiskConfig) *Gate {
	return &Gate{
		cfg:         cfg,
		positions:   make(map[string]*domain.Position),
		idempotency: make(map[string]bool),
	}
}

// Reset clears the day's state for a new cycle.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.realizedPnl = 0
	g.tradesToday = 0
	g.pendingExposure = 0
	g.positions = make(map[string]*domain.Position)
	g.idempotency = make(map[string]bool)
}

// Check runs the pre-trade checks in order and, when they pass, sizes
// the trade. The returned verdict carries the first failing reason.
func (g *Gate) Check(sig domain.Signal, proposedDollars float64) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.realizedPnl < -g.cfg.MaxDailyLoss {
		return Verdict{Reason: ReasonDailyLossLimit}
	}
	if g.tradesToday >= g.cfg.MaxTradesPerDay {
		return Verdict{Reason: ReasonTradeCapReached}
	}
	if len(g.positions) >= g.cfg.MaxOpenPositions {
		return Verdict{Reason: ReasonTooManyPositions}
	}
	if g.totalExposureLocked()+g.pendingExposure+proposedDollars > g.cfg.MaxTotalExposure {
		return Verdict{Reason: ReasonTotalExposure}
	}
	if g.marketExposureLocked(sig.Ticker)+proposedDollars > g.cfg.MaxPerMarketExposure {
		return Verdict{Reason: ReasonMarketExposure}
	}
	if sig.ExpectedValue < g.cfg.MinExpectedValue {
		return Verdict{Reason: ReasonLowExpectedValue}
	}
	if sig.Confidence < g.cfg.ConfidenceThreshold {
		return Verdict{Reason: ReasonLowConfidence}
	}
	if sig.Backtest != nil {
		if sig.Backtest.WinRate < g.cfg.MinWinRate || sig.Backtest.Samples < g.cfg.MinBacktestSamples {
			return Verdict{Reason: ReasonWeakBacktest}
		}
	}

	dollars, contracts := g.sizeLocked(sig, proposedDollars)
	return Verdict{Allowed: true, Contracts: contracts, Dollars: dollars}
}

// sizeLocked converts the proposed dollars to integer contracts,
// fractional-Kelly when enabled.
func (g *Gate) sizeLocked(sig domain.Signal, proposedDollars float64) (float64, int) {
	e := float64(sig.EntryPrice)
	dollars := proposedDollars
	if g.cfg.KellyEnabled {
		p := sig.FairProb
		if sig.Side == domain.SideNo {
			p = 1 - sig.FairProb
		}
		b := (100 - e) / e
		f := math.Max(0, (p*b-(1-p))/b) * g.cfg.KellyFraction
		dollars = f * g.cfg.Bankroll
		dollars = math.Min(dollars, proposedDollars)
	} else {
		dollars = math.Min(dollars, g.cfg.DefaultPositionSize)
	}
	dollars = math.Min(dollars, g.cfg.MaxPerMarketExposure-g.marketExposureLocked(sig.Ticker))
	dollars = math.Min(dollars, g.cfg.MaxTotalExposure-g.totalExposureLocked()-g.pendingExposure)

	contracts := int(dollars * 100 / e)
	if contracts < 1 {
		contracts = 1
	}
	return dollars, contracts
}

// CheckIdempotency reports whether the key is fresh and, when it is,
// claims it. A false return means a duplicate; callers skip silently.
func (g *Gate) CheckIdempotency(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idempotency[key] {
		return false
	}
	g.idempotency[key] = true
	return true
}

// ReleaseIdempotency returns a claimed key so the same signal can be
// retried after a failed persist or submission.
func (g *Gate) ReleaseIdempotency(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.idempotency, key)
}

// RecordOrderSubmitted counts the trade and adds its notional to the
// pending exposure.
func (g *Gate) RecordOrderSubmitted(o domain.Order) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tradesToday++
	g.pendingExposure += o.NotionalDollars()
}

// RecordFill moves notional from pending into the per-ticker position,
// weighted-average on additions.
func (g *Gate) RecordFill(f domain.Fill) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pendingExposure -= f.Notional
	if g.pendingExposure < 0 {
		g.pendingExposure = 0
	}

	pos, ok := g.positions[f.Ticker]
	if !ok {
		pos = &domain.Position{Ticker: f.Ticker, Side: f.Side}
		g.positions[f.Ticker] = pos
	}
	pos.Add(f.Quantity, float64(f.Price))
	pos.Mark = float64(f.Price)
}

// RecordPnl credits realized P&L for a ticker and closes its position.
func (g *Gate) RecordPnl(ticker string, realized float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.realizedPnl += realized
	delete(g.positions, ticker)
}

// UpdateMark refreshes the mark used for unrealized P&L.
func (g *Gate) UpdateMark(ticker string, markCents float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pos, ok := g.positions[ticker]; ok {
		pos.Mark = markCents
	}
}

// Summary is the gate's end-of-day accounting view.
type Summary struct {
	RealizedPnl     float64
	UnrealizedPnl   float64
	TradesToday     int
	OpenPositions   int
	TotalExposure   float64
	PendingExposure float64
	Tickers         []string
}

// Snapshot returns the current accounting state.
func (g *Gate) Snapshot() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Summary{
		RealizedPnl:     g.realizedPnl,
		TradesToday:     g.tradesToday,
		OpenPositions:   len(g.positions),
		TotalExposure:   g.totalExposureLocked(),
		PendingExposure: g.pendingExposure,
	}
	for ticker, pos := range g.positions {
		s.UnrealizedPnl += pos.UnrealizedPnl()
		s.Tickers = append(s.Tickers, ticker)
	}
	return s
}

func (g *Gate) totalExposureLocked() float64 {
	var total float64
	for _, pos := range g.positions {
		total += pos.CostBasisDollars()
	}
	return total
}

func (g *Gate) marketExposureLocked(ticker string) float64 {
	if pos, ok := g.positions[ticker]; ok {
		return pos.CostBasisDollars()
	}
	return 0
}

// String renders the verdict for logs.
func (v Verdict) String() string {
	if v.Allowed {
		return fmt.Sprintf("allowed %d contracts ($%.2f)", v.Contracts, v.Dollars)
	}
	return "rejected: " + v.Reason
}
