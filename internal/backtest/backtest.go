// Package backtest replays snapshot history through a strategy and
// gates signals with walk-forward validation.
package backtest

import (
	"fmt"
	"math"
	"time"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/strategy"
)

// tradingDaysPerYear annualizes the per-trade Sharpe ratio.
const tradingDaysPerYear = 252

// Result is the outcome of one single-pass backtest.
type Result struct {
	Ticker   string
	Strategy string
	Start    time.Time
	End      time.Time

	Samples int
	Trades  int
	Wins    int
	WinRate float64

	TotalReturn  float64
	AvgReturn    float64
	MaxDrawdown  float64
	Sharpe       float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64

	// Valid is false when the input was too small to evaluate; Reason
	// explains.
	Valid  bool
	Reason string

	returns []float64
}

// Run replays the snapshots in order through the strategy. Each
// actionable signal becomes a synthetic trade entered at the signal's
// price and exited at the very next snapshot's mid; a trade signalled on
// the final snapshot exits at the settlement value when one is given,
// otherwise it is dropped.
func Run(strat strategy.Strategy, ticker string, snapshots []domain.Snapshot, settlement *int) Result {
	res := Result{Ticker: ticker, Strategy: strat.Name(), Samples: len(snapshots)}
	if len(snapshots) < 2 {
		res.Reason = fmt.Sprintf("need at least 2 snapshots, got %d", len(snapshots))
		return res
	}
	res.Start = snapshots[0].Timestamp
	res.End = snapshots[len(snapshots)-1].Timestamp

	contract := domain.Contract{Ticker: ticker, Status: domain.StatusActive, Settlement: -1}
	for i, snap := range snapshots {
		sig := strat.Evaluate(contract, snap, snapshots[:i])
		if !sig.Actionable() || !strat.ValidateSignal(sig) {
			continue
		}

		var exitCents float64
		switch {
		case i+1 < len(snapshots):
			exitCents = snapshots[i+1].MidCents()
		case settlement != nil:
			exitCents = float64(*settlement * 100)
		default:
			continue
		}

		res.returns = append(res.returns, tradeReturn(sig, exitCents))
	}

	res.finalize()
	return res
}

// tradeReturn is the fractional P&L of one synthetic trade.
func tradeReturn(sig domain.Signal, exitYesCents float64) float64 {
	entry := float64(sig.EntryPrice)
	exit := exitYesCents
	if sig.Side == domain.SideNo {
		exit = 100 - exitYesCents
	}
	return (exit - entry) / entry
}

func (r *Result) finalize() {
	r.Trades = len(r.returns)
	if r.Trades == 0 {
		r.Reason = "no trades generated"
		return
	}
	r.Valid = true

	var sum, winSum, lossSum float64
	var losses int
	cumulative, peak := 0.0, 0.0
	for _, ret := range r.returns {
		sum += ret
		if ret > 0 {
			r.Wins++
			winSum += ret
		} else {
			losses++
			lossSum += ret
		}
		cumulative += ret
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
		}
	}

	r.TotalReturn = sum
	r.AvgReturn = sum / float64(r.Trades)
	r.WinRate = float64(r.Wins) / float64(r.Trades)
	if r.Wins > 0 {
		r.AvgWin = winSum / float64(r.Wins)
	}
	if losses > 0 {
		r.AvgLoss = lossSum / float64(losses)
	}
	if lossSum != 0 {
		r.ProfitFactor = winSum / -lossSum
	} else if winSum > 0 {
		r.ProfitFactor = math.Inf(1)
	}
	r.Sharpe = sharpe(r.returns)
}

// sharpe annualizes mean/stdev of per-trade returns by √252.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return math.Sqrt(tradingDaysPerYear) * mean / math.Sqrt(variance)
}
