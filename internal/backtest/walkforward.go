package backtest

import (
	"fmt"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/strategy"
)

// WalkForwardConfig controls fold partitioning and the validity gate.
type WalkForwardConfig struct {
	Folds              int // default 5
	MinTestSamples     int // minimum rows per fold, default 10
	MinBacktestSamples int
	MinWinRate         float64
	MaxDrawdown        float64
}

// WalkForwardResult aggregates fold backtests and carries the gate
// verdict. Valid means the harness ran; MeetsThresholds is the gate.
type WalkForwardResult struct {
	Ticker   string
	Strategy string

	Folds       int
	FoldsRun    int
	Trades      int
	Wins        int
	WinRate     float64
	TotalReturn float64
	MaxDrawdown float64
	MeanSharpe  float64

	Valid           bool
	MeetsThresholds bool
	FailureReason   string
}

// Stats converts the result into the summary attached to a signal.
func (r WalkForwardResult) Stats() *domain.BacktestStats {
	return &domain.BacktestStats{
		WinRate: r.WinRate,
		Samples: r.Trades,
		Sharpe:  r.MeanSharpe,
	}
}

// WalkForward partitions the snapshot series into sequential folds,
// backtests each fold independently, and aggregates.
func WalkForward(strat strategy.Strategy, ticker string, snapshots []domain.Snapshot, settlement *int, cfg WalkForwardConfig) WalkForwardResult {
	if cfg.Folds <= 0 {
		cfg.Folds = 5
	}
	if cfg.MinTestSamples <= 0 {
		cfg.MinTestSamples = 10
	}

	res := WalkForwardResult{Ticker: ticker, Strategy: strat.Name(), Folds: cfg.Folds}
	if len(snapshots) < cfg.MinTestSamples {
		res.FailureReason = fmt.Sprintf("only %d snapshots, need %d", len(snapshots), cfg.MinTestSamples)
		return res
	}

	foldSize := len(snapshots) / cfg.Folds
	if foldSize == 0 {
		foldSize = len(snapshots)
	}

	var sharpeSum float64
	for i := 0; i < cfg.Folds; i++ {
		lo := i * foldSize
		hi := lo + foldSize
		if i == cfg.Folds-1 {
			hi = len(snapshots)
		}
		if hi > len(snapshots) || hi-lo < cfg.MinTestSamples {
			continue
		}

		// Settlement only applies to the fold containing the series end.
		var foldSettlement *int
		if hi == len(snapshots) {
			foldSettlement = settlement
		}
		fold := Run(strat, ticker, snapshots[lo:hi], foldSettlement)
		if !fold.Valid {
			continue
		}
		res.FoldsRun++
		res.Trades += fold.Trades
		res.Wins += fold.Wins
		res.TotalReturn += fold.TotalReturn
		if fold.MaxDrawdown > res.MaxDrawdown {
			res.MaxDrawdown = fold.MaxDrawdown
		}
		sharpeSum += fold.Sharpe
	}

	if res.FoldsRun == 0 {
		res.FailureReason = "no fold produced trades"
		return res
	}
	res.Valid = true
	res.WinRate = float64(res.Wins) / float64(res.Trades)
	res.MeanSharpe = sharpeSum / float64(res.FoldsRun)

	res.MeetsThresholds, res.FailureReason = gate(res, cfg)
	return res
}

// gate checks the aggregate against the thresholds and names the first
// one that fails.
func gate(r WalkForwardResult, cfg WalkForwardConfig) (bool, string) {
	if r.Trades < cfg.MinBacktestSamples {
		return false, fmt.Sprintf("samples %d < %d", r.Trades, cfg.MinBacktestSamples)
	}
	if r.WinRate < cfg.MinWinRate {
		return false, fmt.Sprintf("win rate %.1f%% < %.1f%%", r.WinRate*100, cfg.MinWinRate*100)
	}
	if cfg.MaxDrawdown > 0 && r.MaxDrawdown > cfg.MaxDrawdown {
		return false, fmt.Sprintf("max drawdown %.1f%% > %.1f%%", r.MaxDrawdown*100, cfg.MaxDrawdown*100)
	}
	return true, ""
}
