// Package runner drives the daily trading cycle: discovery, snapshots,
// strategy evaluation, walk-forward validation, risk-gated execution
// and reporting.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"kalshi-edge/config"
	"kalshi-edge/internal/backtest"
	"kalshi-edge/internal/discovery"
	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/orders"
	"kalshi-edge/internal/ports"
	"kalshi-edge/internal/risk"
	"kalshi-edge/internal/snapshotter"
	"kalshi-edge/internal/strategy"
)

// History windows for evaluation and validation.
const (
	evalHistoryDays       = 7
	validationHistoryDays = 30
)

// Runner owns one trading cycle end to end.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger

	discoverer  *discovery.Discoverer
	snapshotter *snapshotter.Snapshotter
	registry    strategy.Registry
	gate        *risk.Gate
	manager     *orders.Manager
	orderStore  ports.OrderStore
	exchange    ports.ExchangeClient
	alerts      ports.AlertChannel

	now func() time.Time
}

// New wires a runner. The alert channel may be nil.
func New(cfg *config.Config, logger *slog.Logger, d *discovery.Discoverer, s *snapshotter.Snapshotter, registry strategy.Registry, gate *risk.Gate, manager *orders.Manager, orderStore ports.OrderStore, exchange ports.ExchangeClient, alerts ports.AlertChannel) *Runner {
	return &Runner{
		cfg:         cfg,
		logger:      logger,
		discoverer:  d,
		snapshotter: s,
		registry:    registry,
		gate:        gate,
		manager:     manager,
		orderStore:  orderStore,
		exchange:    exchange,
		alerts:      alerts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CycleResult summarizes one run for the report.
type CycleResult struct {
	Date       time.Time
	Discovered int
	Snapshots  int
	Signals    int
	Validated  int
	Placed     []domain.Order
	Errors     []string
	Duration   time.Duration
}

// RunCycle executes one full trading cycle. Errors inside a step are
// captured into the result; cleanup always runs.
func (r *Runner) RunCycle(ctx context.Context) CycleResult {
	start := r.now()
	result := CycleResult{Date: start}
	r.gate.Reset()

	defer func() {
		result.Duration = r.now().Sub(start)
		r.report(ctx, &result)
		if err := r.exchange.Close(); err != nil {
			r.logger.Warn("exchange client close failed", "err", err)
		}
		r.logger.Info("cycle complete",
			"discovered", result.Discovered,
			"signals", result.Signals,
			"validated", result.Validated,
			"placed", len(result.Placed),
			"errors", len(result.Errors),
			"duration", result.Duration.Round(time.Millisecond))
	}()

	candidates, err := r.discoverer.Discover(ctx, start)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("discovery: %v", err))
		return result
	}
	result.Discovered = len(candidates)
	if len(candidates) == 0 {
		r.logger.Info("no tradeable markets")
		return result
	}

	tickers := make([]string, 0, len(candidates))
	for _, c := range candidates {
		tickers = append(tickers, c.Contract.Ticker)
	}
	snaps := r.snapshotter.SnapshotMany(ctx, tickers)
	result.Snapshots = len(snaps)
	current := make(map[string]domain.Snapshot, len(snaps))
	for _, s := range snaps {
		current[s.Ticker] = s
	}

	signals := r.evaluate(ctx, candidates, current, &result)
	result.Signals = len(signals)

	validated := r.validate(ctx, signals, &result)
	result.Validated = len(validated)

	r.execute(ctx, validated, &result)
	return result
}

// evaluate runs every (contract, strategy) pair over the current
// features plus recent history.
func (r *Runner) evaluate(ctx context.Context, candidates []discovery.Candidate, current map[string]domain.Snapshot, result *CycleResult) []domain.Signal {
	since := r.now().AddDate(0, 0, -evalHistoryDays)

	var signals []domain.Signal
	for _, cand := range candidates {
		features, ok := current[cand.Contract.Ticker]
		if !ok {
			continue
		}
		history, err := r.snapshotter.History(ctx, cand.Contract.Ticker, since)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("history %s: %v", cand.Contract.Ticker, err))
			continue
		}

		for _, strat := range r.registry.All() {
			sig := strat.Evaluate(cand.Contract, features, history)
			if sig.Actionable() && strat.ValidateSignal(sig) {
				signals = append(signals, sig)
			}
		}
	}
	return signals
}

// validate runs walk-forward validation over each candidate signal and
// keeps those meeting the thresholds.
func (r *Runner) validate(ctx context.Context, signals []domain.Signal, result *CycleResult) []domain.Signal {
	since := r.now().AddDate(0, 0, -validationHistoryDays)
	wfCfg := backtest.WalkForwardConfig{
		MinBacktestSamples: r.cfg.Risk.MinBacktestSamples,
		MinWinRate:         r.cfg.Risk.MinWinRate,
		MaxDrawdown:        r.cfg.Risk.MaxDrawdownPct,
	}

	var kept []domain.Signal
	for _, sig := range signals {
		strat, ok := r.registry.Get(sig.Strategy)
		if !ok {
			continue
		}
		history, err := r.snapshotter.History(ctx, sig.Ticker, since)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("validation history %s: %v", sig.Ticker, err))
			continue
		}

		wf := backtest.WalkForward(strat, sig.Ticker, history, nil, wfCfg)
		if !wf.Valid || !wf.MeetsThresholds {
			r.logger.Debug("signal failed validation",
				"ticker", sig.Ticker, "strategy", sig.Strategy, "reason", wf.FailureReason)
			continue
		}
		sig.Backtest = wf.Stats()
		kept = append(kept, sig)
	}
	return kept
}

// execute routes validated signals by expected value, best first,
// stopping at the day's trade cap.
func (r *Runner) execute(ctx context.Context, signals []domain.Signal, result *CycleResult) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].ExpectedValue > signals[j].ExpectedValue
	})

	for _, sig := range signals {
		if len(result.Placed) >= r.cfg.Risk.MaxTradesPerDay {
			r.logger.Info("daily trade cap reached", "cap", r.cfg.Risk.MaxTradesPerDay)
			return
		}
		order, err := r.manager.ProcessSignal(ctx, sig, 0)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("order %s: %v", sig.Ticker, err))
			continue
		}
		if order != nil {
			result.Placed = append(result.Placed, *order)
		}
	}
}

// Schedule runs the cycle every day at the configured local time until
// the context is cancelled.
func (r *Runner) Schedule(ctx context.Context) error {
	loc := r.cfg.Location()
	hour, minute, err := parseHHMM(r.cfg.Runner.DailyRunTime)
	if err != nil {
		return fmt.Errorf("runner.Schedule: %w", err)
	}

	c := cron.New(cron.WithLocation(loc))
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := c.AddFunc(spec, func() { r.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("runner.Schedule: %w", err)
	}

	r.logger.Info("runner scheduled",
		"daily_run_time", r.cfg.Runner.DailyRunTime, "timezone", r.cfg.Runner.Timezone)
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func parseHHMM(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("bad HH:MM %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
