package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kalshi-edge/internal/adapters/notify"
	"kalshi-edge/internal/discovery"
	"kalshi-edge/internal/orders"
	"kalshi-edge/internal/risk"
	"kalshi-edge/internal/runner"
	"kalshi-edge/internal/snapshotter"
	"kalshi-edge/internal/strategy"
)

var runnerCmd = &cobra.Command{
	Use:   "runner",
	Short: "Scheduled trading cycle commands",
}

var runnerMode string

var runnerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full trading cycle now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		r, cleanup, err := buildRunner(runnerMode)
		if err != nil {
			return err
		}
		defer cleanup()

		result := r.RunCycle(cmd.Context())
		if len(result.Errors) > 0 {
			return fmt.Errorf("cycle finished with %d errors", len(result.Errors))
		}
		return nil
	},
}

var runnerScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the trading cycle daily at the configured time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		r, cleanup, err := buildRunner(runnerMode)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return r.Schedule(ctx)
	},
}

var snapshotTickers string

var runnerSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture snapshots for the given tickers to build history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if snapshotTickers == "" {
			return fmt.Errorf("--tickers is required")
		}

		exchange, err := newExchange(cfg, logger)
		if err != nil {
			return err
		}
		defer exchange.Close()
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		tickers := strings.Split(snapshotTickers, ",")
		for i := range tickers {
			tickers[i] = strings.TrimSpace(tickers[i])
		}

		snaps := snapshotter.New(logger, exchange, store)
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return snaps.Run(ctx, tickers, cfg.Storage.SnapshotInterval())
	},
}

var reportDate string

var runnerReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the daily report for a date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		day := time.Now().In(cfg.Location())
		if reportDate != "" {
			day, err = time.ParseInLocation("2006-01-02", reportDate, cfg.Location())
			if err != nil {
				return fmt.Errorf("bad --date %q: %w", reportDate, err)
			}
		}

		pnl, err := store.GetDailyPnl(cmd.Context(), day)
		if err != nil {
			return fmt.Errorf("no report for %s: %w", day.Format("2006-01-02"), err)
		}
		console := notify.NewConsole(true)
		console.PrintDailyPnl(pnl)

		if ordersForDay, err := store.OrdersByDate(cmd.Context(), day); err == nil {
			console.PrintOrders(ordersForDay)
		}
		return nil
	},
}

func init() {
	runnerRunCmd.Flags().StringVar(&runnerMode, "mode", "", "dry_run | paper | live (default from config)")
	runnerScheduleCmd.Flags().StringVar(&runnerMode, "mode", "", "dry_run | paper | live (default from config)")
	runnerSnapshotCmd.Flags().StringVar(&snapshotTickers, "tickers", "", "comma-separated tickers")
	runnerReportCmd.Flags().StringVar(&reportDate, "date", "", "report date YYYY-MM-DD (default today)")

	runnerCmd.AddCommand(runnerRunCmd, runnerScheduleCmd, runnerSnapshotCmd, runnerReportCmd)
}

// buildRunner wires the full trading cycle with live adapters.
func buildRunner(mode string) (*runner.Runner, func(), error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if mode != "" {
		cfg.Runner.Mode = mode
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	if cfg.Runner.Mode == "live" && !cfg.Exchange.Configured() {
		return nil, nil, fmt.Errorf("live mode requires exchange credentials")
	}

	exchange, err := newExchange(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		exchange.Close()
		return nil, nil, err
	}

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewMispricing(strategy.MispricingConfig{}))
	registry.Register(strategy.NewMeanReversion(strategy.MeanReversionConfig{}))

	gate := risk.NewGate(cfg.Risk)

	var paper *orders.PaperBroker
	if cfg.Runner.Mode == string(orders.ModePaper) {
		paper = orders.NewPaperBroker(0, time.Now().UnixNano())
	}
	manager := orders.NewManager(orders.ManagerConfig{
		Mode:            orders.Mode(cfg.Runner.Mode),
		LimitOrdersOnly: cfg.Risk.LimitOrdersOnly,
		DefaultDollars:  cfg.Risk.DefaultPositionSize,
		LiveConfigured:  cfg.Exchange.Configured(),
	}, logger, gate, store, exchange, paper)

	disc := discovery.New(cfg.Discovery, logger, exchange, store)
	snaps := snapshotter.New(logger, exchange, store)
	alerts := notify.NewSlack(cfg.Alerts.WebhookURL, logger)

	r := runner.New(cfg, logger, disc, snaps, registry, gate, manager, store, exchange, alerts)
	cleanup := func() { store.Close() }
	return r, cleanup, nil
}
