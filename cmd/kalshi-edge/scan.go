package main

import (
	"fmt"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kalshi-edge/config"
	"kalshi-edge/internal/adapters/notify"
	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/matcher"
	"kalshi-edge/internal/ports"
	"kalshi-edge/internal/scanner"
)

var syncMarketsCmd = &cobra.Command{
	Use:   "sync-markets",
	Short: "Paginate the exchange market list and persist contracts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
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

		ctx := cmd.Context()
		total, cursor := 0, ""
		for page := 0; page < cfg.Discovery.MaxPages; page++ {
			contracts, next, err := exchange.ListMarkets(ctx, cursor, "", "open", 200)
			if err != nil {
				return fmt.Errorf("sync-markets: %w", err)
			}
			for _, c := range contracts {
				if err := store.UpsertContract(ctx, c); err != nil {
					return fmt.Errorf("sync-markets: persist %s: %w", c.Ticker, err)
				}
			}
			total += len(contracts)
			if next == "" {
				break
			}
			cursor = next
		}

		logger.Info("markets synced", "contracts", total)
		return nil
	},
}

var syncOddsSport string

var syncOddsCmd = &cobra.Command{
	Use:   "sync-odds",
	Short: "Pull aggregator odds for a sport and persist quotes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sport := syncOddsSport
		if sport == "" {
			sport = cfg.OddsAPI.DefaultSport
		}

		quotes, err := newOdds(cfg, logger).GetQuotes(cmd.Context(), sport)
		if err != nil {
			return err
		}
		if err := store.SaveQuotes(cmd.Context(), quotes); err != nil {
			return fmt.Errorf("sync-odds: persist: %w", err)
		}

		logger.Info("odds synced", "sport", sport, "quotes", len(quotes))
		return nil
	},
}

var (
	scanSport   string
	scanAutoMap bool
	scanTable   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle and print ranked opportunities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, cleanup, err := buildScanService(scanSport, scanAutoMap, scanTable)
		if err != nil {
			return err
		}
		defer cleanup()

		_, err = svc.RunOnce(cmd.Context())
		return err
	},
}

var (
	runSport    string
	runInterval int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scan loop continuously",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, cleanup, err := buildScanService(runSport, false, false)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return svc.Run(ctx)
	},
}

var detailCmd = &cobra.Command{
	Use:   "detail N",
	Short: "Print the full breakdown of opportunity N from the last scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		rank, opp, err := opportunityByRank(cfg, args[0])
		if err != nil {
			return err
		}

		var alerts []domain.Alert
		if store, err := openStore(cfg); err == nil {
			defer store.Close()
			if recent, err := store.RecentAlerts(cmd.Context(), 200); err == nil {
				for _, a := range recent {
					if a.MappingKey == opp.MappingKey && a.Direction == opp.Direction {
						alerts = append(alerts, a)
					}
				}
			}
		}

		notify.NewConsole(true).PrintDetail(rank, opp, alerts)
		return nil
	},
}

var (
	executeShares  int
	executeDryRun  bool
	executeConfirm bool
)

var executeCmd = &cobra.Command{
	Use:   "execute N",
	Short: "Place the exchange leg of opportunity N from the last scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Execution.Enabled {
			return fmt.Errorf("execution is disabled; set execution.enabled in the config")
		}
		if executeShares <= 0 {
			return fmt.Errorf("--shares must be positive")
		}

		rank, opp, err := opportunityByRank(cfg, args[0])
		if err != nil {
			return err
		}

		price := int(math.Round(opp.ExchangePrice * 100))
		if price < 1 || price > 99 {
			return fmt.Errorf("opportunity #%d price %dc outside 1..99", rank, price)
		}
		action := "buy"
		if opp.Direction == domain.ExchangeRich {
			action = "sell"
		}
		shares := executeShares
		if shares > opp.MaxShares {
			logger.Warn("clamping shares to exchange leg liquidity",
				"requested", shares, "available", opp.MaxShares)
			shares = opp.MaxShares
		}

		req := ports.OrderRequest{
			Ticker:         opp.ContractID,
			Side:           domain.OrderYes,
			Action:         action,
			Count:          shares,
			Type:           domain.OrderLimit,
			PriceCents:     price,
			IdempotencyKey: domain.IdempotencyKey(time.Now().UTC(), opp.ContractID, "manual", domain.OrderYes),
		}

		if executeDryRun {
			fmt.Printf("DRY RUN: would %s %d YES @ %dc on %s (%s)\n",
				action, shares, price, opp.ContractID, opp.GameLabel)
			return nil
		}
		if !executeConfirm {
			return fmt.Errorf("refusing to place a real order without --confirm")
		}
		if !cfg.Exchange.Configured() {
			return fmt.Errorf("exchange credentials are not configured")
		}

		exchange, err := newExchange(cfg, logger)
		if err != nil {
			return err
		}
		defer exchange.Close()

		ack, err := exchange.PlaceOrder(cmd.Context(), req)
		if err != nil {
			return err
		}
		logger.Info("order placed",
			"exchange_order_id", ack.ExchangeOrderID,
			"status", ack.Status,
			"ticker", opp.ContractID,
			"price_cents", price,
			"shares", shares)
		return nil
	},
}

var showLast int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent alerts",
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

		alerts, err := store.RecentAlerts(cmd.Context(), showLast)
		if err != nil {
			return err
		}
		notify.NewConsole(true).PrintAlerts(alerts)
		return nil
	},
}

func init() {
	syncOddsCmd.Flags().StringVar(&syncOddsSport, "sport", "", "aggregator sport key (default from config)")

	scanCmd.Flags().StringVar(&scanSport, "sport", "", "aggregator sport key (default from config)")
	scanCmd.Flags().BoolVar(&scanAutoMap, "auto-map", false, "refresh the mapping registry before scanning")
	scanCmd.Flags().BoolVar(&scanTable, "table", true, "print the full table (false for one-line output)")

	runCmd.Flags().StringVar(&runSport, "sport", "", "aggregator sport key (default from config)")
	runCmd.Flags().IntVar(&runInterval, "interval", 0, "scan interval in seconds (default from config)")

	executeCmd.Flags().IntVar(&executeShares, "shares", 0, "contracts to place")
	executeCmd.Flags().BoolVar(&executeDryRun, "dry-run", false, "print the order without placing it")
	executeCmd.Flags().BoolVar(&executeConfirm, "confirm", false, "confirm real submission")

	showCmd.Flags().IntVar(&showLast, "last", 20, "number of alerts to show")
}

// buildScanService wires the scan service with live adapters.
func buildScanService(sport string, autoMap, table bool) (*scanner.Service, func(), error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
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

	if sport == "" {
		sport = cfg.OddsAPI.DefaultSport
	}
	interval := cfg.Scan.ScanInterval()
	if runInterval > 0 {
		interval = time.Duration(runInterval) * time.Second
	}

	svcCfg := scanner.ServiceConfig{
		Compare: scanner.CompareConfig{
			SlippageBuffer:     cfg.Scan.SlippageBuffer,
			SportsbookFriction: cfg.Scan.SportsbookFriction,
			MinEdgeBps:         cfg.Scan.MinEdgeBps,
			MinLiquidity:       cfg.Scan.MinLiquidity,
			MaxStaleness:       cfg.Scan.MaxStaleness(),
		},
		Interval:     interval,
		Sport:        sport,
		MappingsPath: cfg.Scan.MappingsPath,
		LastOppsPath: cfg.Scan.LastOppsPath,
		JSONLPath:    cfg.Alerts.JSONLPath,
		AutoMap:      autoMap || cfg.Scan.AutoMap,
	}

	m := matcher.New(logger, true, 0)
	svc := scanner.NewService(svcCfg, logger, m,
		exchange, newOdds(cfg, logger), store, store, notify.NewConsole(table))

	cleanup := func() {
		store.Close()
		exchange.Close()
	}
	return svc, cleanup, nil
}

// opportunityByRank loads the last scan output and picks entry N
// (1-based).
func opportunityByRank(cfg *config.Config, arg string) (int, domain.Opportunity, error) {
	var rank int
	if _, err := fmt.Sscanf(arg, "%d", &rank); err != nil || rank < 1 {
		return 0, domain.Opportunity{}, fmt.Errorf("bad opportunity number %q", arg)
	}

	opps, err := scanner.ReadLastOpportunities(cfg.Scan.LastOppsPath)
	if err != nil {
		return 0, domain.Opportunity{}, fmt.Errorf("no saved scan output (run scan first): %w", err)
	}
	if rank > len(opps) {
		return 0, domain.Opportunity{}, fmt.Errorf("opportunity %d out of range (last scan had %d)", rank, len(opps))
	}
	return rank, opps[rank-1], nil
}
