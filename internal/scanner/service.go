package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/matcher"
	"kalshi-edge/internal/ports"
)

// ServiceConfig configures the scan loop.
type ServiceConfig struct {
	Compare      CompareConfig
	Interval     time.Duration
	Sport        string
	FetchWorkers int // goroutines for parallel book fetches (0 = NumCPU*2)
	MappingsPath string
	LastOppsPath string
	JSONLPath    string
	AutoMap      bool
}

// Service orchestrates scan cycles: load mappings, pull quotes, fetch
// books, compare, aggregate, persist and notify.
type Service struct {
	cfg      ServiceConfig
	logger   *slog.Logger
	matcher  *matcher.Matcher
	exchange ports.ExchangeClient
	odds     ports.OddsProvider
	alerts   ports.AlertStore
	quotes   ports.MarketStore
	notifier ports.Notifier
}

// NewService wires a scan service with injected dependencies. Stores
// and notifier may be nil; persistence and presentation are then
// skipped.
func NewService(cfg ServiceConfig, logger *slog.Logger, m *matcher.Matcher, exchange ports.ExchangeClient, odds ports.OddsProvider, alerts ports.AlertStore, quotes ports.MarketStore, notifier ports.Notifier) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger,
		matcher:  m,
		exchange: exchange,
		odds:     odds,
		alerts:   alerts,
		quotes:   quotes,
		notifier: notifier,
	}
}

// Run executes scan cycles until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("scanner starting",
		"interval", s.cfg.Interval, "sport", s.cfg.Sport, "auto_map", s.cfg.AutoMap)

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("scan cycle failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("scan cycle failed", "err", err)
			}
		}
	}
}

// ScanResult is the outcome of one cycle.
type ScanResult struct {
	Opportunities []domain.Opportunity
	Alerts        []domain.Alert
}

// RunOnce executes exactly one scan cycle and returns the ranked
// opportunities. Results are persisted and notified as a side effect.
func (s *Service) RunOnce(ctx context.Context) (ScanResult, error) {
	start := time.Now()

	if s.cfg.AutoMap {
		if _, err := s.matcher.AutoMap(ctx, s.exchange, s.odds, s.cfg.Sport, s.cfg.MappingsPath); err != nil {
			s.logger.Warn("auto-map failed, continuing with existing registry", "err", err)
		}
	}
	loaded, err := s.matcher.LoadMappings(s.cfg.MappingsPath)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scanner.RunOnce: %w", err)
	}
	if loaded == 0 {
		s.logger.Warn("no mappings loaded, nothing to scan", "path", s.cfg.MappingsPath)
		return ScanResult{}, nil
	}

	quotes, err := s.odds.GetQuotes(ctx, s.cfg.Sport)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scanner.RunOnce: fetch quotes: %w", err)
	}
	if s.quotes != nil {
		if err := s.quotes.SaveQuotes(ctx, quotes); err != nil {
			s.logger.Warn("quote persistence failed", "err", err)
		}
	}

	alerts := s.compareAll(ctx, quotes)
	opps := Aggregate(alerts)

	if s.alerts != nil && len(alerts) > 0 {
		if err := s.alerts.SaveAlerts(ctx, alerts); err != nil {
			s.logger.Warn("alert persistence failed", "err", err)
		}
	}
	if s.cfg.JSONLPath != "" && len(alerts) > 0 {
		if err := AppendAlertsJSONL(s.cfg.JSONLPath, alerts); err != nil {
			s.logger.Warn("alert jsonl write failed", "err", err)
		}
	}
	if s.cfg.LastOppsPath != "" {
		if err := WriteLastOpportunities(s.cfg.LastOppsPath, opps); err != nil {
			s.logger.Warn("last opportunities write failed", "err", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, opps); err != nil {
			s.logger.Warn("notifier error", "err", err)
		}
	}

	s.logger.Info("scan cycle complete",
		"mappings", loaded,
		"quotes", len(quotes),
		"alerts", len(alerts),
		"opportunities", len(opps),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return ScanResult{Opportunities: opps, Alerts: alerts}, nil
}

// compareAll fetches the book for every mapped contract in parallel and
// runs the comparison. Book fetches go through the client's rate
// limiter; the pool only bounds in-flight work.
func (s *Service) compareAll(ctx context.Context, quotes []domain.Quote) []domain.Alert {
	workers := s.cfg.FetchWorkers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	keys := s.matcher.AllMappingKeys()
	workCh := make(chan domain.Mapping, len(keys))
	resultCh := make(chan []domain.Alert, len(keys))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for mapping := range workCh {
				book, err := s.exchange.GetTopOfBook(ctx, mapping.ContractID)
				if err != nil {
					s.logger.Debug("book fetch failed",
						"ticker", mapping.ContractID, "err", err)
					continue
				}
				cmp := NewComparer(s.cfg.Compare)
				if alerts := cmp.Compare(mapping, book, quotes, time.Now().UTC()); len(alerts) > 0 {
					resultCh <- alerts
				}
			}
		}()
	}

	for _, key := range keys {
		mapping, ok := s.matcher.Mapping(key)
		if !ok {
			continue
		}
		workCh <- mapping
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var all []domain.Alert
	for alerts := range resultCh {
		all = append(all, alerts...)
	}
	return all
}
