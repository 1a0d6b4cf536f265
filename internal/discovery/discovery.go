// Package discovery finds the contracts expiring on the reference UTC
// date that pass the tradeability filter stack.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kalshi-edge/config"
	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
)

// Rejection reasons, one per filter. Every rejected contract carries
// exactly one.
const (
	ReasonCategoryNotWhitelisted = "category_not_whitelisted"
	ReasonCategoryBlacklisted    = "category_blacklisted"
	ReasonTickerBlacklisted      = "ticker_blacklisted"
	ReasonLowVolume              = "low_volume"
	ReasonNoOrderbook            = "no_orderbook"
	ReasonWideSpread             = "wide_spread"
	ReasonThinDepth              = "thin_depth"
	ReasonTooCloseToExpiry       = "too_close_to_expiry"
	ReasonNotActive              = "not_active"
)

// interPageDelay paces pagination against the exchange rate limit.
const interPageDelay = 250 * time.Millisecond

// Candidate is a discovered contract with its current book.
type Candidate struct {
	Contract domain.Contract
	Book     domain.TopOfBook
}

// Discoverer paginates the exchange and applies the filter stack.
type Discoverer struct {
	cfg      config.DiscoveryConfig
	logger   *slog.Logger
	exchange ports.ExchangeClient
	markets  ports.MarketStore

	// Rejections tallies filter drops by reason for the last run.
	Rejections map[string]int
}

// New builds a discoverer. The market store may be nil; discovered
// contracts are then not persisted.
func New(cfg config.DiscoveryConfig, logger *slog.Logger, exchange ports.ExchangeClient, markets ports.MarketStore) *Discoverer {
	return &Discoverer{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		markets:    markets,
		Rejections: make(map[string]int),
	}
}

// Discover returns the contracts whose UTC expiry date equals ref's UTC
// date and that pass every filter, with their books attached.
func (d *Discoverer) Discover(ctx context.Context, ref time.Time) ([]Candidate, error) {
	d.Rejections = make(map[string]int)

	contracts, err := d.fetchPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery.Discover: %w", err)
	}

	var sameDay []domain.Contract
	for _, c := range contracts {
		if c.ExpiresOnUTCDate(ref) {
			sameDay = append(sameDay, c)
		}
	}
	d.logger.Info("discovery pagination done",
		"fetched", len(contracts), "same_day", len(sameDay))

	var out []Candidate
	for _, c := range sameDay {
		if reason, ok := d.preBookFilter(c); !ok {
			d.Rejections[reason]++
			continue
		}

		book, err := d.exchange.GetTopOfBook(ctx, c.Ticker)
		if err != nil {
			d.Rejections[ReasonNoOrderbook]++
			continue
		}
		if reason, ok := d.postBookFilter(c, book, ref); !ok {
			d.Rejections[reason]++
			continue
		}

		if d.markets != nil {
			if err := d.markets.UpsertContract(ctx, c); err != nil {
				d.logger.Warn("contract persistence failed", "ticker", c.Ticker, "err", err)
			}
		}
		out = append(out, Candidate{Contract: c, Book: book})
	}

	d.logger.Info("discovery complete",
		"tradeable", len(out), "rejections", d.Rejections)
	return out, nil
}

// fetchPages walks the pagination cursor up to the page cap, pacing
// requests between pages.
func (d *Discoverer) fetchPages(ctx context.Context) ([]domain.Contract, error) {
	var all []domain.Contract
	cursor := ""
	for page := 0; page < d.cfg.MaxPages; page++ {
		contracts, next, err := d.exchange.ListMarkets(ctx, cursor, "", "open", 200)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, contracts...)
		if next == "" {
			break
		}
		cursor = next

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interPageDelay):
		}
	}
	return all, nil
}

// preBookFilter runs the checks that need no orderbook.
func (d *Discoverer) preBookFilter(c domain.Contract) (string, bool) {
	if len(d.cfg.CategoryWhitelist) > 0 && !containsFold(d.cfg.CategoryWhitelist, c.Category) {
		return ReasonCategoryNotWhitelisted, false
	}
	if containsFold(d.cfg.CategoryBlacklist, c.Category) {
		return ReasonCategoryBlacklisted, false
	}
	if containsFold(d.cfg.TickerBlacklist, c.Ticker) {
		return ReasonTickerBlacklisted, false
	}
	if c.Volume24h < d.cfg.MinVolume24h {
		return ReasonLowVolume, false
	}
	return "", true
}

// postBookFilter runs the book-dependent checks plus the cutoff and
// status checks. The cutoff comparison is strict: a contract exactly at
// the cutoff is excluded.
func (d *Discoverer) postBookFilter(c domain.Contract, book domain.TopOfBook, ref time.Time) (string, bool) {
	if !book.Valid() {
		return ReasonNoOrderbook, false
	}
	if book.SpreadCents() > d.cfg.MaxSpreadCents {
		return ReasonWideSpread, false
	}
	if book.YesBidSize+book.YesAskSize < d.cfg.MinDepth {
		return ReasonThinDepth, false
	}
	if !(c.MinutesToClose(ref) > d.cfg.TradingCutoffMinutes) {
		return ReasonTooCloseToExpiry, false
	}
	if !c.IsTradeable() {
		return ReasonNotActive, false
	}
	return "", true
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
