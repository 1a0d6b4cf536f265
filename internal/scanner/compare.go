// Package scanner compares exchange top-of-book prices against
// bookmaker quotes and turns dislocations into alerts and ranked
// opportunities.
package scanner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/odds"
)

// CompareConfig holds the thresholds for one comparison.
type CompareConfig struct {
	// SlippageBuffer widens the exchange price against us: added to the
	// ask when buying, subtracted from the bid when selling.
	SlippageBuffer float64
	// SportsbookFriction shrinks the books' no-vig probability to model
	// realistic hedge execution.
	SportsbookFriction float64
	MinEdgeBps         float64
	MinLiquidity       int
	MaxStaleness       time.Duration
}

// DropCounters tallies data-quality rejections. Dropped items are
// silent by design; the counters are the observability.
type DropCounters struct {
	StaleBooks      int
	InvalidBooks    int
	ThinBooks       int
	StaleQuotes     int
	BadQuotes       int
	NoOppositeQuote int
}

// Comparer runs the per-mapping comparison.
type Comparer struct {
	cfg   CompareConfig
	Drops DropCounters
}

// NewComparer builds a comparer with the given thresholds.
func NewComparer(cfg CompareConfig) *Comparer {
	return &Comparer{cfg: cfg}
}

// Compare evaluates one mapped market against every relevant bookmaker
// quote and returns the alerts above threshold, both directions.
func (c *Comparer) Compare(mapping domain.Mapping, book domain.TopOfBook, quotes []domain.Quote, now time.Time) []domain.Alert {
	if book.Stale(now, c.cfg.MaxStaleness) {
		c.Drops.StaleBooks++
		return nil
	}
	if !book.Valid() {
		c.Drops.InvalidBooks++
		return nil
	}

	buyPrice := book.YesAsk + c.cfg.SlippageBuffer
	if buyPrice > 1 {
		buyPrice = 1
	}
	sellPrice := book.YesBid - c.cfg.SlippageBuffer
	if sellPrice < 0 {
		sellPrice = 0
	}

	if book.YesAskSize < c.cfg.MinLiquidity {
		c.Drops.ThinBooks++
		return nil
	}

	bookAge := book.Age(now)
	var alerts []domain.Alert
	for _, q := range quotes {
		if q.EventID != mapping.EventID || q.MarketType != mapping.MarketType {
			continue
		}
		if q.Selection != mapping.Selection {
			continue
		}
		if q.Stale(now, c.cfg.MaxStaleness) {
			c.Drops.StaleQuotes++
			continue
		}

		norm, ok := c.normalize(q, quotes)
		if !ok {
			continue
		}
		adjustedP := norm.NoVig * (1 - c.cfg.SportsbookFriction)

		// Exchange cheap: buy YES at the ask, hedge against the book.
		if edgeBps := (adjustedP - buyPrice) * 10_000; edgeBps >= c.cfg.MinEdgeBps {
			alerts = append(alerts, c.buildAlert(mapping, domain.ExchangeCheap,
				buyPrice, book.YesAskSize, q, norm, edgeBps, bookAge, q.Age(now), now))
		}

		// Exchange rich: sell YES at the bid.
		if book.YesBidSize >= c.cfg.MinLiquidity {
			if edgeBps := (sellPrice - adjustedP) * 10_000; edgeBps >= c.cfg.MinEdgeBps {
				alerts = append(alerts, c.buildAlert(mapping, domain.ExchangeRich,
					sellPrice, book.YesBidSize, q, norm, edgeBps, bookAge, q.Age(now), now))
			}
		}
	}
	return alerts
}

// normalize converts a quote to a no-vig probability, using the same
// bookmaker's opposite selection for two-way vig removal when present.
func (c *Comparer) normalize(q domain.Quote, all []domain.Quote) (domain.NormalizedProb, bool) {
	implied, err := impliedProb(q)
	if err != nil {
		c.Drops.BadQuotes++
		return domain.NormalizedProb{}, false
	}

	var opposite *domain.Quote
	for i := range all {
		o := &all[i]
		if q.SameMarket(*o) && o.Selection != q.Selection {
			opposite = o
			break
		}
	}

	norm := domain.NormalizedProb{
		Implied:   implied,
		Quote:     q,
		Opposite:  opposite,
		Method:    domain.VigNone,
		NoVig:     implied,
		Overround: 1.0,
	}
	if opposite != nil {
		oppImplied, err := impliedProb(*opposite)
		if err != nil {
			c.Drops.BadQuotes++
			return domain.NormalizedProb{}, false
		}
		noVig, _, err := odds.NoVigTwoWay(implied, oppImplied)
		if err != nil {
			c.Drops.BadQuotes++
			return domain.NormalizedProb{}, false
		}
		norm.Method = domain.VigTwoWay
		norm.NoVig = noVig
		norm.Overround = implied + oppImplied
	} else {
		c.Drops.NoOppositeQuote++
	}
	return norm, true
}

func impliedProb(q domain.Quote) (float64, error) {
	switch q.Format {
	case domain.OddsAmerican:
		return odds.AmericanToProb(q.Odds)
	case domain.OddsDecimal:
		return odds.DecimalToProb(q.Odds)
	default:
		return 0, fmt.Errorf("scanner.impliedProb: unknown format %q", q.Format)
	}
}

func (c *Comparer) buildAlert(mapping domain.Mapping, dir domain.Direction, price float64, size int, q domain.Quote, norm domain.NormalizedProb, edgeBps float64, bookAge, quoteAge time.Duration, now time.Time) domain.Alert {
	score := confidenceScore(edgeBps, bookAge, quoteAge, size, norm.Overround)
	return domain.Alert{
		ID:              uuid.NewString()[:8],
		MappingKey:      mapping.Key,
		ContractID:      mapping.ContractID,
		Direction:       dir,
		EdgeBps:         edgeBps,
		Confidence:      domain.ConfidenceTier(score),
		ConfidenceScore: score,
		ExchangePrice:   price,
		ExchangeSize:    size,
		Bookmaker:       q.Bookmaker,
		Selection:       q.Selection,
		BookProb:        norm.NoVig,
		OddsString:      oddsString(q),
		Overround:       norm.Overround,
		ExchangeAge:     bookAge,
		QuoteAge:        quoteAge,
		Notes:           fmt.Sprintf("Overround: %.4f", norm.Overround),
		EmittedAt:       now,
	}
}

// confidenceScore weighs edge size, data freshness, exchange liquidity
// and the bookmaker's vig into a score in [0,1].
func confidenceScore(edgeBps float64, bookAge, quoteAge time.Duration, liquidity int, overround float64) float64 {
	var score float64

	switch {
	case edgeBps >= 200:
		score += 0.4
	case edgeBps >= 100:
		score += 0.3
	case edgeBps >= 50:
		score += 0.2
	default:
		score += 0.1
	}

	maxAge := bookAge
	if quoteAge > maxAge {
		maxAge = quoteAge
	}
	switch {
	case maxAge < 10*time.Second:
		score += 0.3
	case maxAge < 30*time.Second:
		score += 0.2
	case maxAge < 60*time.Second:
		score += 0.1
	}

	switch {
	case liquidity >= 100:
		score += 0.2
	case liquidity >= 50:
		score += 0.15
	case liquidity >= 20:
		score += 0.1
	default:
		score += 0.05
	}

	switch {
	case overround < 1.03:
		score += 0.1
	case overround < 1.05:
		score += 0.05
	}
	return score
}

// oddsString renders the quote the way its book displays it: signed
// integer for American, two decimals for decimal odds.
func oddsString(q domain.Quote) string {
	if q.Odds > 10 || q.Odds < -10 {
		return odds.FormatAmerican(q.Odds)
	}
	return fmt.Sprintf("%.2f", q.Odds)
}
