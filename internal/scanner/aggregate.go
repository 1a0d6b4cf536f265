package scanner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"kalshi-edge/internal/domain"
)

// Aggregate groups alerts by (mapping key, direction) and fuses each
// group into one opportunity, ranked best first. The output is
// deterministic for a fixed alert list: ties in rank break by mapping
// key, then direction.
func Aggregate(alerts []domain.Alert) []domain.Opportunity {
	if len(alerts) == 0 {
		return nil
	}

	type groupKey struct {
		mappingKey string
		direction  domain.Direction
	}
	groups := make(map[groupKey][]domain.Alert)
	var order []groupKey
	for _, a := range alerts {
		k := groupKey{a.MappingKey, a.Direction}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	var opps []domain.Opportunity
	for _, k := range order {
		group := groups[k]
		a0 := group[0]

		probs := make([]float64, 0, len(group))
		edges := make([]float64, 0, len(group))
		for _, a := range group {
			probs = append(probs, a.BookProb)
			edges = append(edges, a.EdgeBps)
		}
		fairProb := median(probs)
		edgeBps := median(edges)
		edgeCents := edgeBps / 100

		best, worst := group[0], group[0]
		confidence := group[0].Confidence
		for _, a := range group[1:] {
			if a.EdgeBps > best.EdgeBps {
				best = a
			}
			if a.EdgeBps < worst.EdgeBps {
				worst = a
			}
			if confRank(a.Confidence) > confRank(confidence) {
				confidence = a.Confidence
			}
		}

		priceCents := int(a0.ExchangePrice*100 + 0.5)
		bestName := displayBookName(best.Bookmaker)

		var action, hedge string
		if k.direction == domain.ExchangeRich {
			action = fmt.Sprintf("SELL %s YES @ %dc", a0.Selection, priceCents)
			hedge = fmt.Sprintf("Bet %s ML on %s at %s", a0.Selection, bestName, best.OddsString)
		} else {
			action = fmt.Sprintf("BUY %s YES @ %dc", a0.Selection, priceCents)
			hedge = fmt.Sprintf("Bet opposite of %s on %s at %s", a0.Selection, bestName, best.OddsString)
		}

		opps = append(opps, domain.Opportunity{
			MappingKey:     k.mappingKey,
			ContractID:     a0.ContractID,
			GameLabel:      gameLabel(k.mappingKey),
			Direction:      k.direction,
			BookFairProb:   fairProb,
			BookCount:      len(group),
			EdgeBps:        edgeBps,
			EdgeCents:      edgeCents,
			BestBook:       bestName,
			BestBookOdds:   best.OddsString,
			BestBookBps:    best.EdgeBps,
			WorstBook:      displayBookName(worst.Bookmaker),
			WorstBookBps:   worst.EdgeBps,
			ExchangeAction: action,
			HedgeAction:    hedge,
			ExchangePrice:  a0.ExchangePrice,
			MaxShares:      a0.ExchangeSize,
			PnlPer100:      edgeCents,
			Confidence:     confidence,
			RankScore:      domain.RankScore(edgeCents, a0.ExchangeSize, len(group)),
			AlertCount:     len(group),
			URL:            exchangeURL(a0.ContractID),
			ScannedAt:      a0.EmittedAt,
		})
	}

	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].RankScore != opps[j].RankScore {
			return opps[i].RankScore > opps[j].RankScore
		}
		if opps[i].MappingKey != opps[j].MappingKey {
			return opps[i].MappingKey < opps[j].MappingKey
		}
		return opps[i].Direction < opps[j].Direction
	})
	return opps
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid] + sorted[mid-1]) / 2
	}
	return sorted[mid]
}

func confRank(c domain.Confidence) int {
	switch c {
	case domain.ConfidenceHigh:
		return 2
	case domain.ConfidenceMed:
		return 1
	default:
		return 0
	}
}

func displayBookName(bookmaker string) string {
	words := strings.Split(strings.ReplaceAll(bookmaker, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// gameLabel derives a readable label from a mapping key, e.g.
// nba_20260207_houokc_okc → "Houokc vs Okc".
func gameLabel(mappingKey string) string {
	parts := strings.Split(mappingKey, "_")
	var rest []string
	for _, p := range parts {
		if digitsOnly.MatchString(p) {
			continue
		}
		switch p {
		case "nba", "nfl", "ncaab", "game":
			continue
		}
		rest = append(rest, p)
	}
	if len(rest) == 0 {
		return displayBookName(strings.ReplaceAll(mappingKey, "_", " "))
	}
	if len(rest) >= 2 {
		return displayBookName(rest[0]) + " vs " + displayBookName(rest[1])
	}
	return displayBookName(rest[0])
}

// exchangeURL builds a deep link to the exchange page for a ticker.
func exchangeURL(ticker string) string {
	lower := strings.ToLower(ticker)
	base := "https://kalshi.com/markets"
	switch {
	case strings.HasPrefix(lower, "kxnbagame"):
		base = "https://kalshi.com/markets/kxnbagame/professional-basketball-game"
	case strings.HasPrefix(lower, "kxnflgame"):
		base = "https://kalshi.com/markets/kxnflgame/professional-football-game"
	case strings.HasPrefix(lower, "kxncaabgame"):
		base = "https://kalshi.com/markets/kxncaabgame/college-basketball-game"
	}
	return base + "/" + lower
}
