// Package notify renders scanner output for the operator and pushes
// cycle summaries to the external alert channel.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
)

// Console implements ports.Notifier: ranked opportunities as a table on
// stdout, or a one-line compact mode.
type Console struct {
	out   io.Writer
	table bool
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole creates a notifier that writes to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify prints the ranked opportunities in the configured mode.
func (c *Console) Notify(_ context.Context, opportunities []domain.Opportunity) error {
	if len(opportunities) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities found\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printTable(opportunities)
	} else {
		c.printCompact(opportunities)
	}
	return nil
}

// printCompact puts the essentials on one line.
func (c *Console) printCompact(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")
	cheap, rich := countByDirection(opps)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d opps → cheap:%d rich:%d", now, len(opps), cheap, rich)

	shown := 0
	for _, opp := range opps {
		if shown >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | [%s] %s %+.0fbps x%d",
			opp.Confidence, compactName(opp.GameLabel, 22), opp.EdgeBps, opp.MaxShares)
		shown++
	}
	fmt.Fprintln(c.out, sb.String())
}

// printTable prints the full ranked table.
func (c *Console) printTable(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")
	cheap, rich := countByDirection(opps)

	fmt.Fprintf(c.out, "\n[%s] %d opportunities — cheap:%d rich:%d\n",
		now, len(opps), cheap, rich)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Conf", "Game", "Dir", "Edge", "Fair", "Price", "Size", "Books", "Best book", "PnL/100")

	for i, opp := range opps {
		table.Append(
			fmt.Sprintf("%d", i+1),
			string(opp.Confidence),
			truncate(opp.GameLabel, 28),
			directionLabel(opp.Direction),
			fmt.Sprintf("%+.0fbps", opp.EdgeBps),
			fmt.Sprintf("%.3f", opp.BookFairProb),
			fmt.Sprintf("%.2f", opp.ExchangePrice),
			fmt.Sprintf("%d", opp.MaxShares),
			fmt.Sprintf("%d", opp.BookCount),
			truncate(opp.BestBook, 12),
			fmt.Sprintf("$%.2f", opp.PnlPer100),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Edge = median no-vig edge across books | Size = exchange leg contracts")
	fmt.Fprintln(c.out, "  Conf: HIGH >= 0.75 score, MED >= 0.50, LOW below")
}

// PrintDetail prints the full breakdown of a single opportunity along
// with the alerts that produced it.
func (c *Console) PrintDetail(rank int, opp domain.Opportunity, alerts []domain.Alert) {
	fmt.Fprintf(c.out, "\n--- #%d: %s  [%s] [%s] ---\n",
		rank, opp.GameLabel, directionLabel(opp.Direction), opp.Confidence)
	if opp.URL != "" {
		fmt.Fprintf(c.out, "  URL: %s\n", opp.URL)
	}
	fmt.Fprintf(c.out, "  Scanned: %s\n", opp.ScannedAt.Format(time.RFC3339))

	fmt.Fprintf(c.out, "\n  1. CONSENSUS (%d books):\n", opp.BookCount)
	fmt.Fprintf(c.out, "     fair_prob=%.4f  median_edge=%+.1fbps (%.2fc)\n",
		opp.BookFairProb, opp.EdgeBps, opp.EdgeCents)
	fmt.Fprintf(c.out, "     best:  %-14s %+.1fbps  @%s\n", opp.BestBook, opp.BestBookBps, opp.BestBookOdds)
	fmt.Fprintf(c.out, "     worst: %-14s %+.1fbps\n", opp.WorstBook, opp.WorstBookBps)

	fmt.Fprintf(c.out, "\n  2. EXCHANGE LEG:\n")
	fmt.Fprintf(c.out, "     price=%.3f  size=%d contracts  pnl/100=$%.2f\n",
		opp.ExchangePrice, opp.MaxShares, opp.PnlPer100)
	fmt.Fprintf(c.out, "     >>> %s\n", opp.ExchangeAction)
	if opp.HedgeAction != "" {
		fmt.Fprintf(c.out, "     >>> %s\n", opp.HedgeAction)
	}

	if len(alerts) > 0 {
		fmt.Fprintf(c.out, "\n  3. PER-BOOK ALERTS:\n")
		for _, a := range alerts {
			fmt.Fprintf(c.out, "     %-14s %-24s %+.1fbps  odds=%s  overround=%.4f  age=%s\n",
				a.Bookmaker, truncate(a.Selection, 24), a.EdgeBps,
				a.OddsString, a.Overround, a.QuoteAge.Round(time.Second))
		}
	}
	fmt.Fprintln(c.out)
}

// PrintAlerts prints a table of recent alerts for the show command.
func (c *Console) PrintAlerts(alerts []domain.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(c.out, "  No alerts recorded.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Emitted", "Market", "Dir", "Edge", "Conf", "Book", "Odds", "Price", "Size")

	for _, a := range alerts {
		table.Append(
			a.EmittedAt.Format("01-02 15:04:05"),
			truncate(a.MappingKey, 24),
			directionLabel(a.Direction),
			fmt.Sprintf("%+.0fbps", a.EdgeBps),
			string(a.Confidence),
			truncate(a.Bookmaker, 12),
			a.OddsString,
			fmt.Sprintf("%.2f", a.ExchangePrice),
			fmt.Sprintf("%d", a.ExchangeSize),
		)
	}
	table.Render()
}

// PrintOrders prints a table of orders for the show command.
func (c *Console) PrintOrders(orders []domain.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "  No orders recorded.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Created", "Ticker", "Side", "Px", "Qty", "Filled", "Avg", "Status", "Strategy")

	for _, o := range orders {
		avg := "-"
		if o.AvgFillPrice > 0 {
			avg = fmt.Sprintf("%.1fc", o.AvgFillPrice)
		}
		table.Append(
			o.CreatedAt.Format("01-02 15:04"),
			o.Ticker,
			string(o.Side),
			fmt.Sprintf("%dc", o.Price),
			fmt.Sprintf("%d", o.Quantity),
			fmt.Sprintf("%d", o.FilledQuantity),
			avg,
			string(o.Status),
			o.Strategy,
		)
	}
	table.Render()
}

// PrintDailyPnl prints one ledger row for the report command.
func (c *Console) PrintDailyPnl(pnl domain.DailyPnl) {
	fmt.Fprintf(c.out, "\n  Daily P&L — %s\n", pnl.Date.Format("2006-01-02"))
	fmt.Fprintf(c.out, "  Realized:   %+.2f\n", pnl.Realized)
	fmt.Fprintf(c.out, "  Unrealized: %+.2f\n", pnl.Unrealized)
	fmt.Fprintf(c.out, "  Total:      %+.2f\n", pnl.Total())
	fmt.Fprintf(c.out, "  Trades:     %d placed, %d filled\n", pnl.TradesPlaced, pnl.TradesFilled)
	fmt.Fprintf(c.out, "  Exposure:   peak %.2f, ending %.2f\n", pnl.PeakExposure, pnl.EndExposure)
	if len(pnl.MarketsTraded) > 0 {
		fmt.Fprintf(c.out, "  Markets:    %s\n", strings.Join(pnl.MarketsTraded, ", "))
	}
	fmt.Fprintln(c.out)
}

// --- helpers ---

func countByDirection(opps []domain.Opportunity) (cheap, rich int) {
	for _, o := range opps {
		switch o.Direction {
		case domain.ExchangeCheap:
			cheap++
		case domain.ExchangeRich:
			rich++
		}
	}
	return
}

func directionLabel(d domain.Direction) string {
	switch d {
	case domain.ExchangeCheap:
		return "CHEAP"
	case domain.ExchangeRich:
		return "RICH"
	}
	return string(d)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
