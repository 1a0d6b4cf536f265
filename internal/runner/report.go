package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kalshi-edge/internal/domain"
)

// report persists the day's ledger and pushes the summary through the
// alert channel.
func (r *Runner) report(ctx context.Context, result *CycleResult) {
	summary := r.gate.Snapshot()

	pnl := domain.DailyPnl{
		Date:          result.Date,
		Realized:      summary.RealizedPnl,
		Unrealized:    summary.UnrealizedPnl,
		TradesPlaced:  len(result.Placed),
		PeakExposure:  summary.TotalExposure + summary.PendingExposure,
		EndExposure:   summary.TotalExposure,
		MarketsTraded: summary.Tickers,
	}
	for _, o := range result.Placed {
		if o.Status == domain.OrderFilled {
			pnl.TradesFilled++
		}
	}
	if err := r.orderStore.SaveDailyPnl(ctx, pnl); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("daily pnl: %v", err))
	}

	text := FormatReport(*result, pnl)
	level := "info"
	if len(result.Errors) > 0 {
		level = "warning"
	}
	if r.alerts != nil {
		title := fmt.Sprintf("Trading cycle %s", result.Date.Format("2006-01-02"))
		if !r.alerts.Deliver(ctx, level, title, text) {
			r.logger.Warn("alert channel delivery failed")
		}
	}
}

// FormatReport renders the daily summary text.
func FormatReport(result CycleResult, pnl domain.DailyPnl) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily report — %s\n", result.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Markets discovered: %d\n", result.Discovered)
	fmt.Fprintf(&b, "Signals: %d generated, %d validated\n", result.Signals, result.Validated)
	fmt.Fprintf(&b, "Orders placed: %d (%d filled)\n", pnl.TradesPlaced, pnl.TradesFilled)
	fmt.Fprintf(&b, "P&L: realized %+.2f, unrealized %+.2f, total %+.2f\n",
		pnl.Realized, pnl.Unrealized, pnl.Total())
	fmt.Fprintf(&b, "Exposure: peak %.2f, ending %.2f\n", pnl.PeakExposure, pnl.EndExposure)
	if len(pnl.MarketsTraded) > 0 {
		fmt.Fprintf(&b, "Markets traded: %s\n", strings.Join(pnl.MarketsTraded, ", "))
	}
	if result.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(&b, "Errors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	return b.String()
}
