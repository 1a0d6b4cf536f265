package ports

import (
	"context"

	"kalshi-edge/internal/domain"
)

// OddsProvider pulls bookmaker odds from the sportsbook aggregator.
type OddsProvider interface {
	// ListSports returns the aggregator's active sport keys.
	ListSports(ctx context.Context) ([]string, error)

	// ListEvents returns the scheduled games for a sport.
	ListEvents(ctx context.Context, sport string) ([]domain.SportEvent, error)

	// GetQuotes fetches current odds for a sport and parses them into
	// append-only quote records. Unknown market types are skipped.
	GetQuotes(ctx context.Context, sport string) ([]domain.Quote, error)
}
