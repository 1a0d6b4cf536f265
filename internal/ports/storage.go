package ports

import (
	"context"
	"time"

	"kalshi-edge/internal/domain"
)

// SnapshotStore persists historical top-of-book captures.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s domain.Snapshot) error
	History(ctx context.Context, ticker string, since time.Time) ([]domain.Snapshot, error)
	// Retain deletes snapshots older than cutoff and returns the count.
	Retain(ctx context.Context, cutoff time.Time) (int64, error)
}

// OrderStore persists orders, fills and the daily ledger. SaveOrder on
// a duplicate idempotency key returns the already-stored order and no
// error.
type OrderStore interface {
	SaveOrder(ctx context.Context, o domain.Order) (domain.Order, bool, error)
	UpdateOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	OrdersByDate(ctx context.Context, day time.Time) ([]domain.Order, error)
	SaveFill(ctx context.Context, f domain.Fill) error
	FillsForOrder(ctx context.Context, orderID string) ([]domain.Fill, error)
	SaveDailyPnl(ctx context.Context, d domain.DailyPnl) error
	GetDailyPnl(ctx context.Context, day time.Time) (domain.DailyPnl, error)
}

// MarketStore persists discovered contracts and ingested quotes.
type MarketStore interface {
	UpsertContract(ctx context.Context, c domain.Contract) error
	GetContract(ctx context.Context, ticker string) (domain.Contract, error)
	ActiveContracts(ctx context.Context) ([]domain.Contract, error)
	SaveQuotes(ctx context.Context, quotes []domain.Quote) error
	RecentQuotes(ctx context.Context, sport string, since time.Time) ([]domain.Quote, error)
}

// AlertStore persists emitted scanner alerts.
type AlertStore interface {
	SaveAlerts(ctx context.Context, alerts []domain.Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error)
}
