package ports

import (
	"context"

	"kalshi-edge/internal/domain"
)

// Notifier presents ranked opportunities to the operator. The console
// implementation prints a formatted table.
type Notifier interface {
	Notify(ctx context.Context, opportunities []domain.Opportunity) error
}

// AlertChannel is the external side channel (webhook). Failures are
// logged by implementations, never fatal to a cycle.
type AlertChannel interface {
	Deliver(ctx context.Context, level, title, message string) bool
}
