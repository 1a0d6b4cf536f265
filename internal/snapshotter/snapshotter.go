// Package snapshotter captures top-of-book history for the backtest
// harness and the mean-reversion strategy.
package snapshotter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
)

// recoveryDelay is how long the background loop pauses after a failed
// poll before resuming.
const recoveryDelay = 30 * time.Second

// Snapshotter captures and persists book snapshots.
type Snapshotter struct {
	logger   *slog.Logger
	exchange ports.ExchangeClient
	store    ports.SnapshotStore
}

// New builds a snapshotter over the given exchange and store.
func New(logger *slog.Logger, exchange ports.ExchangeClient, store ports.SnapshotStore) *Snapshotter {
	return &Snapshotter{logger: logger, exchange: exchange, store: store}
}

// SnapshotOne captures and persists one ticker's current book.
func (s *Snapshotter) SnapshotOne(ctx context.Context, ticker string) (domain.Snapshot, error) {
	contract, err := s.exchange.GetContract(ctx, ticker)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshotter.SnapshotOne: contract %s: %w", ticker, err)
	}
	book, err := s.exchange.GetTopOfBook(ctx, ticker)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshotter.SnapshotOne: book %s: %w", ticker, err)
	}

	snap := domain.SnapshotFromBook(contract, book)
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshotter.SnapshotOne: save %s: %w", ticker, err)
	}
	return snap, nil
}

// SnapshotMany captures every ticker, skipping per-ticker failures, and
// returns the snapshots taken.
func (s *Snapshotter) SnapshotMany(ctx context.Context, tickers []string) []domain.Snapshot {
	var out []domain.Snapshot
	for _, ticker := range tickers {
		snap, err := s.SnapshotOne(ctx, ticker)
		if err != nil {
			s.logger.Warn("snapshot failed", "ticker", ticker, "err", err)
			continue
		}
		out = append(out, snap)
	}
	return out
}

// History returns a ticker's snapshots since the given instant, oldest
// first.
func (s *Snapshotter) History(ctx context.Context, ticker string, since time.Time) ([]domain.Snapshot, error) {
	return s.store.History(ctx, ticker, since)
}

// Retain deletes snapshots older than cutoff and returns the count.
func (s *Snapshotter) Retain(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.Retain(ctx, cutoff)
}

// Run polls the ticker set at the interval until the context is
// cancelled. A failed round pauses for the recovery delay and resumes.
func (s *Snapshotter) Run(ctx context.Context, tickers []string, interval time.Duration) error {
	s.logger.Info("snapshot loop starting",
		"tickers", len(tickers), "interval", interval)

	delay := interval
	for {
		taken := s.SnapshotMany(ctx, tickers)
		if len(taken) == 0 && len(tickers) > 0 {
			s.logger.Warn("snapshot round produced nothing, backing off",
				"recovery_delay", recoveryDelay)
			delay = recoveryDelay
		} else {
			s.logger.Debug("snapshot round complete", "taken", len(taken))
			delay = interval
		}

		select {
		case <-ctx.Done():
			s.logger.Info("snapshot loop stopped")
			return nil
		case <-time.After(delay):
		}
	}
}
