package storage

import (
	"context"
	"fmt"
	"time"

	"kalshi-edge/internal/domain"
)

// SaveSnapshot appends one top-of-book capture.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots
			(ticker, ts, last_price, bid, ask, mid, spread, volume_24h,
			 bid_depth, ask_depth, depth_imbalance, orderbook_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Ticker, snap.Timestamp.UTC(), snap.LastPrice, snap.Bid, snap.Ask,
		snap.Mid, snap.SpreadCents, snap.Volume24h, snap.BidDepth,
		snap.AskDepth, snap.DepthImbalance, snap.OrderbookJSON,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %s: %w", snap.Ticker, err)
	}
	return nil
}

// History returns a ticker's snapshots at or after since, oldest first.
func (s *Store) History(ctx context.Context, ticker string, since time.Time) ([]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, ts, last_price, bid, ask, mid, spread, volume_24h,
		       bid_depth, ask_depth, depth_imbalance, COALESCE(orderbook_json, '')
		FROM snapshots
		WHERE ticker = ? AND ts >= ?
		ORDER BY ts`, ticker, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.History: query %s: %w", ticker, err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		if err := rows.Scan(&snap.Ticker, &snap.Timestamp, &snap.LastPrice,
			&snap.Bid, &snap.Ask, &snap.Mid, &snap.SpreadCents, &snap.Volume24h,
			&snap.BidDepth, &snap.AskDepth, &snap.DepthImbalance,
			&snap.OrderbookJSON); err != nil {
			return nil, fmt.Errorf("storage.History: scan: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Retain deletes snapshots older than cutoff and returns how many rows
// went away.
func (s *Store) Retain(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage.Retain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage.Retain: rows affected: %w", err)
	}
	return n, nil
}
