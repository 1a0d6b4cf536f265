package storage

import (
	"context"
	"fmt"

	"kalshi-edge/internal/domain"
)

// SaveAlerts appends a batch of scanner alerts in one transaction.
func (s *Store) SaveAlerts(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveAlerts: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts
			(alert_id, ts, market_key, direction, edge_bps, confidence,
			 confidence_score, contract_id, bookmaker, selection, book_prob,
			 odds_string, exchange_price, exchange_size, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveAlerts: prepare: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx, a.ID, a.EmittedAt.UTC(),
			a.MappingKey, a.Direction, a.EdgeBps, a.Confidence,
			a.ConfidenceScore, a.ContractID, a.Bookmaker, a.Selection,
			a.BookProb, a.OddsString, a.ExchangePrice, a.ExchangeSize,
			a.Notes); err != nil {
			return fmt.Errorf("storage.SaveAlerts: insert %s: %w", a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveAlerts: commit: %w", err)
	}
	return nil
}

// RecentAlerts returns the newest alerts, most recent first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_id, ts, market_key, direction, edge_bps, confidence,
		       confidence_score, COALESCE(contract_id, ''),
		       COALESCE(bookmaker, ''), COALESCE(selection, ''), book_prob,
		       COALESCE(odds_string, ''), exchange_price, exchange_size,
		       COALESCE(notes, '')
		FROM alerts ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentAlerts: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.EmittedAt, &a.MappingKey, &a.Direction,
			&a.EdgeBps, &a.Confidence, &a.ConfidenceScore, &a.ContractID,
			&a.Bookmaker, &a.Selection, &a.BookProb, &a.OddsString,
			&a.ExchangePrice, &a.ExchangeSize, &a.Notes); err != nil {
			return nil, fmt.Errorf("storage.RecentAlerts: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
