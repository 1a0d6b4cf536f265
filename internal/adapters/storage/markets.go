package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kalshi-edge/internal/domain"
)

// UpsertContract inserts or refreshes one discovered contract.
func (s *Store) UpsertContract(ctx context.Context, c domain.Contract) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts
			(ticker, event, series, title, category, outcome_side, close_time,
			 status, settlement, last_price, volume_24h, fetched_at)
		VALUES (?, ?, ?, ?, ?, 'yes', ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			event = excluded.event, series = excluded.series,
			title = excluded.title, category = excluded.category,
			close_time = excluded.close_time, status = excluded.status,
			settlement = excluded.settlement, last_price = excluded.last_price,
			volume_24h = excluded.volume_24h, fetched_at = excluded.fetched_at`,
		c.Ticker, c.EventTicker, c.SeriesTicker, c.Title, c.Category,
		c.CloseTime.UTC(), c.Status, c.Settlement, c.LastPrice, c.Volume24h,
		c.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertContract: %s: %w", c.Ticker, err)
	}
	return nil
}

// GetContract fetches one contract by ticker.
func (s *Store) GetContract(ctx context.Context, ticker string) (domain.Contract, error) {
	var c domain.Contract
	err := s.db.QueryRowContext(ctx, `
		SELECT ticker, event, series, title, category, close_time, status,
		       settlement, last_price, volume_24h, fetched_at
		FROM contracts WHERE ticker = ?`, ticker,
	).Scan(&c.Ticker, &c.EventTicker, &c.SeriesTicker, &c.Title, &c.Category,
		&c.CloseTime, &c.Status, &c.Settlement, &c.LastPrice, &c.Volume24h,
		&c.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contract{}, ErrNotFound
	}
	if err != nil {
		return domain.Contract{}, fmt.Errorf("storage.GetContract: %s: %w", ticker, err)
	}
	return c, nil
}

// ActiveContracts returns every contract still reported active.
func (s *Store) ActiveContracts(ctx context.Context) ([]domain.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, event, series, title, category, close_time, status,
		       settlement, last_price, volume_24h, fetched_at
		FROM contracts WHERE status = 'active' ORDER BY close_time`)
	if err != nil {
		return nil, fmt.Errorf("storage.ActiveContracts: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Contract
	for rows.Next() {
		var c domain.Contract
		if err := rows.Scan(&c.Ticker, &c.EventTicker, &c.SeriesTicker,
			&c.Title, &c.Category, &c.CloseTime, &c.Status, &c.Settlement,
			&c.LastPrice, &c.Volume24h, &c.FetchedAt); err != nil {
			return nil, fmt.Errorf("storage.ActiveContracts: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveQuotes appends a batch of quotes in one transaction.
func (s *Store) SaveQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveQuotes: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO quotes
			(source, bookmaker, event, event_title, sport, market_type,
			 selection, odds_format, odds_value, point, start_time, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveQuotes: prepare: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx, q.Source, q.Bookmaker, q.EventID,
			q.EventTitle, q.Sport, q.MarketType, q.Selection, q.Format,
			q.Odds, q.Point, q.StartTime.UTC(), q.CapturedAt.UTC()); err != nil {
			return fmt.Errorf("storage.SaveQuotes: insert %s/%s: %w", q.Bookmaker, q.Selection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveQuotes: commit: %w", err)
	}
	return nil
}

// RecentQuotes returns quotes for a sport captured at or after since.
func (s *Store) RecentQuotes(ctx context.Context, sport string, since time.Time) ([]domain.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, bookmaker, event, COALESCE(event_title, ''), sport,
		       market_type, selection, odds_format, odds_value, point,
		       start_time, ts
		FROM quotes WHERE sport = ? AND ts >= ? ORDER BY ts`, sport, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.RecentQuotes: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Quote
	for rows.Next() {
		var q domain.Quote
		if err := rows.Scan(&q.Source, &q.Bookmaker, &q.EventID, &q.EventTitle,
			&q.Sport, &q.MarketType, &q.Selection, &q.Format, &q.Odds,
			&q.Point, &q.StartTime, &q.CapturedAt); err != nil {
			return nil, fmt.Errorf("storage.RecentQuotes: scan: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
