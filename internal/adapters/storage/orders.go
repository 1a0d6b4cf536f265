package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kalshi-edge/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("storage: not found")

// SaveOrder inserts a new order. A duplicate idempotency key is a
// genuine duplicate submission: the already-stored order is returned
// with inserted=false and no error.
func (s *Store) SaveOrder(ctx context.Context, o domain.Order) (domain.Order, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
			(id, idempotency_key, exchange_order_id, ticker, side, type, price,
			 quantity, strategy, signal_confidence, expected_value, status,
			 filled_quantity, average_fill_price, created_at, submitted_at,
			 filled_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING`,
		o.ID, o.IdempotencyKey, o.ExchangeOrderID, o.Ticker, o.Side, o.Type,
		o.Price, o.Quantity, o.Strategy, o.Confidence, o.ExpectedValue,
		o.Status, o.FilledQuantity, o.AvgFillPrice,
		o.CreatedAt.UTC(), nullTime(o.SubmittedAt), nullTime(o.FilledAt),
		o.ErrorMessage,
	)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("storage.SaveOrder: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("storage.SaveOrder: rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.orderByIdempotencyKey(ctx, o.IdempotencyKey)
		if err != nil {
			return domain.Order{}, false, err
		}
		return existing, false, nil
	}
	return o, true, nil
}

// UpdateOrder rewrites the mutable fields of an existing order.
func (s *Store) UpdateOrder(ctx context.Context, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			exchange_order_id = ?, status = ?, filled_quantity = ?,
			average_fill_price = ?, submitted_at = ?, filled_at = ?,
			error_message = ?
		WHERE id = ?`,
		o.ExchangeOrderID, o.Status, o.FilledQuantity, o.AvgFillPrice,
		nullTime(o.SubmittedAt), nullTime(o.FilledAt), o.ErrorMessage, o.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateOrder: %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder fetches one order by internal id.
func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE id = ?`, id))
}

func (s *Store) orderByIdempotencyKey(ctx context.Context, key string) (domain.Order, error) {
	return s.scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE idempotency_key = ?`, key))
}

// OrdersByDate returns every order created on the given UTC date.
func (s *Store) OrdersByDate(ctx context.Context, day time.Time) ([]domain.Order, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.db.QueryContext(ctx,
		selectOrder+` WHERE created_at >= ? AND created_at < ? ORDER BY created_at`,
		start, start.AddDate(0, 0, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.OrdersByDate: query: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := s.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SaveFill appends one fill row.
func (s *Store) SaveFill(ctx context.Context, f domain.Fill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills
			(id, order_id, exchange_trade_id, ticker, side, price, quantity, notional, fees, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OrderID, f.ExchangeTradeID, f.Ticker, f.Side, f.Price,
		f.Quantity, f.Notional, f.Fees, f.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveFill: %s: %w", f.ID, err)
	}
	return nil
}

// FillsForOrder returns the fills of one order in time order.
func (s *Store) FillsForOrder(ctx context.Context, orderID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, exchange_trade_id, ticker, side, price, quantity, notional, fees, ts
		FROM fills WHERE order_id = ? ORDER BY ts`, orderID)
	if err != nil {
		return nil, fmt.Errorf("storage.FillsForOrder: query: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.ExchangeTradeID, &f.Ticker,
			&f.Side, &f.Price, &f.Quantity, &f.Notional, &f.Fees, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("storage.FillsForOrder: scan: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// SaveDailyPnl upserts the ledger row for one date.
func (s *Store) SaveDailyPnl(ctx context.Context, d domain.DailyPnl) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_pnl
			(date, realized, unrealized, fees, placed, filled, won, lost,
			 peak_exposure, ending_exposure, markets_traded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			realized = excluded.realized, unrealized = excluded.unrealized,
			fees = excluded.fees, placed = excluded.placed,
			filled = excluded.filled, won = excluded.won, lost = excluded.lost,
			peak_exposure = excluded.peak_exposure,
			ending_exposure = excluded.ending_exposure,
			markets_traded = excluded.markets_traded`,
		d.Date.Format("2006-01-02"), d.Realized, d.Unrealized, d.Fees,
		d.TradesPlaced, d.TradesFilled, d.TradesWon, d.TradesLost,
		d.PeakExposure, d.EndExposure, strings.Join(d.MarketsTraded, ","),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDailyPnl: %w", err)
	}
	return nil
}

// GetDailyPnl returns the ledger row for one date, ErrNotFound when the
// day has no record.
func (s *Store) GetDailyPnl(ctx context.Context, day time.Time) (domain.DailyPnl, error) {
	var d domain.DailyPnl
	var dateStr, markets string
	err := s.db.QueryRowContext(ctx, `
		SELECT date, realized, unrealized, fees, placed, filled, won, lost,
		       peak_exposure, ending_exposure, markets_traded
		FROM daily_pnl WHERE date = ?`, day.Format("2006-01-02"),
	).Scan(&dateStr, &d.Realized, &d.Unrealized, &d.Fees, &d.TradesPlaced,
		&d.TradesFilled, &d.TradesWon, &d.TradesLost, &d.PeakExposure,
		&d.EndExposure, &markets)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DailyPnl{}, ErrNotFound
	}
	if err != nil {
		return domain.DailyPnl{}, fmt.Errorf("storage.GetDailyPnl: %w", err)
	}
	d.Date, _ = time.Parse("2006-01-02", dateStr)
	if markets != "" {
		d.MarketsTraded = strings.Split(markets, ",")
	}
	return d, nil
}

const selectOrder = `
	SELECT id, idempotency_key, exchange_order_id, ticker, side, type, price,
	       quantity, strategy, signal_confidence, expected_value, status,
	       filled_quantity, average_fill_price, created_at, submitted_at,
	       filled_at, error_message
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var exchangeID, strategy, errMsg sql.NullString
	var submittedAt, filledAt sql.NullTime

	err := row.Scan(&o.ID, &o.IdempotencyKey, &exchangeID, &o.Ticker, &o.Side,
		&o.Type, &o.Price, &o.Quantity, &strategy, &o.Confidence,
		&o.ExpectedValue, &o.Status, &o.FilledQuantity, &o.AvgFillPrice,
		&o.CreatedAt, &submittedAt, &filledAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("storage.scanOrder: %w", err)
	}
	o.ExchangeOrderID = exchangeID.String
	o.Strategy = strategy.String
	o.ErrorMessage = errMsg.String
	o.SubmittedAt = submittedAt.Time
	o.FilledAt = filledAt.Time
	return o, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
