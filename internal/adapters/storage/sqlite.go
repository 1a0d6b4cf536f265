// Package storage persists all bot state in one SQLite schema: orders
// with an idempotency unique index, fills, snapshots, the daily P&L
// ledger, discovered contracts, ingested quotes and emitted alerts.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                 TEXT PRIMARY KEY,
    idempotency_key    TEXT NOT NULL UNIQUE,
    exchange_order_id  TEXT,
    ticker             TEXT NOT NULL,
    side               TEXT NOT NULL,
    type               TEXT NOT NULL,
    price              INTEGER NOT NULL,
    quantity           INTEGER NOT NULL,
    strategy           TEXT,
    signal_confidence  REAL NOT NULL DEFAULT 0,
    expected_value     REAL NOT NULL DEFAULT 0,
    status             TEXT NOT NULL,
    filled_quantity    INTEGER NOT NULL DEFAULT 0,
    average_fill_price REAL NOT NULL DEFAULT 0,
    created_at         DATETIME NOT NULL,
    submitted_at       DATETIME,
    filled_at          DATETIME,
    error_message      TEXT
);

CREATE TABLE IF NOT EXISTS fills (
    id                TEXT PRIMARY KEY,
    order_id          TEXT NOT NULL REFERENCES orders(id),
    exchange_trade_id TEXT,
    ticker            TEXT NOT NULL,
    side              TEXT NOT NULL,
    price             INTEGER NOT NULL,
    quantity          INTEGER NOT NULL,
    notional          REAL NOT NULL DEFAULT 0,
    fees              REAL NOT NULL DEFAULT 0,
    ts                DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker          TEXT NOT NULL,
    ts              DATETIME NOT NULL,
    last_price      INTEGER NOT NULL DEFAULT 0,
    bid             REAL NOT NULL DEFAULT 0,
    ask             REAL NOT NULL DEFAULT 0,
    mid             REAL NOT NULL DEFAULT 0,
    spread          REAL NOT NULL DEFAULT 0,
    volume_24h      INTEGER NOT NULL DEFAULT 0,
    bid_depth       INTEGER NOT NULL DEFAULT 0,
    ask_depth       INTEGER NOT NULL DEFAULT 0,
    depth_imbalance REAL NOT NULL DEFAULT 0,
    orderbook_json  TEXT
);

CREATE TABLE IF NOT EXISTS daily_pnl (
    date            TEXT PRIMARY KEY,
    realized        REAL NOT NULL DEFAULT 0,
    unrealized      REAL NOT NULL DEFAULT 0,
    fees            REAL NOT NULL DEFAULT 0,
    placed          INTEGER NOT NULL DEFAULT 0,
    filled          INTEGER NOT NULL DEFAULT 0,
    won             INTEGER NOT NULL DEFAULT 0,
    lost            INTEGER NOT NULL DEFAULT 0,
    peak_exposure   REAL NOT NULL DEFAULT 0,
    ending_exposure REAL NOT NULL DEFAULT 0,
    markets_traded  TEXT
);

CREATE TABLE IF NOT EXISTS contracts (
    ticker        TEXT PRIMARY KEY,
    event         TEXT,
    series        TEXT,
    title         TEXT,
    category      TEXT,
    outcome_side  TEXT NOT NULL DEFAULT 'yes',
    close_time    DATETIME,
    status        TEXT,
    settlement    INTEGER NOT NULL DEFAULT -1,
    last_price    INTEGER NOT NULL DEFAULT 0,
    volume_24h    INTEGER NOT NULL DEFAULT 0,
    fetched_at    DATETIME
);

CREATE TABLE IF NOT EXISTS quotes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    source      TEXT NOT NULL,
    bookmaker   TEXT NOT NULL,
    event       TEXT NOT NULL,
    event_title TEXT,
    sport       TEXT,
    market_type TEXT NOT NULL,
    selection   TEXT NOT NULL,
    odds_format TEXT NOT NULL,
    odds_value  REAL NOT NULL,
    point       REAL NOT NULL DEFAULT 0,
    start_time  DATETIME,
    ts          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
    alert_id         TEXT PRIMARY KEY,
    ts               DATETIME NOT NULL,
    market_key       TEXT NOT NULL,
    direction        TEXT NOT NULL,
    edge_bps         REAL NOT NULL DEFAULT 0,
    confidence       TEXT NOT NULL,
    confidence_score REAL NOT NULL DEFAULT 0,
    contract_id      TEXT,
    bookmaker        TEXT,
    selection        TEXT,
    book_prob        REAL NOT NULL DEFAULT 0,
    odds_string      TEXT,
    exchange_price   REAL NOT NULL DEFAULT 0,
    exchange_size    INTEGER NOT NULL DEFAULT 0,
    notes            TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_ticker ON snapshots(ticker);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts     ON snapshots(ts);
CREATE INDEX IF NOT EXISTS idx_orders_created   ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_fills_order      ON fills(order_id);
CREATE INDEX IF NOT EXISTS idx_quotes_sport_ts  ON quotes(sport, ts);
CREATE INDEX IF NOT EXISTS idx_alerts_ts        ON alerts(ts DESC);
`

// Store implements every persistence port over one SQLite file.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path, applies the schema and
// prunes snapshots past the retention window.
func New(path string, retentionDays int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.New: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.New: apply schema: %w", err)
	}

	s := &Store{db: db}
	if retentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		s.Retain(context.Background(), cutoff)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
