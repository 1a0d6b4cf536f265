// Package orders turns validated signals into exchange orders and
// tracks their lifecycle.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
	"kalshi-edge/internal/risk"
)

// Mode selects how orders are routed.
type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModePaper  Mode = "paper"
	ModeLive   Mode = "live"
)

// ErrPriceOutOfRange is returned when an entry price leaves 1..99; the
// order is rejected, never clamped.
var ErrPriceOutOfRange = errors.New("orders: price outside 1..99")

// ManagerConfig configures routing and defaults.
type ManagerConfig struct {
	Mode            Mode
	LimitOrdersOnly bool
	DefaultDollars  float64
	// LiveConfigured is whether the exchange credential bundle is
	// present; required for ModeLive.
	LiveConfigured bool
}

// Manager owns the signal-to-order path for one trading day.
type Manager struct {
	cfg      ManagerConfig
	logger   *slog.Logger
	gate     *risk.Gate
	store    ports.OrderStore
	exchange ports.ExchangeClient
	paper    *PaperBroker
	now      func() time.Time
}

// NewManager wires the manager. The exchange client may be nil outside
// live mode; the paper broker may be nil outside paper mode.
func NewManager(cfg ManagerConfig, logger *slog.Logger, gate *risk.Gate, store ports.OrderStore, exchange ports.ExchangeClient, paper *PaperBroker) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		gate:     gate,
		store:    store,
		exchange: exchange,
		paper:    paper,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessSignal routes one signal through risk, idempotency and the
// configured execution mode. A nil order with nil error means the
// signal was skipped (risk rejection or duplicate); the reason is
// logged.
func (m *Manager) ProcessSignal(ctx context.Context, sig domain.Signal, proposedDollars float64) (*domain.Order, error) {
	if !sig.Actionable() {
		return nil, nil
	}
	if sig.EntryPrice < 1 || sig.EntryPrice > 99 {
		return nil, fmt.Errorf("orders.ProcessSignal: %s at %dc: %w", sig.Ticker, sig.EntryPrice, ErrPriceOutOfRange)
	}
	if proposedDollars <= 0 {
		proposedDollars = m.cfg.DefaultDollars
	}

	verdict := m.gate.Check(sig, proposedDollars)
	if !verdict.Allowed {
		m.logger.Info("signal rejected by risk gate",
			"ticker", sig.Ticker, "strategy", sig.Strategy, "reason", verdict.Reason)
		return nil, nil
	}

	order := m.buildOrder(sig, verdict.Contracts)
	if !m.gate.CheckIdempotency(order.IdempotencyKey) {
		m.logger.Debug("duplicate signal skipped",
			"ticker", sig.Ticker, "key", order.IdempotencyKey)
		return nil, nil
	}

	placed, err := m.route(ctx, order)
	if err != nil {
		// A failed attempt must not burn the key, or the signal could
		// never be retried.
		m.gate.ReleaseIdempotency(order.IdempotencyKey)
		return nil, err
	}
	return placed, nil
}

func (m *Manager) route(ctx context.Context, order domain.Order) (*domain.Order, error) {
	switch m.cfg.Mode {
	case ModeDryRun:
		return m.routeDryRun(ctx, order)
	case ModePaper:
		return m.routePaper(ctx, order)
	case ModeLive:
		return m.routeLive(ctx, order)
	default:
		return nil, fmt.Errorf("orders.ProcessSignal: unknown mode %q", m.cfg.Mode)
	}
}

func (m *Manager) buildOrder(sig domain.Signal, contracts int) domain.Order {
	orderType := domain.OrderLimit
	if !m.cfg.LimitOrdersOnly && sig.Confidence >= 0.9 {
		orderType = domain.OrderMarket
	}
	side := domain.OrderYes
	if sig.Side == domain.SideNo {
		side = domain.OrderNo
	}
	now := m.now()
	return domain.Order{
		ID:             uuid.NewString(),
		IdempotencyKey: domain.IdempotencyKey(now, sig.Ticker, sig.Strategy, side),
		Ticker:         sig.Ticker,
		Side:           side,
		Type:           orderType,
		Price:          sig.EntryPrice,
		Quantity:       contracts,
		Strategy:       sig.Strategy,
		Confidence:     sig.Confidence,
		ExpectedValue:  sig.ExpectedValue,
		Status:         domain.OrderPending,
		CreatedAt:      now,
	}
}

// routeDryRun persists the order as PENDING without submitting.
func (m *Manager) routeDryRun(ctx context.Context, order domain.Order) (*domain.Order, error) {
	stored, fresh, err := m.store.SaveOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("orders.routeDryRun: %w", err)
	}
	if !fresh {
		return nil, nil
	}
	m.logger.Info("dry-run order recorded",
		"ticker", order.Ticker, "side", order.Side, "price", order.Price, "qty", order.Quantity)
	return &stored, nil
}

// routePaper persists the order and runs it through the fill simulator.
func (m *Manager) routePaper(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if m.paper == nil {
		return nil, fmt.Errorf("orders.routePaper: paper broker not configured")
	}

	stored, fresh, err := m.store.SaveOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("orders.routePaper: %w", err)
	}
	if !fresh {
		return nil, nil
	}

	stored.Status = domain.OrderSubmitted
	stored.SubmittedAt = m.now()
	m.gate.RecordOrderSubmitted(stored)

	fill, ok, reason := m.paper.TryFill(stored)
	if !ok {
		stored.Status = domain.OrderRejected
		stored.ErrorMessage = reason
		if err := m.store.UpdateOrder(ctx, stored); err != nil {
			return nil, fmt.Errorf("orders.routePaper: %w", err)
		}
		m.logger.Info("paper order rejected", "ticker", stored.Ticker, "reason", reason)
		return &stored, nil
	}

	stored.ApplyFill(fill)
	m.gate.RecordFill(fill)
	if err := m.store.SaveFill(ctx, fill); err != nil {
		return nil, fmt.Errorf("orders.routePaper: %w", err)
	}
	if err := m.store.UpdateOrder(ctx, stored); err != nil {
		return nil, fmt.Errorf("orders.routePaper: %w", err)
	}
	m.logger.Info("paper order filled",
		"ticker", stored.Ticker, "side", stored.Side,
		"price", fill.Price, "qty", fill.Quantity)
	return &stored, nil
}

// routeLive submits the order to the exchange. Missing credentials make
// the order REJECTED before any submission.
func (m *Manager) routeLive(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if !m.cfg.LiveConfigured {
		order.Status = domain.OrderRejected
		order.ErrorMessage = "live mode requires exchange credentials"
		stored, _, err := m.store.SaveOrder(ctx, order)
		if err != nil {
			return nil, fmt.Errorf("orders.routeLive: %w", err)
		}
		m.logger.Error("live order rejected: credentials missing", "ticker", order.Ticker)
		return &stored, nil
	}

	stored, fresh, err := m.store.SaveOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("orders.routeLive: %w", err)
	}
	if !fresh {
		return nil, nil
	}

	ack, err := m.exchange.PlaceOrder(ctx, ports.OrderRequest{
		Ticker:         stored.Ticker,
		Side:           stored.Side,
		Action:         "buy",
		Count:          stored.Quantity,
		Type:           stored.Type,
		PriceCents:     stored.Price,
		IdempotencyKey: stored.IdempotencyKey,
	})
	if err != nil {
		stored.Status = domain.OrderRejected
		stored.ErrorMessage = err.Error()
		if uerr := m.store.UpdateOrder(ctx, stored); uerr != nil {
			return nil, fmt.Errorf("orders.routeLive: %w", uerr)
		}
		m.logger.Warn("live order rejected by exchange",
			"ticker", stored.Ticker, "err", err)
		return &stored, nil
	}

	stored.ExchangeOrderID = ack.ExchangeOrderID
	stored.Status = domain.OrderSubmitted
	stored.SubmittedAt = m.now()
	m.gate.RecordOrderSubmitted(stored)
	if domain.CanTransition(stored.Status, ack.Status) {
		stored.Status = ack.Status
	}
	if err := m.store.UpdateOrder(ctx, stored); err != nil {
		return nil, fmt.Errorf("orders.routeLive: %w", err)
	}
	m.logger.Info("live order submitted",
		"ticker", stored.Ticker, "exchange_id", ack.ExchangeOrderID, "status", stored.Status)
	return &stored, nil
}

// Sync pulls the exchange-side status of an order and reconciles the
// local row. Status moves are monotone; illegal transitions are ignored.
func (m *Manager) Sync(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.Sync: %w", err)
	}
	if order.ExchangeOrderID == "" || order.Status.Terminal() {
		return order, nil
	}

	ack, err := m.exchange.GetOrder(ctx, order.ExchangeOrderID)
	if err != nil {
		return order, fmt.Errorf("orders.Sync: %s: %w", order.ExchangeOrderID, err)
	}

	if ack.FilledQuantity > order.FilledQuantity {
		order.FilledQuantity = ack.FilledQuantity
		order.AvgFillPrice = ack.AvgFillPrice
	}
	if order.FilledQuantity >= order.Quantity {
		order.Status = domain.OrderFilled
		order.FilledAt = m.now()
	} else if domain.CanTransition(order.Status, ack.Status) {
		order.Status = ack.Status
	}

	if err := m.store.UpdateOrder(ctx, order); err != nil {
		return order, fmt.Errorf("orders.Sync: %w", err)
	}
	return order, nil
}

// Cancel cancels an order: local-only before the exchange knows about
// it, forwarded otherwise.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("orders.Cancel: %w", err)
	}
	if order.Status.Terminal() {
		return fmt.Errorf("orders.Cancel: order %s already %s", orderID, order.Status)
	}

	if order.ExchangeOrderID != "" {
		if err := m.exchange.CancelOrder(ctx, order.ExchangeOrderID); err != nil {
			return fmt.Errorf("orders.Cancel: %w", err)
		}
	}
	order.Status = domain.OrderCancelled
	if err := m.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("orders.Cancel: %w", err)
	}
	m.logger.Info("order cancelled", "order_id", orderID)
	return nil
}
