package orders

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-edge/config"
	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
	"kalshi-edge/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testGate() *risk.Gate {
	return risk.NewGate(config.RiskConfig{
		MaxDailyLoss:         50,
		MaxPerMarketExposure: 25,
		MaxTotalExposure:     100,
		MaxOpenPositions:     5,
		MaxTradesPerDay:      10,
		DefaultPositionSize:  10,
		Bankroll:             1000,
		KellyFraction:        0.25,
		MinExpectedValue:     0.02,
		MinWinRate:           0.55,
		MinBacktestSamples:   20,
		ConfidenceThreshold:  0.6,
	})
}

// memOrderStore is an in-memory OrderStore with the same duplicate-key
// semantics as the SQLite store.
type memOrderStore struct {
	orders map[string]domain.Order // by id
	byKey  map[string]string      // idempotency key → id
	fills  []domain.Fill
	pnl    map[string]domain.DailyPnl
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{
		orders: make(map[string]domain.Order),
		byKey:  make(map[string]string),
		pnl:    make(map[string]domain.DailyPnl),
	}
}

func (m *memOrderStore) SaveOrder(_ context.Context, o domain.Order) (domain.Order, bool, error) {
	if id, dup := m.byKey[o.IdempotencyKey]; dup {
		return m.orders[id], false, nil
	}
	m.orders[o.ID] = o
	m.byKey[o.IdempotencyKey] = o.ID
	return o, true, nil
}

func (m *memOrderStore) UpdateOrder(_ context.Context, o domain.Order) error {
	if _, ok := m.orders[o.ID]; !ok {
		return fmt.Errorf("unknown order %s", o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *memOrderStore) GetOrder(_ context.Context, id string) (domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("not found: %s", id)
	}
	return o, nil
}

func (m *memOrderStore) OrdersByDate(_ context.Context, _ time.Time) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *memOrderStore) SaveFill(_ context.Context, f domain.Fill) error {
	m.fills = append(m.fills, f)
	return nil
}

func (m *memOrderStore) FillsForOrder(_ context.Context, orderID string) ([]domain.Fill, error) {
	var out []domain.Fill
	for _, f := range m.fills {
		if f.OrderID == orderID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memOrderStore) SaveDailyPnl(_ context.Context, d domain.DailyPnl) error {
	m.pnl[d.Date.Format("2006-01-02")] = d
	return nil
}

func (m *memOrderStore) GetDailyPnl(_ context.Context, day time.Time) (domain.DailyPnl, error) {
	d, ok := m.pnl[day.Format("2006-01-02")]
	if !ok {
		return domain.DailyPnl{}, fmt.Errorf("no pnl for %s", day.Format("2006-01-02"))
	}
	return d, nil
}

var _ ports.OrderStore = (*memOrderStore)(nil)

type stubExchange struct {
	ports.ExchangeClient
	ack       ports.OrderAck
	placeErr  error
	placed    []ports.OrderRequest
	cancelled []string
}

func (s *stubExchange) PlaceOrder(_ context.Context, req ports.OrderRequest) (ports.OrderAck, error) {
	if s.placeErr != nil {
		return ports.OrderAck{}, s.placeErr
	}
	s.placed = append(s.placed, req)
	return s.ack, nil
}

func (s *stubExchange) GetOrder(_ context.Context, _ string) (ports.OrderAck, error) {
	return s.ack, nil
}

func (s *stubExchange) CancelOrder(_ context.Context, id string) error {
	s.cancelled = append(s.cancelled, id)
	return nil
}

func paperSignal() domain.Signal {
	return domain.Signal{
		Strategy:      "mispricing_v1",
		Ticker:        "XYZ-1",
		Side:          domain.SideYes,
		Confidence:    0.8,
		FairProb:      0.60,
		ExpectedValue: 0.11,
		EntryPrice:    49,
		CreatedAt:     time.Now(),
	}
}

func paperManager(store *memOrderStore) *Manager {
	// Seed 1: the first simulated roll fills.
	return NewManager(ManagerConfig{
		Mode:            ModePaper,
		LimitOrdersOnly: true,
		DefaultDollars:  10,
	}, testLogger(), testGate(), store, nil, NewPaperBroker(1000, 1))
}

func TestManager_PaperFillAndDuplicate(t *testing.T) {
	store := newMemOrderStore()
	m := paperManager(store)

	first, err := m.ProcessSignal(context.Background(), paperSignal(), 10)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, domain.OrderFilled, first.Status)
	assert.Equal(t, 50, int(first.AvgFillPrice)) // 49c + 1c slippage
	assert.Len(t, store.fills, 1)

	// Identical signal the same day: skipped silently.
	second, err := m.ProcessSignal(context.Background(), paperSignal(), 10)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, store.orders, 1)
}

func TestManager_DryRunPersistsPending(t *testing.T) {
	store := newMemOrderStore()
	m := NewManager(ManagerConfig{Mode: ModeDryRun, DefaultDollars: 10},
		testLogger(), testGate(), store, nil, nil)

	order, err := m.ProcessSignal(context.Background(), paperSignal(), 0)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, domain.OrderLimit, order.Type)
	assert.Equal(t, "XYZ-1", order.Ticker)
	assert.Contains(t, order.IdempotencyKey, "|XYZ-1|mispricing_v1|yes")
}

func TestManager_RejectsOutOfRangePrice(t *testing.T) {
	m := NewManager(ManagerConfig{Mode: ModeDryRun, DefaultDollars: 10},
		testLogger(), testGate(), newMemOrderStore(), nil, nil)

	sig := paperSignal()
	sig.EntryPrice = 0
	_, err := m.ProcessSignal(context.Background(), sig, 10)
	assert.ErrorIs(t, err, ErrPriceOutOfRange)

	sig.EntryPrice = 100
	_, err = m.ProcessSignal(context.Background(), sig, 10)
	assert.ErrorIs(t, err, ErrPriceOutOfRange)
}

func TestManager_DropsNonActionable(t *testing.T) {
	m := NewManager(ManagerConfig{Mode: ModeDryRun, DefaultDollars: 10},
		testLogger(), testGate(), newMemOrderStore(), nil, nil)

	sig := paperSignal()
	sig.Side = domain.SideNone
	order, err := m.ProcessSignal(context.Background(), sig, 10)
	require.NoError(t, err)
	assert.Nil(t, order)
}

// flakyOrderStore fails the first SaveOrder calls and recovers after.
type flakyOrderStore struct {
	*memOrderStore
	failures int
}

func (f *flakyOrderStore) SaveOrder(ctx context.Context, o domain.Order) (domain.Order, bool, error) {
	if f.failures > 0 {
		f.failures--
		return domain.Order{}, false, fmt.Errorf("disk full")
	}
	return f.memOrderStore.SaveOrder(ctx, o)
}

func TestManager_FailedPersistDoesNotBurnIdempotencyKey(t *testing.T) {
	store := &flakyOrderStore{memOrderStore: newMemOrderStore(), failures: 1}
	m := NewManager(ManagerConfig{Mode: ModeDryRun, DefaultDollars: 10},
		testLogger(), testGate(), store, nil, nil)

	_, err := m.ProcessSignal(context.Background(), paperSignal(), 10)
	require.Error(t, err)
	assert.Empty(t, store.orders)

	// Retried after the store recovers: the order goes through instead
	// of being skipped as a duplicate.
	order, err := m.ProcessSignal(context.Background(), paperSignal(), 10)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Len(t, store.orders, 1)
}

func TestManager_RiskRejectionReturnsNothing(t *testing.T) {
	store := newMemOrderStore()
	m := NewManager(ManagerConfig{Mode: ModeDryRun, DefaultDollars: 10},
		testLogger(), testGate(), store, nil, nil)

	sig := paperSignal()
	sig.Confidence = 0.1
	order, err := m.ProcessSignal(context.Background(), sig, 10)
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Empty(t, store.orders)
}

func TestManager_PaperInsufficientBalance(t *testing.T) {
	store := newMemOrderStore()
	m := NewManager(ManagerConfig{Mode: ModePaper, DefaultDollars: 10},
		testLogger(), testGate(), store, nil, NewPaperBroker(0.5, 1))

	order, err := m.ProcessSignal(context.Background(), paperSignal(), 10)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderRejected, order.Status)
	assert.Contains(t, order.ErrorMessage, "balance")
}

func TestManager_LiveWithoutCredentialsRejects(t *testing.T) {
	store := newMemOrderStore()
	m := NewManager(ManagerConfig{Mode: ModeLive, DefaultDollars: 10, LiveConfigured: false},
		testLogger(), testGate(), store, &stubExchange{}, nil)

	order, err := m.ProcessSignal(context.Background(), paperSignal(), 10)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderRejected, order.Status)
	assert.Contains(t, order.ErrorMessage, "credentials")
}

func TestManager_LiveSubmits(t *testing.T) {
	store := newMemOrderStore()
	exchange := &stubExchange{ack: ports.OrderAck{ExchangeOrderID: "ex-1", Status: domain.OrderOpen}}
	m := NewManager(ManagerConfig{Mode: ModeLive, DefaultDollars: 10, LiveConfigured: true, LimitOrdersOnly: true},
		testLogger(), testGate(), store, exchange, nil)

	order, err := m.ProcessSignal(context.Background(), paperSignal(), 10)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "ex-1", order.ExchangeOrderID)
	assert.Equal(t, domain.OrderOpen, order.Status)
	require.Len(t, exchange.placed, 1)
	assert.Equal(t, order.IdempotencyKey, exchange.placed[0].IdempotencyKey)
}

func TestManager_LiveExchangeErrorRejectsOrder(t *testing.T) {
	store := newMemOrderStore()
	exchange := &stubExchange{placeErr: fmt.Errorf("market closed")}
	m := NewManager(ManagerConfig{Mode: ModeLive, DefaultDollars: 10, LiveConfigured: true},
		testLogger(), testGate(), store, exchange, nil)

	order, err := m.ProcessSignal(context.Background(), paperSignal(), 10)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderRejected, order.Status)
	assert.Contains(t, order.ErrorMessage, "market closed")
}

func TestManager_SyncPromotesToFilled(t *testing.T) {
	store := newMemOrderStore()
	exchange := &stubExchange{ack: ports.OrderAck{
		ExchangeOrderID: "ex-1", Status: domain.OrderOpen, FilledQuantity: 20, AvgFillPrice: 49.5,
	}}
	m := NewManager(ManagerConfig{Mode: ModeLive, DefaultDollars: 10, LiveConfigured: true},
		testLogger(), testGate(), store, exchange, nil)

	order := domain.Order{
		ID: "o-1", IdempotencyKey: "k-1", Ticker: "XYZ-1",
		Side: domain.OrderYes, Price: 49, Quantity: 20,
		ExchangeOrderID: "ex-1", Status: domain.OrderOpen,
	}
	_, _, err := store.SaveOrder(context.Background(), order)
	require.NoError(t, err)

	synced, err := m.Sync(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, synced.Status)
	assert.Equal(t, 20, synced.FilledQuantity)
	assert.InDelta(t, 49.5, synced.AvgFillPrice, 0.0001)
}

func TestManager_CancelLocalOnly(t *testing.T) {
	store := newMemOrderStore()
	exchange := &stubExchange{}
	m := NewManager(ManagerConfig{Mode: ModeLive, DefaultDollars: 10, LiveConfigured: true},
		testLogger(), testGate(), store, exchange, nil)

	order := domain.Order{ID: "o-1", IdempotencyKey: "k-1", Ticker: "XYZ-1", Status: domain.OrderPending}
	_, _, err := store.SaveOrder(context.Background(), order)
	require.NoError(t, err)

	require.NoError(t, m.Cancel(context.Background(), "o-1"))
	assert.Empty(t, exchange.cancelled) // never reached the exchange

	got, _ := store.GetOrder(context.Background(), "o-1")
	assert.Equal(t, domain.OrderCancelled, got.Status)
}

func TestPaperBroker_DebitsAndCredits(t *testing.T) {
	b := NewPaperBroker(100, 1)
	fill, ok, _ := b.TryFill(domain.Order{ID: "o-1", Ticker: "T", Side: domain.OrderYes, Price: 49, Quantity: 20})
	require.True(t, ok)
	assert.Equal(t, 50, fill.Price)
	assert.InDelta(t, 10, fill.Notional, 0.0001)
	assert.InDelta(t, 90, b.Balance(), 0.0001)

	b.Credit(5)
	assert.InDelta(t, 95, b.Balance(), 0.0001)
}
