package ports

import (
	"context"

	"kalshi-edge/internal/domain"
)

// OrderRequest is the exchange-side order submission payload.
type OrderRequest struct {
	Ticker         string
	Side           domain.OrderSide
	Action         string // buy | sell
	Count          int
	Type           domain.OrderType
	PriceCents     int // 1..99 for limit orders
	IdempotencyKey string
}

// OrderAck is the exchange's acknowledgement of a submission.
type OrderAck struct {
	ExchangeOrderID string
	Status          domain.OrderStatus
	FilledQuantity  int
	AvgFillPrice    float64
}

// ExchangeClient is the consumed contract of the prediction exchange.
// Request signing, retries and pagination live behind it.
type ExchangeClient interface {
	ListMarkets(ctx context.Context, cursor, series, status string, limit int) ([]domain.Contract, string, error)
	GetContract(ctx context.Context, ticker string) (domain.Contract, error)
	GetTopOfBook(ctx context.Context, ticker string) (domain.TopOfBook, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	GetOrder(ctx context.Context, exchangeOrderID string) (OrderAck, error)
	GetFills(ctx context.Context, ticker string, limit int) ([]domain.Fill, error)
	GetBalance(ctx context.Context) (float64, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
	Close() error
}
