package domain

import (
	"fmt"
	"time"
)

// OrderSide is the outcome side of the exchange order.
type OrderSide string

const (
	OrderYes OrderSide = "yes"
	OrderNo  OrderSide = "no"
)

// OrderType selects limit or market execution.
type OrderType string

const (
	OrderLimit  OrderType = "limit"
	OrderMarket OrderType = "market"
)

// OrderStatus is the lifecycle state of an order. Transitions are
// monotone toward a terminal state; see CanTransition.
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderSubmitted       OrderStatus = "SUBMITTED"
	OrderOpen            OrderStatus = "OPEN"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:         {OrderSubmitted, OrderRejected, OrderCancelled},
	OrderSubmitted:       {OrderOpen, OrderPartiallyFilled, OrderFilled, OrderRejected, OrderCancelled, OrderExpired},
	OrderOpen:            {OrderPartiallyFilled, OrderFilled, OrderCancelled, OrderExpired},
	OrderPartiallyFilled: {OrderFilled, OrderCancelled, OrderExpired},
}

// CanTransition reports whether from→to is a legal status move.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is one exchange order, from construction through settlement.
type Order struct {
	ID              string
	IdempotencyKey  string
	ExchangeOrderID string

	Ticker   string
	Side     OrderSide
	Type     OrderType
	Price    int // cents, 1..99
	Quantity int

	Strategy      string
	Confidence    float64
	ExpectedValue float64

	Status          OrderStatus
	FilledQuantity  int
	AvgFillPrice    float64 // cents, 0 until the first fill
	ErrorMessage    string

	CreatedAt   time.Time
	SubmittedAt time.Time
	FilledAt    time.Time
}

// IdempotencyKey builds the canonical daily dedupe key:
// YYYY-MM-DD|ticker|strategy|side.
func IdempotencyKey(day time.Time, ticker, strategy string, side OrderSide) string {
	return fmt.Sprintf("%s|%s|%s|%s", day.Format("2006-01-02"), ticker, strategy, side)
}

// NotionalDollars returns price × quantity in dollars.
func (o Order) NotionalDollars() float64 {
	return float64(o.Price) * float64(o.Quantity) / 100
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() int {
	return o.Quantity - o.FilledQuantity
}

// ApplyFill folds a fill into the order's aggregates and promotes the
// status once the quantity is covered.
func (o *Order) ApplyFill(f Fill) {
	prevQty := o.FilledQuantity
	o.FilledQuantity += f.Quantity
	if o.FilledQuantity > o.Quantity {
		o.FilledQuantity = o.Quantity
	}
	total := o.AvgFillPrice*float64(prevQty) + float64(f.Price)*float64(f.Quantity)
	if o.FilledQuantity > 0 {
		o.AvgFillPrice = total / float64(o.FilledQuantity)
	}
	if o.FilledQuantity >= o.Quantity {
		o.Status = OrderFilled
		o.FilledAt = f.Timestamp
	} else if CanTransition(o.Status, OrderPartiallyFilled) {
		o.Status = OrderPartiallyFilled
	}
}

// Fill is an append-only execution record belonging to one order.
type Fill struct {
	ID              string
	OrderID         string
	ExchangeTradeID string
	Ticker          string
	Side            OrderSide
	Price           int // cents
	Quantity        int
	Notional        float64 // dollars
	Fees            float64
	Timestamp       time.Time
}
