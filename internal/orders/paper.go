package orders

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"kalshi-edge/internal/domain"
)

// Paper broker defaults.
const (
	paperFillProbability = 0.8
	paperSlippageCents   = 1
	paperInitialBalance  = 1000
)

// PaperBroker simulates fills against a virtual balance: probabilistic
// fill with one cent of adverse slippage.
type PaperBroker struct {
	mu      sync.Mutex
	balance float64
	rng     *rand.Rand
	now     func() time.Time

	fillProbability float64
	slippageCents   int
}

// NewPaperBroker builds a simulator with the starting balance; zero
// means the default 1000 dollars.
func NewPaperBroker(balance float64, seed int64) *PaperBroker {
	if balance <= 0 {
		balance = paperInitialBalance
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperBroker{
		balance:         balance,
		rng:             rand.New(rand.NewSource(seed)),
		now:             func() time.Time { return time.Now().UTC() },
		fillProbability: paperFillProbability,
		slippageCents:   paperSlippageCents,
	}
}

// Balance returns the remaining virtual balance.
func (b *PaperBroker) Balance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

// TryFill simulates execution of the order. A fill debits the balance
// at the slipped price; insufficient balance or the unlucky roll reject.
func (b *PaperBroker) TryFill(order domain.Order) (domain.Fill, bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price := order.Price + b.slippageCents
	if price > 99 {
		price = 99
	}
	notional := float64(price) * float64(order.Quantity) / 100
	if notional > b.balance {
		return domain.Fill{}, false, "insufficient paper balance"
	}
	if b.rng.Float64() > b.fillProbability {
		return domain.Fill{}, false, "no fill (simulated)"
	}

	b.balance -= notional
	return domain.Fill{
		ID:              uuid.NewString(),
		OrderID:         order.ID,
		ExchangeTradeID: "paper-" + uuid.NewString()[:8],
		Ticker:          order.Ticker,
		Side:            order.Side,
		Price:           price,
		Quantity:        order.Quantity,
		Notional:        notional,
		Timestamp:       b.now(),
	}, true, ""
}

// Credit returns dollars to the balance, used when a paper position is
// closed out.
func (b *PaperBroker) Credit(dollars float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance += dollars
}
