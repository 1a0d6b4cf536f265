// Package strategy holds the trading strategies behind a single
// interface and an explicit registry populated at startup.
package strategy

import (
	"kalshi-edge/internal/domain"
)

// Strategy is the contract every trading strategy implements. Evaluate
// never returns an error: a market the strategy declines yields a
// signal with SideNone and the reason in Reasoning.
type Strategy interface {
	// Name returns the unique strategy identifier used in idempotency
	// keys and order metadata.
	Name() string

	// Describe returns a one-line human description.
	Describe() string

	// Evaluate judges one contract given its current features and
	// recent snapshot history.
	Evaluate(contract domain.Contract, features domain.Snapshot, history []domain.Snapshot) domain.Signal

	// ValidateSignal reports whether a signal is internally consistent
	// and safe to route.
	ValidateSignal(s domain.Signal) bool
}

// Registry indexes the available strategies by name.
type Registry map[string]Strategy

// NewRegistry creates an empty registry.
func NewRegistry() Registry {
	return make(Registry)
}

// Register adds a strategy to the registry.
func (r Registry) Register(s Strategy) {
	r[s.Name()] = s
}

// Get returns the strategy by name.
func (r Registry) Get(name string) (Strategy, bool) {
	s, ok := r[name]
	return s, ok
}

// All returns every registered strategy in map order.
func (r Registry) All() []Strategy {
	out := make([]Strategy, 0, len(r))
	for _, s := range r {
		out = append(out, s)
	}
	return out
}

// validSignal is the shared sanity check behind ValidateSignal.
func validSignal(s domain.Signal) bool {
	if !s.Actionable() {
		return false
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return false
	}
	if s.EntryPrice < 1 || s.EntryPrice > 99 {
		return false
	}
	if s.FairProb <= 0 || s.FairProb >= 1 {
		return false
	}
	return true
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// decline builds the SideNone signal with the rejection reason.
func decline(name, ticker, reason string, features domain.Snapshot) domain.Signal {
	return domain.Signal{
		Strategy:   name,
		Ticker:     ticker,
		Side:       domain.SideNone,
		MarketProb: features.Mid,
		Reasoning:  reason,
		CreatedAt:  features.Timestamp,
	}
}
