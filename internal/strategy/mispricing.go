package strategy

import (
	"fmt"
	"math"

	"kalshi-edge/internal/domain"
)

const mispricingName = "mispricing_v1"

// Mispricing trades order-flow imbalance: a one-sided book suggests the
// mid is about to move toward the heavy side.
type Mispricing struct {
	minDepthImbalance float64
	maxSpreadCents    float64
	minVolume         int
	confidenceScale   float64
}

// MispricingConfig configures the strategy. Zero values take the
// defaults.
type MispricingConfig struct {
	MinDepthImbalance float64 // default 0.30
	MaxSpreadCents    float64 // default 5
	MinVolume         int     // default 100
	ConfidenceScale   float64 // default 0.5
}

// NewMispricing builds the strategy with the given parameters.
func NewMispricing(cfg MispricingConfig) *Mispricing {
	if cfg.MinDepthImbalance <= 0 {
		cfg.MinDepthImbalance = 0.30
	}
	if cfg.MaxSpreadCents <= 0 {
		cfg.MaxSpreadCents = 5
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = 100
	}
	if cfg.ConfidenceScale <= 0 {
		cfg.ConfidenceScale = 0.5
	}
	return &Mispricing{
		minDepthImbalance: cfg.MinDepthImbalance,
		maxSpreadCents:    cfg.MaxSpreadCents,
		minVolume:         cfg.MinVolume,
		confidenceScale:   cfg.ConfidenceScale,
	}
}

// Name implements Strategy.
func (m *Mispricing) Name() string { return mispricingName }

// Describe implements Strategy.
func (m *Mispricing) Describe() string {
	return "fades the mid toward the heavy side of an imbalanced book"
}

// Evaluate implements Strategy.
func (m *Mispricing) Evaluate(contract domain.Contract, features domain.Snapshot, _ []domain.Snapshot) domain.Signal {
	if features.Bid <= 0 || features.Ask <= 0 {
		return decline(mispricingName, contract.Ticker, "no orderbook", features)
	}
	if features.SpreadCents > m.maxSpreadCents {
		return decline(mispricingName, contract.Ticker,
			fmt.Sprintf("spread %.1fc > %.1fc", features.SpreadCents, m.maxSpreadCents), features)
	}
	if features.Volume24h < m.minVolume {
		return decline(mispricingName, contract.Ticker,
			fmt.Sprintf("volume %d < %d", features.Volume24h, m.minVolume), features)
	}
	imbalance := features.DepthImbalance
	if math.Abs(imbalance) < m.minDepthImbalance {
		return decline(mispricingName, contract.Ticker,
			fmt.Sprintf("imbalance %.2f below %.2f", imbalance, m.minDepthImbalance), features)
	}

	marketProb := features.Mid
	fairProb := clip(marketProb+0.1*imbalance, 0.05, 0.95)
	edge := fairProb - marketProb
	if math.Abs(edge) < 0.02 {
		return decline(mispricingName, contract.Ticker,
			fmt.Sprintf("edge %.3f below 0.02", edge), features)
	}

	midCents := features.MidCents()
	var side domain.SignalSide
	var entry int
	var winProb float64
	if edge > 0 {
		side = domain.SideYes
		// Pay 1c above the truncated mid to get filled.
		entry = int(midCents) + 1
		winProb = fairProb
	} else {
		side = domain.SideNo
		entry = 100 - int(midCents) + 1
		winProb = 1 - fairProb
	}
	if entry < 1 || entry > 99 {
		return decline(mispricingName, contract.Ticker,
			fmt.Sprintf("entry price %dc out of range", entry), features)
	}

	confidence := math.Min(math.Abs(imbalance)*m.confidenceScale, 0.9) *
		((m.maxSpreadCents - features.SpreadCents + 1) / m.maxSpreadCents)

	// Expected value per contract in dollars: win pays out the
	// complement of the entry price.
	ev := winProb - float64(entry)/100

	return domain.Signal{
		Strategy:      mispricingName,
		Ticker:        contract.Ticker,
		Side:          side,
		Confidence:    clip(confidence, 0, 1),
		FairProb:      fairProb,
		MarketProb:    marketProb,
		Edge:          edge,
		ExpectedValue: ev,
		EntryPrice:    entry,
		Features: map[string]float64{
			"depth_imbalance": imbalance,
			"spread_cents":    features.SpreadCents,
			"volume_24h":      float64(features.Volume24h),
			"mid":             marketProb,
		},
		Reasoning: fmt.Sprintf("imbalance %.2f shifts fair to %.3f vs mid %.3f",
			imbalance, fairProb, marketProb),
		CreatedAt: features.Timestamp,
	}
}

// ValidateSignal implements Strategy.
func (m *Mispricing) ValidateSignal(s domain.Signal) bool {
	return s.Strategy == mispricingName && validSignal(s)
}
