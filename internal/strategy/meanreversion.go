package strategy

import (
	"fmt"
	"math"

	"kalshi-edge/internal/domain"
)

const meanReversionName = "mean_reversion_v1"

// reversionProb is the baseline probability that a deviation from the
// moving average reverts by the next period.
const reversionProb = 0.6

// MeanReversion fades short-term deviations of the mid from its moving
// average.
type MeanReversion struct {
	lookbackPeriods    int
	deviationThreshold float64
	maxSpreadCents     float64
	minVolume          int
	minDepth           int
}

// MeanReversionConfig configures the strategy. Zero values take the
// defaults.
type MeanReversionConfig struct {
	LookbackPeriods    int     // default 6
	DeviationThreshold float64 // default 0.03
	MaxSpreadCents     float64 // default 4
	MinVolume          int     // default 200
	MinDepth           int     // default 100
}

// NewMeanReversion builds the strategy with the given parameters.
func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	if cfg.LookbackPeriods <= 0 {
		cfg.LookbackPeriods = 6
	}
	if cfg.DeviationThreshold <= 0 {
		cfg.DeviationThreshold = 0.03
	}
	if cfg.MaxSpreadCents <= 0 {
		cfg.MaxSpreadCents = 4
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = 200
	}
	if cfg.MinDepth <= 0 {
		cfg.MinDepth = 100
	}
	return &MeanReversion{
		lookbackPeriods:    cfg.LookbackPeriods,
		deviationThreshold: cfg.DeviationThreshold,
		maxSpreadCents:     cfg.MaxSpreadCents,
		minVolume:          cfg.MinVolume,
		minDepth:           cfg.MinDepth,
	}
}

// Name implements Strategy.
func (m *MeanReversion) Name() string { return meanReversionName }

// Describe implements Strategy.
func (m *MeanReversion) Describe() string {
	return "fades deviations of the mid from its short moving average"
}

// Evaluate implements Strategy.
func (m *MeanReversion) Evaluate(contract domain.Contract, features domain.Snapshot, history []domain.Snapshot) domain.Signal {
	if features.Bid <= 0 || features.Ask <= 0 {
		return decline(meanReversionName, contract.Ticker, "no orderbook", features)
	}
	if features.SpreadCents > m.maxSpreadCents {
		return decline(meanReversionName, contract.Ticker,
			fmt.Sprintf("spread %.1fc > %.1fc", features.SpreadCents, m.maxSpreadCents), features)
	}
	if features.Volume24h < m.minVolume {
		return decline(meanReversionName, contract.Ticker,
			fmt.Sprintf("volume %d < %d", features.Volume24h, m.minVolume), features)
	}
	if features.BidDepth+features.AskDepth < m.minDepth {
		return decline(meanReversionName, contract.Ticker,
			fmt.Sprintf("depth %d < %d", features.BidDepth+features.AskDepth, m.minDepth), features)
	}
	if len(history) < m.lookbackPeriods {
		return decline(meanReversionName, contract.Ticker,
			fmt.Sprintf("history %d < lookback %d", len(history), m.lookbackPeriods), features)
	}

	ma := movingAverage(history, m.lookbackPeriods)
	if ma <= 0 {
		return decline(meanReversionName, contract.Ticker, "degenerate moving average", features)
	}
	mid := features.Mid
	deviation := (mid - ma) / ma
	if math.Abs(deviation) < m.deviationThreshold {
		return decline(meanReversionName, contract.Ticker,
			fmt.Sprintf("deviation %.3f below %.3f", deviation, m.deviationThreshold), features)
	}

	// The moving average stands in for the fair probability here; a
	// richer fair model would replace it.
	fairProb := clip(ma, 0.01, 0.99)
	midCents := features.MidCents()

	var side domain.SignalSide
	var entry int
	if deviation > 0 {
		// Price above average: expect reversion down, buy NO a cent
		// above its truncated mid.
		side = domain.SideNo
		entry = 100 - int(midCents) + 1
	} else {
		// Price below average: buy YES a cent below the truncated mid.
		side = domain.SideYes
		entry = int(midCents) - 1
	}
	if entry < 1 || entry > 99 {
		return decline(meanReversionName, contract.Ticker,
			fmt.Sprintf("entry price %dc out of range", entry), features)
	}

	confidence := math.Min(math.Abs(deviation)/m.deviationThreshold, 2) / 2 *
		math.Min(float64(features.Volume24h)/500, 1) * 0.7

	expectedMove := math.Abs(mid - ma)
	ev := (2*reversionProb - 1) * expectedMove

	return domain.Signal{
		Strategy:      meanReversionName,
		Ticker:        contract.Ticker,
		Side:          side,
		Confidence:    clip(confidence, 0, 1),
		FairProb:      fairProb,
		MarketProb:    mid,
		Edge:          fairProb - mid,
		ExpectedValue: ev,
		EntryPrice:    entry,
		Features: map[string]float64{
			"moving_average": ma,
			"deviation":      deviation,
			"mid":            mid,
			"volume_24h":     float64(features.Volume24h),
		},
		Reasoning: fmt.Sprintf("mid %.3f deviates %.1f%% from MA %.3f, fading",
			mid, deviation*100, ma),
		CreatedAt: features.Timestamp,
	}
}

// ValidateSignal implements Strategy.
func (m *MeanReversion) ValidateSignal(s domain.Signal) bool {
	return s.Strategy == meanReversionName && validSignal(s)
}

// movingAverage averages the mid over the last n snapshots.
func movingAverage(history []domain.Snapshot, n int) float64 {
	if n > len(history) {
		n = len(history)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range history[len(history)-n:] {
		sum += s.Mid
	}
	return sum / float64(n)
}
