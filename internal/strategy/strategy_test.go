package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-edge/internal/domain"
)

var snapTime = time.Date(2026, 2, 7, 15, 0, 0, 0, time.UTC)

func snapshot(mid float64, spreadCents float64, volume, bidDepth, askDepth int) domain.Snapshot {
	half := spreadCents / 200
	return domain.Snapshot{
		Ticker:         "T-1",
		Timestamp:      snapTime,
		Bid:            mid - half,
		Ask:            mid + half,
		Mid:            mid,
		SpreadCents:    spreadCents,
		Volume24h:      volume,
		BidDepth:       bidDepth,
		AskDepth:       askDepth,
		DepthImbalance: domain.DepthImbalance(bidDepth, askDepth),
	}
}

func contract() domain.Contract {
	return domain.Contract{Ticker: "T-1", Status: domain.StatusActive, Settlement: -1}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMispricing(MispricingConfig{}))
	r.Register(NewMeanReversion(MeanReversionConfig{}))

	s, ok := r.Get("mispricing_v1")
	require.True(t, ok)
	assert.Equal(t, "mispricing_v1", s.Name())
	assert.Len(t, r.All(), 2)

	_, ok = r.Get("absent")
	assert.False(t, ok)
}

// --- mispricing ---

func TestMispricing_BidHeavyBookGoesYes(t *testing.T) {
	m := NewMispricing(MispricingConfig{})
	// 400 vs 100 depth: imbalance 0.6, fair = 0.50 + 0.06 = 0.56.
	feat := snapshot(0.50, 4, 500, 400, 100)

	sig := m.Evaluate(contract(), feat, nil)
	require.Equal(t, domain.SideYes, sig.Side)
	assert.InDelta(t, 0.56, sig.FairProb, 0.0001)
	assert.InDelta(t, 0.06, sig.Edge, 0.0001)
	// Crosses the 50c mid by a cent to get filled.
	assert.Equal(t, 51, sig.EntryPrice)
	assert.Greater(t, sig.Confidence, 0.0)
	// 0.56 − 0.51
	assert.InDelta(t, 0.05, sig.ExpectedValue, 0.0001)
	assert.True(t, m.ValidateSignal(sig))
}

func TestMispricing_AskHeavyBookGoesNo(t *testing.T) {
	m := NewMispricing(MispricingConfig{})
	feat := snapshot(0.50, 4, 500, 100, 400) // imbalance −0.6

	sig := m.Evaluate(contract(), feat, nil)
	require.Equal(t, domain.SideNo, sig.Side)
	assert.InDelta(t, 0.44, sig.FairProb, 0.0001)
	assert.Equal(t, 51, sig.EntryPrice) // 100−50+1, a cent through the NO mid
}

func TestMispricing_Declines(t *testing.T) {
	m := NewMispricing(MispricingConfig{})

	balanced := snapshot(0.50, 4, 500, 100, 100)
	assert.Equal(t, domain.SideNone, m.Evaluate(contract(), balanced, nil).Side)

	wide := snapshot(0.50, 8, 500, 400, 100)
	assert.Equal(t, domain.SideNone, m.Evaluate(contract(), wide, nil).Side)

	thinVolume := snapshot(0.50, 4, 50, 400, 100)
	assert.Equal(t, domain.SideNone, m.Evaluate(contract(), thinVolume, nil).Side)

	noBook := snapshot(0.50, 4, 500, 400, 100)
	noBook.Bid, noBook.Ask = 0, 0
	assert.Equal(t, domain.SideNone, m.Evaluate(contract(), noBook, nil).Side)
}

func TestMispricing_SmallEdgeDeclined(t *testing.T) {
	m := NewMispricing(MispricingConfig{MinDepthImbalance: 0.10})
	// imbalance 0.15 → fair shift 0.015 < 0.02.
	feat := snapshot(0.50, 4, 500, 230, 170)
	sig := m.Evaluate(contract(), feat, nil)
	assert.Equal(t, domain.SideNone, sig.Side)
	assert.Contains(t, sig.Reasoning, "edge")
}

func TestMispricing_FairProbClipped(t *testing.T) {
	m := NewMispricing(MispricingConfig{})
	feat := snapshot(0.93, 4, 500, 500, 50) // 0.93 + ~0.08 clips at 0.95
	sig := m.Evaluate(contract(), feat, nil)
	if sig.Actionable() {
		assert.LessOrEqual(t, sig.FairProb, 0.95)
	}
}

// --- mean reversion ---

func flatHistory(mid float64, n int) []domain.Snapshot {
	out := make([]domain.Snapshot, n)
	for i := range out {
		s := snapshot(mid, 2, 600, 200, 200)
		s.Timestamp = snapTime.Add(time.Duration(i-n) * 5 * time.Minute)
		out[i] = s
	}
	return out
}

func TestMeanReversion_FadesUpMove(t *testing.T) {
	m := NewMeanReversion(MeanReversionConfig{})
	history := flatHistory(0.50, 6)
	// Mid jumped to 0.55: deviation +10% over the 0.50 average.
	feat := snapshot(0.55, 2, 600, 200, 200)

	sig := m.Evaluate(contract(), feat, history)
	require.Equal(t, domain.SideNo, sig.Side)
	assert.InDelta(t, 0.50, sig.FairProb, 0.0001)
	// NO entry a cent above its 45c mid: 100−55+1 = 46.
	assert.Equal(t, 46, sig.EntryPrice)
	// (2·0.6 − 1) · 0.05 = 0.01
	assert.InDelta(t, 0.01, sig.ExpectedValue, 0.0001)
	assert.True(t, m.ValidateSignal(sig))
}

func TestMeanReversion_FadesDownMove(t *testing.T) {
	m := NewMeanReversion(MeanReversionConfig{})
	history := flatHistory(0.50, 6)
	feat := snapshot(0.45, 2, 600, 200, 200)

	sig := m.Evaluate(contract(), feat, history)
	require.Equal(t, domain.SideYes, sig.Side)
	// YES entry a cent below the 45c mid.
	assert.Equal(t, 44, sig.EntryPrice)
}

func TestEntryPrices_TruncateFractionalMid(t *testing.T) {
	m := NewMispricing(MispricingConfig{})
	// Mid 50.5c: the fractional cent is dropped, not rounded, so the
	// YES entry is 51, and the NO entry on the mirrored book is also 51.
	yes := m.Evaluate(contract(), snapshot(0.505, 4, 500, 400, 100), nil)
	require.Equal(t, domain.SideYes, yes.Side)
	assert.Equal(t, 51, yes.EntryPrice)

	no := m.Evaluate(contract(), snapshot(0.505, 4, 500, 100, 400), nil)
	require.Equal(t, domain.SideNo, no.Side)
	assert.Equal(t, 51, no.EntryPrice)

	mr := NewMeanReversion(MeanReversionConfig{})
	history := flatHistory(0.50, 6)
	up := mr.Evaluate(contract(), snapshot(0.555, 2, 600, 200, 200), history)
	require.Equal(t, domain.SideNo, up.Side)
	assert.Equal(t, 46, up.EntryPrice) // 100−55+1

	down := mr.Evaluate(contract(), snapshot(0.455, 2, 600, 200, 200), history)
	require.Equal(t, domain.SideYes, down.Side)
	assert.Equal(t, 44, down.EntryPrice) // 45−1
}

func TestMeanReversion_SmallDeviationDeclined(t *testing.T) {
	m := NewMeanReversion(MeanReversionConfig{})
	history := flatHistory(0.50, 6)
	feat := snapshot(0.51, 2, 600, 200, 200) // +2% < 3% threshold
	assert.Equal(t, domain.SideNone, m.Evaluate(contract(), feat, history).Side)
}

func TestMeanReversion_NeedsLookback(t *testing.T) {
	m := NewMeanReversion(MeanReversionConfig{})
	history := flatHistory(0.50, 4) // below the 6 lookback
	feat := snapshot(0.60, 2, 600, 200, 200)
	sig := m.Evaluate(contract(), feat, history)
	assert.Equal(t, domain.SideNone, sig.Side)
	assert.Contains(t, sig.Reasoning, "history")
}

func TestMeanReversion_Declines(t *testing.T) {
	m := NewMeanReversion(MeanReversionConfig{})
	history := flatHistory(0.50, 6)

	wide := snapshot(0.55, 6, 600, 200, 200)
	assert.Equal(t, domain.SideNone, m.Evaluate(contract(), wide, history).Side)

	thinVolume := snapshot(0.55, 2, 100, 200, 200)
	assert.Equal(t, domain.SideNone, m.Evaluate(contract(), thinVolume, history).Side)

	thinDepth := snapshot(0.55, 2, 600, 30, 30)
	assert.Equal(t, domain.SideNone, m.Evaluate(contract(), thinDepth, history).Side)
}

func TestMovingAverage(t *testing.T) {
	history := flatHistory(0.40, 3)
	history = append(history, flatHistory(0.60, 3)...)
	assert.InDelta(t, 0.50, movingAverage(history, 6), 0.0001)
	assert.InDelta(t, 0.60, movingAverage(history, 3), 0.0001)
	assert.Zero(t, movingAverage(nil, 6))
}

func TestValidateSignal_Bounds(t *testing.T) {
	m := NewMispricing(MispricingConfig{})
	sig := domain.Signal{
		Strategy:   "mispricing_v1",
		Side:       domain.SideYes,
		Confidence: 0.5,
		FairProb:   0.6,
		EntryPrice: 101,
	}
	assert.False(t, m.ValidateSignal(sig))
	sig.EntryPrice = 50
	assert.True(t, m.ValidateSignal(sig))
}
