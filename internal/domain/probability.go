package domain

// VigMethod records how the overround was removed from an implied
// probability.
type VigMethod string

const (
	// VigTwoWay is proportional normalization against the opposite
	// selection of the same bookmaker market.
	VigTwoWay VigMethod = "two_way_proportional"
	// VigNone means no opposite-side quote was found; the raw implied
	// probability is used with overround 1.
	VigNone VigMethod = "none"
)

// NormalizedProb is the derivation of a comparable probability from a
// raw bookmaker quote. It is computed on the fly, never stored.
type NormalizedProb struct {
	Implied   float64
	NoVig     float64
	Overround float64
	Method    VigMethod
	Quote     Quote
	// Opposite is the paired opposite-selection quote when Method is
	// VigTwoWay.
	Opposite *Quote
}
