// Package odds converts bookmaker odds to probabilities and removes the
// bookmaker's overround. All functions are pure.
package odds

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrZeroAmerican   = errors.New("odds: american odds cannot be zero")
	ErrBadDecimal     = errors.New("odds: decimal odds must be greater than 1")
	ErrBadProbability = errors.New("odds: probability must be in (0, 1)")
	ErrEmptyMarket    = errors.New("odds: market has no outcomes")
)

// AmericanToProb converts American odds to an implied probability.
// -110 → 0.5238, +150 → 0.40.
func AmericanToProb(o float64) (float64, error) {
	switch {
	case o == 0:
		return 0, ErrZeroAmerican
	case o < 0:
		return -o / (-o + 100), nil
	default:
		return 100 / (o + 100), nil
	}
}

// DecimalToProb converts decimal odds to an implied probability.
func DecimalToProb(o float64) (float64, error) {
	if o <= 1 {
		return 0, fmt.Errorf("odds.DecimalToProb: %.4f: %w", o, ErrBadDecimal)
	}
	return 1 / o, nil
}

// ProbToAmerican is the inverse of AmericanToProb on (0, 1).
func ProbToAmerican(p float64) (float64, error) {
	if p <= 0 || p >= 1 {
		return 0, fmt.Errorf("odds.ProbToAmerican: %.4f: %w", p, ErrBadProbability)
	}
	if p >= 0.5 {
		return -100 * p / (1 - p), nil
	}
	return 100 * (1 - p) / p, nil
}

// ProbToDecimal is the inverse of DecimalToProb on (0, 1).
func ProbToDecimal(p float64) (float64, error) {
	if p <= 0 || p >= 1 {
		return 0, fmt.Errorf("odds.ProbToDecimal: %.4f: %w", p, ErrBadProbability)
	}
	return 1 / p, nil
}

// NoVigTwoWay removes the overround from a two-way market by
// proportional normalization. The results sum to 1 exactly.
func NoVigTwoWay(pa, pb float64) (float64, float64, error) {
	if pa <= 0 || pb <= 0 {
		return 0, 0, fmt.Errorf("odds.NoVigTwoWay: (%.4f, %.4f): %w", pa, pb, ErrBadProbability)
	}
	total := pa + pb
	return pa / total, pb / total, nil
}

// NoVigMultiWay normalizes an N-way market proportionally and returns
// the overround. Proportional removal on N-way markets is an
// approximation; it is the only method the scanner needs.
func NoVigMultiWay(probs []float64) ([]float64, float64, error) {
	if len(probs) == 0 {
		return nil, 0, ErrEmptyMarket
	}
	var total float64
	for _, p := range probs {
		if p <= 0 {
			return nil, 0, fmt.Errorf("odds.NoVigMultiWay: %.4f: %w", p, ErrBadProbability)
		}
		total += p
	}
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = p / total
	}
	return out, total, nil
}

// Overround sums the implied probabilities of a market. 1.0 is fair.
func Overround(probs []float64) float64 {
	var total float64
	for _, p := range probs {
		total += p
	}
	return total
}

// VigPct expresses an overround as a bookmaker margin percentage.
func VigPct(overround float64) float64 {
	return 100 * (overround - 1)
}

// FormatAmerican renders American odds with an explicit sign, the way
// books display them.
func FormatAmerican(o float64) string {
	r := math.Round(o)
	if r > 0 {
		return fmt.Sprintf("+%d", int(r))
	}
	return fmt.Sprintf("%d", int(r))
}
