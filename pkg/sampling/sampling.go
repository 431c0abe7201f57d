// Package sampling implements the audit sampling methods used to select and
// evaluate statement populations: monetary unit sampling, classical
// mean-per-unit estimation, and attribute sampling. All functions are pure
// and deterministic given their inputs and an RNG seed.
package sampling

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Risk is the acceptable sampling risk level.
type Risk string

const (
	RiskLow      Risk = "LOW"
	RiskModerate Risk = "MODERATE"
	RiskHigh     Risk = "HIGH"
)

// Reliability factors for MUS and z-values for classical and attribute
// methods, by risk level.
var (
	reliabilityFactors = map[Risk]float64{
		RiskLow:      3.00,
		RiskModerate: 2.31,
		RiskHigh:     1.61,
	}
	zValues = map[Risk]float64{
		RiskLow:      1.96,
		RiskModerate: 1.645,
		RiskHigh:     1.28,
	}
)

// expansionFactor inflates the reliability factor when misstatement is
// expected, and the upper limit when misstatement is found.
const expansionFactor = 1.3

var ErrUnknownRisk = errors.New("unknown risk level")

func reliabilityFactor(risk Risk) (float64, error) {
	rf, ok := reliabilityFactors[risk]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRisk, risk)
	}
	return rf, nil
}

func zValue(risk Risk) (float64, error) {
	z, ok := zValues[risk]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRisk, risk)
	}
	return z, nil
}

// RandomSelect draws a simple random sample of n items without replacement.
// Classical and attribute sampling select this way; MUS uses MUSSelect. The
// population is ordered by id before shuffling so the draw depends only on
// the seed, not on input order.
func RandomSelect(population []Item, n int, seed int64) ([]Item, error) {
	if len(population) == 0 {
		return nil, ErrEmptyPopulation
	}
	if n > len(population) {
		n = len(population)
	}
	sorted := append([]Item(nil), population...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(sorted), func(i, j int) { sorted[i], sorted[j] = sorted[j], sorted[i] })
	return sorted[:n], nil
}

// Conclusion is a sampling evaluation verdict.
type Conclusion string

const (
	ConclusionAccept    Conclusion = "ACCEPT"
	ConclusionReject    Conclusion = "REJECT"
	ConclusionRely      Conclusion = "RELY"
	ConclusionDoNotRely Conclusion = "DO_NOT_RELY"
)
