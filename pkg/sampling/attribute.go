package sampling

import (
	"math"
)

// AttributePlan is a sized attribute (control deviation) sample.
type AttributePlan struct {
	SampleSize int     `json:"sample_size"`
	Z          float64 `json:"z"`
	FromTable  bool    `json:"from_table"`
}

// AttributeResult is an attribute sample evaluation.
type AttributeResult struct {
	DeviationRate       float64    `json:"deviation_rate"`
	UpperDeviationLimit float64    `json:"upper_deviation_limit"`
	Conclusion          Conclusion `json:"conclusion"`
}

type attributeKey struct {
	expected  float64
	tolerable float64
	risk      Risk
}

// attributeTable holds the standard sample sizes for common plan parameters.
// Combinations outside the table fall back to the normal approximation.
var attributeTable = map[attributeKey]int{
	{0.00, 0.05, RiskLow}: 59,
	{0.01, 0.05, RiskLow}: 93,
	{0.02, 0.05, RiskLow}: 181,
	{0.00, 0.10, RiskLow}: 29,
	{0.01, 0.10, RiskLow}: 46,
	{0.02, 0.10, RiskLow}: 46,

	{0.00, 0.05, RiskModerate}: 45,
	{0.01, 0.05, RiskModerate}: 77,
	{0.00, 0.10, RiskModerate}: 22,
	{0.01, 0.10, RiskModerate}: 38,
}

const (
	attributeMin = 25
)

// AttributeSize returns the sample size for a deviation-rate test: the table
// value when the combination is listed, otherwise a finite-population
// corrected normal approximation clamped to [25, populationSize].
func AttributeSize(expectedRate, tolerableRate float64, risk Risk, populationSize int) (AttributePlan, error) {
	if tolerableRate <= expectedRate || tolerableRate <= 0 || populationSize <= 0 {
		return AttributePlan{}, ErrNonPositiveInput
	}
	z, err := zValue(risk)
	if err != nil {
		return AttributePlan{}, err
	}
	if n, ok := attributeTable[attributeKey{expectedRate, tolerableRate, risk}]; ok {
		if n > populationSize {
			n = populationSize
		}
		return AttributePlan{SampleSize: n, Z: z, FromTable: true}, nil
	}

	p := expectedRate
	if p == 0 {
		p = 0.005 // zero expected deviations still need a nonzero planning rate
	}
	n := math.Ceil(z * z * p * (1 - p) / math.Pow(tolerableRate-expectedRate, 2))
	// finite population correction
	n = math.Ceil(n / (1 + n/float64(populationSize)))
	size := int(n)
	if size < attributeMin {
		size = attributeMin
	}
	if size > populationSize {
		size = populationSize
	}
	return AttributePlan{SampleSize: size, Z: z}, nil
}

// AttributeEvaluate computes the sample deviation rate and its approximate
// upper limit, and concludes RELY only when the limit stays under the
// tolerable rate.
func AttributeEvaluate(sampleSize, deviations int, tolerableRate float64, risk Risk) (AttributeResult, error) {
	if sampleSize <= 0 || deviations < 0 || deviations > sampleSize {
		return AttributeResult{}, ErrNonPositiveInput
	}
	z, err := zValue(risk)
	if err != nil {
		return AttributeResult{}, err
	}

	sdr := float64(deviations) / float64(sampleSize)
	udl := sdr + z*math.Sqrt(sdr*(1-sdr)/float64(sampleSize))
	if udl > 1.0 {
		udl = 1.0
	}

	result := AttributeResult{DeviationRate: sdr, UpperDeviationLimit: udl}
	if udl < tolerableRate {
		result.Conclusion = ConclusionRely
	} else {
		result.Conclusion = ConclusionDoNotRely
	}
	return result, nil
}
