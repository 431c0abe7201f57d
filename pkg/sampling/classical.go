package sampling

import (
	"math"
)

// classicalFloor is the minimum classical sample size.
const classicalFloor = 30

// ClassicalPlan is a sized mean-per-unit sample.
type ClassicalPlan struct {
	SampleSize int     `json:"sample_size"`
	Z          float64 `json:"z"`
}

// ClassicalResult is a mean-per-unit evaluation.
type ClassicalResult struct {
	ProjectedValue float64 `json:"projected_value"`
	Precision      float64 `json:"precision"`
	LowerBound     float64 `json:"lower_bound"`
	UpperBound     float64 `json:"upper_bound"`
}

// ClassicalSize computes the mean-per-unit sample size with a
// finite-population correction.
func ClassicalSize(populationSize int, stddev, tolerable float64, risk Risk) (ClassicalPlan, error) {
	if populationSize <= 0 || stddev <= 0 || tolerable <= 0 {
		return ClassicalPlan{}, ErrNonPositiveInput
	}
	z, err := zValue(risk)
	if err != nil {
		return ClassicalPlan{}, err
	}
	base := math.Pow(float64(populationSize)*stddev*z/tolerable, 2)
	n := int(math.Ceil(base / (1 + base/float64(populationSize))))
	if n < classicalFloor {
		n = classicalFloor
	}
	if n > populationSize {
		n = populationSize
	}
	return ClassicalPlan{SampleSize: n, Z: z}, nil
}

// ClassicalEvaluate projects the sample mean onto the population and returns
// the achieved precision and confidence interval.
func ClassicalEvaluate(sample []float64, populationSize int, plan ClassicalPlan) (ClassicalResult, error) {
	n := len(sample)
	if n == 0 || populationSize <= 0 {
		return ClassicalResult{}, ErrEmptyPopulation
	}

	mean := 0.0
	for _, v := range sample {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range sample {
		variance += (v - mean) * (v - mean)
	}
	s := 0.0
	if n > 1 {
		s = math.Sqrt(variance / float64(n-1))
	}

	bigN := float64(populationSize)
	fpc := math.Sqrt((bigN - float64(n)) / bigN)
	// achieved precision of the projected total
	precision := bigN * plan.Z * s * fpc / math.Sqrt(float64(n))

	projected := bigN * mean
	return ClassicalResult{
		ProjectedValue: projected,
		Precision:      precision,
		LowerBound:     projected - precision,
		UpperBound:     projected + precision,
	}, nil
}
