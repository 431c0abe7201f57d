package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// musFloor is the minimum MUS sample size.
const musFloor = 30

// Item is one population member with a book value.
type Item struct {
	ID   string  `json:"id"`
	Book float64 `json:"book"`
}

// AuditedItem pairs a selected item's book value with its audited value.
type AuditedItem struct {
	ID    string  `json:"id"`
	Book  float64 `json:"book"`
	Audit float64 `json:"audit"`
}

// MUSPlan is a sized monetary-unit sample.
type MUSPlan struct {
	SampleSize int     `json:"sample_size"`
	Interval   float64 `json:"interval"`
	RF         float64 `json:"reliability_factor"`
}

// MUSResult is the evaluation outcome of an inspected MUS sample.
type MUSResult struct {
	ProjectedMisstatement  float64    `json:"projected_misstatement"`
	UpperMisstatementLimit float64    `json:"upper_misstatement_limit"`
	Taintings              []float64  `json:"taintings,omitempty"`
	Conclusion             Conclusion `json:"conclusion"`
}

var (
	ErrNonPositiveInput = errors.New("population and tolerable misstatement must be positive")
	ErrEmptyPopulation  = errors.New("population is empty")
)

// MUSSize computes the monetary-unit sample size and interval. The
// reliability factor is inflated by the expansion factor when misstatement is
// expected.
func MUSSize(bookValue, tolerable, expected float64, risk Risk) (MUSPlan, error) {
	if bookValue <= 0 || tolerable <= 0 {
		return MUSPlan{}, ErrNonPositiveInput
	}
	rf, err := reliabilityFactor(risk)
	if err != nil {
		return MUSPlan{}, err
	}
	if expected > 0 {
		rf *= expansionFactor
	}
	n := int(math.Ceil(rf * bookValue / tolerable))
	if n < musFloor {
		n = musFloor
	}
	return MUSPlan{
		SampleSize: n,
		Interval:   bookValue / float64(n),
		RF:         rf,
	}, nil
}

// MUSSelect draws a fixed-interval probability-proportional-to-size sample.
// The population is ordered by id, a uniform random start r in [0, I) is
// drawn from the seed, and the item covering each monetary unit r + k*I is
// selected. An item spanning several intervals is selected once.
func MUSSelect(population []Item, plan MUSPlan, seed int64) ([]Item, error) {
	if len(population) == 0 {
		return nil, ErrEmptyPopulation
	}
	sorted := append([]Item(nil), population...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	rng := rand.New(rand.NewSource(seed))
	r := rng.Float64() * plan.Interval

	selected := make([]Item, 0, plan.SampleSize)
	chosen := make(map[string]bool)
	cumulative := 0.0
	idx := 0
	for k := 0; k < plan.SampleSize; k++ {
		target := r + float64(k)*plan.Interval
		for idx < len(sorted) && cumulative+sorted[idx].Book < target {
			cumulative += sorted[idx].Book
			idx++
		}
		if idx >= len(sorted) {
			break
		}
		if !chosen[sorted[idx].ID] {
			chosen[sorted[idx].ID] = true
			selected = append(selected, sorted[idx])
		}
	}
	return selected, nil
}

// MUSEvaluate projects sample misstatement onto the population. With no
// misstatement found the projection is the basic precision RF*BV/n; with
// misstatement the tainting sum scales the population value and the upper
// limit expands it by the expansion factor.
func MUSEvaluate(inspected []AuditedItem, bookValue, tolerable float64, plan MUSPlan) (MUSResult, error) {
	if bookValue <= 0 || tolerable <= 0 {
		return MUSResult{}, ErrNonPositiveInput
	}
	result := MUSResult{}
	taintingSum := 0.0
	for _, item := range inspected {
		if item.Book == 0 {
			continue
		}
		tainting := (item.Book - item.Audit) / item.Book
		if tainting != 0 {
			result.Taintings = append(result.Taintings, tainting)
			taintingSum += tainting
		}
	}

	if len(result.Taintings) == 0 {
		result.ProjectedMisstatement = plan.RF * bookValue / float64(plan.SampleSize)
		result.UpperMisstatementLimit = result.ProjectedMisstatement
	} else {
		result.ProjectedMisstatement = taintingSum * bookValue
		result.UpperMisstatementLimit = result.ProjectedMisstatement * expansionFactor
	}

	if result.UpperMisstatementLimit < tolerable {
		result.Conclusion = ConclusionAccept
	} else {
		result.Conclusion = ConclusionReject
	}
	return result, nil
}

func (p MUSPlan) String() string {
	return fmt.Sprintf("n=%d interval=%.2f rf=%.2f", p.SampleSize, p.Interval, p.RF)
}
