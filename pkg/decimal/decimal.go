// Package decimal provides fixed-precision decimal arithmetic for financial
// values. All statement totals, tolerances and taintings run through this type;
// binary floats are only permitted at the statistical-engine boundary and must
// be converted back before comparison.
package decimal

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Rounding defines rounding modes for scale normalization.
type Rounding string

const (
	RoundingDown     Rounding = "DOWN"
	RoundingHalfUp   Rounding = "HALF_UP"
	RoundingHalfEven Rounding = "HALF_EVEN"
)

// decimalPattern matches valid decimal strings: ^[+-]?[0-9]+(\.[0-9]+)?$
var decimalPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// Decimal is an arbitrary-precision decimal backed by a rational number.
// The zero value is 0.
type Decimal struct {
	rat big.Rat
}

// Zero is the decimal zero value.
var Zero = Decimal{}

// Parse parses a strict decimal string.
func Parse(s string) (Decimal, error) {
	if !decimalPattern.MatchString(s) {
		return Decimal{}, fmt.Errorf("decimal: invalid format %q (must match ^[+-]?[0-9]+(\\.[0-9]+)?$)", s)
	}
	var d Decimal
	if _, ok := d.rat.SetString(s); !ok {
		return Decimal{}, fmt.Errorf("decimal: could not parse %q as rational", s)
	}
	return d, nil
}

// MustParse parses s and panics on error. For constants in tables and tests.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt64 returns the decimal for an integer value.
func FromInt64(v int64) Decimal {
	var d Decimal
	d.rat.SetInt64(v)
	return d
}

// FromFloat64 converts a float to a decimal. Only the statistical engine
// should need this; the conversion is exact for the float's binary value.
func FromFloat64(f float64) Decimal {
	var d Decimal
	d.rat.SetFloat64(f)
	return d
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	var r Decimal
	r.rat.Add(&d.rat, &other.rat)
	return r
}

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) Decimal {
	var r Decimal
	r.rat.Sub(&d.rat, &other.rat)
	return r
}

// Mul returns d * other.
func (d Decimal) Mul(other Decimal) Decimal {
	var r Decimal
	r.rat.Mul(&d.rat, &other.rat)
	return r
}

// Quo returns d / other. Division by zero panics, matching big.Rat.
func (d Decimal) Quo(other Decimal) Decimal {
	var r Decimal
	r.rat.Quo(&d.rat, &other.rat)
	return r
}

// Abs returns |d|.
func (d Decimal) Abs() Decimal {
	var r Decimal
	r.rat.Abs(&d.rat)
	return r
}

// Neg returns -d.
func (d Decimal) Neg() Decimal {
	var r Decimal
	r.rat.Neg(&d.rat)
	return r
}

// Cmp compares d and other, returning -1, 0 or +1.
func (d Decimal) Cmp(other Decimal) int {
	return d.rat.Cmp(&other.rat)
}

// Sign returns -1, 0 or +1 for negative, zero, positive.
func (d Decimal) Sign() int {
	return d.rat.Sign()
}

// IsZero reports whether d == 0.
func (d Decimal) IsZero() bool {
	return d.rat.Sign() == 0
}

// Float64 returns the nearest float64. Precision loss is acceptable only for
// z-value statistics; never feed the result back into stored totals.
func (d Decimal) Float64() float64 {
	f, _ := d.rat.Float64()
	return f
}

// maxStringScale bounds the fractional digits of the canonical string form.
const maxStringScale = 12

// String returns the canonical minimal form: no exponent, no trailing zeros,
// negative zero normalized to "0". This is the form used in persisted JSON so
// hashes do not drift across runs.
func (d Decimal) String() string {
	if d.rat.IsInt() {
		return d.rat.Num().String()
	}
	s := d.rat.FloatString(maxStringScale)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// StringFixed formats d to exactly scale fractional digits with the given
// rounding mode. Rounding operates on the absolute value so HALF_UP is
// away-from-zero for negatives.
func (d Decimal) StringFixed(scale int, rounding Rounding) string {
	neg := d.rat.Sign() < 0
	abs := new(big.Rat).Abs(&d.rat)

	scaleFactor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(abs, new(big.Rat).SetInt(scaleFactor))

	intPart := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	remainder := new(big.Int).Rem(scaled.Num(), scaled.Denom())

	if remainder.Sign() != 0 {
		twiceRem := new(big.Int).Lsh(remainder, 1)
		switch rounding {
		case RoundingDown:
			// truncate
		case RoundingHalfUp:
			if twiceRem.Cmp(scaled.Denom()) >= 0 {
				intPart.Add(intPart, big.NewInt(1))
			}
		case RoundingHalfEven:
			cmp := twiceRem.Cmp(scaled.Denom())
			if cmp > 0 {
				intPart.Add(intPart, big.NewInt(1))
			} else if cmp == 0 {
				if new(big.Int).And(intPart, big.NewInt(1)).Sign() != 0 {
					intPart.Add(intPart, big.NewInt(1))
				}
			}
		default:
			if twiceRem.Cmp(scaled.Denom()) >= 0 {
				intPart.Add(intPart, big.NewInt(1))
			}
		}
	}

	sign := ""
	if neg && intPart.Sign() != 0 {
		sign = "-"
	}

	if scale == 0 {
		return sign + intPart.String()
	}

	intStr := intPart.String()
	for len(intStr) <= scale {
		intStr = "0" + intStr
	}
	insertPoint := len(intStr) - scale
	return sign + intStr[:insertPoint] + "." + intStr[insertPoint:]
}

// MarshalJSON encodes the decimal as a JSON string in canonical form.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
