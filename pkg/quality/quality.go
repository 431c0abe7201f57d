// Package quality scores normalized statements for training suitability.
// Assessment is a pure function of the statement: completeness over the
// canonical vocabulary plus accounting-identity consistency checks.
package quality

import (
	"fmt"

	"github.com/Veridata-Labs/fincorpus/core/pkg/decimal"
	"github.com/Veridata-Labs/fincorpus/core/pkg/statement"
)

// Grade is the overall quality band.
type Grade string

const (
	GradeExcellent Grade = "EXCELLENT"
	GradeGood      Grade = "GOOD"
	GradeFair      Grade = "FAIR"
	GradePoor      Grade = "POOR"
)

// Assessment is the scored outcome for one statement.
type Assessment struct {
	Completeness      float64  `json:"completeness"`
	ConsistencyIssues []string `json:"consistency_issues"`
	Overall           Grade    `json:"overall"`
}

// identityTolerance is the relative tolerance for accounting identities,
// measured against the identity's reference field.
var identityTolerance = decimal.MustParse("0.01")

// Assess scores a statement. Grading: EXCELLENT needs completeness >= 0.9
// with no issues; GOOD needs >= 0.75 with at most one; FAIR needs >= 0.5;
// everything else is POOR.
func Assess(s *statement.Statement) Assessment {
	a := Assessment{}
	if s == nil {
		a.Overall = GradePoor
		return a
	}

	vocabulary := statement.Vocabulary(s.Type)
	if len(vocabulary) > 0 {
		populated := 0
		for _, field := range vocabulary {
			if _, ok := s.Field(field); ok {
				populated++
			}
		}
		a.Completeness = float64(populated) / float64(len(vocabulary))
	}

	a.ConsistencyIssues = append(a.ConsistencyIssues, s.Validate()...)
	a.ConsistencyIssues = append(a.ConsistencyIssues, identityIssues(s)...)

	switch {
	case a.Completeness >= 0.9 && len(a.ConsistencyIssues) == 0:
		a.Overall = GradeExcellent
	case a.Completeness >= 0.75 && len(a.ConsistencyIssues) <= 1:
		a.Overall = GradeGood
	case a.Completeness >= 0.5:
		a.Overall = GradeFair
	default:
		a.Overall = GradePoor
	}
	return a
}

// identityIssues checks cross-field identities beyond the balance-sheet
// equation, which Statement.Validate already covers.
func identityIssues(s *statement.Statement) []string {
	var issues []string

	if s.Type == statement.TypeIncome {
		revenue, okR := s.Field("revenue")
		cogs, okC := s.Field("cost_of_goods_sold")
		gross, okG := s.Field("gross_profit")
		if okR && okC && okG {
			diff := gross.Sub(revenue.Sub(cogs)).Abs()
			if diff.Cmp(revenue.Abs().Mul(identityTolerance)) > 0 {
				issues = append(issues, issue("gross_profit", "revenue - cost_of_goods_sold"))
			}
		}
		opInc, okO := s.Field("operating_income")
		opEx, okE := s.Field("operating_expenses")
		if okG && okO && okE {
			diff := opInc.Sub(gross.Sub(opEx)).Abs()
			if diff.Cmp(gross.Abs().Mul(identityTolerance)) > 0 {
				issues = append(issues, issue("operating_income", "gross_profit - operating_expenses"))
			}
		}
	}

	if s.Type == statement.TypeCashFlow {
		op, okO := s.Field("operating_cash_flow")
		inv, okI := s.Field("investing_cash_flow")
		fin, okF := s.Field("financing_cash_flow")
		net, okN := s.Field("net_change_in_cash")
		if okO && okI && okF && okN {
			sum := op.Add(inv).Add(fin)
			diff := net.Sub(sum).Abs()
			reference := net.Abs()
			if reference.IsZero() {
				reference = sum.Abs()
			}
			if diff.Cmp(reference.Mul(identityTolerance)) > 0 {
				issues = append(issues, issue("net_change_in_cash", "sum of activity cash flows"))
			}
		}
	}
	return issues
}

func issue(field, identity string) string {
	return fmt.Sprintf("identity_violation:%s!=%s", field, identity)
}
