// Package statement maps heterogeneous parsed facts onto a canonical
// financial statement schema and checks accounting identities.
package statement

import (
	"time"

	"github.com/Veridata-Labs/fincorpus/core/pkg/decimal"
)

// Type discriminates the canonical statement kinds.
type Type string

const (
	TypeBalanceSheet Type = "BALANCE_SHEET"
	TypeIncome       Type = "INCOME"
	TypeCashFlow     Type = "CASH_FLOW"
	TypeNotes        Type = "NOTES"
	TypePackage      Type = "PACKAGE"
)

// Statement is a normalized financial statement. Missing fields are absent
// from Fields, never zero.
type Statement struct {
	StatementID string                     `json:"statement_id"`
	FilingID    string                     `json:"filing_id,omitempty"`
	Type        Type                       `json:"type"`
	PeriodStart string                     `json:"period_start,omitempty"`
	PeriodEnd   string                     `json:"period_end"`
	Currency    string                     `json:"currency"`
	Fields      map[string]decimal.Decimal `json:"fields"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// Field returns the named canonical field and whether it is populated.
func (s *Statement) Field(name string) (decimal.Decimal, bool) {
	d, ok := s.Fields[name]
	return d, ok
}

// balanceTolerance is the relative tolerance for the balance-sheet equation.
var balanceTolerance = decimal.MustParse("0.01")

// Validate applies structural checks and accounting identities. Violations
// flag the statement; they never reject it.
func (s *Statement) Validate() []string {
	var issues []string
	if s.Type == "" {
		issues = append(issues, "missing_statement_type")
	}
	if s.PeriodEnd == "" {
		issues = append(issues, "missing_period_end")
	}

	if s.Type == TypeBalanceSheet {
		assets, okA := s.Field("total_assets")
		liabilities, okL := s.Field("total_liabilities")
		equity, okE := s.Field("total_equity")
		if okA && okL && okE {
			diff := assets.Sub(liabilities.Add(equity)).Abs()
			tolerance := assets.Abs().Mul(balanceTolerance)
			if diff.Cmp(tolerance) > 0 {
				issues = append(issues, "balance_sheet_equation_mismatch")
			}
		}
	}
	return issues
}
