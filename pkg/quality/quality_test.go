package quality

import (
	"testing"

	"github.com/Veridata-Labs/fincorpus/core/pkg/decimal"
	"github.com/Veridata-Labs/fincorpus/core/pkg/statement"
)

func incomeStatement(fields map[string]string) *statement.Statement {
	s := &statement.Statement{
		Type:      statement.TypeIncome,
		PeriodEnd: "2024-12-31",
		Fields:    make(map[string]decimal.Decimal),
	}
	for k, v := range fields {
		s.Fields[k] = decimal.MustParse(v)
	}
	return s
}

func TestAssessExcellent(t *testing.T) {
	s := incomeStatement(map[string]string{
		"revenue":            "1000",
		"cost_of_goods_sold": "600",
		"gross_profit":       "400",
		"operating_expenses": "200",
		"operating_income":   "200",
		"interest_expense":   "10",
		"income_tax_expense": "40",
		"net_income":         "150",
	})
	a := Assess(s)
	if a.Completeness != 1.0 {
		t.Errorf("completeness = %v, want 1.0", a.Completeness)
	}
	if len(a.ConsistencyIssues) != 0 {
		t.Errorf("unexpected issues: %v", a.ConsistencyIssues)
	}
	if a.Overall != GradeExcellent {
		t.Errorf("overall = %s, want EXCELLENT", a.Overall)
	}
}

func TestAssessGrossProfitIdentityViolation(t *testing.T) {
	s := incomeStatement(map[string]string{
		"revenue":            "1000",
		"cost_of_goods_sold": "600",
		"gross_profit":       "500", // off by 100, tolerance is 10
	})
	a := Assess(s)
	if len(a.ConsistencyIssues) != 1 {
		t.Fatalf("issues = %v, want one", a.ConsistencyIssues)
	}
	if a.ConsistencyIssues[0] != "identity_violation:gross_profit!=revenue - cost_of_goods_sold" {
		t.Errorf("issue = %q", a.ConsistencyIssues[0])
	}
}

func TestAssessIdentityWithinTolerance(t *testing.T) {
	s := incomeStatement(map[string]string{
		"revenue":            "1000",
		"cost_of_goods_sold": "600",
		"gross_profit":       "395", // off by 5, within 1% of revenue
	})
	if a := Assess(s); len(a.ConsistencyIssues) != 0 {
		t.Errorf("unexpected issues: %v", a.ConsistencyIssues)
	}
}

func TestAssessGradeBands(t *testing.T) {
	// 6 of 8 income fields populated: completeness 0.75, one issue -> GOOD.
	good := incomeStatement(map[string]string{
		"revenue":            "1000",
		"cost_of_goods_sold": "600",
		"gross_profit":       "500",
		"operating_expenses": "200",
		"interest_expense":   "10",
		"net_income":         "150",
	})
	if a := Assess(good); a.Overall != GradeGood {
		t.Errorf("overall = %s (completeness %v, issues %v), want GOOD",
			a.Overall, a.Completeness, a.ConsistencyIssues)
	}

	// 4 of 8 fields: completeness 0.5 -> FAIR.
	fair := incomeStatement(map[string]string{
		"revenue":          "1000",
		"net_income":       "150",
		"interest_expense": "10",
		"operating_income": "200",
	})
	if a := Assess(fair); a.Overall != GradeFair {
		t.Errorf("overall = %s, want FAIR", a.Overall)
	}

	// 1 of 8 fields -> POOR.
	poor := incomeStatement(map[string]string{"revenue": "1000"})
	if a := Assess(poor); a.Overall != GradePoor {
		t.Errorf("overall = %s, want POOR", a.Overall)
	}
}

func TestAssessBalanceSheetUsesStatementValidation(t *testing.T) {
	s := &statement.Statement{
		Type:      statement.TypeBalanceSheet,
		PeriodEnd: "2024-12-31",
		Fields: map[string]decimal.Decimal{
			"total_assets":      decimal.MustParse("100"),
			"total_liabilities": decimal.MustParse("60"),
			"total_equity":      decimal.MustParse("30"),
		},
	}
	a := Assess(s)
	found := false
	for _, issue := range a.ConsistencyIssues {
		if issue == "balance_sheet_equation_mismatch" {
			found = true
		}
	}
	if !found {
		t.Errorf("balance-sheet mismatch not surfaced: %v", a.ConsistencyIssues)
	}
}

func TestAssessNilStatement(t *testing.T) {
	if a := Assess(nil); a.Overall != GradePoor {
		t.Errorf("nil statement should be POOR, got %s", a.Overall)
	}
}
