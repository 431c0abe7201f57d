package statement

import (
	"testing"

	"github.com/Veridata-Labs/fincorpus/core/pkg/decimal"
	"github.com/Veridata-Labs/fincorpus/core/pkg/filing"
)

func dec(s string) *decimal.Decimal {
	d := decimal.MustParse(s)
	return &d
}

func TestNormalizePrecedenceXBRLOverHTML(t *testing.T) {
	f := &filing.Filing{FilingID: "f1", PeriodEnd: "2024-12-31"}
	facts := []filing.RawFact{
		{FilingID: "f1", Concept: "html:Total assets", Numeric: dec("999")},
		{FilingID: "f1", Concept: "us-gaap:Assets", Numeric: dec("1000"), PeriodEnd: "2024-12-31"},
	}
	s := Normalize(f, facts, TypeBalanceSheet)
	got, ok := s.Field("total_assets")
	if !ok {
		t.Fatal("total_assets missing")
	}
	if got.String() != "1000" {
		t.Errorf("XBRL should win over HTML: got %s", got)
	}
}

func TestNormalizePeriodTieBreak(t *testing.T) {
	f := &filing.Filing{FilingID: "f1", PeriodEnd: "2024-12-31"}
	facts := []filing.RawFact{
		{FilingID: "f1", Concept: "us-gaap:Assets", Numeric: dec("900"), PeriodEnd: "2023-12-31"},
		{FilingID: "f1", Concept: "us-gaap:Assets", Numeric: dec("1000"), PeriodEnd: "2024-12-31"},
	}
	s := Normalize(f, facts, TypeBalanceSheet)
	got, _ := s.Field("total_assets")
	if got.String() != "1000" {
		t.Errorf("declared period should win: got %s", got)
	}
}

func TestNormalizePeriodTieBreakAcrossConcepts(t *testing.T) {
	f := &filing.Filing{FilingID: "f1", PeriodEnd: "2024-12-31"}
	// two concepts map to revenue; the declared-period fact sits under the
	// concept listed second, so a per-concept tie-break would miss it
	facts := []filing.RawFact{
		{FilingID: "f1", Concept: "us-gaap:Revenues", Numeric: dec("900"), PeriodEnd: "2023-12-31"},
		{FilingID: "f1", Concept: "us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax",
			Numeric: dec("1000"), PeriodEnd: "2024-12-31"},
	}
	s := Normalize(f, facts, TypeIncome)
	got, ok := s.Field("revenue")
	if !ok {
		t.Fatal("revenue missing")
	}
	if got.String() != "1000" {
		t.Errorf("declared period should win across concepts: got %s", got)
	}
}

func TestNormalizeMissingFieldsAbsent(t *testing.T) {
	f := &filing.Filing{FilingID: "f1", PeriodEnd: "2024-12-31"}
	facts := []filing.RawFact{
		{FilingID: "f1", Concept: "us-gaap:Revenues", Numeric: dec("500"), PeriodEnd: "2024-12-31"},
	}
	s := Normalize(f, facts, TypeIncome)
	if _, ok := s.Field("net_income"); ok {
		t.Error("missing field should be absent, not zero")
	}
}

func TestNormalizeDerivedGrossProfit(t *testing.T) {
	f := &filing.Filing{FilingID: "f1", PeriodEnd: "2024-12-31"}
	facts := []filing.RawFact{
		{FilingID: "f1", Concept: "us-gaap:Revenues", Numeric: dec("500"), PeriodEnd: "2024-12-31"},
		{FilingID: "f1", Concept: "us-gaap:CostOfRevenue", Numeric: dec("300"), PeriodEnd: "2024-12-31"},
	}
	s := Normalize(f, facts, TypeIncome)
	gp, ok := s.Field("gross_profit")
	if !ok {
		t.Fatal("gross_profit should be derived")
	}
	if gp.String() != "200" {
		t.Errorf("derived gross profit: got %s", gp)
	}
}

func TestNormalizeHTMLLabelFuzzyMatch(t *testing.T) {
	f := &filing.Filing{FilingID: "f1", PeriodEnd: "2024-12-31"}
	facts := []filing.RawFact{
		{FilingID: "f1", Concept: "html:Total current assets", Numeric: dec("400")},
		{FilingID: "f1", Concept: "html:TOTAL ASSETS", Numeric: dec("1000")},
	}
	s := Normalize(f, facts, TypeBalanceSheet)
	if got, _ := s.Field("current_assets"); got.String() != "400" {
		t.Errorf("current_assets: %s", got)
	}
	if got, _ := s.Field("total_assets"); got.String() != "1000" {
		t.Errorf("total_assets: %s", got)
	}
}

func TestValidateBalanceSheetEquation(t *testing.T) {
	s := &Statement{
		Type:      TypeBalanceSheet,
		PeriodEnd: "2024-12-31",
		Fields: map[string]decimal.Decimal{
			"total_assets":      decimal.MustParse("100"),
			"total_liabilities": decimal.MustParse("60"),
			"total_equity":      decimal.MustParse("30"),
		},
	}
	issues := s.Validate()
	if len(issues) != 1 || issues[0] != "balance_sheet_equation_mismatch" {
		t.Errorf("expected mismatch flag, got %v", issues)
	}

	// Within 1% tolerance: no flag.
	s.Fields["total_equity"] = decimal.MustParse("39.5")
	if issues := s.Validate(); len(issues) != 0 {
		t.Errorf("within tolerance should not flag, got %v", issues)
	}
}

func TestMappingOverlay(t *testing.T) {
	overlay := []byte(`
concepts:
  us-gaap:AssetsNoncurrent: total_assets
synonyms:
  revenue:
    - turnover
`)
	if err := LoadMappingOverlay(overlay); err != nil {
		t.Fatalf("LoadMappingOverlay: %v", err)
	}
	if got, ok := canonicalForConcept("us-gaap:AssetsNoncurrent"); !ok || got != "total_assets" {
		t.Errorf("overlay concept not applied: %q %v", got, ok)
	}
	if got, ok := canonicalForLabel("Group turnover", Vocabulary(TypeIncome)); !ok || got != "revenue" {
		t.Errorf("overlay synonym not applied: %q %v", got, ok)
	}
}
