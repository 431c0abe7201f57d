package statement

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary returns the canonical field names for a statement type.
func Vocabulary(t Type) []string {
	switch t {
	case TypeBalanceSheet:
		return []string{
			"total_assets", "current_assets", "cash_and_equivalents",
			"accounts_receivable", "inventory",
			"total_liabilities", "current_liabilities", "accounts_payable",
			"long_term_debt", "total_equity", "retained_earnings",
		}
	case TypeIncome:
		return []string{
			"revenue", "cost_of_goods_sold", "gross_profit",
			"operating_expenses", "operating_income", "interest_expense",
			"income_tax_expense", "net_income",
		}
	case TypeCashFlow:
		return []string{
			"operating_cash_flow", "investing_cash_flow", "financing_cash_flow",
			"net_change_in_cash", "capital_expenditures", "depreciation_amortization",
		}
	default:
		return nil
	}
}

// conceptMappings maps namespace-qualified XBRL concepts to canonical names.
var conceptMappings = map[string]string{
	"us-gaap:Assets":                    "total_assets",
	"us-gaap:AssetsCurrent":             "current_assets",
	"us-gaap:CashAndCashEquivalentsAtCarryingValue": "cash_and_equivalents",
	"us-gaap:AccountsReceivableNetCurrent":          "accounts_receivable",
	"us-gaap:InventoryNet":                          "inventory",
	"us-gaap:Liabilities":                           "total_liabilities",
	"us-gaap:LiabilitiesCurrent":                    "current_liabilities",
	"us-gaap:AccountsPayableCurrent":                "accounts_payable",
	"us-gaap:LongTermDebtNoncurrent":                "long_term_debt",
	"us-gaap:StockholdersEquity":                    "total_equity",
	"us-gaap:RetainedEarningsAccumulatedDeficit":    "retained_earnings",

	"us-gaap:Revenues":                               "revenue",
	"us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax": "revenue",
	"us-gaap:CostOfGoodsAndServicesSold":             "cost_of_goods_sold",
	"us-gaap:CostOfRevenue":                          "cost_of_goods_sold",
	"us-gaap:GrossProfit":                            "gross_profit",
	"us-gaap:OperatingExpenses":                      "operating_expenses",
	"us-gaap:OperatingIncomeLoss":                    "operating_income",
	"us-gaap:InterestExpense":                        "interest_expense",
	"us-gaap:IncomeTaxExpenseBenefit":                "income_tax_expense",
	"us-gaap:NetIncomeLoss":                          "net_income",

	"us-gaap:NetCashProvidedByUsedInOperatingActivities": "operating_cash_flow",
	"us-gaap:NetCashProvidedByUsedInInvestingActivities": "investing_cash_flow",
	"us-gaap:NetCashProvidedByUsedInFinancingActivities": "financing_cash_flow",
	"us-gaap:CashCashEquivalentsRestrictedCashAndRestrictedCashEquivalentsPeriodIncreaseDecreaseIncludingExchangeRateEffect": "net_change_in_cash",
	"us-gaap:PaymentsToAcquirePropertyPlantAndEquipment": "capital_expenditures",
	"us-gaap:DepreciationDepletionAndAmortization":       "depreciation_amortization",
}

// labelSynonyms drive the HTML row-label fuzzy match: a label matches a
// canonical field when (case-insensitive) it contains any of the synonyms.
var labelSynonyms = map[string][]string{
	"total_assets":              {"total assets"},
	"current_assets":            {"total current assets", "current assets"},
	"cash_and_equivalents":      {"cash and cash equivalents", "cash and equivalents"},
	"accounts_receivable":       {"accounts receivable", "receivables, net"},
	"inventory":                 {"inventories", "inventory"},
	"total_liabilities":         {"total liabilities"},
	"current_liabilities":       {"total current liabilities", "current liabilities"},
	"accounts_payable":          {"accounts payable"},
	"long_term_debt":            {"long-term debt", "long term debt"},
	"total_equity":              {"total stockholders equity", "total shareholders equity", "total equity"},
	"retained_earnings":         {"retained earnings", "accumulated deficit"},
	"revenue":                   {"total revenue", "net revenue", "net sales", "revenues", "revenue"},
	"cost_of_goods_sold":        {"cost of goods sold", "cost of revenue", "cost of sales"},
	"gross_profit":              {"gross profit", "gross margin"},
	"operating_expenses":        {"total operating expenses", "operating expenses"},
	"operating_income":          {"operating income", "income from operations"},
	"interest_expense":          {"interest expense"},
	"income_tax_expense":        {"income tax expense", "provision for income taxes"},
	"net_income":                {"net income", "net loss", "net earnings"},
	"operating_cash_flow":       {"cash provided by operating activities", "net cash from operating"},
	"investing_cash_flow":       {"cash used in investing activities", "net cash from investing"},
	"financing_cash_flow":       {"cash provided by financing activities", "net cash from financing"},
	"net_change_in_cash":        {"net change in cash", "net increase in cash", "net decrease in cash"},
	"capital_expenditures":      {"capital expenditures", "purchases of property"},
	"depreciation_amortization": {"depreciation and amortization"},
}

// MappingOverlay is a YAML-loadable extension of the declarative tables so
// deployments can add taxonomy revisions without a rebuild.
type MappingOverlay struct {
	Concepts map[string]string   `yaml:"concepts"`
	Synonyms map[string][]string `yaml:"synonyms"`
}

// LoadMappingOverlay merges a YAML overlay into the built-in tables.
func LoadMappingOverlay(data []byte) error {
	var overlay MappingOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("mapping overlay: %w", err)
	}
	for concept, canonical := range overlay.Concepts {
		conceptMappings[concept] = canonical
	}
	for canonical, synonyms := range overlay.Synonyms {
		labelSynonyms[canonical] = append(labelSynonyms[canonical], synonyms...)
	}
	return nil
}

// canonicalForConcept resolves an XBRL concept to its canonical field.
func canonicalForConcept(concept string) (string, bool) {
	name, ok := conceptMappings[concept]
	return name, ok
}

// canonicalForLabel resolves an HTML row label by fuzzy match. Longer
// synonyms are preferred so "total current assets" does not resolve to
// total_assets via the shorter "current assets" of another field.
func canonicalForLabel(label string, vocabulary []string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(label))
	bestField := ""
	bestLen := 0
	for _, field := range vocabulary {
		for _, syn := range labelSynonyms[field] {
			if strings.Contains(lower, syn) && len(syn) > bestLen {
				bestField = field
				bestLen = len(syn)
			}
		}
	}
	return bestField, bestField != ""
}
