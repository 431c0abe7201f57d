package anonymize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Kind labels a category of personally identifying information.
type Kind string

const (
	KindEmail       Kind = "EMAIL"
	KindPhone       Kind = "PHONE"
	KindTaxID       Kind = "TAX_ID"
	KindURL         Kind = "URL"
	KindIPAddress   Kind = "IP_ADDRESS"
	KindCompanyName Kind = "COMPANY_NAME"
	KindPersonName  Kind = "PERSON_NAME"
	KindAddress     Kind = "ADDRESS"
)

// Span is one detected PII occurrence inside a string value.
type Span struct {
	Start int
	End   int
	Kind  Kind
	Text  string
}

// Regex detectors run in a fixed order; earlier matches shadow later ones on
// overlap so a URL containing an email is tokenized once, as a URL.
var regexDetectors = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindURL, regexp.MustCompile(`https?://[^\s"'<>]+`)},
	{KindEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{KindTaxID, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{KindTaxID, regexp.MustCompile(`\b\d{2}-\d{7}\b`)},
	{KindPhone, regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`)},
	{KindIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// businessSuffixes are the lower-case (case-folded) entity suffixes that
// anchor company-name detection.
var businessSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"llc": true, "ltd": true, "limited": true, "co": true, "company": true,
	"lp": true, "llp": true, "pa": true, "pc": true, "plc": true,
	"group": true, "holdings": true,
}

var fold = cases.Fold()

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9&.'-]*`)

// detectRegex finds direct-identifier spans only.
func detectRegex(s string) []Span {
	var spans []Span
	for _, d := range regexDetectors {
		for _, loc := range d.re.FindAllStringIndex(s, -1) {
			if overlapsAny(spans, loc[0], loc[1]) {
				continue
			}
			spans = append(spans, Span{Start: loc[0], End: loc[1], Kind: d.kind, Text: s[loc[0]:loc[1]]})
		}
	}
	sortSpans(spans)
	return spans
}

// detectCompanies finds entity-name spans anchored on a business suffix,
// extending left over up to three adjacent capitalized words. A bare suffix
// with no preceding name word is not a company name.
func detectCompanies(s string, existing []Span) []Span {
	words := wordRe.FindAllStringIndex(s, -1)
	var spans []Span
	for i, w := range words {
		token := strings.TrimRight(s[w[0]:w[1]], ".")
		if !businessSuffixes[fold.String(token)] {
			continue
		}
		start := -1
		taken := 0
		for j := i - 1; j >= 0 && taken < 3; j-- {
			prev := words[j]
			// words must be adjacent: only spaces or a comma between them
			gap := s[prev[1]:wordStart(words, j+1)]
			if len(strings.Trim(gap, " ,")) != 0 || len(gap) > 2 {
				break
			}
			if !startsUpper(s[prev[0]:prev[1]]) {
				break
			}
			start = prev[0]
			taken++
		}
		if start < 0 {
			continue
		}
		if overlapsAny(existing, start, w[1]) || overlapsAny(spans, start, w[1]) {
			continue
		}
		spans = append(spans, Span{Start: start, End: w[1], Kind: KindCompanyName, Text: s[start:w[1]]})
	}
	return spans
}

// detectText runs all content detectors. includeEntities gates the
// company-suffix pass, which PARTIAL anonymization skips.
func detectText(s string, includeEntities bool) []Span {
	spans := detectRegex(s)
	if includeEntities {
		spans = append(spans, detectCompanies(s, spans)...)
	}
	sortSpans(spans)
	return spans
}

func wordStart(words [][]int, i int) int { return words[i][0] }

func startsUpper(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}

func overlapsAny(spans []Span, start, end int) bool {
	for _, sp := range spans {
		if start < sp.End && sp.Start < end {
			return true
		}
	}
	return false
}

func sortSpans(spans []Span) {
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
}

// identifyingFields maps field names whose entire value is an identifier to
// the kind used for the replacement token. Matching is on the lower-cased
// leaf key.
var identifyingFields = map[string]Kind{
	"company_name":     KindCompanyName,
	"legal_name":       KindCompanyName,
	"entity_name":      KindCompanyName,
	"issuer_name":      KindCompanyName,
	"registrant_name":  KindCompanyName,
	"officer_name":     KindPersonName,
	"signatory_name":   KindPersonName,
	"contact_name":     KindPersonName,
	"preparer_name":    KindPersonName,
	"address":          KindAddress,
	"street_address":   KindAddress,
	"mailing_address":  KindAddress,
	"business_address": KindAddress,
	"email":            KindEmail,
	"contact_email":    KindEmail,
	"phone":            KindPhone,
	"phone_number":     KindPhone,
	"contact_phone":    KindPhone,
	"ein":              KindTaxID,
	"tax_id":           KindTaxID,
	"ssn":              KindTaxID,
}

// financialFields are never anonymized regardless of content. Amounts and
// accounting fields must survive tokenization untouched.
var financialFields = map[string]bool{
	"total_assets": true, "current_assets": true, "cash_and_equivalents": true,
	"accounts_receivable": true, "inventory": true,
	"total_liabilities": true, "current_liabilities": true, "accounts_payable": true,
	"long_term_debt": true, "total_equity": true, "retained_earnings": true,
	"revenue": true, "cost_of_goods_sold": true, "gross_profit": true,
	"operating_expenses": true, "operating_income": true, "interest_expense": true,
	"income_tax_expense": true, "net_income": true,
	"operating_cash_flow": true, "investing_cash_flow": true, "financing_cash_flow": true,
	"net_change_in_cash": true, "capital_expenditures": true, "depreciation_amortization": true,
	"amount": true, "balance": true, "currency": true,
	"period_start": true, "period_end": true, "fiscal_year": true,
}
