package anonymize

import (
	"fmt"
	"strings"
)

// ValidationReport is the outcome of re-scanning an anonymized record.
type ValidationReport struct {
	IsValid bool     `json:"is_valid"`
	Issues  []string `json:"issues"`
}

// Validate re-scans a record that claims to be anonymized and reports any
// residual PII. Replacement tokens are masked before scanning so they are
// never flagged themselves. A clean record yields {IsValid: true, Issues: nil}.
func Validate(value interface{}) ValidationReport {
	report := ValidationReport{IsValid: true}
	scanValue(value, "$", &report)
	return report
}

func scanValue(v interface{}, path string, report *ValidationReport) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if k == MetadataKey {
				continue
			}
			leaf := strings.ToLower(k)
			if financialFields[leaf] {
				continue
			}
			childPath := path + "." + k
			if kind, identifying := identifyingFields[leaf]; identifying {
				if s, ok := child.(string); ok && s != "" && !IsToken(s) {
					report.IsValid = false
					report.Issues = append(report.Issues,
						fmt.Sprintf("%s: identifying field not tokenized (%s)", childPath, kind))
					continue
				}
			}
			scanValue(child, childPath, report)
		}
	case []interface{}:
		for i, child := range val {
			scanValue(child, fmt.Sprintf("%s[%d]", path, i), report)
		}
	case string:
		for _, sp := range detectText(stripTokens(val), true) {
			report.IsValid = false
			report.Issues = append(report.Issues,
				fmt.Sprintf("%s: residual %s", path, sp.Kind))
		}
	}
}
