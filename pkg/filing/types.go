// Package filing parses regulatory filing artifacts - Atom index feeds, HTML
// document indexes, and XBRL fact sets - into normalized entities.
package filing

import (
	"time"

	"github.com/Veridata-Labs/fincorpus/core/pkg/decimal"
)

// Filing identifies a single regulatory submission. Immutable after creation.
type Filing struct {
	FilingID      string    `json:"filing_id"`
	IssuerID      string    `json:"issuer_id"`
	FormType      string    `json:"form_type"`
	FiledAt       time.Time `json:"filed_at"`
	PeriodEnd     string    `json:"period_end,omitempty"` // YYYY-MM-DD
	PrimaryDocURI string    `json:"primary_doc_uri"`
	XBRLURI       string    `json:"xbrl_uri,omitempty"`
	SizeBytes     int64     `json:"size_bytes,omitempty"`
}

// RawFact is a single extracted fact. Concept is namespace-qualified
// (e.g. "us-gaap:Assets"). Values that fail numeric parsing keep their raw
// string form with Numeric left nil; ambiguous units are likewise retained as
// strings with the original unit annotation.
type RawFact struct {
	FilingID    string           `json:"filing_id"`
	Concept     string           `json:"concept"`
	ContextRef  string           `json:"context_ref,omitempty"`
	UnitRef     string           `json:"unit_ref,omitempty"`
	Decimals    string           `json:"decimals,omitempty"`
	RawValue    string           `json:"raw_value"`
	Numeric     *decimal.Decimal `json:"numeric,omitempty"`
	PeriodStart string           `json:"period_start,omitempty"`
	PeriodEnd   string           `json:"period_end,omitempty"`
}

// IndexEntry is one row of an Atom index feed.
type IndexEntry struct {
	Accession   string `json:"accession"`
	FilingDate  string `json:"filing_date"` // YYYY-MM-DD
	FilingHref  string `json:"filing_href"`
	CompanyName string `json:"company_name"`
}

// ParseResult bundles the facts extracted from one document with diagnostics.
type ParseResult struct {
	Facts []RawFact `json:"facts"`
	// Skipped counts elements in unknown namespaces that were ignored.
	Skipped int `json:"skipped"`
}
