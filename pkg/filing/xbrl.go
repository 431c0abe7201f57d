package filing

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// xbrlCompanyFacts mirrors the JSON facts format:
// facts.us-gaap.{concept}.units.{unit}[]{end,val,fy,fp,form,accn,start?}
type xbrlCompanyFacts struct {
	Facts map[string]map[string]xbrlConcept `json:"facts"`
}

type xbrlConcept struct {
	Label string                    `json:"label"`
	Units map[string][]xbrlJSONFact `json:"units"`
}

type xbrlJSONFact struct {
	Start string      `json:"start,omitempty"`
	End   string      `json:"end"`
	Val   json.Number `json:"val"`
	FY    int         `json:"fy"`
	FP    string      `json:"fp"`
	Form  string      `json:"form"`
	Accn  string      `json:"accn"`
}

// ParseXBRLJSON extracts RawFacts from the JSON company-facts format. Only the
// us-gaap taxonomy is consumed; other taxonomies count toward Skipped.
// Concepts reported under more than one unit are ambiguous and retained as
// strings with the unit annotation.
func ParseXBRLJSON(f *Filing, data []byte) (*ParseResult, error) {
	var doc xbrlCompanyFacts
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("xbrl json: %w", err)
	}

	result := &ParseResult{}
	for taxonomy, concepts := range doc.Facts {
		if !strings.Contains(taxonomy, "us-gaap") {
			result.Skipped += len(concepts)
			continue
		}
		for concept, entry := range concepts {
			ambiguous := len(entry.Units) > 1
			for unit, facts := range entry.Units {
				for _, jf := range facts {
					fact := RawFact{
						FilingID:    f.FilingID,
						Concept:     taxonomy + ":" + concept,
						UnitRef:     unit,
						RawValue:    jf.Val.String(),
						PeriodStart: jf.Start,
						PeriodEnd:   jf.End,
					}
					if ambiguous {
						fact.RawValue = jf.Val.String() + " " + unit
					} else {
						fact.Numeric = parseNumeric(jf.Val.String())
					}
					result.Facts = append(result.Facts, fact)
				}
			}
		}
	}
	return result, nil
}

// structural namespaces that carry no facts of their own.
var structuralNamespaces = []string{"xbrl", "xlink", "xhtml", "w3.org"}

// ParseXBRLXML extracts RawFacts from inline XBRL. Every element whose
// namespace URI contains "us-gaap" yields a fact; elements in unknown
// namespaces are ignored and counted in Skipped.
func ParseXBRLXML(f *Filing, data []byte) (*ParseResult, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	result := &ParseResult{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xbrl xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		space := start.Name.Space
		if !strings.Contains(space, "us-gaap") {
			if space != "" && !isStructuralNamespace(space) {
				result.Skipped++
			}
			continue
		}

		fact := RawFact{
			FilingID: f.FilingID,
			Concept:  "us-gaap:" + start.Name.Local,
		}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "contextRef":
				fact.ContextRef = attr.Value
			case "unitRef":
				fact.UnitRef = attr.Value
			case "decimals":
				fact.Decimals = attr.Value
			}
		}

		var text string
		if err := collectText(dec, start, &text); err != nil {
			return nil, fmt.Errorf("xbrl xml: %w", err)
		}
		fact.RawValue = strings.TrimSpace(text)
		fact.Numeric = parseNumeric(fact.RawValue)
		result.Facts = append(result.Facts, fact)
	}
	return result, nil
}

func isStructuralNamespace(space string) bool {
	for _, s := range structuralNamespaces {
		if strings.Contains(space, s) {
			return true
		}
	}
	return false
}

// collectText reads character data until the matching end element.
func collectText(dec *xml.Decoder, start xml.StartElement, out *string) error {
	depth := 1
	var sb strings.Builder
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				sb.Write(t)
			}
		}
	}
	*out = sb.String()
	return nil
}

// SelectFact applies the period tie-break: among facts for the concept (or
// all facts when concept is empty), prefer the one whose period end matches
// the filing's declared period; when none matches, the last reported entry
// wins.
func SelectFact(facts []RawFact, concept, declaredPeriodEnd string) (RawFact, bool) {
	var candidate RawFact
	var found bool
	for _, fact := range facts {
		if concept != "" && fact.Concept != concept {
			continue
		}
		if fact.PeriodEnd == declaredPeriodEnd && declaredPeriodEnd != "" {
			return fact, true
		}
		candidate = fact
		found = true
	}
	return candidate, found
}
