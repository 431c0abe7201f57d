package statement

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veridata-Labs/fincorpus/core/pkg/decimal"
	"github.com/Veridata-Labs/fincorpus/core/pkg/filing"
)

// fieldSource ranks where a canonical value came from. When multiple sources
// provide the same field, XBRL wins over HTML tables, which win over derived
// values.
type fieldSource int

const (
	sourceNone fieldSource = iota
	sourceDerived
	sourceHTML
	sourceXBRL
)

// Normalize maps raw facts onto the canonical schema for the given statement
// type. Facts for the same canonical field are resolved by source precedence
// and, within XBRL, by the filing's declared period.
func Normalize(f *filing.Filing, facts []filing.RawFact, t Type) *Statement {
	s := &Statement{
		StatementID: uuid.New().String(),
		Type:        t,
		Currency:    "USD",
		Fields:      make(map[string]decimal.Decimal),
		CreatedAt:   time.Now().UTC(),
	}
	if f != nil {
		s.FilingID = f.FilingID
		s.PeriodEnd = f.PeriodEnd
	}

	vocabulary := Vocabulary(t)
	sources := make(map[string]fieldSource)

	declaredPeriod := ""
	if f != nil {
		declaredPeriod = f.PeriodEnd
	}

	// Group facts per canonical field, then let SelectFact apply the period
	// tie-break within each group.
	byField := make(map[string][]filing.RawFact)
	for _, fact := range facts {
		if fact.Numeric == nil {
			continue
		}
		canonical, src, ok := resolveFact(fact, vocabulary)
		if !ok {
			continue
		}
		key := canonical
		if src == sourceHTML {
			key = "html/" + canonical
		}
		byField[key] = append(byField[key], fact)
	}

	for _, canonical := range vocabulary {
		if group, ok := byField[canonical]; ok {
			// the group may span several concepts mapped to one canonical
			// field, so the tie-break runs across all of them
			if chosen, found := filing.SelectFact(group, "", declaredPeriod); found {
				s.Fields[canonical] = *chosen.Numeric
				sources[canonical] = sourceXBRL
				continue
			}
		}
		if group, ok := byField["html/"+canonical]; ok {
			s.Fields[canonical] = *group[0].Numeric
			sources[canonical] = sourceHTML
		}
	}

	deriveFields(s, sources)

	if start := earliestPeriodStart(facts); start != "" {
		s.PeriodStart = start
	}
	return s
}

// resolveFact maps one raw fact to a canonical field and source rank.
func resolveFact(fact filing.RawFact, vocabulary []string) (string, fieldSource, bool) {
	if strings.HasPrefix(fact.Concept, "html:") {
		label := strings.TrimPrefix(fact.Concept, "html:")
		if canonical, ok := canonicalForLabel(label, vocabulary); ok {
			return canonical, sourceHTML, true
		}
		return "", sourceNone, false
	}
	if canonical, ok := canonicalForConcept(fact.Concept); ok {
		for _, v := range vocabulary {
			if v == canonical {
				return canonical, sourceXBRL, true
			}
		}
	}
	return "", sourceNone, false
}

// deriveFields fills gaps computable from populated fields. Derived values
// never overwrite fetched ones.
func deriveFields(s *Statement, sources map[string]fieldSource) {
	set := func(name string, d decimal.Decimal) {
		if _, exists := s.Fields[name]; !exists {
			s.Fields[name] = d
			sources[name] = sourceDerived
		}
	}

	if s.Type == TypeIncome {
		revenue, okR := s.Field("revenue")
		cogs, okC := s.Field("cost_of_goods_sold")
		if okR && okC {
			set("gross_profit", revenue.Sub(cogs))
		}
	}
	if s.Type == TypeBalanceSheet {
		liabilities, okL := s.Field("total_liabilities")
		equity, okE := s.Field("total_equity")
		if okL && okE {
			set("total_assets", liabilities.Add(equity))
		}
	}
	if s.Type == TypeCashFlow {
		op, okO := s.Field("operating_cash_flow")
		inv, okI := s.Field("investing_cash_flow")
		fin, okF := s.Field("financing_cash_flow")
		if okO && okI && okF {
			set("net_change_in_cash", op.Add(inv).Add(fin))
		}
	}
}

func earliestPeriodStart(facts []filing.RawFact) string {
	start := ""
	for _, fact := range facts {
		if fact.PeriodStart == "" {
			continue
		}
		if start == "" || fact.PeriodStart < start {
			start = fact.PeriodStart
		}
	}
	return start
}
