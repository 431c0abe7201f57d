// Package contradiction scores generated text for internal contradictions.
// Three independent analyzers run over the input and their findings merge
// into a single consistency score: semantic (embedding similarity plus
// negation and opposing-term tests), numerical (same metric, different
// values), and temporal (opposite-polarity dated spans).
package contradiction

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Severity grades a contradiction finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Finding is one detected contradiction.
type Finding struct {
	Analyzer string   `json:"analyzer"`
	Severity Severity `json:"severity"`
	First    string   `json:"first"`
	Second   string   `json:"second"`
	Detail   string   `json:"detail,omitempty"`
}

// Report is the merged analyzer output.
type Report struct {
	Findings         []Finding `json:"findings"`
	ConsistencyScore float64   `json:"consistency_score"`
}

// Detector runs the analyzers. SimilarityThreshold defaults to 0.8.
type Detector struct {
	embedder            Embedder
	SimilarityThreshold float64
}

func NewDetector(embedder Embedder) *Detector {
	return &Detector{embedder: embedder, SimilarityThreshold: 0.8}
}

// minSentenceLen filters fragments out of the semantic pass.
const minSentenceLen = 20

var negationTokens = []string{
	"not", "never", "cannot", "without", "no", "none", "neither", "nor", "n't",
}

// opposingPairs drive the opposing-term test. Both orientations are checked.
var opposingPairs = [][2]string{
	{"increase", "decrease"},
	{"increased", "decreased"},
	{"adequate", "inadequate"},
	{"material", "immaterial"},
	{"overstated", "understated"},
	{"profit", "loss"},
	{"compliant", "noncompliant"},
	{"effective", "ineffective"},
	{"sufficient", "insufficient"},
	{"gain", "decline"},
}

// Analyze runs all three analyzers over the text and merges their findings.
func (d *Detector) Analyze(ctx context.Context, text string) (*Report, error) {
	report := &Report{}

	semantic, err := d.analyzeSemantic(ctx, text)
	if err != nil {
		return nil, err
	}
	report.Findings = append(report.Findings, semantic...)
	report.Findings = append(report.Findings, analyzeNumerical(text)...)
	report.Findings = append(report.Findings, analyzeTemporal(text)...)

	report.ConsistencyScore = score(report.Findings)
	return report, nil
}

// score applies the severity-weighted penalty, clamped at zero.
func score(findings []Finding) float64 {
	s := 1.0
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s -= 0.20
		case SeverityHigh:
			s -= 0.10
		case SeverityMedium:
			s -= 0.05
		case SeverityLow:
			s -= 0.02
		}
	}
	if s < 0 {
		return 0
	}
	return s
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceSplitRe.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len(s) >= minSentenceLen {
			out = append(out, s)
		}
	}
	return out
}

func (d *Detector) analyzeSemantic(ctx context.Context, text string) ([]Finding, error) {
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return nil, nil
	}
	embeddings, err := d.embedder.ComputeEmbeddings(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("semantic analysis: %w", err)
	}

	var findings []Finding
	for i := 0; i < len(sentences); i++ {
		for j := i + 1; j < len(sentences); j++ {
			if cosine(embeddings[i], embeddings[j]) <= d.SimilarityThreshold {
				continue
			}
			negated := hasNegation(sentences[i]) != hasNegation(sentences[j])
			opposing := hasOpposingTerms(sentences[i], sentences[j])

			var severity Severity
			switch {
			case negated && opposing:
				severity = SeverityCritical
			case negated:
				severity = SeverityHigh
			case opposing:
				severity = SeverityMedium
			default:
				continue
			}
			findings = append(findings, Finding{
				Analyzer: "semantic",
				Severity: severity,
				First:    sentences[i],
				Second:   sentences[j],
			})
		}
	}
	return findings, nil
}

func hasNegation(sentence string) bool {
	lower := strings.ToLower(sentence)
	if strings.Contains(lower, "n't") {
		return true
	}
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, ".,;:!?()\"'")
		for _, tok := range negationTokens {
			if word == tok {
				return true
			}
		}
	}
	return false
}

func hasOpposingTerms(a, b string) bool {
	lowerA, lowerB := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range opposingPairs {
		if containsWord(lowerA, pair[0]) && containsWord(lowerB, pair[1]) {
			return true
		}
		if containsWord(lowerA, pair[1]) && containsWord(lowerB, pair[0]) {
			return true
		}
	}
	return false
}

var wordBoundaryCache = map[string]*regexp.Regexp{}

func containsWord(text, word string) bool {
	re, ok := wordBoundaryCache[word]
	if !ok {
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
		wordBoundaryCache[word] = re
	}
	return re.MatchString(text)
}

// metricValueRe pulls "metric is/equals/of/totals $value" statements.
var metricValueRe = regexp.MustCompile(
	`(?i)([a-z][a-z ]{2,40}?)\s+(?:is|equals|of|totals|was|totaled)\s+\$?([0-9][0-9,]*(?:\.[0-9]+)?)`)

// analyzeNumerical flags the same metric carrying values more than one cent
// apart.
func analyzeNumerical(text string) []Finding {
	type occurrence struct {
		value   float64
		context string
	}
	byMetric := make(map[string][]occurrence)
	var order []string
	for _, match := range metricValueRe.FindAllStringSubmatch(text, -1) {
		metric := strings.ToLower(strings.TrimSpace(match[1]))
		// The lazy capture can drag in leading words from the surrounding
		// sentence, so group on the trailing two words of the phrase.
		if words := strings.Fields(metric); len(words) > 2 {
			metric = strings.Join(words[len(words)-2:], " ")
		}
		raw := strings.ReplaceAll(match[2], ",", "")
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if _, seen := byMetric[metric]; !seen {
			order = append(order, metric)
		}
		byMetric[metric] = append(byMetric[metric], occurrence{value: value, context: match[0]})
	}

	var findings []Finding
	for _, metric := range order {
		occurrences := byMetric[metric]
		for i := 1; i < len(occurrences); i++ {
			diff := occurrences[i].value - occurrences[0].value
			if diff < 0 {
				diff = -diff
			}
			if diff > 0.01 {
				findings = append(findings, Finding{
					Analyzer: "numerical",
					Severity: SeverityCritical,
					First:    occurrences[0].context,
					Second:   occurrences[i].context,
					Detail:   fmt.Sprintf("metric %q differs by %.2f", metric, diff),
				})
			}
		}
	}
	return findings
}

// temporalWindow is how far around a temporal marker the span extends.
const temporalWindow = 50

var (
	beforeRe = regexp.MustCompile(`(?i)\b(before|prior to|previously|until)\b`)
	afterRe  = regexp.MustCompile(`(?i)\b(after|subsequently|following|since)\b`)
	dateRe   = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`)
)

type temporalSpan struct {
	text   string
	before bool
}

// analyzeTemporal reports opposite-polarity dated spans that describe the
// same thing (at least 30% word overlap).
func analyzeTemporal(text string) []Finding {
	spans := temporalSpans(text)
	var findings []Finding
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].before == spans[j].before {
				continue
			}
			if wordOverlap(spans[i].text, spans[j].text) >= 0.30 {
				findings = append(findings, Finding{
					Analyzer: "temporal",
					Severity: SeverityHigh,
					First:    spans[i].text,
					Second:   spans[j].text,
				})
			}
		}
	}
	return findings
}

func temporalSpans(text string) []temporalSpan {
	var spans []temporalSpan
	collect := func(re *regexp.Regexp, before bool) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			start := loc[0] - temporalWindow
			if start < 0 {
				start = 0
			}
			end := loc[1] + temporalWindow
			if end > len(text) {
				end = len(text)
			}
			window := text[start:end]
			if dateRe.MatchString(window) {
				spans = append(spans, temporalSpan{text: window, before: before})
			}
		}
	}
	collect(beforeRe, true)
	collect(afterRe, false)
	return spans
}

// wordOverlap is |A ∩ B| / min(|A|, |B|) over lowercased word sets.
func wordOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	min := len(setA)
	if len(setB) < min {
		min = len(setB)
	}
	return float64(shared) / float64(min)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?()\"'")
		if w != "" {
			set[w] = true
		}
	}
	return set
}
