package contradiction

import (
	"context"
	"strings"
	"testing"
)

func newTestDetector() *Detector {
	return NewDetector(&BagEmbedder{Dimensions: 256})
}

func findingsBy(report *Report, analyzer string) []Finding {
	var out []Finding
	for _, f := range report.Findings {
		if f.Analyzer == analyzer {
			out = append(out, f)
		}
	}
	return out
}

func TestSemanticNegationIsHigh(t *testing.T) {
	text := "The audit committee approved the revised budget for fiscal 2024. " +
		"The audit committee never approved the revised budget for fiscal 2024."
	report, err := newTestDetector().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	semantic := findingsBy(report, "semantic")
	if len(semantic) != 1 {
		t.Fatalf("semantic findings = %d, want 1 (%+v)", len(semantic), report.Findings)
	}
	if semantic[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want HIGH", semantic[0].Severity)
	}
}

func TestSemanticNegationPlusOpposingIsCritical(t *testing.T) {
	text := "Operating margin increased significantly during the fourth quarter period. " +
		"Operating margin never decreased significantly during the fourth quarter period."
	report, err := newTestDetector().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	semantic := findingsBy(report, "semantic")
	if len(semantic) != 1 || semantic[0].Severity != SeverityCritical {
		t.Errorf("findings = %+v, want one CRITICAL", semantic)
	}
}

func TestSemanticOpposingOnlyIsMedium(t *testing.T) {
	text := "Reserves for credit losses were adequate at year end according to management. " +
		"Reserves for credit losses were inadequate at year end according to management."
	report, err := newTestDetector().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	semantic := findingsBy(report, "semantic")
	if len(semantic) != 1 || semantic[0].Severity != SeverityMedium {
		t.Errorf("findings = %+v, want one MEDIUM", semantic)
	}
}

func TestSemanticSkipsShortSentences(t *testing.T) {
	report, err := newTestDetector().Analyze(context.Background(), "It grew. It shrank.")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 0 {
		t.Errorf("fragments should be skipped: %+v", report.Findings)
	}
}

func TestNumericalContradiction(t *testing.T) {
	text := "Total assets is $1,000,000 as reported in the annual summary. " +
		"Elsewhere the filing notes that total assets is $1,200,000 for the same date."
	report, err := newTestDetector().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	numerical := findingsBy(report, "numerical")
	if len(numerical) != 1 {
		t.Fatalf("numerical findings = %+v, want 1", report.Findings)
	}
	if numerical[0].Severity != SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", numerical[0].Severity)
	}
	if !strings.Contains(numerical[0].Detail, "total assets") {
		t.Errorf("detail = %q", numerical[0].Detail)
	}
}

func TestNumericalOneCentToleranceAndConsistency(t *testing.T) {
	consistent := "Net income totals 500000.00 in the consolidated accounts. " +
		"As restated, net income totals 500000.01 per the adjusted figures."
	report, err := newTestDetector().Analyze(context.Background(), consistent)
	if err != nil {
		t.Fatal(err)
	}
	if numerical := findingsBy(report, "numerical"); len(numerical) != 0 {
		t.Errorf("one cent apart should not flag: %+v", numerical)
	}
}

func TestTemporalContradiction(t *testing.T) {
	text := "Before January 15, 2024 the company held the required licenses in all operating states. " +
		"After January 15, 2024 the company held the required licenses in all operating states."
	report, err := newTestDetector().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	temporal := findingsBy(report, "temporal")
	if len(temporal) == 0 {
		t.Fatalf("temporal contradiction missed: %+v", report.Findings)
	}
	if temporal[0].Severity != SeverityHigh {
		t.Errorf("severity = %s, want HIGH", temporal[0].Severity)
	}
}

func TestTemporalRequiresDates(t *testing.T) {
	text := "Before the acquisition the company held the required licenses everywhere. " +
		"After the acquisition the company held the required licenses everywhere."
	report, err := newTestDetector().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if temporal := findingsBy(report, "temporal"); len(temporal) != 0 {
		t.Errorf("undated spans should not flag: %+v", temporal)
	}
}

func TestConsistencyScoreWeights(t *testing.T) {
	score := score([]Finding{
		{Severity: SeverityCritical},
		{Severity: SeverityHigh},
		{Severity: SeverityMedium},
		{Severity: SeverityLow},
	})
	want := 1 - 0.20 - 0.10 - 0.05 - 0.02
	if score < want-1e-9 || score > want+1e-9 {
		t.Errorf("score = %v, want %v", score, want)
	}
}

func TestConsistencyScoreClampedAtZero(t *testing.T) {
	findings := make([]Finding, 10)
	for i := range findings {
		findings[i] = Finding{Severity: SeverityCritical}
	}
	if got := score(findings); got != 0 {
		t.Errorf("score = %v, want 0", got)
	}
}

func TestCleanTextScoresOne(t *testing.T) {
	text := "Revenue grew steadily across all segments during the year. " +
		"The growth was driven primarily by the services division."
	report, err := newTestDetector().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if report.ConsistencyScore != 1.0 {
		t.Errorf("score = %v for clean text (%+v)", report.ConsistencyScore, report.Findings)
	}
}

func TestCosine(t *testing.T) {
	a := Embedding{1, 0, 0}
	b := Embedding{1, 0, 0}
	c := Embedding{0, 1, 0}
	if got := cosine(a, b); got < 0.999 {
		t.Errorf("identical vectors: %v", got)
	}
	if got := cosine(a, c); got != 0 {
		t.Errorf("orthogonal vectors: %v", got)
	}
	if got := cosine(a, Embedding{0, 0, 0}); got != 0 {
		t.Errorf("zero vector: %v", got)
	}
}
