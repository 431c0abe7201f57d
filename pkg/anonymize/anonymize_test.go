package anonymize

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize/vault"
	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
)

func newTestEngine(t *testing.T) (*Engine, *vault.Store) {
	t.Helper()
	v := vault.New(vault.NewMemoryBackend(), []byte("vault-key"), nil)
	return New([]byte("test-secret"), v), v
}

func TestAnonymizeFilingRecord(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	record := map[string]interface{}{
		"company_name":  "Acme Inc",
		"total_assets":  float64(1000000),
		"contact_email": "cfo@acme.com",
	}
	out, meta, err := e.Anonymize(ctx, record, LevelFull)
	require.NoError(t, err)

	m := out.(map[string]interface{})
	require.True(t, strings.HasPrefix(m["company_name"].(string), "[COMPANY_NAME_"), "company_name: %v", m["company_name"])
	require.True(t, strings.HasPrefix(m["contact_email"].(string), "[EMAIL_"), "contact_email: %v", m["contact_email"])
	require.Equal(t, float64(1000000), m["total_assets"])

	require.Equal(t, 2, meta.PIICount)
	require.Equal(t, []string{"COMPANY_NAME", "EMAIL"}, meta.PIIKindsRemoved)

	block := m[MetadataKey].(map[string]interface{})
	require.Equal(t, "FULL", block["level"])
	require.Equal(t, 2, block["pii_count"])

	report := Validate(out)
	require.True(t, report.IsValid, "issues: %v", report.Issues)
}

func TestAnonymizeDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	record := map[string]interface{}{"company_name": "Acme Inc"}
	_, _, err := e.Anonymize(ctx, record, LevelFull)
	require.NoError(t, err)
	require.Equal(t, "Acme Inc", record["company_name"])
}

func TestReversibleTokensDeterministic(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	record := map[string]interface{}{
		"notes": []interface{}{
			"Contact cfo@acme.com for details.",
			"Follow up with cfo@acme.com next week.",
		},
	}
	out, meta, err := e.Anonymize(ctx, record, LevelFull)
	require.NoError(t, err)
	require.Equal(t, 2, meta.PIICount)

	notes := out.(map[string]interface{})["notes"].([]interface{})
	tok1 := tokenRe.FindString(notes[0].(string))
	tok2 := tokenRe.FindString(notes[1].(string))
	require.NotEmpty(t, tok1)
	require.Equal(t, tok1, tok2, "same plaintext must yield same token")
}

func TestIrreversibleLeavesNoVaultEntry(t *testing.T) {
	ctx := context.Background()
	e, v := newTestEngine(t)

	record := map[string]interface{}{"company_name": "Acme Inc"}
	out, _, err := e.Anonymize(ctx, record, LevelIrreversible)
	require.NoError(t, err)

	token := out.(map[string]interface{})["company_name"].(string)
	require.True(t, IsToken(token))

	grant, err := v.NewGrant("tester", time.Minute)
	require.NoError(t, err)
	_, err = v.Reveal(ctx, token, grant)
	require.ErrorIs(t, err, vault.ErrTokenNotFound)
}

func TestPartialSkipsEntityNamesAndFields(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	record := map[string]interface{}{
		"company_name": "Acme Inc",
		"notes":        "Prepared by Acme Holdings Inc, email cfo@acme.com.",
	}
	out, meta, err := e.Anonymize(ctx, record, LevelPartial)
	require.NoError(t, err)

	m := out.(map[string]interface{})
	require.Equal(t, "Acme Inc", m["company_name"], "PARTIAL keeps identifying fields")
	notes := m["notes"].(string)
	require.Contains(t, notes, "Acme Holdings Inc", "PARTIAL keeps entity names")
	require.NotContains(t, notes, "cfo@acme.com")
	require.Equal(t, []string{"EMAIL"}, meta.PIIKindsRemoved)
}

func TestNoneIsNoOp(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	record := map[string]interface{}{"contact_email": "cfo@acme.com"}
	out, meta, err := e.Anonymize(ctx, record, LevelNone)
	require.NoError(t, err)
	require.Equal(t, "cfo@acme.com", out.(map[string]interface{})["contact_email"])
	require.Zero(t, meta.PIICount)
}

func TestFreeTextDetection(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	record := map[string]interface{}{
		"narrative": "Audited by Smith Advisory Group LLC. Reach us at +1 (555) 123-4567 " +
			"or https://example.com/contact. EIN 12-3456789, server 10.0.0.1.",
	}
	out, meta, err := e.Anonymize(ctx, record, LevelFull)
	require.NoError(t, err)

	text := out.(map[string]interface{})["narrative"].(string)
	require.NotContains(t, text, "Smith Advisory Group")
	require.NotContains(t, text, "123-4567")
	require.NotContains(t, text, "example.com")
	require.NotContains(t, text, "12-3456789")
	require.NotContains(t, text, "10.0.0.1")

	for _, kind := range []string{"COMPANY_NAME", "PHONE", "URL", "TAX_ID", "IP_ADDRESS"} {
		require.Contains(t, meta.PIIKindsRemoved, kind)
	}
}

func TestBareSuffixNotACompany(t *testing.T) {
	spans := detectCompanies("the co signer arrived", nil)
	require.Empty(t, spans)
}

func TestDeanonymizeRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, v := newTestEngine(t)

	record := map[string]interface{}{
		"company_name":  "Acme Inc",
		"contact_email": "cfo@acme.com",
		"total_assets":  float64(1000000),
	}
	out, _, err := e.Anonymize(ctx, record, LevelFull)
	require.NoError(t, err)

	grant, err := v.NewGrant("auditor", time.Minute)
	require.NoError(t, err)
	restored, unresolved, err := e.Deanonymize(ctx, out, grant)
	require.NoError(t, err)
	require.Zero(t, unresolved)
	require.Equal(t, record, restored)
}

func TestValidateFlagsResidualPII(t *testing.T) {
	record := map[string]interface{}{
		"company_name": "[COMPANY_NAME_a1b2c3d4]",
		"notes":        "leaked cfo@acme.com",
	}
	report := Validate(record)
	require.False(t, report.IsValid)
	require.Len(t, report.Issues, 1)
	require.Contains(t, report.Issues[0], "residual EMAIL")
}

func TestValidateFlagsUntokenizedIdentifyingField(t *testing.T) {
	report := Validate(map[string]interface{}{"company_name": "Acme Inc"})
	require.False(t, report.IsValid)
}

func TestAnonymizeCancelled(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.Anonymize(ctx, map[string]interface{}{"a": "b"}, LevelFull)
	require.ErrorIs(t, err, errkind.ErrCancelled)
}
