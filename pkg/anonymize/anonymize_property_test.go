//go:build property
// +build property

package anonymize_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize"
	"github.com/Veridata-Labs/fincorpus/core/pkg/anonymize/vault"
)

// TestFullAnonymizationAlwaysValidates verifies the detector/validator pair
// is closed: whatever FULL anonymization emits, re-scanning finds nothing.
func TestFullAnonymizationAlwaysValidates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	v := vault.New(vault.NewMemoryBackend(), []byte("vault-key"), nil)
	engine := anonymize.New([]byte("property-secret"), v)
	ctx := context.Background()

	properties.Property("anonymized output has no residual PII", prop.ForAll(
		func(local, host, name, narrative string) bool {
			record := map[string]interface{}{
				"company_name":  name + " Inc",
				"contact_email": local + "@" + host + ".com",
				"notes":         narrative + " reach " + local + "@" + host + ".com",
				"total_assets":  float64(42),
			}
			out, _, err := engine.Anonymize(ctx, record, anonymize.LevelFull)
			if err != nil {
				return false
			}
			return anonymize.Validate(out).IsValid
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestDeterministicTokensStable verifies the token derivation is a pure
// function of secret and plaintext.
func TestDeterministicTokensStable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	ctx := context.Background()

	properties.Property("same plaintext yields same token across engines", prop.ForAll(
		func(email string) bool {
			record := map[string]interface{}{"contact_email": email + "@example.com"}

			a := anonymize.New([]byte("shared-secret"),
				vault.New(vault.NewMemoryBackend(), []byte("k"), nil))
			b := anonymize.New([]byte("shared-secret"),
				vault.New(vault.NewMemoryBackend(), []byte("k"), nil))

			outA, _, errA := a.Anonymize(ctx, record, anonymize.LevelFull)
			outB, _, errB := b.Anonymize(ctx, record, anonymize.LevelFull)
			if errA != nil || errB != nil {
				return false
			}
			tokA := outA.(map[string]interface{})["contact_email"].(string)
			tokB := outB.(map[string]interface{})["contact_email"].(string)
			return tokA == tokB
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.TestingRun(t)
}
