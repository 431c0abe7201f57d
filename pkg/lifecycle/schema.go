package lifecycle

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
)

// ingestSchema constrains statements accepted by IngestStatement. Field
// values are strings (canonical decimals), numbers, or nested maps for
// annotated facts.
const ingestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["statement_type", "fields"],
	"properties": {
		"statement_type": {
			"type": "string",
			"enum": ["BALANCE_SHEET", "INCOME", "CASH_FLOW", "NOTES", "PACKAGE"]
		},
		"period_end": {
			"type": "string",
			"pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"
		},
		"currency": {"type": "string", "minLength": 3, "maxLength": 3},
		"fields": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": ["string", "number", "object"]
			}
		}
	}
}`

var compiledIngestSchema = jsonschema.MustCompileString("ingest.json", ingestSchema)

// validateIngest applies the ingest schema to a raw statement document.
func validateIngest(doc map[string]interface{}) error {
	if err := compiledIngestSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			return errkind.Wrap(errkind.ErrValidation, "statement schema: %s", flattenCauses(ve))
		}
		return errkind.Wrap(errkind.ErrValidation, "statement schema: %v", err)
	}
	return nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

func flattenCauses(ve *jsonschema.ValidationError) string {
	if len(ve.Causes) == 0 {
		return fmt.Sprintf("%s: %s", ve.InstanceLocation, ve.Message)
	}
	parts := make([]string, 0, len(ve.Causes))
	for _, cause := range ve.Causes {
		parts = append(parts, flattenCauses(cause))
	}
	return strings.Join(parts, "; ")
}
