package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SeedCatalogSchema describes the seed file: an object keyed by activity
// name whose values are activity records.
const SeedCatalogSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["description", "schedule"],
    "properties": {
      "description": {"type": "string"},
      "schedule": {"type": "string"},
      "max_participants": {"type": ["integer", "null"], "minimum": 0},
      "participants": {
        "type": "array",
        "items": {"type": "string", "minLength": 1},
        "uniqueItems": true
      }
    }
  }
}`

var seedSchemaLoader = gojsonschema.NewStringLoader(SeedCatalogSchema)

// ValidationError is one schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult collects schema violations.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidateSeedCatalog validates raw seed JSON against SeedCatalogSchema.
func ValidateSeedCatalog(data []byte) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(seedSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	return out, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}

// NormalizeEmail trims surrounding whitespace. Emails are otherwise stored
// exactly as given.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
