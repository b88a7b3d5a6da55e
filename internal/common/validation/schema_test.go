package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSeedCatalog_Valid(t *testing.T) {
	data := []byte(`{
		"Chess Club": {
			"description": "Learn strategies and compete in chess tournaments",
			"schedule": "Fridays, 3:30 PM - 5:00 PM",
			"max_participants": 12,
			"participants": ["michael@mergington.edu", "daniel@mergington.edu"]
		},
		"Open Studio": {
			"description": "Drop-in art room",
			"schedule": "Daily",
			"max_participants": null
		}
	}`)

	result, err := ValidateSeedCatalog(data)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.GetErrorMessages())
}

func TestValidateSeedCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{
			name:  "missing schedule",
			data:  `{"Chess Club": {"description": "chess"}}`,
			field: "Chess Club",
		},
		{
			name:  "negative capacity",
			data:  `{"Chess Club": {"description": "chess", "schedule": "Fri", "max_participants": -1}}`,
			field: "Chess Club.max_participants",
		},
		{
			name:  "duplicate participants",
			data:  `{"Chess Club": {"description": "chess", "schedule": "Fri", "participants": ["a@x.com", "a@x.com"]}}`,
			field: "Chess Club.participants",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateSeedCatalog([]byte(tt.data))
			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.True(t, result.HasErrors(tt.field), result.GetErrorMessages())
		})
	}
}

func TestValidateSeedCatalog_Malformed(t *testing.T) {
	_, err := ValidateSeedCatalog([]byte(`{not json`))
	assert.Error(t, err)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  a@x.com\n"))
}
