package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "mergington-activities/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activities.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"Chess Club": {
			"description": "Learn strategies and compete in chess tournaments",
			"schedule": "Fridays, 3:30 PM - 5:00 PM",
			"max_participants": 2
		}
	}`), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	require.Contains(t, catalog, "Chess Club")
	chess := catalog["Chess Club"]
	assert.Equal(t, "Fridays, 3:30 PM - 5:00 PM", chess.Schedule)
	require.NotNil(t, chess.MaxParticipants)
	assert.Equal(t, 2, *chess.MaxParticipants)
	assert.NotNil(t, chess.Participants)
	assert.Empty(t, chess.Participants)
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not an object", `["Chess Club"]`},
		{"wrong types", `{"Chess Club": {"description": 1, "schedule": "Fri"}}`},
		{"over capacity", `{"Chess Club": {"description": "c", "schedule": "Fri", "max_participants": 1, "participants": ["a@x.com", "b@x.com"]}}`},
		{"blank name", `{" ": {"description": "c", "schedule": "Fri"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.data))
			require.Error(t, err)

			var stdErr *apperrors.StandardError
			require.True(t, errors.As(err, &stdErr))
			assert.Equal(t, apperrors.ErrCodeSeedInvalid, stdErr.Code)
		})
	}
}

func TestParseCatalog_RootMustBeObject(t *testing.T) {
	for _, data := range []string{`["Chess Club"]`, `"Chess Club"`, `42`} {
		_, err := ParseCatalog([]byte(data))
		require.Error(t, err, data)

		var stdErr *apperrors.StandardError
		require.True(t, errors.As(err, &stdErr))
		assert.Equal(t, "seed file must be a JSON object keyed by activity name", stdErr.Details)
	}

	_, err := ParseCatalog([]byte(`{"Chess Club": {"description": 1, "schedule": "Fri"}}`))
	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Contains(t, stdErr.Details, "Chess Club")
}

func TestCatalog_ActivitiesIsCopy(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`{"Art": {"description": "a", "schedule": "Mon", "participants": ["a@x.com"]}}`))
	require.NoError(t, err)

	copied := catalog.Activities()
	copied["Art"].Participants[0] = "changed@x.com"

	assert.Equal(t, "a@x.com", catalog["Art"].Participants[0])
}
