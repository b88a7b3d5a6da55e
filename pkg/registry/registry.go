// Package registry loads the static activity catalog used to seed stores.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/validation"
	"mergington-activities/internal/models"
)

// rootField is how schema violations on the document itself are reported.
const rootField = "(root)"

// Catalog maps activity name to its initial record.
type Catalog map[string]models.Activity

// LoadCatalog reads and validates a seed file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates raw seed JSON and decodes it. Missing rosters become
// empty; a seeded roster larger than its capacity is rejected.
func ParseCatalog(data []byte) (Catalog, error) {
	result, err := validation.ValidateSeedCatalog(data)
	if err != nil {
		return nil, apperrors.NewSeedInvalidError(err.Error())
	}
	if result.HasErrors(rootField) {
		return nil, apperrors.NewSeedInvalidError("seed file must be a JSON object keyed by activity name")
	}
	if !result.Valid {
		return nil, apperrors.NewSeedInvalidError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var raw map[string]models.Activity
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewSeedInvalidError(err.Error())
	}

	catalog := make(Catalog, len(raw))
	for name, activity := range raw {
		if strings.TrimSpace(name) == "" {
			return nil, apperrors.NewSeedInvalidError("activity name must not be empty")
		}
		if activity.MaxParticipants != nil && len(activity.Participants) > *activity.MaxParticipants {
			return nil, apperrors.NewSeedInvalidError(fmt.Sprintf(
				"%s: %d participants exceed max_participants %d",
				name, len(activity.Participants), *activity.MaxParticipants,
			))
		}
		catalog[name] = activity.Clone()
	}
	return catalog, nil
}

// Activities returns a deep copy as a plain map.
func (c Catalog) Activities() map[string]models.Activity {
	return models.CloneAll(c)
}
