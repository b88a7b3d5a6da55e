// internal/models/activity.go
package models

// Activity is an extracurricular offering with its current roster.
// The activity name is the map key in every collection and is not part of
// the JSON body.
type Activity struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants *int     `json:"max_participants"`
	Participants    []string `json:"participants"`
}

// Clone returns a deep copy. Participants is never nil on the copy.
func (a Activity) Clone() Activity {
	out := a
	if a.MaxParticipants != nil {
		limit := *a.MaxParticipants
		out.MaxParticipants = &limit
	}
	out.Participants = make([]string, len(a.Participants))
	copy(out.Participants, a.Participants)
	return out
}

// HasParticipant reports whether email is on the roster.
func (a Activity) HasParticipant(email string) bool {
	for _, p := range a.Participants {
		if p == email {
			return true
		}
	}
	return false
}

// IsFull reports whether the roster reached the capacity limit.
func (a Activity) IsFull() bool {
	return a.MaxParticipants != nil && len(a.Participants) >= *a.MaxParticipants
}

// Capacity is a helper for building activities with a participant limit.
func Capacity(n int) *int {
	return &n
}

// CloneAll deep-copies a name -> activity mapping.
func CloneAll(in map[string]Activity) map[string]Activity {
	out := make(map[string]Activity, len(in))
	for name, a := range in {
		out[name] = a.Clone()
	}
	return out
}
