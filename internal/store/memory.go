package store

import (
	"context"
	"sync"

	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/logger"
	"mergington-activities/internal/common/metrics"
	"mergington-activities/internal/models"
)

// MemoryStore is the fallback store used when no database is configured or
// reachable. State lives for the lifetime of the process.
type MemoryStore struct {
	mu         sync.RWMutex // guards the map itself, not the rosters
	activities map[string]*memoryActivity
	log        logger.Logger
}

// memoryActivity serializes roster changes for a single activity.
type memoryActivity struct {
	mu       sync.Mutex
	activity models.Activity
}

func NewMemoryStore(log logger.Logger) *MemoryStore {
	return &MemoryStore{
		activities: make(map[string]*memoryActivity),
		log:        log.WithFields(map[string]interface{}{"backend": BackendMemory}),
	}
}

func (s *MemoryStore) Backend() string { return BackendMemory }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ListActivities(ctx context.Context) (map[string]models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Activity, len(s.activities))
	for name, entry := range s.activities {
		entry.mu.Lock()
		out[name] = entry.activity.Clone()
		entry.mu.Unlock()
	}
	observe(BackendMemory, "list", nil)
	return out, nil
}

func (s *MemoryStore) Signup(ctx context.Context, activityName, email string) (err error) {
	defer func() { observe(BackendMemory, "signup", err) }()

	entry, ok := s.lookup(activityName)
	if !ok {
		return apperrors.NewActivityNotFoundError(activityName)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.activity.HasParticipant(email) {
		return apperrors.NewAlreadyRegisteredError(activityName, email)
	}
	if entry.activity.IsFull() {
		return apperrors.NewCapacityExceededError(activityName, *entry.activity.MaxParticipants)
	}

	entry.activity.Participants = append(entry.activity.Participants, email)
	metrics.RosterSize.WithLabelValues(activityName).Set(float64(len(entry.activity.Participants)))

	s.log.Debug("participant added", map[string]interface{}{
		"activity": activityName,
		"email":    email,
		"size":     len(entry.activity.Participants),
	})
	return nil
}

func (s *MemoryStore) Unregister(ctx context.Context, activityName, email string) (err error) {
	defer func() { observe(BackendMemory, "unregister", err) }()

	entry, ok := s.lookup(activityName)
	if !ok {
		return apperrors.NewActivityNotFoundError(activityName)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	idx := -1
	for i, p := range entry.activity.Participants {
		if p == email {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperrors.NewNotRegisteredError(activityName, email)
	}

	roster := entry.activity.Participants
	entry.activity.Participants = append(roster[:idx:idx], roster[idx+1:]...)
	metrics.RosterSize.WithLabelValues(activityName).Set(float64(len(entry.activity.Participants)))

	s.log.Debug("participant removed", map[string]interface{}{
		"activity": activityName,
		"email":    email,
		"size":     len(entry.activity.Participants),
	})
	return nil
}

func (s *MemoryStore) SeedIfEmpty(ctx context.Context, catalog map[string]models.Activity) (seeded bool, err error) {
	defer func() { observe(BackendMemory, "seed", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.activities) > 0 {
		return false, nil
	}
	for name, activity := range catalog {
		s.activities[name] = &memoryActivity{activity: activity.Clone()}
		metrics.RosterSize.WithLabelValues(name).Set(float64(len(activity.Participants)))
	}

	s.log.Info("seeded activities", map[string]interface{}{"count": len(catalog)})
	return len(catalog) > 0, nil
}

func (s *MemoryStore) lookup(name string) (*memoryActivity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.activities[name]
	return entry, ok
}
