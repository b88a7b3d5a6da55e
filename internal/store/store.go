// Package store holds the authoritative activity records and enforces the
// roster rules: the activity exists, the email is not already registered,
// and the capacity is not exceeded.
package store

import (
	"context"
	"errors"
	"strings"

	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/metrics"
	"mergington-activities/internal/models"
)

// Backend names reported by Store.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Store is the contract shared by every backend. Signup and Unregister on
// the same activity are serialized; no two concurrent signups can both
// take the last slot.
type Store interface {
	// ListActivities returns every activity with its current roster. The
	// result is a copy owned by the caller.
	ListActivities(ctx context.Context) (map[string]models.Activity, error)

	// Signup appends email to the roster. Fails with ErrActivityNotFound,
	// ErrAlreadyRegistered or ErrCapacityExceeded, checked in that order.
	Signup(ctx context.Context, activityName, email string) error

	// Unregister removes email from the roster. Fails with
	// ErrActivityNotFound or ErrNotRegistered.
	Unregister(ctx context.Context, activityName, email string) error

	// SeedIfEmpty loads catalog when the backend holds no activities and
	// reports whether it did.
	SeedIfEmpty(ctx context.Context, catalog map[string]models.Activity) (bool, error)

	Backend() string
	Close() error
}

func observe(backend, operation string, err error) {
	metrics.ObserveStoreOperation(backend, operation, outcome(err))
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return strings.ToLower(string(stdErr.Code))
	}
	return "error"
}
