package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/logger"
	"mergington-activities/internal/common/metrics"
	"mergington-activities/internal/models"

	"github.com/lib/pq"
)

const (
	createActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
	name             TEXT PRIMARY KEY,
	description      TEXT NOT NULL DEFAULT '',
	schedule         TEXT NOT NULL DEFAULT '',
	max_participants INTEGER,
	participants     TEXT[] NOT NULL DEFAULT '{}'
)`

	listActivitiesQuery = `SELECT name, description, schedule, max_participants, participants FROM activities ORDER BY name`
	lockRosterQuery     = `SELECT max_participants, participants FROM activities WHERE name = $1 FOR UPDATE`
	appendParticipant   = `UPDATE activities SET participants = array_append(participants, $2) WHERE name = $1`
	removeParticipant   = `UPDATE activities SET participants = array_remove(participants, $2) WHERE name = $1`
	countActivities     = `SELECT COUNT(*) FROM activities`
	insertActivity      = `INSERT INTO activities (name, description, schedule, max_participants, participants) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (name) DO NOTHING`
)

// PostgresStore keeps activities in a single table. Roster changes run in a
// transaction holding the activity's row lock, so the membership and
// capacity checks and the update are one atomic step.
type PostgresStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: log.WithFields(map[string]interface{}{"backend": BackendPostgres}),
	}
}

// EnsureSchema creates the activities table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createActivitiesTable); err != nil {
		return apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("create schema: %w", err))
	}
	return nil
}

func (s *PostgresStore) Backend() string { return BackendPostgres }

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ListActivities(ctx context.Context) (out map[string]models.Activity, err error) {
	defer func() { observe(BackendPostgres, "list", err) }()

	rows, err := s.db.QueryContext(ctx, listActivitiesQuery)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(BackendPostgres, err)
	}
	defer rows.Close()

	out = make(map[string]models.Activity)
	for rows.Next() {
		var (
			name         string
			activity     models.Activity
			maxP         sql.NullInt64
			participants pq.StringArray
		)
		if err := rows.Scan(&name, &activity.Description, &activity.Schedule, &maxP, &participants); err != nil {
			return nil, apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("scan activity: %w", err))
		}
		activity.MaxParticipants = fromNullInt(maxP)
		activity.Participants = []string(participants)
		out[name] = activity.Clone()
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError(BackendPostgres, err)
	}
	return out, nil
}

func (s *PostgresStore) Signup(ctx context.Context, activityName, email string) (err error) {
	defer func() { observe(BackendPostgres, "signup", err) }()

	return s.withLockedRoster(ctx, activityName, func(tx *sql.Tx, activity models.Activity) error {
		if activity.HasParticipant(email) {
			return apperrors.NewAlreadyRegisteredError(activityName, email)
		}
		if activity.IsFull() {
			return apperrors.NewCapacityExceededError(activityName, *activity.MaxParticipants)
		}
		if _, err := tx.ExecContext(ctx, appendParticipant, activityName, email); err != nil {
			return apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("append participant: %w", err))
		}
		metrics.RosterSize.WithLabelValues(activityName).Set(float64(len(activity.Participants) + 1))
		return nil
	})
}

func (s *PostgresStore) Unregister(ctx context.Context, activityName, email string) (err error) {
	defer func() { observe(BackendPostgres, "unregister", err) }()

	return s.withLockedRoster(ctx, activityName, func(tx *sql.Tx, activity models.Activity) error {
		if !activity.HasParticipant(email) {
			return apperrors.NewNotRegisteredError(activityName, email)
		}
		if _, err := tx.ExecContext(ctx, removeParticipant, activityName, email); err != nil {
			return apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("remove participant: %w", err))
		}
		metrics.RosterSize.WithLabelValues(activityName).Set(float64(len(activity.Participants) - 1))
		return nil
	})
}

// withLockedRoster runs fn inside a transaction holding the row lock of
// activityName. fn's error rolls the transaction back.
func (s *PostgresStore) withLockedRoster(ctx context.Context, activityName string, fn func(*sql.Tx, models.Activity) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var (
		maxP         sql.NullInt64
		participants pq.StringArray
	)
	err = tx.QueryRowContext(ctx, lockRosterQuery, activityName).Scan(&maxP, &participants)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewActivityNotFoundError(activityName)
	}
	if err != nil {
		return apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("lock roster: %w", err))
	}

	activity := models.Activity{
		MaxParticipants: fromNullInt(maxP),
		Participants:    []string(participants),
	}
	if err := fn(tx, activity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *PostgresStore) SeedIfEmpty(ctx context.Context, catalog map[string]models.Activity) (seeded bool, err error) {
	defer func() { observe(BackendPostgres, "seed", err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var count int
	if err := tx.QueryRowContext(ctx, countActivities).Scan(&count); err != nil {
		return false, apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("count activities: %w", err))
	}
	if count > 0 {
		s.log.Info("activities already present, skipping seed", map[string]interface{}{"count": count})
		return false, nil
	}
	if len(catalog) == 0 {
		return false, nil
	}

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a := catalog[name].Clone()
		_, err := tx.ExecContext(ctx, insertActivity,
			name, a.Description, a.Schedule, toNullInt(a.MaxParticipants), pq.Array(a.Participants))
		if err != nil {
			return false, apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("insert %s: %w", name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, apperrors.NewStoreUnavailableError(BackendPostgres, fmt.Errorf("commit seed: %w", err))
	}

	s.log.Info("seeded activities", map[string]interface{}{"count": len(names)})
	return true, nil
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return models.Capacity(int(v.Int64))
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
