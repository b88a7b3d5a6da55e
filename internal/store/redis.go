package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/logger"
	"mergington-activities/internal/common/metrics"
	"mergington-activities/internal/models"

	"github.com/redis/go-redis/v9"
)

// Script status codes, returned as the first element of {status, value}.
const (
	scriptOK                = 0
	scriptNotFound          = 1
	scriptAlreadyRegistered = 2
	scriptCapacityExceeded  = 3
	scriptNotRegistered     = 4
)

// KEYS: names set, activity hash, roster list. ARGV: name, email.
var signupScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return {1, 0}
end
local roster = redis.call('LRANGE', KEYS[3], 0, -1)
for _, member in ipairs(roster) do
  if member == ARGV[2] then
    return {2, 0}
  end
end
local limit = redis.call('HGET', KEYS[2], 'max_participants')
if limit and limit ~= '' and #roster >= tonumber(limit) then
  return {3, tonumber(limit)}
end
return {0, redis.call('RPUSH', KEYS[3], ARGV[2])}
`)

// KEYS: names set, activity hash, roster list. ARGV: name, email.
var unregisterScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then
  return {1, 0}
end
if redis.call('LREM', KEYS[3], 1, ARGV[2]) == 0 then
  return {4, 0}
end
return {0, redis.call('LLEN', KEYS[3])}
`)

// RedisStore keeps each activity as a hash plus a roster list, with a set
// of activity names. Roster changes run as Lua scripts so the checks and
// the write execute atomically on the server.
type RedisStore struct {
	client *redis.Client
	prefix string
	log    logger.Logger
}

func NewRedisStore(client *redis.Client, prefix string, log logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = "mergington"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		log:    log.WithFields(map[string]interface{}{"backend": BackendRedis, "prefix": prefix}),
	}
}

func (s *RedisStore) Backend() string { return BackendRedis }

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) namesKey() string               { return s.prefix + ":activities" }
func (s *RedisStore) activityKey(name string) string { return s.prefix + ":activity:" + name }
func (s *RedisStore) rosterKey(name string) string   { return s.prefix + ":roster:" + name }

func (s *RedisStore) keys(name string) []string {
	return []string{s.namesKey(), s.activityKey(name), s.rosterKey(name)}
}

func (s *RedisStore) ListActivities(ctx context.Context) (out map[string]models.Activity, err error) {
	defer func() { observe(BackendRedis, "list", err) }()

	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(BackendRedis, err)
	}
	sort.Strings(names)

	fields := make([]*redis.MapStringStringCmd, len(names))
	rosters := make([]*redis.StringSliceCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			fields[i] = pipe.HGetAll(ctx, s.activityKey(name))
			rosters[i] = pipe.LRange(ctx, s.rosterKey(name), 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(BackendRedis, err)
	}

	out = make(map[string]models.Activity, len(names))
	for i, name := range names {
		hash := fields[i].Val()
		activity := models.Activity{
			Description:  hash["description"],
			Schedule:     hash["schedule"],
			Participants: rosters[i].Val(),
		}
		if limit, ok, perr := parseLimit(hash["max_participants"]); perr != nil {
			return nil, apperrors.NewStoreUnavailableError(BackendRedis, fmt.Errorf("activity %s: %w", name, perr))
		} else if ok {
			activity.MaxParticipants = models.Capacity(limit)
		}
		out[name] = activity.Clone()
	}
	return out, nil
}

func (s *RedisStore) Signup(ctx context.Context, activityName, email string) (err error) {
	defer func() { observe(BackendRedis, "signup", err) }()

	res, err := signupScript.Run(ctx, s.client, s.keys(activityName), activityName, email).Int64Slice()
	if err != nil {
		return apperrors.NewStoreUnavailableError(BackendRedis, fmt.Errorf("signup script: %w", err))
	}
	status, value, err := scriptResult(res)
	if err != nil {
		return err
	}

	switch status {
	case scriptOK:
		metrics.RosterSize.WithLabelValues(activityName).Set(float64(value))
		return nil
	case scriptNotFound:
		return apperrors.NewActivityNotFoundError(activityName)
	case scriptAlreadyRegistered:
		return apperrors.NewAlreadyRegisteredError(activityName, email)
	case scriptCapacityExceeded:
		return apperrors.NewCapacityExceededError(activityName, int(value))
	default:
		return apperrors.NewStoreUnavailableError(BackendRedis, fmt.Errorf("unexpected signup status %d", status))
	}
}

func (s *RedisStore) Unregister(ctx context.Context, activityName, email string) (err error) {
	defer func() { observe(BackendRedis, "unregister", err) }()

	res, err := unregisterScript.Run(ctx, s.client, s.keys(activityName), activityName, email).Int64Slice()
	if err != nil {
		return apperrors.NewStoreUnavailableError(BackendRedis, fmt.Errorf("unregister script: %w", err))
	}
	status, value, err := scriptResult(res)
	if err != nil {
		return err
	}

	switch status {
	case scriptOK:
		metrics.RosterSize.WithLabelValues(activityName).Set(float64(value))
		return nil
	case scriptNotFound:
		return apperrors.NewActivityNotFoundError(activityName)
	case scriptNotRegistered:
		return apperrors.NewNotRegisteredError(activityName, email)
	default:
		return apperrors.NewStoreUnavailableError(BackendRedis, fmt.Errorf("unexpected unregister status %d", status))
	}
}

// SeedIfEmpty writes the catalog in one MULTI/EXEC guarded by WATCH on the
// names set, so two processes starting together seed at most once.
func (s *RedisStore) SeedIfEmpty(ctx context.Context, catalog map[string]models.Activity) (seeded bool, err error) {
	defer func() { observe(BackendRedis, "seed", err) }()

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		count, err := tx.SCard(ctx, s.namesKey()).Result()
		if err != nil {
			return err
		}
		if count > 0 || len(catalog) == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for name, activity := range catalog {
				limit := ""
				if activity.MaxParticipants != nil {
					limit = strconv.Itoa(*activity.MaxParticipants)
				}
				pipe.HSet(ctx, s.activityKey(name),
					"description", activity.Description,
					"schedule", activity.Schedule,
					"max_participants", limit,
				)
				pipe.Del(ctx, s.rosterKey(name))
				if len(activity.Participants) > 0 {
					members := make([]interface{}, len(activity.Participants))
					for i, p := range activity.Participants {
						members[i] = p
					}
					pipe.RPush(ctx, s.rosterKey(name), members...)
				}
				pipe.SAdd(ctx, s.namesKey(), name)
			}
			return nil
		})
		if err == nil {
			seeded = true
		}
		return err
	}, s.namesKey())

	if errors.Is(err, redis.TxFailedErr) {
		s.log.Info("concurrent seed detected, skipping", nil)
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStoreUnavailableError(BackendRedis, fmt.Errorf("seed: %w", err))
	}
	if seeded {
		s.log.Info("seeded activities", map[string]interface{}{"count": len(catalog)})
	}
	return seeded, nil
}

func scriptResult(res []int64) (int64, int64, error) {
	if len(res) != 2 {
		return 0, 0, apperrors.NewStoreUnavailableError(BackendRedis, fmt.Errorf("unexpected script reply %v", res))
	}
	return res[0], res[1], nil
}

func parseLimit(raw string) (int, bool, error) {
	if raw == "" {
		return 0, false, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid max_participants %q: %w", raw, err)
	}
	return limit, true, nil
}
