package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"mergington-activities/internal/common/config"
	"mergington-activities/internal/common/database"
	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/logger"
	"mergington-activities/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type storeFactory func(t *testing.T) Store

// backends lists every store the contract runs against. Mongo needs a live
// server: set MONGO_TEST_URL to include it.
func backends() map[string]storeFactory {
	factories := map[string]storeFactory{
		BackendMemory: func(t *testing.T) Store {
			return NewMemoryStore(logger.NewTestLogger(t))
		},
		BackendRedis: func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			s := NewRedisStore(client, "test", logger.NewTestLogger(t))
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	if url := os.Getenv("MONGO_TEST_URL"); url != "" {
		factories[BackendMongo] = func(t *testing.T) Store {
			return newLiveMongoStore(t, url)
		}
	}
	return factories
}

func newLiveMongoStore(t *testing.T, url string) Store {
	t.Helper()
	ctx := context.Background()

	mc, err := database.NewMongo(ctx, config.StoreConfig{
		URL:            url,
		Database:       "contract_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		ConnectTimeout: 2000,
	})
	require.NoError(t, err)
	require.NoError(t, mc.Ping(ctx))
	t.Cleanup(func() {
		_ = mc.DB.Drop(context.Background())
		_ = mc.Close()
	})

	s := NewMongoStore(mc.DB.Collection(MongoCollection), logger.NewTestLogger(t))
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func testCatalog() map[string]models.Activity {
	return map[string]models.Activity{
		"Chess Club": {
			Description:     "Learn strategies and compete in chess tournaments",
			Schedule:        "Fridays, 3:30 PM - 5:00 PM",
			MaxParticipants: models.Capacity(2),
		},
		"Open Studio": {
			Description:  "Drop-in art room",
			Schedule:     "Daily after school",
			Participants: []string{"emma@mergington.edu"},
		},
	}
}

func seededStore(t *testing.T, newStore storeFactory) Store {
	t.Helper()
	s := newStore(t)
	seeded, err := s.SeedIfEmpty(context.Background(), testCatalog())
	require.NoError(t, err)
	require.True(t, seeded)
	return s
}

func roster(t *testing.T, s Store, name string) []string {
	t.Helper()
	all, err := s.ListActivities(context.Background())
	require.NoError(t, err)
	activity, ok := all[name]
	require.True(t, ok, "activity %q missing", name)
	return activity.Participants
}

// ==========================
// Contract Tests
// ==========================

func TestStore_ChessClubScenario(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()

			require.NoError(t, s.Signup(ctx, "Chess Club", "a@x.com"))
			assert.Equal(t, []string{"a@x.com"}, roster(t, s, "Chess Club"))

			require.NoError(t, s.Signup(ctx, "Chess Club", "b@x.com"))
			assert.Equal(t, []string{"a@x.com", "b@x.com"}, roster(t, s, "Chess Club"))

			err := s.Signup(ctx, "Chess Club", "c@x.com")
			assert.True(t, errors.Is(err, apperrors.ErrCapacityExceeded), "got %v", err)
			assert.Equal(t, []string{"a@x.com", "b@x.com"}, roster(t, s, "Chess Club"))
		})
	}
}

func TestStore_DuplicateSignup(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()

			require.NoError(t, s.Signup(ctx, "Open Studio", "a@x.com"))
			err := s.Signup(ctx, "Open Studio", "a@x.com")

			assert.True(t, errors.Is(err, apperrors.ErrAlreadyRegistered), "got %v", err)
			assert.Equal(t, []string{"emma@mergington.edu", "a@x.com"}, roster(t, s, "Open Studio"))
		})
	}
}

func TestStore_DuplicateCheckedBeforeCapacity(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()

			require.NoError(t, s.Signup(ctx, "Chess Club", "a@x.com"))
			require.NoError(t, s.Signup(ctx, "Chess Club", "b@x.com"))

			err := s.Signup(ctx, "Chess Club", "a@x.com")
			assert.True(t, errors.Is(err, apperrors.ErrAlreadyRegistered), "got %v", err)
		})
	}
}

func TestStore_UnregisterNotRegistered(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)

			err := s.Unregister(context.Background(), "Open Studio", "ghost@x.com")

			assert.True(t, errors.Is(err, apperrors.ErrNotRegistered), "got %v", err)
			assert.Equal(t, []string{"emma@mergington.edu"}, roster(t, s, "Open Studio"))
		})
	}
}

func TestStore_SignupUnregisterRoundTrip(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()
			before := roster(t, s, "Open Studio")

			require.NoError(t, s.Signup(ctx, "Open Studio", "a@x.com"))
			require.NoError(t, s.Unregister(ctx, "Open Studio", "a@x.com"))

			assert.Equal(t, before, roster(t, s, "Open Studio"))
		})
	}
}

func TestStore_UnregisterKeepsOrder(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()

			require.NoError(t, s.Signup(ctx, "Open Studio", "a@x.com"))
			require.NoError(t, s.Signup(ctx, "Open Studio", "b@x.com"))
			require.NoError(t, s.Unregister(ctx, "Open Studio", "a@x.com"))

			assert.Equal(t, []string{"emma@mergington.edu", "b@x.com"}, roster(t, s, "Open Studio"))
		})
	}
}

func TestStore_UnknownActivity(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()

			err := s.Signup(ctx, "Underwater Basket Weaving", "a@x.com")
			assert.True(t, errors.Is(err, apperrors.ErrActivityNotFound), "signup: %v", err)

			err = s.Unregister(ctx, "Underwater Basket Weaving", "a@x.com")
			assert.True(t, errors.Is(err, apperrors.ErrActivityNotFound), "unregister: %v", err)
		})
	}
}

func TestStore_SeedIfEmptyIsIdempotent(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()
			require.NoError(t, s.Signup(ctx, "Chess Club", "a@x.com"))

			seeded, err := s.SeedIfEmpty(ctx, map[string]models.Activity{
				"Drama": {Description: "Stage", Schedule: "Mon"},
			})
			require.NoError(t, err)
			assert.False(t, seeded)

			all, err := s.ListActivities(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
			assert.NotContains(t, all, "Drama")
			assert.Equal(t, []string{"a@x.com"}, all["Chess Club"].Participants)
		})
	}
}

func TestStore_ListAfterSeedingOneActivity(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			_, err := s.SeedIfEmpty(ctx, map[string]models.Activity{
				"Chess Club": {Description: "Chess", Schedule: "Fri", MaxParticipants: models.Capacity(12)},
			})
			require.NoError(t, err)

			all, err := s.ListActivities(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)

			chess := all["Chess Club"]
			assert.Equal(t, "Chess", chess.Description)
			assert.Equal(t, "Fri", chess.Schedule)
			require.NotNil(t, chess.MaxParticipants)
			assert.Equal(t, 12, *chess.MaxParticipants)
			assert.NotNil(t, chess.Participants)
			assert.Empty(t, chess.Participants)
		})
	}
}

func TestStore_ListReturnsCopies(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)

			all, err := s.ListActivities(context.Background())
			require.NoError(t, err)
			all["Open Studio"].Participants[0] = "mutated@x.com"

			assert.Equal(t, []string{"emma@mergington.edu"}, roster(t, s, "Open Studio"))
		})
	}
}

func TestStore_ConcurrentSignupsForLastSlot(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()
			require.NoError(t, s.Signup(ctx, "Chess Club", "first@x.com"))

			const contenders = 16
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				full      int
			)
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := s.Signup(ctx, "Chess Club", fmt.Sprintf("student%d@x.com", i))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, apperrors.ErrCapacityExceeded):
						full++
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, contenders-1, full)
			assert.Len(t, roster(t, s, "Chess Club"), 2)
		})
	}
}

func TestStore_CapacityNeverExceeded(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := seededStore(t, newStore)
			ctx := context.Background()

			ops := []struct {
				signup bool
				email  string
			}{
				{true, "a@x.com"}, {true, "b@x.com"}, {true, "c@x.com"},
				{false, "a@x.com"}, {true, "c@x.com"}, {true, "d@x.com"},
				{false, "b@x.com"}, {false, "b@x.com"}, {true, "d@x.com"},
			}
			for _, op := range ops {
				if op.signup {
					_ = s.Signup(ctx, "Chess Club", op.email)
				} else {
					_ = s.Unregister(ctx, "Chess Club", op.email)
				}
				assert.LessOrEqual(t, len(roster(t, s, "Chess Club")), 2)
			}
			assert.Equal(t, []string{"c@x.com", "d@x.com"}, roster(t, s, "Chess Club"))
		})
	}
}
