package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"mergington-activities/internal/common/config"
	"mergington-activities/internal/common/database"
	"mergington-activities/internal/common/logger"
	"mergington-activities/internal/common/metrics"
)

// Open picks the backend once, from the scheme of cfg.URL. An empty URL
// selects the memory store. Any failure to reach the configured database
// within cfg.ConnectTimeout is logged and downgrades to the memory store
// for the rest of the process; there is no retry.
func Open(ctx context.Context, cfg config.StoreConfig, log logger.Logger) Store {
	if strings.TrimSpace(cfg.URL) == "" {
		log.Info("no database configured, using in-memory store", nil)
		return NewMemoryStore(log)
	}

	s, err := openDatabase(ctx, cfg, log)
	if err != nil {
		metrics.StoreFallbacks.Inc()
		log.Warn("database unavailable, falling back to in-memory store", map[string]interface{}{
			"scheme": schemeOf(cfg.URL),
			"error":  err.Error(),
		})
		return NewMemoryStore(log)
	}

	log.Info("connected to database", map[string]interface{}{
		"backend":  s.Backend(),
		"database": cfg.Database,
	})
	return s
}

func openDatabase(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(cfg.ConnectTimeout))
	defer cancel()

	switch schemeOf(cfg.URL) {
	case "postgres", "postgresql":
		pg, err := database.NewPostgres(cfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		s := NewPostgresStore(pg.DB, log)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return s, nil

	case "redis", "rediss":
		rc, err := database.NewRedis(cfg)
		if err != nil {
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, err
		}
		return NewRedisStore(rc.Client, cfg.Database, log), nil

	case "mongodb", "mongodb+srv":
		mc, err := database.NewMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := mc.Ping(ctx); err != nil {
			_ = mc.Close()
			return nil, err
		}
		s := NewMongoStore(mc.DB.Collection(MongoCollection), log)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = mc.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported store url scheme %q", schemeOf(cfg.URL))
	}
}

func schemeOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
