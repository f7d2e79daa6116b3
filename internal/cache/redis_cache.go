package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
)

const (
	snapshotKey    = "arb:snapshot:latest"
	eventKeyPrefix = "arb:event:"
)

// ErrNotFound is returned when a key is absent or expired
var ErrNotFound = errors.New("not found in cache")

// RedisCache caches pipeline snapshots in Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// RedisCacheConfig holds Redis cache configuration
type RedisCacheConfig struct {
	Addr     string // e.g., "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // e.g., 15 * time.Minute
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(config RedisCacheConfig, logger zerolog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisCache{
		client: client,
		ttl:    config.TTL,
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}
}

func eventKey(eventID string) string {
	return eventKeyPrefix + eventID
}

// SetSnapshot stores the snapshot as the latest result and indexes each
// merged event under its own key, all in one pipeline. Event keys left over
// from fixtures that dropped out of the feed are deleted.
func (c *RedisCache) SetSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	current := make(map[string]struct{}, len(snapshot.Merged))
	for _, ev := range snapshot.Merged {
		current[ev.Event.ID] = struct{}{}
	}

	previous, err := c.ListEventIDs(ctx)
	if err != nil {
		// Stale keys still expire with their TTL
		c.logger.Warn().Err(err).Msg("failed to list cached events")
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, snapshotKey, data, c.ttl)

	for _, ev := range snapshot.Merged {
		evData, err := json.Marshal(ev)
		if err != nil {
			c.logger.Error().Err(err).Str("event_id", ev.Event.ID).Msg("failed to marshal event")
			continue
		}
		pipe.Set(ctx, eventKey(ev.Event.ID), evData, c.ttl)
	}

	stale := 0
	for _, id := range previous {
		if _, ok := current[id]; !ok {
			pipe.Del(ctx, eventKey(id))
			stale++
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute pipeline: %w", err)
	}

	c.logger.Debug().
		Str("cycle_id", snapshot.CycleID.String()).
		Int("events", len(snapshot.Merged)).
		Int("stale_removed", stale).
		Dur("ttl", c.ttl).
		Msg("cached snapshot")

	return nil
}

// GetSnapshot returns the latest cached snapshot
func (c *RedisCache) GetSnapshot(ctx context.Context) (*models.Snapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get from Redis: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// GetEvent returns one merged event from the latest cached snapshot
func (c *RedisCache) GetEvent(ctx context.Context, eventID string) (*models.AnalyzedEvent, error) {
	data, err := c.client.Get(ctx, eventKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get from Redis: %w", err)
	}

	var event models.AnalyzedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// ListEventIDs returns the ids of every cached event
func (c *RedisCache) ListEventIDs(ctx context.Context) ([]string, error) {
	var cursor uint64
	var ids []string

	for {
		var keys []string
		var err error
		keys, cursor, err = c.client.Scan(ctx, cursor, eventKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, eventKeyPrefix))
		}

		if cursor == 0 {
			break
		}
	}

	return ids, nil
}

// Ping checks Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
