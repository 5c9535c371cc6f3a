package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/acoplu/borsa-aslani/internal/scaler"
	"github.com/acoplu/borsa-aslani/internal/telemetry"
)

// ErrScalerNotFound is returned when no state is stored under an id.
var ErrScalerNotFound = errors.New("scaler state not found")

// ScalerStoreStats tracks cache performance metrics
type ScalerStoreStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisScalerStore persists fitted scaler states in Redis so the state fit
// at training time can be applied again at inference time.
type RedisScalerStore struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *ScalerStoreStats
	prefix string
	logger *logrus.Logger
	tracer trace.Tracer
}

// NewRedisScalerStore creates a new Redis-based scaler store. A ttl of zero
// keeps states until they are deleted.
func NewRedisScalerStore(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisScalerStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisScalerStore{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &ScalerStoreStats{},
		prefix: "scaler_state:",
		logger: logger,
		tracer: telemetry.GetStorageTracer(),
	}
}

// WithTracer replaces the storage tracer.
func (c *RedisScalerStore) WithTracer(tracer trace.Tracer) *RedisScalerStore {
	c.tracer = tracer
	return c
}

// Key returns the Redis key for id.
func (c *RedisScalerStore) Key(id string) string {
	return c.prefix + id
}

// Save stores state under its id.
func (c *RedisScalerStore) Save(ctx context.Context, state *scaler.State) (err error) {
	key := c.Key(state.ID().String())
	ctx, span := telemetry.StartSpan(ctx, c.tracer, "redis.scaler_save")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	telemetry.SetSpanAttributes(span,
		telemetry.StringAttribute("cache.key", key),
		telemetry.StringSliceAttribute("scaler.columns", state.Columns()),
		telemetry.StringSliceAttribute("scaler.degenerate", state.DegenerateColumns()),
		telemetry.Float64Attribute("cache.ttl_seconds", c.ttl.Seconds()),
	)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("error serializing scaler state: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis error saving scaler state %s: %w", key, err)
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"key":     key,
		"columns": len(state.Columns()),
		"ttl":     c.ttl.String(),
	}).Debug("Stored scaler state")
	return nil
}

// Load returns the state stored under id. The record is validated on
// decode, so a corrupted entry is an error rather than a silent bad state.
func (c *RedisScalerStore) Load(ctx context.Context, id string) (*scaler.State, error) {
	key := c.Key(id)
	ctx, span := telemetry.StartSpan(ctx, c.tracer, "redis.scaler_load")
	defer span.End()
	telemetry.SetSpanAttributes(span, telemetry.StringAttribute("cache.key", key))

	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordMiss()
		telemetry.SetSpanAttributes(span, telemetry.BoolAttribute("cache.hit", false))
		return nil, fmt.Errorf("%w: %s", ErrScalerNotFound, id)
	}
	if err != nil {
		c.recordMiss()
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("redis error loading scaler state %s: %w", key, err)
	}

	var state scaler.State
	if err := json.Unmarshal(data, &state); err != nil {
		c.recordMiss()
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("invalid scaler state %s: %w", key, err)
	}
	telemetry.SetSpanAttributes(span, telemetry.BoolAttribute("cache.hit", true))

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()

	return &state, nil
}

// LoadConforming loads the state and checks that it was fit on exactly
// columns, in that order.
func (c *RedisScalerStore) LoadConforming(ctx context.Context, id string, columns []string) (*scaler.State, error) {
	state, err := c.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := state.Conforms(columns); err != nil {
		return nil, err
	}
	return state, nil
}

// Delete removes the state stored under id.
func (c *RedisScalerStore) Delete(ctx context.Context, id string) error {
	removed, err := c.redis.Del(ctx, c.Key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis error deleting scaler state %s: %w", id, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", ErrScalerNotFound, id)
	}
	return nil
}

// List returns the ids of all stored states.
func (c *RedisScalerStore) List(ctx context.Context) ([]string, error) {
	pattern := c.prefix + "*"

	// Get all keys matching the pattern using SCAN for better performance
	var ids []string
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) > len(c.prefix) {
			ids = append(ids, key[len(c.prefix):])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error scanning scaler keys: %w", err)
	}

	return ids, nil
}

// GetStats returns current cache statistics
func (c *RedisScalerStore) GetStats() ScalerStoreStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return ScalerStoreStats{
		Hits:   c.stats.Hits,
		Misses: c.stats.Misses,
		Sets:   c.stats.Sets,
	}
}

func (c *RedisScalerStore) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
