package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/models"
)

const (
	// UserCacheTTL is the time-to-live for cached user records. Only
	// identity data is cached here; file status is always read from the
	// record store.
	UserCacheTTL = 5 * time.Minute
)

// RedisClient caches user records keyed by id.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// GetUser retrieves a cached user record. A miss returns (nil, nil).
func (rc *RedisClient) GetUser(ctx context.Context, userID string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "redis.get_user",
		trace.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	key := fmt.Sprintf("user:%s", userID)
	data, err := rc.client.Get(ctx, key).Result()

	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return nil, nil // cache miss, not an error
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var user models.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached user: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_hit", true))
	return &user, nil
}

// SetUser stores a user record in the cache.
func (rc *RedisClient) SetUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "redis.set_user",
		trace.WithAttributes(
			attribute.String("user_id", user.ID),
		),
	)
	defer span.End()

	data, err := json.Marshal(user)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	key := fmt.Sprintf("user:%s", user.ID)
	if err := rc.client.Set(ctx, key, data, UserCacheTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// InvalidateUser removes a user record from the cache.
func (rc *RedisClient) InvalidateUser(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_user",
		trace.WithAttributes(
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	key := fmt.Sprintf("user:%s", userID)
	if err := rc.client.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return nil
}
