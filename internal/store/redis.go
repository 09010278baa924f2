package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/limaxs-dev/chat-server/internal/metrics"
	"github.com/limaxs-dev/chat-server/internal/models"
)

const (
	DefaultPresenceTTL = 60 * time.Second
	DefaultCallBusyTTL = 300 * time.Second
)

// RedisStore holds ephemeral per-user presence and call state.
type RedisStore struct {
	client      *redis.Client
	presenceTTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, presenceTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewRedisStoreWithClient(client, presenceTTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, presenceTTL time.Duration) *RedisStore {
	if presenceTTL <= 0 {
		presenceTTL = DefaultPresenceTTL
	}
	return &RedisStore{client: client, presenceTTL: presenceTTL}
}

// Client exposes the underlying client for the broker and rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// presenceKey returns the key holding a user's online marker.
func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:presence:%s", userID)
}

// callKey returns the key holding a user's call state.
func callKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:call:%s", userID)
}

func observe(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// SetOnline marks the user online for the presence TTL.
func (s *RedisStore) SetOnline(ctx context.Context, userID uuid.UUID) error {
	defer observe(time.Now())
	return s.client.Set(ctx, presenceKey(userID), models.PresenceOnline, s.presenceTTL).Err()
}

// GetPresence returns the user's presence; a missing key reads as offline.
func (s *RedisStore) GetPresence(ctx context.Context, userID uuid.UUID) (string, error) {
	defer observe(time.Now())
	status, err := s.client.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.PresenceOffline, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// SetBusy marks the user as in a call for ttl.
func (s *RedisStore) SetBusy(ctx context.Context, userID uuid.UUID, ttl time.Duration) error {
	defer observe(time.Now())
	if ttl <= 0 {
		ttl = DefaultCallBusyTTL
	}
	return s.client.Set(ctx, callKey(userID), models.CallBusy, ttl).Err()
}

// ClearBusy removes the user's call state.
func (s *RedisStore) ClearBusy(ctx context.Context, userID uuid.UUID) error {
	defer observe(time.Now())
	return s.client.Del(ctx, callKey(userID)).Err()
}

// CallState returns the user's call state; a missing key reads as idle.
func (s *RedisStore) CallState(ctx context.Context, userID uuid.UUID) (string, error) {
	defer observe(time.Now())
	state, err := s.client.Get(ctx, callKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.CallIdle, nil
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

// IsBusy reports whether the user is currently in a call.
func (s *RedisStore) IsBusy(ctx context.Context, userID uuid.UUID) (bool, error) {
	state, err := s.CallState(ctx, userID)
	if err != nil {
		return false, err
	}
	return state == models.CallBusy, nil
}
