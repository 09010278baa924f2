package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaxs-dev/chat-server/internal/models"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, time.Minute), mr
}

func TestPresenceLifecycle(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	user := uuid.New()

	status, err := s.GetPresence(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOffline, status)

	require.NoError(t, s.SetOnline(ctx, user))
	status, err = s.GetPresence(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOnline, status)
	assert.Equal(t, time.Minute, mr.TTL("user:presence:"+user.String()))

	mr.FastForward(61 * time.Second)
	status, err = s.GetPresence(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOffline, status)
}

func TestCallStateLifecycle(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	user := uuid.New()

	busy, err := s.IsBusy(ctx, user)
	require.NoError(t, err)
	assert.False(t, busy)

	require.NoError(t, s.SetBusy(ctx, user, DefaultCallBusyTTL))
	busy, err = s.IsBusy(ctx, user)
	require.NoError(t, err)
	assert.True(t, busy)
	assert.Equal(t, 300*time.Second, mr.TTL("user:call:"+user.String()))

	require.NoError(t, s.ClearBusy(ctx, user))
	state, err := s.CallState(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.CallIdle, state)
}

func TestCallStateExpires(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, s.SetBusy(ctx, user, 0))
	mr.FastForward(301 * time.Second)

	busy, err := s.IsBusy(ctx, user)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestRedisErrorsSurface(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.Close()

	_, err := s.IsBusy(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Error(t, s.SetOnline(context.Background(), uuid.New()))
}
