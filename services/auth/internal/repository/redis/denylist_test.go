package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Denylist, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDenylist(client), mr
}

func TestDenylist_DenyAndCheck(t *testing.T) {
	d, mr := setupTestRedis(t)
	ctx := context.Background()

	denied, err := d.IsDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, denied)

	require.NoError(t, d.Deny(ctx, "jti-1", time.Now().Add(time.Hour)))

	denied, err = d.IsDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, denied)
	assert.True(t, mr.Exists("pidrive:denylist:jti-1"))

	denied, err = d.IsDenied(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestDenylist_EntryExpiresWithToken(t *testing.T) {
	d, mr := setupTestRedis(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	require.NoError(t, d.Deny(ctx, "jti-1", now.Add(10*time.Minute)))
	assert.Equal(t, 10*time.Minute, mr.TTL("pidrive:denylist:jti-1"))

	mr.FastForward(10*time.Minute + time.Second)

	denied, err := d.IsDenied(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestDenylist_PastExpiryUsesMinimumTTL(t *testing.T) {
	d, mr := setupTestRedis(t)

	require.NoError(t, d.Deny(context.Background(), "jti-1", time.Now().Add(-time.Minute)))
	assert.Equal(t, minTTL, mr.TTL("pidrive:denylist:jti-1"))
}

func TestDenylist_ConnectionError(t *testing.T) {
	d, mr := setupTestRedis(t)
	mr.Close()

	_, err := d.IsDenied(context.Background(), "jti-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get denylist entry")

	assert.Error(t, d.Deny(context.Background(), "jti-1", time.Now().Add(time.Minute)))
	assert.Error(t, d.Ping(context.Background()))
}
