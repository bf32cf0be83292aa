package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrackers(t *testing.T) map[string]Tracker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]Tracker{
		"local": NewLocal(),
		"redis": NewRedis(rdb, time.Minute),
	}
}

func TestTrackers_SessionLifecycle(t *testing.T) {
	ctx := context.Background()

	for name, tr := range newTrackers(t) {
		t.Run(name, func(t *testing.T) {
			online, err := tr.IsOnline(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, online)

			require.NoError(t, tr.Online(ctx, "u1", "s1"))
			require.NoError(t, tr.Online(ctx, "u1", "s2"))

			require.NoError(t, tr.Offline(ctx, "u1", "s1"))
			online, err = tr.IsOnline(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, online, "second tab keeps the user online")

			require.NoError(t, tr.Offline(ctx, "u1", "s2"))
			online, err = tr.IsOnline(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, online)

			// removing an unknown session is harmless
			require.NoError(t, tr.Offline(ctx, "u1", "s3"))
		})
	}
}

func TestRedis_SessionsExpireWithoutRefresh(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewRedis(rdb, 90*time.Second)
	p.SetClock(func() time.Time { return now })

	require.NoError(t, p.Online(ctx, "u1", "s1"))

	now = now.Add(60 * time.Second)
	online, err := p.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	// a pong refreshes the session
	require.NoError(t, p.Online(ctx, "u1", "s1"))
	now = now.Add(60 * time.Second)
	online, err = p.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	now = now.Add(2 * time.Minute)
	online, err = p.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)
}
