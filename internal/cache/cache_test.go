package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Provider string `json:"provider"`
	Text     string `json:"text"`
}

func storeContract(t *testing.T, s Store, expire func(time.Duration)) {
	ctx := context.Background()

	var got entry
	assert.ErrorIs(t, s.Get(ctx, "missing", &got), ErrNotFound)

	require.NoError(t, s.Set(ctx, "r1", entry{Provider: "gemini-flash", Text: "سلام"}, time.Minute))
	require.NoError(t, s.Get(ctx, "r1", &got))
	assert.Equal(t, entry{Provider: "gemini-flash", Text: "سلام"}, got)

	require.NoError(t, s.Delete(ctx, "r1"))
	assert.ErrorIs(t, s.Get(ctx, "r1", &got), ErrNotFound)

	require.NoError(t, s.Set(ctx, "r2", entry{Text: "short lived"}, time.Minute))
	expire(2 * time.Minute)
	assert.ErrorIs(t, s.Get(ctx, "r2", &got), ErrNotFound)

	assert.NoError(t, s.Ping(ctx))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedis(client, "")
	storeContract(t, s, mr.FastForward)

	require.NoError(t, s.Set(context.Background(), "k", entry{Text: "x"}, time.Minute))
	assert.True(t, mr.Exists(DefaultPrefix+"k"))
}

func TestMemoryStore(t *testing.T) {
	s, err := NewMemory(8)
	require.NoError(t, err)

	now := time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	storeContract(t, s, func(d time.Duration) { now = now.Add(d) })
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemory(2)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "a", entry{Text: "a"}, 0))
	require.NoError(t, s.Set(ctx, "b", entry{Text: "b"}, 0))

	var got entry
	require.NoError(t, s.Get(ctx, "a", &got))
	require.NoError(t, s.Set(ctx, "c", entry{Text: "c"}, 0))

	assert.ErrorIs(t, s.Get(ctx, "b", &got), ErrNotFound)
	assert.NoError(t, s.Get(ctx, "a", &got))
	assert.Equal(t, 2, s.Len())
}

func TestNewMemory_RejectsZeroSize(t *testing.T) {
	_, err := NewMemory(0)
	assert.Error(t, err)
}
