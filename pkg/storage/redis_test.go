package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(mr.Addr(), "", 0, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRedisStore_Validation(t *testing.T) {
	_, err := NewRedisStore("", "", 0, time.Minute)
	assert.EqualError(t, err, "redis address cannot be empty")

	_, err = NewRedisStore("localhost:6379", "", -1, time.Minute)
	assert.EqualError(t, err, "redis database number must be >= 0")
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(addr, "", 0, time.Minute)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestRedisStore_PutGetLatest(t *testing.T) {
	store, mr := newMiniRedisStore(t, time.Minute)
	ctx := context.Background()

	original := testSnapshot("site-north")
	original.GeneratedAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Put(ctx, original))

	assert.True(t, mr.Exists("escolta:snapshot:site-north"))
	assert.Equal(t, time.Minute, mr.TTL("escolta:snapshot:site-north"))

	got, found, err := store.GetLatest(ctx, "site-north")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEmpty(t, got.ID)

	original.ID = got.ID
	assert.Equal(t, original, got)
}

func TestRedisStore_GetLatestNotFound(t *testing.T) {
	store, _ := newMiniRedisStore(t, time.Minute)

	_, found, err := store.GetLatest(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_InvalidSeries(t *testing.T) {
	store, _ := newMiniRedisStore(t, time.Minute)
	ctx := context.Background()

	err := store.Put(ctx, Snapshot{Series: "bad name"})
	assert.True(t, errors.Is(err, ErrInvalidSeries))

	_, _, err = store.GetLatest(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSeries)
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	store, mr := newMiniRedisStore(t, time.Minute)
	require.NoError(t, mr.Set("escolta:snapshot:broken", "{not json"))

	_, _, err := store.GetLatest(context.Background(), "broken")
	assert.ErrorContains(t, err, "failed to unmarshal snapshot")
}

func TestRedisStore_ExpirationAndSeries(t *testing.T) {
	store, mr := newMiniRedisStore(t, 10*time.Second)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Snapshot{Series: "south"}))
	require.NoError(t, store.Put(ctx, Snapshot{Series: "north"}))

	names, err := store.Series(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "south"}, names)

	mr.FastForward(11 * time.Second)
	require.NoError(t, store.Put(ctx, Snapshot{Series: "east"}))

	_, found, err := store.GetLatest(ctx, "north")
	require.NoError(t, err)
	assert.False(t, found, "snapshot should expire after TTL")

	names, err = store.Series(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"east"}, names)

	members, err := mr.Members("escolta:series")
	require.NoError(t, err)
	assert.Equal(t, []string{"east"}, members, "expired names are pruned from the index")
}

func TestRedisStore_DefaultTTL(t *testing.T) {
	store, mr := newMiniRedisStore(t, 0)
	require.NoError(t, store.Put(context.Background(), Snapshot{Series: "a"}))
	assert.Equal(t, 30*time.Minute, mr.TTL("escolta:snapshot:a"))
}

func TestRedisStore_CloseIdempotent(t *testing.T) {
	store, _ := newMiniRedisStore(t, time.Minute)
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
