package presence

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(client, "test", 10*time.Second)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestStoreLastWriterWins(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()
	conv := "chats/G1_I2"

	start := now.Add(-time.Second)
	won, err := store.Set(ctx, conv, "alice", true, start)
	require.NoError(t, err)
	require.True(t, won)

	// A stale stop written with an older client time loses.
	won, err = store.Set(ctx, conv, "alice", false, start.Add(-500*time.Millisecond))
	require.NoError(t, err)
	require.False(t, won)

	flags, err := store.Snapshot(ctx, conv)
	require.NoError(t, err)
	require.True(t, flags["alice"])

	won, err = store.Set(ctx, conv, "alice", false, start.Add(time.Second))
	require.NoError(t, err)
	require.True(t, won)

	flags, err = store.Snapshot(ctx, conv)
	require.NoError(t, err)
	require.False(t, flags["alice"])
}

func TestStoreServerTimestampBreaksTies(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()
	conv := "groups/G1"
	clientAt := now.Add(-time.Second)

	won, err := store.Set(ctx, conv, "bob", true, clientAt)
	require.NoError(t, err)
	require.True(t, won)

	*now = now.Add(10 * time.Millisecond)
	won, err = store.Set(ctx, conv, "bob", false, clientAt)
	require.NoError(t, err)
	require.True(t, won, "same client time, later server time wins")

	won, err = store.Set(ctx, conv, "bob", true, clientAt)
	require.NoError(t, err)
	require.False(t, won, "same client and server time does not win")
}

func TestStoreFutureClientTimeIsClamped(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()
	conv := "chats/G1_I2"

	won, err := store.Set(ctx, conv, "dave", true, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, won)

	raw, err := store.client.HGet(ctx, store.key(conv), "dave").Result()
	require.NoError(t, err)
	register, ok := parseRegister(raw)
	require.True(t, ok)
	require.Equal(t, now.Add(maxClockSkew).UnixMilli(), register.ClientMillis)

	// Once the server clock passes the skew limit, honest writes win again.
	*now = now.Add(maxClockSkew + time.Second)
	won, err = store.Set(ctx, conv, "dave", false, *now)
	require.NoError(t, err)
	require.True(t, won)

	flags, err := store.Snapshot(ctx, conv)
	require.NoError(t, err)
	require.False(t, flags["dave"])
}

func TestStoreStaleFlagsReadFalse(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()
	conv := "groups/G1"

	_, err := store.Set(ctx, conv, "carol", true, time.Time{})
	require.NoError(t, err)

	*now = now.Add(11 * time.Second)
	flags, err := store.Snapshot(ctx, conv)
	require.NoError(t, err)
	require.False(t, flags["carol"])
}

func TestOthersTypingExcludesViewerAndFalseEntries(t *testing.T) {
	flags := map[string]bool{"alice": true, "bob": true, "carol": false, "dave": true}
	require.Equal(t, []string{"bob", "dave"}, OthersTyping(flags, "alice"))
	require.Empty(t, OthersTyping(map[string]bool{"alice": true}, "alice"))
	require.Empty(t, OthersTyping(nil, "alice"))
}
