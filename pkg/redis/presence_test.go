package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*PresenceStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPresenceStore(client), mr
}

func TestPresenceOnlineOffline(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)
	at := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, store.SetOnline(ctx, 7, "conn-1", at))

	p, err := store.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "conn-1", p.ConnID)
	assert.Equal(t, PresenceTTL, mr.TTL(presenceKey(7)))

	online, err := store.Online(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, uint(7), online[0].UserID)

	require.NoError(t, store.SetOffline(ctx, 7, at.Add(time.Hour)))
	p, err = store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, p)

	seen, err := store.LastSeen(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, at.Add(time.Hour).Unix(), seen.Unix())
}

func TestPresenceExpiredMembersArePruned(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	require.NoError(t, store.SetOnline(ctx, 1, "a", time.Now()))
	require.NoError(t, store.SetOnline(ctx, 2, "b", time.Now()))

	mr.FastForward(PresenceTTL + time.Second)
	require.NoError(t, store.SetOnline(ctx, 2, "b", time.Now()))

	online, err := store.Online(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, uint(2), online[0].UserID)

	members, err := mr.Members(OnlineUsersKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, members)

	assert.Error(t, store.Refresh(ctx, 1))
	assert.NoError(t, store.Refresh(ctx, 2))
}
