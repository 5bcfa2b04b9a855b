package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/models"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time { return c.current }

func (c *testClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestStore(t *testing.T) (*DatabaseStore, *testClock) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewDatabaseStore(db, WithDatabaseClock(clock.Now)), clock
}

func TestDatabaseStoreIncrementWindow(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 40*time.Second, ttl)

	clock.Advance(time.Minute)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:1.2.3.4", 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, defaultWindow, ttl)
}

func TestDatabaseStoreClaimOnce(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Claim(ctx, "sso:state:n1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Claim(ctx, "sso:state:n1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	clock.Advance(2 * time.Minute)
	ok, err = store.Claim(ctx, "sso:state:n1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "a lapsed claim can be taken again")
}

func TestDatabaseStoreCleanupExpired(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.IncrementWithTTL(ctx, "short", time.Second)
	require.NoError(t, err)
	_, _, err = store.IncrementWithTTL(ctx, "long", time.Hour)
	require.NoError(t, err)
	_, err = store.Claim(ctx, "claim", 30*time.Second)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var left []string
	require.NoError(t, store.db.Model(&models.CacheEntry{}).Pluck("cache_key", &left).Error)
	require.Equal(t, []string{"long"}, left)
}

func TestNilDatabaseStore(t *testing.T) {
	var store *DatabaseStore
	require.Nil(t, NewDatabaseStore(nil))
	_, _, err := store.IncrementWithTTL(context.Background(), "k", time.Second)
	require.ErrorIs(t, err, errNoDatabase)
}

func TestNormalizeKeyAndPrefix(t *testing.T) {
	require.Equal(t, "a:b:c", normalizeKey("a::b:::c"))
	client := &RedisClient{}
	require.Equal(t, "crmhub:rl:ip", client.prefixed("rl::ip"))
	require.Equal(t, "crmhub:x", client.prefixed("crmhub:x"))
}
