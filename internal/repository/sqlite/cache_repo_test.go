package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRepositoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	repo := NewCacheRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "totals", `{"n":1}`, time.Minute))
	got, ok, err := repo.Get(ctx, "totals")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"n":1}`, got)

	// upsert overwrites in place
	require.NoError(t, repo.Set(ctx, "totals", `{"n":2}`, time.Minute))
	got, ok, err = repo.Get(ctx, "totals")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"n":2}`, got)
}

func TestCacheRepositoryMissAndExpiry(t *testing.T) {
	store := newTestStore(t)
	repo := NewCacheRepository(store)
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, ok)

	// already expired on arrival
	require.NoError(t, repo.Set(ctx, "stale", "x", -time.Second))
	_, ok, err = repo.Get(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	// the expired row was swept on read
	row, err := store.GetOne(ctx, "SELECT COUNT(*) AS n FROM cache_entries WHERE key = 'stale'")
	require.NoError(t, err)
	assert.EqualValues(t, 0, asInt64(row["n"]))
}

func TestCacheRepositoryDelete(t *testing.T) {
	store := newTestStore(t)
	repo := NewCacheRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, repo.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, repo.Delete(ctx, "a", "b"))

	_, ok, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
