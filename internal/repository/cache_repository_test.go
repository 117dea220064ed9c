package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
)

func TestCacheRepositoryRoundTripAndPrefixDelete(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	repo := NewCacheRepository(client)
	ctx := context.Background()

	var out map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "reports:trends:all", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "reports:trends:all", map[string]int{"total": 3}, time.Minute))
	require.NoError(t, repo.Set(ctx, "reports:trends:grade=10", map[string]int{"total": 1}, time.Minute))
	require.NoError(t, repo.Set(ctx, "other", 1, time.Minute))

	require.NoError(t, repo.Get(ctx, "reports:trends:all", &out))
	assert.Equal(t, 3, out["total"])

	removed, err := repo.DeletePrefix(ctx, "reports:trends:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, server.Exists("other"))

	server.FastForward(2 * time.Minute)
	assert.False(t, server.Exists("other"))
}

func TestCacheRepositoryDisabled(t *testing.T) {
	repo := NewCacheRepository(nil)
	var out int
	assert.False(t, repo.Enabled())
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, time.Minute))
	n, err := repo.DeletePrefix(context.Background(), "k")
	assert.NoError(t, err)
	assert.Zero(t, n)
}
