package biz

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/studyrag/internal/model"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not available, skipping")
	}

	client.FlushDB(ctx)
	return client
}

func TestSearchCacheKeyDependsOnAllParams(t *testing.T) {
	cache := NewSearchCache(nil, nil)

	base := cache.Key("query", "coding", 6, "Book A")
	assert.NotEqual(t, base, cache.Key("other", "coding", 6, "Book A"))
	assert.NotEqual(t, base, cache.Key("query", "summarization", 6, "Book A"))
	assert.NotEqual(t, base, cache.Key("query", "coding", 10, "Book A"))
	assert.NotEqual(t, base, cache.Key("query", "coding", 6, ""))
	assert.Equal(t, base, cache.Key("query", "coding", 6, "Book A"))
}

func TestSearchCacheRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewSearchCache(client, &SearchCacheConfig{
		Enabled:   true,
		TTL:       time.Minute,
		KeyPrefix: "test:search:",
	})
	ctx := context.Background()

	results := []model.SearchResult{
		{Text: "chunk one", Book: "B", Chapter: "1", Topic: "T", Score: 0.9},
		{Text: "chunk two", Book: "B", Chapter: "2", Topic: "T", Score: 0.5},
	}

	_, ok := cache.Get(ctx, "q", "coding", 6, "")
	assert.False(t, ok, "empty cache must miss")

	cache.Set(ctx, "q", "coding", 6, "", results)

	got, ok := cache.Get(ctx, "q", "coding", 6, "")
	require.True(t, ok)
	assert.Equal(t, results, got, "cached snapshot preserves order and scores")
}

func TestSearchCacheExpiry(t *testing.T) {
	client := setupTestRedis(t)
	defer func() { _ = client.Close() }()

	cache := NewSearchCache(client, &SearchCacheConfig{
		Enabled:   true,
		TTL:       50 * time.Millisecond,
		KeyPrefix: "test:search:",
	})
	ctx := context.Background()

	cache.Set(ctx, "q", "coding", 6, "", []model.SearchResult{{Text: "x"}})
	time.Sleep(100 * time.Millisecond)

	_, ok := cache.Get(ctx, "q", "coding", 6, "")
	assert.False(t, ok, "expired entry must miss")
}

func TestSearchCacheDisabled(t *testing.T) {
	cache := NewSearchCache(nil, &SearchCacheConfig{Enabled: false})
	ctx := context.Background()

	cache.Set(ctx, "q", "coding", 6, "", []model.SearchResult{{Text: "x"}})
	_, ok := cache.Get(ctx, "q", "coding", 6, "")
	assert.False(t, ok)
}

func TestSearchCacheDegradesOnDeadRedis(t *testing.T) {
	dead := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 50 * time.Millisecond})
	defer func() { _ = dead.Close() }()

	cache := NewSearchCache(dead, &SearchCacheConfig{
		Enabled:   true,
		TTL:       time.Minute,
		KeyPrefix: "test:search:",
	})
	ctx := context.Background()

	// Both paths must absorb the connection failure.
	cache.Set(ctx, "q", "coding", 6, "", []model.SearchResult{{Text: "x"}})
	_, ok := cache.Get(ctx, "q", "coding", 6, "")
	assert.False(t, ok, "cache faults degrade to miss")
}
