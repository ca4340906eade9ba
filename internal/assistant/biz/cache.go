package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/pkg/utils/json"
)

// SearchCacheConfig 检索结果缓存配置。
type SearchCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// DefaultSearchCacheConfig 返回默认缓存配置。
func DefaultSearchCacheConfig() *SearchCacheConfig {
	return &SearchCacheConfig{
		Enabled:   true,
		TTL:       1 * time.Hour,
		KeyPrefix: "rag:search:",
	}
}

// SearchCache 缓存单条检索查询的有序结果快照。
// 缓存故障一律降级：读故障视为未命中，写故障记录日志后忽略，
// 检索流程不因缓存不可用而失败。
type SearchCache struct {
	redis  *goredis.Client
	config *SearchCacheConfig
}

// NewSearchCache 创建检索缓存实例。
func NewSearchCache(redis *goredis.Client, config *SearchCacheConfig) *SearchCache {
	if config == nil {
		config = DefaultSearchCacheConfig()
	}
	return &SearchCache{
		redis:  redis,
		config: config,
	}
}

// cacheKeyInput 参与键哈希的检索参数。字段顺序固定，
// 任一参数不同即产生不同的键。
type cacheKeyInput struct {
	Query  string `json:"query"`
	Intent string `json:"intent"`
	TopK   int    `json:"top_k"`
	Book   string `json:"book"`
}

// Key 基于检索参数生成缓存键（SHA256 哈希）。
func (c *SearchCache) Key(query, intent string, topK int, book string) string {
	data, err := json.Marshal(cacheKeyInput{
		Query:  query,
		Intent: intent,
		TopK:   topK,
		Book:   book,
	})
	if err != nil {
		// 固定结构体不会序列化失败，兜底退化为原始拼接。
		data = []byte(query + "|" + intent + "|" + book)
	}
	hash := sha256.Sum256(data)
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get 从缓存获取检索结果。未命中或缓存故障返回 (nil, false)。
func (c *SearchCache) Get(ctx context.Context, query, intent string, topK int, book string) ([]model.SearchResult, bool) {
	if !c.config.Enabled || c.redis == nil {
		return nil, false
	}

	key := c.Key(query, intent, topK, book)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Warnw("search cache read failed, treating as miss",
				"error", err.Error(), "key", key)
		}
		return nil, false
	}

	var results []model.SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		logger.Warnw("failed to unmarshal cached results",
			"error", err.Error(), "key", key)
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}

	logger.Debugw("search cache hit", "key", key, "results", len(results))
	return results, true
}

// Set 将检索结果写入缓存。写失败记录日志后忽略。
func (c *SearchCache) Set(ctx context.Context, query, intent string, topK int, book string, results []model.SearchResult) {
	if !c.config.Enabled || c.redis == nil {
		return
	}

	data, err := json.Marshal(results)
	if err != nil {
		logger.Warnw("failed to marshal results for caching", "error", err.Error())
		return
	}

	key := c.Key(query, intent, topK, book)
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("search cache write failed", "error", err.Error(), "key", key)
		return
	}

	logger.Debugw("cached search results", "key", key, "results", len(results), "ttl", c.config.TTL)
}
