package stores

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/metrics"
)

const redisKeyPrefix = "readership:article:"

// missingMarker is stored for ids known not to exist.
const missingMarker = "-"

// RedisArticleStore shares article metadata between replicas. Redis errors
// are treated as misses; the cache never fails a lookup.
type RedisArticleStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisArticleStore creates a store over client.
func NewRedisArticleStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisArticleStore {
	return &RedisArticleStore{client: client, ttl: ttl, logger: logger}
}

// NewRedisClient parses url (redis://...) and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// GetArticle reads an entry.
func (s *RedisArticleStore) GetArticle(ctx context.Context, articleID string) (*content.ArticleMeta, bool) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+articleID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Redis article lookup failed", "articleId", articleID, "error", err.Error())
		}
		metrics.RecordCacheLookup("redis", false)
		return nil, false
	}
	metrics.RecordCacheLookup("redis", true)

	if string(raw) == missingMarker {
		return nil, true
	}
	var article content.ArticleMeta
	if err := json.Unmarshal(raw, &article); err != nil {
		s.logger.Warn("Discarding unreadable cached article", "articleId", articleID, "error", err.Error())
		return nil, false
	}
	return &article, true
}

// SetArticle writes an entry with the store TTL.
func (s *RedisArticleStore) SetArticle(ctx context.Context, articleID string, article *content.ArticleMeta) {
	value := []byte(missingMarker)
	if article != nil {
		encoded, err := json.Marshal(article)
		if err != nil {
			return
		}
		value = encoded
	}
	if err := s.client.Set(ctx, redisKeyPrefix+articleID, value, s.ttl).Err(); err != nil {
		s.logger.Warn("Redis article store failed", "articleId", articleID, "error", err.Error())
	}
}

// InvalidateArticle deletes an entry.
func (s *RedisArticleStore) InvalidateArticle(ctx context.Context, articleID string) {
	if err := s.client.Del(ctx, redisKeyPrefix+articleID).Err(); err != nil {
		s.logger.Warn("Redis article invalidation failed", "articleId", articleID, "error", err.Error())
	}
}
