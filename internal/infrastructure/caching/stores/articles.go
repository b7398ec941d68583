// Package stores provides concrete cache store implementations
package stores

import (
	"context"
	"sync"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/metrics"
)

type articleEntry struct {
	article   *content.ArticleMeta
	expiresAt time.Time
}

// ArticleStore is an in-process TTL cache of article metadata.
type ArticleStore struct {
	entries map[string]articleEntry
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
}

// NewArticleStore creates a store whose entries live for ttl.
func NewArticleStore(ttl time.Duration) *ArticleStore {
	return &ArticleStore{
		entries: make(map[string]articleEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetArticle returns a live entry.
func (s *ArticleStore) GetArticle(_ context.Context, articleID string) (*content.ArticleMeta, bool) {
	s.mu.RLock()
	entry, ok := s.entries[articleID]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		metrics.RecordCacheLookup("memory", false)
		return nil, false
	}
	metrics.RecordCacheLookup("memory", true)
	if entry.article == nil {
		return nil, true
	}
	copied := *entry.article
	return &copied, true
}

// SetArticle stores article (nil records a known-missing id).
func (s *ArticleStore) SetArticle(_ context.Context, articleID string, article *content.ArticleMeta) {
	var stored *content.ArticleMeta
	if article != nil {
		copied := *article
		stored = &copied
	}

	s.mu.Lock()
	s.entries[articleID] = articleEntry{article: stored, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

// InvalidateArticle drops an entry.
func (s *ArticleStore) InvalidateArticle(_ context.Context, articleID string) {
	s.mu.Lock()
	delete(s.entries, articleID)
	s.mu.Unlock()
}

// PurgeExpired removes entries expired at now and returns how many were removed.
func (s *ArticleStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, live or expired.
func (s *ArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
