package memory

import (
	"context"
	"sync"

	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
)

// ArticleCatalog is a fixed set of articles with view counters.
type ArticleCatalog struct {
	mu       sync.RWMutex
	articles map[string]content.ArticleMeta
	views    map[string]int64

	// Fail, when set, is returned by every call.
	Fail error
}

// NewArticleCatalog seeds a catalog with articles.
func NewArticleCatalog(articles ...content.ArticleMeta) *ArticleCatalog {
	c := &ArticleCatalog{
		articles: make(map[string]content.ArticleMeta),
		views:    make(map[string]int64),
	}
	for _, a := range articles {
		c.articles[a.ID] = a
	}
	return c
}

func (c *ArticleCatalog) GetArticleMeta(_ context.Context, articleID string) (*content.ArticleMeta, error) {
	if c.Fail != nil {
		return nil, c.Fail
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.articles[articleID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (c *ArticleCatalog) IncrementViewCounter(_ context.Context, articleID string) error {
	if c.Fail != nil {
		return c.Fail
	}
	c.mu.Lock()
	c.views[articleID]++
	c.mu.Unlock()
	return nil
}

// Views returns the counter for articleID.
func (c *ArticleCatalog) Views(articleID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.views[articleID]
}
