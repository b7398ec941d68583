// Package interfaces defines cache operation contracts for article metadata.
package interfaces

import (
	"context"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
)

// ArticleCache caches article metadata lookups. A hit with a nil article
// means the id is known not to exist.
type ArticleCache interface {
	GetArticle(ctx context.Context, articleID string) (article *content.ArticleMeta, found bool)
	SetArticle(ctx context.Context, articleID string, article *content.ArticleMeta)
	InvalidateArticle(ctx context.Context, articleID string)
}

// ExpiringCache is implemented by in-process caches that need a purge loop.
type ExpiringCache interface {
	PurgeExpired(now time.Time) int
	Len() int
}
