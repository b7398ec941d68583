// Package repositories defines the contracts for collaborators the
// engagement core consumes but does not own.
package repositories

import (
	"context"

	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
)

// ArticleCatalog is the article collaborator. GetArticleMeta returns
// (nil, nil) for unknown ids.
type ArticleCatalog interface {
	GetArticleMeta(ctx context.Context, articleID string) (*content.ArticleMeta, error)
	IncrementViewCounter(ctx context.Context, articleID string) error
}
