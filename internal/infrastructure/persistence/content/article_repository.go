// Package content provides the SQL article catalog
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
	"github.com/AtRiskMedia/readership/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/database"
)

// ArticleRepository reads article metadata cache-first and maintains the
// raw view counter.
type ArticleRepository struct {
	db     *database.DB
	cache  interfaces.ArticleCache
	logger *logging.ChanneledLogger
}

// NewArticleRepository creates a repository. cache may be nil.
func NewArticleRepository(db *database.DB, cache interfaces.ArticleCache, logger *logging.ChanneledLogger) *ArticleRepository {
	return &ArticleRepository{
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

// GetArticleMeta returns the article or (nil, nil) when it is unknown.
func (r *ArticleRepository) GetArticleMeta(ctx context.Context, articleID string) (*content.ArticleMeta, error) {
	if r.cache != nil {
		start := time.Now()
		if article, found := r.cache.GetArticle(ctx, articleID); found {
			r.logger.LogCacheOperation("get_article", articleID, true, time.Since(start))
			return article, nil
		}
		r.logger.LogCacheOperation("get_article", articleID, false, time.Since(start))
	}

	article, err := r.loadFromDB(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.SetArticle(ctx, articleID, article)
	}
	return article, nil
}

func (r *ArticleRepository) loadFromDB(ctx context.Context, articleID string) (*content.ArticleMeta, error) {
	const query = `SELECT id, title, section, published_at FROM articles WHERE id = ?`

	start := time.Now()
	var (
		article     content.ArticleMeta
		section     sql.NullString
		publishedAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, articleID).Scan(&article.ID, &article.Title, &section, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Article lookup failed", "error", err.Error(), "articleId", articleID)
		return nil, fmt.Errorf("failed to load article %s: %w", articleID, err)
	}
	article.Section = section.String
	if publishedAt.Valid {
		if t, err := database.ParseTime(publishedAt.String); err == nil {
			article.PublishedAt = t
		}
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return &article, nil
}

// IncrementViewCounter bumps the stored view count. Unknown ids are ignored.
func (r *ArticleRepository) IncrementViewCounter(ctx context.Context, articleID string) error {
	const query = `UPDATE articles SET view_count = view_count + 1 WHERE id = ?`

	start := time.Now()
	result, err := r.db.ExecContext(ctx, query, articleID)
	if err != nil {
		r.logger.Database().Error("View counter update failed", "error", err.Error(), "articleId", articleID)
		return fmt.Errorf("failed to increment view counter: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		r.logger.Database().Debug("View counter update matched no article", "articleId", articleID)
	}
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// Upsert inserts or updates article metadata, keeping the view count.
func (r *ArticleRepository) Upsert(ctx context.Context, article *content.ArticleMeta) error {
	const query = `
		INSERT INTO articles (id, title, section, published_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			section = excluded.section,
			published_at = excluded.published_at`

	var publishedAt sql.NullString
	if !article.PublishedAt.IsZero() {
		publishedAt = sql.NullString{String: database.FormatTime(article.PublishedAt), Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, article.ID, article.Title, database.NullableString(article.Section), publishedAt); err != nil {
		r.logger.Database().Error("Article upsert failed", "error", err.Error(), "articleId", article.ID)
		return fmt.Errorf("failed to upsert article: %w", err)
	}
	if r.cache != nil {
		r.cache.InvalidateArticle(ctx, article.ID)
	}
	return nil
}

// ViewCount returns the stored counter for an article.
func (r *ArticleRepository) ViewCount(ctx context.Context, articleID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT view_count FROM articles WHERE id = ?`, articleID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}
