package content

import (
	"context"
	"testing"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
	"github.com/AtRiskMedia/readership/internal/infrastructure/caching/stores"
	schema "github.com/AtRiskMedia/readership/internal/infrastructure/database"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/database"
)

func newRepo(t *testing.T) (*ArticleRepository, *stores.ArticleStore) {
	t.Helper()
	db, err := database.NewMemoryDB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := schema.NewTableCreator().CreateSchema(context.Background(), db.DB); err != nil {
		t.Fatal(err)
	}
	cache := stores.NewArticleStore(time.Hour)
	return NewArticleRepository(db, cache, logging.NewDiscardLogger()), cache
}

func TestArticleLookupAndCache(t *testing.T) {
	ctx := context.Background()
	repo, cache := newRepo(t)

	published := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	if err := repo.Upsert(ctx, &content.ArticleMeta{ID: "a1", Title: "Budget vote", Section: "politics", PublishedAt: published}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetArticleMeta(ctx, "a1")
	if err != nil || got == nil {
		t.Fatalf("GetArticleMeta() = %v, %v", got, err)
	}
	if got.Section != "politics" || !got.PublishedAt.Equal(published) {
		t.Errorf("GetArticleMeta() = %+v", got)
	}
	if cache.Len() != 1 {
		t.Errorf("cache Len() = %d, want 1", cache.Len())
	}

	missing, err := repo.GetArticleMeta(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetArticleMeta(unknown) = %v, %v; want nil, nil", missing, err)
	}
	if cached, found := cache.GetArticle(ctx, "nope"); !found || cached != nil {
		t.Error("unknown id was not negatively cached")
	}
}

func TestIncrementViewCounter(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	if err := repo.Upsert(ctx, &content.ArticleMeta{ID: "a1", Title: "T"}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := repo.IncrementViewCounter(ctx, "a1"); err != nil {
			t.Fatalf("IncrementViewCounter() error = %v", err)
		}
	}
	if err := repo.IncrementViewCounter(ctx, "unknown"); err != nil {
		t.Errorf("IncrementViewCounter(unknown) error = %v", err)
	}

	count, err := repo.ViewCount(ctx, "a1")
	if err != nil || count != 3 {
		t.Errorf("ViewCount() = %d, %v; want 3", count, err)
	}
}
