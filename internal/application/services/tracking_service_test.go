package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/domain/entities/content"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/memory"
)

func newTrackingFixture() (*TrackingService, *memory.EventRepository, *memory.ArticleCatalog) {
	events := memory.NewEventRepository()
	catalog := memory.NewArticleCatalog(content.ArticleMeta{ID: "a1", Title: "First", Section: "news"})
	logger, perf := testDeps()
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	return NewTrackingService(events, catalog, logger, perf).WithClock(clock.Now), events, catalog
}

func TestRecordArticleViewIncrementsCounter(t *testing.T) {
	ctx := context.Background()
	svc, events, catalog := newTrackingFixture()

	for i := 0; i < 2; i++ {
		err := svc.RecordArticleEvent(ctx, ArticleEventRequest{ArticleID: "a1", EventType: analytics.EventArticleView, Reader: guest(t, "v")})
		if err != nil {
			t.Fatalf("RecordArticleEvent() error = %v", err)
		}
	}
	if err := svc.RecordArticleEvent(ctx, ArticleEventRequest{ArticleID: "a1", EventType: analytics.EventCustom, Reader: guest(t, "v")}); err != nil {
		t.Fatal(err)
	}

	if got := catalog.Views("a1"); got != 2 {
		t.Errorf("Views() = %d, want 2", got)
	}
	stored, _ := events.FindArticleEventsInRange(ctx, time.Time{}, time.Now().Add(24*time.Hour*365))
	if len(stored) != 3 {
		t.Errorf("stored %d events, want 3", len(stored))
	}
}

func TestRecordArticleEventSurvivesCatalogFailure(t *testing.T) {
	svc, events, catalog := newTrackingFixture()
	catalog.Fail = errors.New("catalog offline")

	err := svc.RecordArticleEvent(context.Background(), ArticleEventRequest{ArticleID: "a1", EventType: analytics.EventArticleView, Reader: guest(t, "v")})
	if err != nil {
		t.Fatalf("RecordArticleEvent() error = %v", err)
	}
	stored, _ := events.FindArticleEventsInRange(context.Background(), time.Time{}, time.Now().Add(24*time.Hour*365))
	if len(stored) != 1 {
		t.Errorf("stored %d events, want 1", len(stored))
	}
}

func TestRecordEventValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTrackingFixture()
	reader := guest(t, "v")

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"article without id", func() error {
			return svc.RecordArticleEvent(ctx, ArticleEventRequest{EventType: analytics.EventArticleView, Reader: reader})
		}, analytics.ErrMissingArticle},
		{"article with unknown type", func() error {
			return svc.RecordArticleEvent(ctx, ArticleEventRequest{ArticleID: "a1", EventType: "scroll", Reader: reader})
		}, analytics.ErrInvalidEvent},
		{"article without reader", func() error {
			return svc.RecordArticleEvent(ctx, ArticleEventRequest{ArticleID: "a1", EventType: analytics.EventArticleView})
		}, analytics.ErrInvalidReader},
		{"share without channel", func() error {
			return svc.RecordShareEvent(ctx, ShareEventRequest{ArticleID: "a1", Reader: reader})
		}, analytics.ErrInvalidEvent},
		{"share without article", func() error {
			return svc.RecordShareEvent(ctx, ShareEventRequest{Channel: "mastodon", Reader: reader})
		}, analytics.ErrMissingArticle},
		{"engagement without type", func() error {
			return svc.RecordEngagementEvent(ctx, EngagementEventRequest{ArticleID: "a1"})
		}, analytics.ErrInvalidEvent},
		{"engagement with negative duration", func() error {
			return svc.RecordEngagementEvent(ctx, EngagementEventRequest{EventType: "click", DurationMs: ptr(int64(-5))})
		}, analytics.ErrInvalidEvent},
		{"valid share", func() error {
			return svc.RecordShareEvent(ctx, ShareEventRequest{ArticleID: "a1", Channel: "mastodon", Reader: reader})
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEngagementEventKeepsEventWhenMetadataUnserializable(t *testing.T) {
	ctx := context.Background()
	svc, events, _ := newTrackingFixture()
	before := testutil.ToFloat64(metrics.MetadataDropped.WithLabelValues("engagement"))

	err := svc.RecordEngagementEvent(ctx, EngagementEventRequest{
		EventType:  "empty_state_shown",
		ArticleID:  "a1",
		DurationMs: ptr(int64(1200)),
		Metadata:   analytics.Metadata{"surface": "search", "callback": func() {}},
	})
	if err != nil {
		t.Fatalf("RecordEngagementEvent() error = %v", err)
	}

	stored, _ := events.FindEngagementEventsInRange(ctx, time.Time{}, time.Now().Add(24*time.Hour*365))
	if len(stored) != 1 {
		t.Fatalf("stored %d events, want 1", len(stored))
	}
	if stored[0].Metadata != nil {
		t.Errorf("Metadata = %v, want omitted", stored[0].Metadata)
	}
	if stored[0].DurationMs == nil || *stored[0].DurationMs != 1200 {
		t.Errorf("DurationMs = %v, want 1200", stored[0].DurationMs)
	}
	if got := testutil.ToFloat64(metrics.MetadataDropped.WithLabelValues("engagement")) - before; got != 1 {
		t.Errorf("MetadataDropped delta = %v, want 1", got)
	}
}

func TestEngagementEventKeepsVisitorWhenMetadataDropped(t *testing.T) {
	ctx := context.Background()

	oversized := analytics.Metadata{analytics.MetaVisitor: "visitor-1"}
	for i := 0; i < analytics.MaxMetadataKeys; i++ {
		oversized[fmt.Sprintf("k%d", i)] = i
	}

	tests := []struct {
		name string
		meta analytics.Metadata
		want analytics.Metadata
	}{
		{"nested value", analytics.Metadata{analytics.MetaVisitor: "visitor-1", "nested": map[string]any{"a": 1}}, analytics.Metadata{analytics.MetaVisitor: "visitor-1"}},
		{"too many keys", oversized, analytics.Metadata{analytics.MetaVisitor: "visitor-1"}},
		{"non-string visitor", analytics.Metadata{analytics.MetaVisitor: 7, "nested": []int{1}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, events, _ := newTrackingFixture()
			err := svc.RecordEngagementEvent(ctx, EngagementEventRequest{EventType: "click", Metadata: tt.meta})
			if err != nil {
				t.Fatalf("RecordEngagementEvent() error = %v", err)
			}
			stored, _ := events.FindEngagementEventsInRange(ctx, time.Time{}, time.Now().Add(24*time.Hour*365))
			if len(stored) != 1 {
				t.Fatalf("stored %d events, want 1", len(stored))
			}
			if !reflect.DeepEqual(stored[0].Metadata, tt.want) {
				t.Errorf("Metadata = %v, want %v", stored[0].Metadata, tt.want)
			}
		})
	}
}

func TestRecordEventStoreFailureSurfaces(t *testing.T) {
	svc, events, _ := newTrackingFixture()
	events.Fail = analytics.ErrStorageUnavailable

	err := svc.RecordEngagementEvent(context.Background(), EngagementEventRequest{EventType: "click"})
	if !errors.Is(err, analytics.ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}
