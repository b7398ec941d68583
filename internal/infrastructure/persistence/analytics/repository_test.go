package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	schema "github.com/AtRiskMedia/readership/internal/infrastructure/database"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewMemoryDB()
	if err != nil {
		t.Fatalf("NewMemoryDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := schema.NewTableCreator().CreateSchema(context.Background(), db.DB); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	return db
}

var t0 = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func guest(t *testing.T, key string) analytics.Reader {
	t.Helper()
	r, err := analytics.Guest(key)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func newSession(t *testing.T, token string, startedAt time.Time) *analytics.ReadingSession {
	return &analytics.ReadingSession{
		SessionToken: token,
		ArticleID:    "article-1",
		Reader:       guest(t, "visitor-"+token),
		Acquisition:  analytics.AcquisitionContext{Referrer: "https://news.example", DeviceType: "mobile"},
		StartedAt:    startedAt,
		LastEventAt:  startedAt,
	}
}

func TestSessionCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLSessionRepository(newTestDB(t), logging.NewDiscardLogger())

	if err := repo.Create(ctx, newSession(t, "tok-1", t0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, newSession(t, "tok-1", t0))
	if !errors.Is(err, analytics.ErrDuplicateSession) {
		t.Fatalf("second Create() error = %v, want ErrDuplicateSession", err)
	}

	got, err := repo.FindByToken(ctx, "tok-1")
	if err != nil || got == nil {
		t.Fatalf("FindByToken() = %v, %v", got, err)
	}
	if got.Reader.VisitorKey() != "visitor-tok-1" || got.Acquisition.DeviceType != "mobile" {
		t.Errorf("FindByToken() = %+v", got)
	}
	if !got.StartedAt.Equal(t0) || got.DurationSeconds != nil || got.ProgressPercent != nil {
		t.Errorf("unexpected stored fields: %+v", got)
	}

	missing, err := repo.FindByToken(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("FindByToken(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestSessionTouchIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLSessionRepository(newTestDB(t), logging.NewDiscardLogger())
	if err := repo.Create(ctx, newSession(t, "tok-1", t0)); err != nil {
		t.Fatal(err)
	}

	p := func(v float64) *float64 { return &v }
	steps := []struct {
		at       time.Time
		progress *float64
	}{
		{t0.Add(30 * time.Second), p(40)},
		{t0.Add(90 * time.Second), p(75)},
		{t0.Add(60 * time.Second), p(20)}, // late, out-of-order retry
		{t0.Add(120 * time.Second), nil},
	}
	for _, s := range steps {
		if err := repo.Touch(ctx, "tok-1", s.at, s.progress); err != nil {
			t.Fatalf("Touch() error = %v", err)
		}
	}

	got, _ := repo.FindByToken(ctx, "tok-1")
	if got.ProgressPercent == nil || *got.ProgressPercent != 75 {
		t.Errorf("progress = %v, want 75", got.ProgressPercent)
	}
	if !got.LastEventAt.Equal(t0.Add(120 * time.Second)) {
		t.Errorf("lastEventAt = %v, want %v", got.LastEventAt, t0.Add(120*time.Second))
	}

	if err := repo.Touch(ctx, "nope", t0, nil); !errors.Is(err, analytics.ErrUnknownSession) {
		t.Errorf("Touch(unknown) error = %v, want ErrUnknownSession", err)
	}
}

func TestSessionMarkCompletedFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLSessionRepository(newTestDB(t), logging.NewDiscardLogger())
	if err := repo.Create(ctx, newSession(t, "tok-1", t0)); err != nil {
		t.Fatal(err)
	}

	applied, err := repo.MarkCompleted(ctx, "tok-1", t0.Add(300*time.Second), 300)
	if err != nil || !applied {
		t.Fatalf("first MarkCompleted() = %v, %v", applied, err)
	}
	applied, err = repo.MarkCompleted(ctx, "tok-1", t0.Add(10*time.Second), 10)
	if err != nil || applied {
		t.Fatalf("second MarkCompleted() = %v, %v; want false, nil", applied, err)
	}

	got, _ := repo.FindByToken(ctx, "tok-1")
	if got.DurationSeconds == nil || *got.DurationSeconds != 300 {
		t.Errorf("duration = %v, want 300", got.DurationSeconds)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(t0.Add(300*time.Second)) {
		t.Errorf("completedAt = %v", got.CompletedAt)
	}

	if _, err := repo.MarkCompleted(ctx, "nope", t0, 1); !errors.Is(err, analytics.ErrUnknownSession) {
		t.Errorf("MarkCompleted(unknown) error = %v, want ErrUnknownSession", err)
	}
}

func TestSessionConcurrentCompletion(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLSessionRepository(newTestDB(t), logging.NewDiscardLogger())
	if err := repo.Create(ctx, newSession(t, "tok-1", t0)); err != nil {
		t.Fatal(err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.MarkCompleted(ctx, "tok-1", t0.Add(time.Duration(i)*time.Minute), i*60)
			if err != nil {
				t.Errorf("MarkCompleted() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("completions applied = %d, want exactly 1", applied)
	}
}

func TestSessionFindStartedInRange(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLSessionRepository(newTestDB(t), logging.NewDiscardLogger())
	for i, offset := range []time.Duration{-time.Hour, 0, time.Hour, 24 * time.Hour} {
		token := string(rune('a' + i))
		if err := repo.Create(ctx, newSession(t, token+"-session", t0.Add(offset))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.FindStartedInRange(ctx, t0, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FindStartedInRange() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("FindStartedInRange() returned %d sessions, want 2", len(got))
	}
}

func TestEventStoreAndScan(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLEventRepository(newTestDB(t), logging.NewDiscardLogger())
	reader := guest(t, "visitor-1")

	events := []*analytics.ArticleEvent{
		{ArticleID: "a1", EventType: analytics.EventArticleView, Reader: reader, EventTimestamp: t0},
		{ArticleID: "a1", EventType: analytics.EventSessionStarted, Reader: reader, SessionToken: "tok", EventTimestamp: t0.Add(time.Minute)},
		{ArticleID: "a2", EventType: analytics.EventArticleView, Reader: reader, Metadata: analytics.Metadata{"surface": "home"}, EventTimestamp: t0.Add(2 * time.Minute)},
		{ArticleID: "a3", EventType: analytics.EventArticleView, Reader: reader, EventTimestamp: t0.Add(48 * time.Hour)},
	}
	for _, e := range events {
		if err := repo.StoreArticleEvent(ctx, e); err != nil {
			t.Fatalf("StoreArticleEvent() error = %v", err)
		}
		if e.ID == "" {
			t.Error("StoreArticleEvent() did not assign an id")
		}
	}

	views, err := repo.FindArticleEventsInRange(ctx, t0, t0.Add(24*time.Hour), analytics.EventArticleView)
	if err != nil {
		t.Fatalf("FindArticleEventsInRange() error = %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[1].Metadata["surface"] != "home" {
		t.Errorf("metadata = %v, want surface=home", views[1].Metadata)
	}

	all, _ := repo.FindArticleEventsInRange(ctx, t0, t0.Add(24*time.Hour))
	if len(all) != 3 {
		t.Errorf("all events = %d, want 3", len(all))
	}

	share := &analytics.ShareEvent{ArticleID: "a1", Channel: "email", Reader: reader, Context: "footer", CreatedAt: t0}
	if err := repo.StoreShareEvent(ctx, share); err != nil {
		t.Fatalf("StoreShareEvent() error = %v", err)
	}
	shares, err := repo.FindShareEventsInRange(ctx, t0, t0.Add(time.Hour))
	if err != nil || len(shares) != 1 || shares[0].Context != "footer" {
		t.Errorf("FindShareEventsInRange() = %v, %v", shares, err)
	}

	ms := int64(1500)
	engagement := &analytics.EngagementEvent{EventType: "empty_state_shown", DurationMs: &ms, OccurredAt: t0}
	if err := repo.StoreEngagementEvent(ctx, engagement); err != nil {
		t.Fatalf("StoreEngagementEvent() error = %v", err)
	}
	found, err := repo.FindEngagementEventsInRange(ctx, t0, t0.Add(time.Hour))
	if err != nil || len(found) != 1 || found[0].DurationMs == nil || *found[0].DurationMs != 1500 {
		t.Errorf("FindEngagementEventsInRange() = %v, %v", found, err)
	}
}

func TestStoreRejectsUnserializableMetadata(t *testing.T) {
	repo := NewSQLEventRepository(newTestDB(t), logging.NewDiscardLogger())
	event := &analytics.EngagementEvent{
		EventType:  "click",
		Metadata:   analytics.Metadata{"bad": []int{1}},
		OccurredAt: t0,
	}
	if err := repo.StoreEngagementEvent(context.Background(), event); !errors.Is(err, analytics.ErrMetadataSerialization) {
		t.Errorf("StoreEngagementEvent() error = %v, want ErrMetadataSerialization", err)
	}
}
