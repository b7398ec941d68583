package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
)

func TestSessionRepositoryRules(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reader, _ := analytics.Guest("v1")

	s := &analytics.ReadingSession{SessionToken: "t", ArticleID: "a", Reader: reader, StartedAt: start, LastEventAt: start}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, s); !errors.Is(err, analytics.ErrDuplicateSession) {
		t.Errorf("duplicate Create() error = %v", err)
	}

	p := func(v float64) *float64 { return &v }
	_ = repo.Touch(ctx, "t", start.Add(time.Minute), p(60))
	_ = repo.Touch(ctx, "t", start.Add(30*time.Second), p(10))

	got, _ := repo.FindByToken(ctx, "t")
	if *got.ProgressPercent != 60 || !got.LastEventAt.Equal(start.Add(time.Minute)) {
		t.Errorf("after touches: progress=%v lastEventAt=%v", *got.ProgressPercent, got.LastEventAt)
	}

	// Mutating a returned copy must not leak into the store.
	*got.ProgressPercent = 0
	again, _ := repo.FindByToken(ctx, "t")
	if *again.ProgressPercent != 60 {
		t.Error("FindByToken() returned shared state")
	}

	if ok, _ := repo.MarkCompleted(ctx, "t", start.Add(5*time.Minute), 300); !ok {
		t.Error("first MarkCompleted() not applied")
	}
	if ok, _ := repo.MarkCompleted(ctx, "t", start.Add(time.Minute), 60); ok {
		t.Error("second MarkCompleted() applied")
	}
	if err := repo.Touch(ctx, "missing", start, nil); !errors.Is(err, analytics.ErrUnknownSession) {
		t.Errorf("Touch(missing) error = %v", err)
	}
}
