// Package analytics defines the engagement entities (readers, reading
// sessions, article/share/engagement events) and the repository contracts
// used to persist and scan them.
package analytics

import (
	"context"
	"time"
)

// SessionRepository persists reading sessions. Sessions are the only rows
// mutated after insert, and only along monotonic rules: last_event_at and
// progress never decrease, completion is written at most once.
type SessionRepository interface {
	// Create inserts a new session, returning ErrDuplicateSession when the token exists.
	Create(ctx context.Context, session *ReadingSession) error

	// FindByToken returns the session or (nil, nil) when it does not exist.
	FindByToken(ctx context.Context, token string) (*ReadingSession, error)

	// Touch advances last_event_at and raises progress to max(stored, progress).
	// Returns ErrUnknownSession when the token does not exist.
	Touch(ctx context.Context, token string, at time.Time, progress *float64) error

	// MarkCompleted sets completion fields only if the session is not yet
	// completed. It reports whether this call performed the write.
	MarkCompleted(ctx context.Context, token string, completedAt time.Time, durationSeconds int) (bool, error)

	// FindStartedInRange returns sessions with start <= started_at < end.
	FindStartedInRange(ctx context.Context, start, end time.Time) ([]*ReadingSession, error)
}

// EventRepository is the append-only store for the three event families.
type EventRepository interface {
	StoreArticleEvent(ctx context.Context, event *ArticleEvent) error
	StoreShareEvent(ctx context.Context, event *ShareEvent) error
	StoreEngagementEvent(ctx context.Context, event *EngagementEvent) error

	// FindArticleEventsInRange returns events with start <= timestamp < end,
	// restricted to the given types (all types when none are given).
	FindArticleEventsInRange(ctx context.Context, start, end time.Time, types ...EventType) ([]*ArticleEvent, error)
	FindShareEventsInRange(ctx context.Context, start, end time.Time) ([]*ShareEvent, error)
	FindEngagementEventsInRange(ctx context.Context, start, end time.Time) ([]*EngagementEvent, error)
}
