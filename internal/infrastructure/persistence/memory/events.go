package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/security"
)

// EventRepository keeps events in append order. Metadata is validated the
// same way the SQL store does so behavior matches across backends.
type EventRepository struct {
	mu         sync.RWMutex
	articles   []*analytics.ArticleEvent
	shares     []*analytics.ShareEvent
	engagement []*analytics.EngagementEvent

	// Fail, when set, is returned by every Store call.
	Fail error
}

// NewEventRepository creates an empty repository.
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

func (r *EventRepository) StoreArticleEvent(_ context.Context, event *analytics.ArticleEvent) error {
	if err := r.check(event.Metadata); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = security.GenerateULIDAt(event.EventTimestamp)
	}
	c := *event
	r.mu.Lock()
	r.articles = append(r.articles, &c)
	r.mu.Unlock()
	return nil
}

func (r *EventRepository) StoreShareEvent(_ context.Context, event *analytics.ShareEvent) error {
	if err := r.check(event.Metadata); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = security.GenerateULIDAt(event.CreatedAt)
	}
	c := *event
	r.mu.Lock()
	r.shares = append(r.shares, &c)
	r.mu.Unlock()
	return nil
}

func (r *EventRepository) StoreEngagementEvent(_ context.Context, event *analytics.EngagementEvent) error {
	if err := r.check(event.Metadata); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = security.GenerateULIDAt(event.OccurredAt)
	}
	c := *event
	r.mu.Lock()
	r.engagement = append(r.engagement, &c)
	r.mu.Unlock()
	return nil
}

func (r *EventRepository) check(m analytics.Metadata) error {
	if r.Fail != nil {
		return r.Fail
	}
	_, err := m.Encode()
	return err
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func (r *EventRepository) FindArticleEventsInRange(_ context.Context, start, end time.Time, types ...analytics.EventType) ([]*analytics.ArticleEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*analytics.ArticleEvent
	for _, e := range r.articles {
		if !inRange(e.EventTimestamp, start, end) {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, e.EventType) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *EventRepository) FindShareEventsInRange(_ context.Context, start, end time.Time) ([]*analytics.ShareEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*analytics.ShareEvent
	for _, e := range r.shares {
		if inRange(e.CreatedAt, start, end) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *EventRepository) FindEngagementEventsInRange(_ context.Context, start, end time.Time) ([]*analytics.EngagementEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*analytics.EngagementEvent
	for _, e := range r.engagement {
		if inRange(e.OccurredAt, start, end) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}
