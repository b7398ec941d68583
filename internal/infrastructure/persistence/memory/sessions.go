// Package memory provides in-process implementations of the session, event
// and article repositories. They hold the same monotonic guarantees as the
// SQL versions and back the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
)

// SessionRepository is a mutex-guarded map of sessions.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*analytics.ReadingSession
}

// NewSessionRepository creates an empty repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*analytics.ReadingSession)}
}

func (r *SessionRepository) Create(_ context.Context, session *analytics.ReadingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.SessionToken]; exists {
		return fmt.Errorf("%w: %s", analytics.ErrDuplicateSession, session.SessionToken)
	}
	r.sessions[session.SessionToken] = cloneSession(session)
	return nil
}

func (r *SessionRepository) FindByToken(_ context.Context, token string) (*analytics.ReadingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[token]
	if !ok {
		return nil, nil
	}
	return cloneSession(session), nil
}

func (r *SessionRepository) Touch(_ context.Context, token string, at time.Time, progress *float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return fmt.Errorf("%w: %s", analytics.ErrUnknownSession, token)
	}
	if at.After(session.LastEventAt) {
		session.LastEventAt = at
	}
	if progress != nil {
		p := *progress
		if session.ProgressPercent == nil || p > *session.ProgressPercent {
			session.ProgressPercent = &p
		}
	}
	return nil
}

func (r *SessionRepository) MarkCompleted(_ context.Context, token string, completedAt time.Time, durationSeconds int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return false, fmt.Errorf("%w: %s", analytics.ErrUnknownSession, token)
	}
	if session.CompletedAt != nil {
		return false, nil
	}
	at := completedAt
	d := durationSeconds
	session.CompletedAt = &at
	session.DurationSeconds = &d
	if completedAt.After(session.LastEventAt) {
		session.LastEventAt = completedAt
	}
	return true, nil
}

func (r *SessionRepository) FindStartedInRange(_ context.Context, start, end time.Time) ([]*analytics.ReadingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*analytics.ReadingSession
	for _, session := range r.sessions {
		if !session.StartedAt.Before(start) && session.StartedAt.Before(end) {
			out = append(out, cloneSession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func cloneSession(s *analytics.ReadingSession) *analytics.ReadingSession {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.DurationSeconds != nil {
		d := *s.DurationSeconds
		c.DurationSeconds = &d
	}
	if s.ProgressPercent != nil {
		p := *s.ProgressPercent
		c.ProgressPercent = &p
	}
	return &c
}
