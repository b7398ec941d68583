// Package services implements the engagement core: the reading session
// lifecycle, event ingest and dashboard aggregation.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/readership/internal/infrastructure/security"
)

// StartSessionRequest carries the inputs of a new reading session.
type StartSessionRequest struct {
	// SessionToken is client generated. A ULID is minted when empty.
	SessionToken string
	ArticleID    string
	Reader       analytics.Reader
	Acquisition  analytics.AcquisitionContext
}

// SessionService manages reading sessions from start to completion.
// Lifecycle ArticleEvents are appended best-effort alongside each
// transition; the session row stays authoritative.
type SessionService struct {
	sessions    analytics.SessionRepository
	events      analytics.EventRepository
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	now         func() time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(sessions analytics.SessionRepository, events analytics.EventRepository, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionService {
	return &SessionService{
		sessions:    sessions,
		events:      events,
		logger:      logger,
		perfTracker: perfTracker,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// StartSession creates a session with startedAt = lastEventAt = now.
func (s *SessionService) StartSession(ctx context.Context, req StartSessionRequest) (*analytics.ReadingSession, error) {
	marker := s.perfTracker.StartOperation("sessions:start")
	defer marker.Complete()

	req.ArticleID = strings.TrimSpace(req.ArticleID)
	if req.ArticleID == "" {
		marker.SetError(analytics.ErrMissingArticle)
		return nil, analytics.ErrMissingArticle
	}
	if req.Reader.IsZero() {
		marker.SetError(analytics.ErrInvalidReader)
		return nil, fmt.Errorf("%w: reader is required", analytics.ErrInvalidReader)
	}
	token := strings.TrimSpace(req.SessionToken)
	if token == "" {
		token = security.GenerateULID()
	}

	now := s.now().UTC()
	session := &analytics.ReadingSession{
		SessionToken: token,
		ArticleID:    req.ArticleID,
		Reader:       req.Reader,
		Acquisition:  req.Acquisition,
		StartedAt:    now,
		LastEventAt:  now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		marker.SetError(err)
		if errors.Is(err, analytics.ErrDuplicateSession) {
			metrics.RecordSessionTransition("start", metrics.OutcomeDuplicate)
			s.logger.Sessions().Warn("Duplicate session token", "sessionToken", logging.MaskToken(token))
			return nil, err
		}
		metrics.RecordSessionTransition("start", metrics.OutcomeError)
		return nil, fmt.Errorf("failed to start reading session: %w", err)
	}
	metrics.RecordSessionTransition("start", metrics.OutcomeOK)

	s.appendLifecycleEvent(ctx, session, analytics.EventSessionStarted, now, nil)
	s.logger.Sessions().Info("Reading session started",
		"sessionToken", logging.MaskToken(token),
		"articleId", session.ArticleID,
		"readerType", session.Reader.Type())
	return session, nil
}

// Heartbeat advances lastEventAt and raises progress to the running maximum.
func (s *SessionService) Heartbeat(ctx context.Context, token string, progressPercent *float64) error {
	marker := s.perfTracker.StartOperation("sessions:heartbeat")
	defer marker.Complete()

	if err := analytics.ValidateProgress(progressPercent); err != nil {
		marker.SetError(err)
		return err
	}

	now := s.now().UTC()
	if err := s.sessions.Touch(ctx, token, now, progressPercent); err != nil {
		marker.SetError(err)
		if errors.Is(err, analytics.ErrUnknownSession) {
			metrics.RecordSessionTransition("heartbeat", metrics.OutcomeUnknown)
			return err
		}
		metrics.RecordSessionTransition("heartbeat", metrics.OutcomeError)
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	metrics.RecordSessionTransition("heartbeat", metrics.OutcomeOK)

	// The event needs the article and reader; a failed lookup only costs the event.
	if session, err := s.sessions.FindByToken(ctx, token); err == nil && session != nil {
		var meta analytics.Metadata
		if progressPercent != nil {
			meta = analytics.Metadata{analytics.MetaProgress: *progressPercent}
		}
		s.appendLifecycleEvent(ctx, session, analytics.EventSessionHeartbeat, now, meta)
	}
	return nil
}

// CompleteSession finalizes the session. Completing an already completed
// session is a no-op that returns the stored state.
func (s *SessionService) CompleteSession(ctx context.Context, token string) (*analytics.ReadingSession, error) {
	marker := s.perfTracker.StartOperation("sessions:complete")
	defer marker.Complete()

	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		marker.SetError(err)
		metrics.RecordSessionTransition("complete", metrics.OutcomeError)
		return nil, fmt.Errorf("failed to load reading session: %w", err)
	}
	if session == nil {
		marker.SetError(analytics.ErrUnknownSession)
		metrics.RecordSessionTransition("complete", metrics.OutcomeUnknown)
		return nil, fmt.Errorf("%w: %s", analytics.ErrUnknownSession, logging.MaskToken(token))
	}
	if session.IsCompleted() {
		metrics.RecordSessionTransition("complete", metrics.OutcomeNoop)
		return session, nil
	}

	now := s.now().UTC()
	duration := analytics.DurationBetween(session.StartedAt, now)
	applied, err := s.sessions.MarkCompleted(ctx, token, now, duration)
	if err != nil {
		marker.SetError(err)
		metrics.RecordSessionTransition("complete", metrics.OutcomeError)
		return nil, fmt.Errorf("failed to complete reading session: %w", err)
	}

	if applied {
		metrics.RecordSessionTransition("complete", metrics.OutcomeOK)
		metrics.SessionDuration.Observe(float64(duration))
		s.appendLifecycleEvent(ctx, session, analytics.EventSessionCompleted, now, nil)
		s.logger.Sessions().Info("Reading session completed",
			"sessionToken", logging.MaskToken(token),
			"articleId", session.ArticleID,
			"durationSeconds", duration)
	} else {
		// Lost a race with a concurrent completion.
		metrics.RecordSessionTransition("complete", metrics.OutcomeNoop)
	}

	return s.GetSession(ctx, token)
}

// GetSession returns the stored session or ErrUnknownSession.
func (s *SessionService) GetSession(ctx context.Context, token string) (*analytics.ReadingSession, error) {
	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load reading session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", analytics.ErrUnknownSession, logging.MaskToken(token))
	}
	return session, nil
}

func (s *SessionService) appendLifecycleEvent(ctx context.Context, session *analytics.ReadingSession, eventType analytics.EventType, at time.Time, meta analytics.Metadata) {
	event := &analytics.ArticleEvent{
		ArticleID:      session.ArticleID,
		SessionToken:   session.SessionToken,
		EventType:      eventType,
		Reader:         session.Reader,
		Metadata:       meta,
		EventTimestamp: at,
	}
	err := s.events.StoreArticleEvent(ctx, event)
	metrics.RecordEvent("article", err)
	if err != nil {
		s.logger.Sessions().Warn("Failed to append lifecycle event",
			"eventType", eventType,
			"sessionToken", logging.MaskToken(session.SessionToken),
			"error", err.Error())
	}
}
