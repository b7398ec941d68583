package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/domain/repositories"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
)

// ArticleEventRequest records a single article event.
type ArticleEventRequest struct {
	ArticleID    string
	EventType    analytics.EventType
	Reader       analytics.Reader
	SessionToken string
	Metadata     analytics.Metadata
}

// ShareEventRequest records a share action.
type ShareEventRequest struct {
	ArticleID    string
	Channel      string
	Reader       analytics.Reader
	SessionToken string
	Context      string
	Metadata     analytics.Metadata
}

// EngagementEventRequest records generic UI telemetry.
type EngagementEventRequest struct {
	EventType    string
	ArticleID    string
	UserID       string
	SessionToken string
	DurationMs   *int64
	Metadata     analytics.Metadata
}

// TrackingService writes the append-only event families.
type TrackingService struct {
	events      analytics.EventRepository
	articles    repositories.ArticleCatalog
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	now         func() time.Time
}

// NewTrackingService creates a new tracking service. articles may be nil,
// in which case view counters are not maintained.
func NewTrackingService(events analytics.EventRepository, articles repositories.ArticleCatalog, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *TrackingService {
	return &TrackingService{
		events:      events,
		articles:    articles,
		logger:      logger,
		perfTracker: perfTracker,
		now:         time.Now,
	}
}

// WithClock replaces the time source.
func (s *TrackingService) WithClock(now func() time.Time) *TrackingService {
	s.now = now
	return s
}

// RecordArticleEvent stores an article event. article_view also bumps the
// article collaborator's view counter; a failure there is logged only.
func (s *TrackingService) RecordArticleEvent(ctx context.Context, req ArticleEventRequest) error {
	marker := s.perfTracker.StartOperation("tracking:article")
	defer marker.Complete()

	articleID := strings.TrimSpace(req.ArticleID)
	if articleID == "" {
		marker.SetError(analytics.ErrMissingArticle)
		return analytics.ErrMissingArticle
	}
	if !req.EventType.Valid() {
		err := fmt.Errorf("%w: unknown article event type %q", analytics.ErrInvalidEvent, req.EventType)
		marker.SetError(err)
		return err
	}
	if req.Reader.IsZero() {
		marker.SetError(analytics.ErrInvalidReader)
		return fmt.Errorf("%w: reader is required", analytics.ErrInvalidReader)
	}

	event := &analytics.ArticleEvent{
		ArticleID:      articleID,
		SessionToken:   strings.TrimSpace(req.SessionToken),
		EventType:      req.EventType,
		Reader:         req.Reader,
		Metadata:       s.sanitizeMetadata("article", req.Metadata),
		EventTimestamp: s.now().UTC(),
	}
	err := s.events.StoreArticleEvent(ctx, event)
	metrics.RecordEvent("article", err)
	if err != nil {
		marker.SetError(err)
		return fmt.Errorf("failed to store article event: %w", err)
	}

	if event.EventType == analytics.EventArticleView && s.articles != nil {
		if err := s.articles.IncrementViewCounter(ctx, articleID); err != nil {
			s.logger.Tracking().Warn("Failed to increment view counter",
				"articleId", articleID, "error", err.Error())
		}
	}

	s.logger.Tracking().Debug("Article event recorded",
		"eventType", event.EventType, "articleId", articleID, "readerType", event.Reader.Type())
	return nil
}

// RecordShareEvent stores a share event.
func (s *TrackingService) RecordShareEvent(ctx context.Context, req ShareEventRequest) error {
	marker := s.perfTracker.StartOperation("tracking:share")
	defer marker.Complete()

	articleID := strings.TrimSpace(req.ArticleID)
	if articleID == "" {
		marker.SetError(analytics.ErrMissingArticle)
		return analytics.ErrMissingArticle
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		err := fmt.Errorf("%w: share channel is required", analytics.ErrInvalidEvent)
		marker.SetError(err)
		return err
	}
	if req.Reader.IsZero() {
		marker.SetError(analytics.ErrInvalidReader)
		return fmt.Errorf("%w: reader is required", analytics.ErrInvalidReader)
	}

	event := &analytics.ShareEvent{
		ArticleID:    articleID,
		SessionToken: strings.TrimSpace(req.SessionToken),
		Channel:      channel,
		Reader:       req.Reader,
		Context:      strings.TrimSpace(req.Context),
		Metadata:     s.sanitizeMetadata("share", req.Metadata),
		CreatedAt:    s.now().UTC(),
	}
	err := s.events.StoreShareEvent(ctx, event)
	metrics.RecordEvent("share", err)
	if err != nil {
		marker.SetError(err)
		return fmt.Errorf("failed to store share event: %w", err)
	}

	s.logger.Tracking().Debug("Share event recorded", "articleId", articleID, "channel", channel)
	return nil
}

// RecordEngagementEvent stores a generic engagement event.
func (s *TrackingService) RecordEngagementEvent(ctx context.Context, req EngagementEventRequest) error {
	marker := s.perfTracker.StartOperation("tracking:engagement")
	defer marker.Complete()

	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		err := fmt.Errorf("%w: event type is required", analytics.ErrInvalidEvent)
		marker.SetError(err)
		return err
	}
	if req.DurationMs != nil && *req.DurationMs < 0 {
		err := fmt.Errorf("%w: durationMs must not be negative", analytics.ErrInvalidEvent)
		marker.SetError(err)
		return err
	}

	event := &analytics.EngagementEvent{
		EventType:    eventType,
		ArticleID:    strings.TrimSpace(req.ArticleID),
		UserID:       strings.TrimSpace(req.UserID),
		SessionToken: strings.TrimSpace(req.SessionToken),
		Metadata:     s.sanitizeMetadata("engagement", req.Metadata),
		DurationMs:   req.DurationMs,
		OccurredAt:   s.now().UTC(),
	}
	err := s.events.StoreEngagementEvent(ctx, event)
	metrics.RecordEvent("engagement", err)
	if err != nil {
		marker.SetError(err)
		return fmt.Errorf("failed to store engagement event: %w", err)
	}

	s.logger.Tracking().Debug("Engagement event recorded", "eventType", eventType)
	return nil
}

// sanitizeMetadata drops metadata that cannot be encoded so the event is
// still recorded without it. A valid guest visitor key is kept.
func (s *TrackingService) sanitizeMetadata(family string, meta analytics.Metadata) analytics.Metadata {
	if len(meta) == 0 {
		return nil
	}
	if _, err := meta.Encode(); err != nil {
		metrics.MetadataDropped.WithLabelValues(family).Inc()
		s.logger.Tracking().Warn("Dropping unserializable metadata",
			"family", family, "keys", len(meta), "error", err.Error())
		return visitorOnly(meta)
	}
	return meta
}

func visitorOnly(meta analytics.Metadata) analytics.Metadata {
	visitor, ok := meta[analytics.MetaVisitor].(string)
	if !ok || visitor == "" {
		return nil
	}
	kept := analytics.Metadata{analytics.MetaVisitor: visitor}
	if kept.Validate() != nil {
		return nil
	}
	return kept
}
