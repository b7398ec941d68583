package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/readership/internal/application/services"
	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
)

// TrackingHandlers contains the event ingest handlers.
type TrackingHandlers struct {
	trackingService *services.TrackingService
	logger          *logging.ChanneledLogger
	perfTracker     *performance.Tracker
}

// ArticleEventRequest is the body of POST /api/v1/events/article.
type ArticleEventRequest struct {
	ArticleID    string `json:"articleId" binding:"required,max=128"`
	EventType    string `json:"eventType" binding:"required"`
	SessionToken string `json:"sessionToken,omitempty" binding:"max=128"`
	ReaderPayload
	Metadata analytics.Metadata `json:"metadata,omitempty"`
}

// ShareEventRequest is the body of POST /api/v1/events/share.
type ShareEventRequest struct {
	ArticleID    string `json:"articleId" binding:"required,max=128"`
	Channel      string `json:"channel" binding:"required,max=64"`
	SessionToken string `json:"sessionToken,omitempty" binding:"max=128"`
	Context      string `json:"context,omitempty" binding:"max=128"`
	ReaderPayload
	Metadata analytics.Metadata `json:"metadata,omitempty"`
}

// EngagementEventRequest is the body of POST /api/v1/events/engagement.
type EngagementEventRequest struct {
	EventType    string             `json:"eventType" binding:"required,max=64"`
	ArticleID    string             `json:"articleId,omitempty" binding:"max=128"`
	UserID       string             `json:"userId,omitempty" binding:"max=128"`
	SessionToken string             `json:"sessionToken,omitempty" binding:"max=128"`
	DurationMs   *int64             `json:"durationMs,omitempty" binding:"omitempty,min=0"`
	Metadata     analytics.Metadata `json:"metadata,omitempty"`
}

// NewTrackingHandlers creates tracking handlers with injected dependencies
func NewTrackingHandlers(trackingService *services.TrackingService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *TrackingHandlers {
	return &TrackingHandlers{
		trackingService: trackingService,
		logger:          logger,
		perfTracker:     perfTracker,
	}
}

// PostArticleEvent handles POST /api/v1/events/article
func (h *TrackingHandlers) PostArticleEvent(c *gin.Context) {
	var req ArticleEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	reader, err := req.Reader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.trackingService.RecordArticleEvent(c.Request.Context(), services.ArticleEventRequest{
		ArticleID:    req.ArticleID,
		EventType:    analytics.EventType(req.EventType),
		Reader:       reader,
		SessionToken: req.SessionToken,
		Metadata:     req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, logging.ChannelTracking, "article_event", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// PostShareEvent handles POST /api/v1/events/share
func (h *TrackingHandlers) PostShareEvent(c *gin.Context) {
	var req ShareEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	reader, err := req.Reader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.trackingService.RecordShareEvent(c.Request.Context(), services.ShareEventRequest{
		ArticleID:    req.ArticleID,
		Channel:      req.Channel,
		Reader:       reader,
		SessionToken: req.SessionToken,
		Context:      req.Context,
		Metadata:     req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, logging.ChannelTracking, "share_event", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// PostEngagementEvent handles POST /api/v1/events/engagement
func (h *TrackingHandlers) PostEngagementEvent(c *gin.Context) {
	var req EngagementEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	err := h.trackingService.RecordEngagementEvent(c.Request.Context(), services.EngagementEventRequest{
		EventType:    req.EventType,
		ArticleID:    req.ArticleID,
		UserID:       req.UserID,
		SessionToken: req.SessionToken,
		DurationMs:   req.DurationMs,
		Metadata:     req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, logging.ChannelTracking, "engagement_event", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
