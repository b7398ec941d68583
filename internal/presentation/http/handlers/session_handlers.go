package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/readership/internal/application/services"
	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
)

// SessionHandlers contains the reading session lifecycle handlers.
type SessionHandlers struct {
	sessionService *services.SessionService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// StartSessionRequest is the body of POST /api/v1/sessions.
type StartSessionRequest struct {
	SessionToken string `json:"sessionToken,omitempty" binding:"max=128"`
	ArticleID    string `json:"articleId" binding:"required,max=128"`
	ReaderPayload
	Acquisition analytics.AcquisitionContext `json:"acquisition"`
}

// HeartbeatRequest is the optional body of a heartbeat.
type HeartbeatRequest struct {
	ProgressPercent *float64 `json:"progressPercent,omitempty" binding:"omitempty,progress"`
}

// StartSessionResponse is returned when a session is created.
type StartSessionResponse struct {
	SessionToken string    `json:"sessionToken"`
	StartedAt    time.Time `json:"startedAt"`
}

// NewSessionHandlers creates session handlers with injected dependencies
func NewSessionHandlers(sessionService *services.SessionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionHandlers {
	return &SessionHandlers{
		sessionService: sessionService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// PostStartSession handles POST /api/v1/sessions
func (h *SessionHandlers) PostStartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	reader, err := req.Reader()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.StartSession(c.Request.Context(), services.StartSessionRequest{
		SessionToken: req.SessionToken,
		ArticleID:    req.ArticleID,
		Reader:       reader,
		Acquisition:  req.Acquisition,
	})
	if err != nil {
		respondError(c, h.logger, logging.ChannelSessions, "start_session", err)
		return
	}

	c.JSON(http.StatusCreated, StartSessionResponse{
		SessionToken: session.SessionToken,
		StartedAt:    session.StartedAt,
	})
}

// PostHeartbeat handles POST /api/v1/sessions/:token/heartbeat
func (h *SessionHandlers) PostHeartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.sessionService.Heartbeat(c.Request.Context(), c.Param("token"), req.ProgressPercent); err != nil {
		respondError(c, h.logger, logging.ChannelSessions, "heartbeat", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostCompleteSession handles POST /api/v1/sessions/:token/complete
func (h *SessionHandlers) PostCompleteSession(c *gin.Context) {
	session, err := h.sessionService.CompleteSession(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelSessions, "complete_session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session.View()})
}

// GetSession handles GET /api/v1/sessions/:token
func (h *SessionHandlers) GetSession(c *gin.Context) {
	session, err := h.sessionService.GetSession(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelSessions, "get_session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session.View()})
}
