// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/presentation/http/middleware"
)

// ReaderPayload is the wire shape of a reader: a type plus the one id that
// belongs to it.
type ReaderPayload struct {
	ReaderType string `json:"readerType" binding:"required,readertype"`
	UserID     string `json:"userId,omitempty" binding:"max=128"`
	VisitorKey string `json:"visitorKey,omitempty" binding:"max=128"`
}

// Reader converts the payload to a validated reader.
func (p ReaderPayload) Reader() (analytics.Reader, error) {
	return analytics.NewReader(analytics.ReaderType(p.ReaderType), p.UserID, p.VisitorKey)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, analytics.ErrDuplicateSession):
		return http.StatusConflict
	case errors.Is(err, analytics.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, analytics.ErrInvalidReader),
		errors.Is(err, analytics.ErrInvalidProgress),
		errors.Is(err, analytics.ErrMissingArticle),
		errors.Is(err, analytics.ErrInvalidEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": ...}. Internal failures are logged on
// channel and reported without detail.
func respondError(c *gin.Context, logger *logging.ChanneledLogger, channel logging.Channel, operation string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		metadata := map[string]any{"path": c.FullPath()}
		if requestID := logging.RequestIDFromContext(c.Request.Context()); requestID != "" {
			metadata["requestId"] = requestID
		}
		logger.LogError(channel, operation, err, metadata)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// dashboardSubject names the verified dashboard caller for audit logs.
func dashboardSubject(c *gin.Context) string {
	if claims, ok := middleware.GetDashboardClaims(c); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "anonymous"
}
