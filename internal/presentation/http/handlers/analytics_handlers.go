package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/readership/internal/application/services"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
)

// AnalyticsHandlers contains the dashboard query handlers.
type AnalyticsHandlers struct {
	dashboardAnalyticsService *services.DashboardAnalyticsService
	logger                    *logging.ChanneledLogger
	perfTracker               *performance.Tracker
}

// NewAnalyticsHandlers creates analytics handlers with injected dependencies
func NewAnalyticsHandlers(dashboardAnalyticsService *services.DashboardAnalyticsService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		dashboardAnalyticsService: dashboardAnalyticsService,
		logger:                    logger,
		perfTracker:               perfTracker,
	}
}

// HandleDashboardAnalytics handles GET /api/v1/analytics/dashboard
func (h *AnalyticsHandlers) HandleDashboardAnalytics(c *gin.Context) {
	start := time.Now()
	log := h.logger.WithContext(logging.ChannelAnalytics, c.Request.Context())
	log.Debug("Received dashboard analytics request", "method", c.Request.Method, "path", c.Request.URL.Path)

	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
		days = parsed
	}

	dashboard, err := h.dashboardAnalyticsService.GetDashboardStats(c.Request.Context(), days)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "dashboard", err)
		return
	}

	log.Info("Dashboard analytics request completed",
		"subject", dashboardSubject(c),
		"windowDays", dashboard.WindowDays,
		"duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"dashboard": dashboard})
}
