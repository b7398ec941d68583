// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AtRiskMedia/readership/internal/application/container"
	"github.com/AtRiskMedia/readership/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/readership/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestMetrics(container.Logger))
	r.Use(middleware.CORSMiddleware(container.Settings.CORSAllowedOrigins))

	if err := middleware.RegisterValidators(); err != nil {
		container.Logger.Startup().Error("Failed to register binding validators", "error", err.Error())
	}

	// Initialize handlers
	sessionHandlers := handlers.NewSessionHandlers(container.SessionService, container.Logger, container.PerfTracker)
	trackingHandlers := handlers.NewTrackingHandlers(container.TrackingService, container.Logger, container.PerfTracker)
	analyticsHandlers := handlers.NewAnalyticsHandlers(container.DashboardAnalyticsService, container.Logger, container.PerfTracker)
	opsHandlers := handlers.NewOpsHandlers(container.Logger, container.PerfTracker)

	var pinger handlers.Pinger
	if container.DB != nil {
		pinger = container.DB
	}
	healthHandlers := handlers.NewHealthHandlers(pinger, container.Logger, container.PerfTracker)

	r.GET("/health", healthHandlers.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandlers.PostStartSession)
			sessions.GET("/:token", sessionHandlers.GetSession)
			sessions.POST("/:token/heartbeat", sessionHandlers.PostHeartbeat)
			sessions.POST("/:token/complete", sessionHandlers.PostCompleteSession)
		}

		events := api.Group("/events")
		{
			events.POST("/article", trackingHandlers.PostArticleEvent)
			events.POST("/share", trackingHandlers.PostShareEvent)
			events.POST("/engagement", trackingHandlers.PostEngagementEvent)
		}

		protected := api.Group("")
		protected.Use(middleware.DashboardAuth(container.Settings.DashboardJWTSecret, container.Logger))
		{
			protected.GET("/analytics/dashboard", analyticsHandlers.HandleDashboardAnalytics)

			// Ops endpoints change runtime state and are never served unauthenticated.
			if container.Settings.DashboardJWTSecret != "" {
				protected.GET("/ops/log-levels", opsHandlers.GetLogLevels)
				protected.POST("/ops/log-levels", opsHandlers.SetLogLevel)
				protected.GET("/ops/performance", opsHandlers.GetPerformance)
			} else {
				container.Logger.Startup().Warn("DASHBOARD_JWT_SECRET is not set: dashboard is unauthenticated and ops endpoints are disabled")
			}
		}
	}

	return r
}
