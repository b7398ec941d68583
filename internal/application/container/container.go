// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/AtRiskMedia/readership/internal/application/services"
	"github.com/AtRiskMedia/readership/internal/domain/analytics"
	"github.com/AtRiskMedia/readership/internal/domain/repositories"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/readership/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Engagement services (stateless singletons)
	SessionService            *services.SessionService
	TrackingService           *services.TrackingService
	DashboardAnalyticsService *services.DashboardAnalyticsService

	// Repositories
	Sessions analytics.SessionRepository
	Events   analytics.EventRepository
	Articles repositories.ArticleCatalog

	// Infrastructure Dependencies
	DB          *database.DB
	Settings    *config.Settings
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
}

// Dependencies are the storage collaborators the services are wired to.
type Dependencies struct {
	DB       *database.DB
	Sessions analytics.SessionRepository
	Events   analytics.EventRepository
	Articles repositories.ArticleCatalog
}

// NewContainer creates and wires all singleton services
func NewContainer(settings *config.Settings, deps Dependencies, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) (*Container, error) {
	loc, err := settings.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reporting timezone: %w", err)
	}

	dashboardConfig := services.DashboardConfig{
		Location:          loc,
		DefaultWindowDays: settings.DefaultWindowDays,
		MaxWindowDays:     settings.MaxWindowDays,
		TopArticlesLimit:  settings.TopArticlesLimit,
	}

	return &Container{
		SessionService:            services.NewSessionService(deps.Sessions, deps.Events, logger, perfTracker),
		TrackingService:           services.NewTrackingService(deps.Events, deps.Articles, logger, perfTracker),
		DashboardAnalyticsService: services.NewDashboardAnalyticsService(deps.Sessions, deps.Events, deps.Articles, dashboardConfig, logger, perfTracker),

		Sessions: deps.Sessions,
		Events:   deps.Events,
		Articles: deps.Articles,

		DB:          deps.DB,
		Settings:    settings,
		Logger:      logger,
		PerfTracker: perfTracker,
	}, nil
}
