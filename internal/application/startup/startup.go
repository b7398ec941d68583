// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/readership/internal/application/container"
	"github.com/AtRiskMedia/readership/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/readership/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/readership/internal/infrastructure/caching/stores"
	schema "github.com/AtRiskMedia/readership/internal/infrastructure/database"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/analytics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/content"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/readership/internal/infrastructure/persistence/memory"
	"github.com/AtRiskMedia/readership/internal/presentation/http/server"
	"github.com/AtRiskMedia/readership/pkg/config"
)

// NewLogger builds the channeled logger described by settings.
func NewLogger(settings *config.Settings) (*logging.ChanneledLogger, error) {
	level, err := settings.SlogLevel()
	if err != nil {
		return nil, err
	}
	loggerConfig := logging.DefaultLoggerConfig()
	loggerConfig.JSONFormat = settings.LogJSON
	loggerConfig.DefaultLevel = level
	loggerConfig.LogDirectory = settings.LogDirectory
	return logging.NewChanneledLogger(loggerConfig)
}

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal is received.
func Initialize(settings *config.Settings) error {
	start := time.Now().UTC()

	if settings.GinMode == gin.ReleaseMode || settings.GinMode == gin.DebugMode || settings.GinMode == gin.TestMode {
		gin.SetMode(settings.GinMode)
	}

	logger, err := NewLogger(settings)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	perfTracker := performance.NewTracker(performance.DefaultTrackerConfig(), logger.Perf())

	// Step 1: Open the event store and article catalog
	deps, closeStores, err := buildDependencies(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	// Step 2: Create dependency injection container
	appContainer, err := container.NewContainer(settings, deps, logger, perfTracker)
	if err != nil {
		return err
	}
	logger.Startup().Info("Dependency injection container created with singleton services")

	// Step 3: Start HTTP server
	httpServer := server.New(appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"address", httpServer.Addr(),
		"timezone", settings.ReportingTimezone)

	// Wait for shutdown signal
	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			return err
		}
	}

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return nil
}

// buildDependencies opens the configured stores. The memory driver keeps
// sessions, events and articles in process and loses them on exit.
func buildDependencies(ctx context.Context, settings *config.Settings, logger *logging.ChanneledLogger) (container.Dependencies, func(), error) {
	if settings.DBDriver == database.DriverMemory {
		logger.Startup().Warn("Using in-memory stores, data will not survive a restart")
		logger.LogStartupPhase("database", 0, true, map[string]any{"driver": settings.DBDriver})
		return container.Dependencies{
			Sessions: memory.NewSessionRepository(),
			Events:   memory.NewEventRepository(),
			Articles: memory.NewArticleCatalog(),
		}, func() {}, nil
	}

	phaseStart := time.Now()
	db, err := openDatabase(ctx, settings, logger)
	if err != nil {
		logger.LogStartupPhase("database", time.Since(phaseStart), false, map[string]any{"driver": settings.DBDriver})
		return container.Dependencies{}, nil, err
	}
	if err := schema.NewTableCreator().CreateSchema(ctx, db.DB); err != nil {
		db.Close()
		return container.Dependencies{}, nil, fmt.Errorf("failed to create schema: %w", err)
	}
	logger.LogStartupPhase("database", time.Since(phaseStart), true, map[string]any{"driver": settings.DBDriver})

	phaseStart = time.Now()
	articleCache, expiring, closeCache := openArticleCache(ctx, settings, logger)
	if expiring != nil {
		worker := cleanup.NewWorker(expiring, cleanup.NewConfig(), logger)
		go worker.Start(ctx)
	}
	logger.LogStartupPhase("cache", time.Since(phaseStart), true, map[string]any{"redis": settings.RedisURL != ""})

	deps := container.Dependencies{
		DB:       db,
		Sessions: analytics.NewSQLSessionRepository(db, logger),
		Events:   analytics.NewSQLEventRepository(db, logger),
		Articles: content.NewArticleRepository(db, articleCache, logger),
	}
	closeAll := func() {
		closeCache()
		db.Close()
	}
	return deps, closeAll, nil
}

func openDatabase(ctx context.Context, settings *config.Settings, logger *logging.ChanneledLogger) (*database.DB, error) {
	dsn := settings.DBDSN
	if settings.DBDriver == database.DriverLibSQL {
		if err := database.TestTursoConnectionWithLogger(ctx, dsn, settings.TursoAuthToken, logger); err != nil {
			return nil, fmt.Errorf("turso connection test failed: %w", err)
		}
		dsn = database.RemoteDSN(dsn, settings.TursoAuthToken)
	}

	pool := database.PoolSettings{
		MaxOpenConns:    settings.DBMaxOpenConns,
		MaxIdleConns:    settings.DBMaxIdleConns,
		ConnMaxLifetime: settings.DBConnMaxLifetime,
	}
	db, err := database.NewConnectionWithLogger(ctx, settings.DBDriver, dsn, pool, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openArticleCache prefers Redis when configured and falls back to the
// in-process store. The expiring cache is nil for Redis, which expires keys itself.
func openArticleCache(ctx context.Context, settings *config.Settings, logger *logging.ChanneledLogger) (interfaces.ArticleCache, interfaces.ExpiringCache, func()) {
	if settings.RedisURL != "" {
		client, err := stores.NewRedisClient(ctx, settings.RedisURL)
		if err == nil {
			logger.Cache().Info("Using Redis article cache")
			return stores.NewRedisArticleStore(client, settings.ArticleCacheTTL, logger.Cache()), nil, func() { client.Close() }
		}
		logger.Cache().Warn("Redis unavailable, using in-process article cache", "error", err.Error())
	}
	store := stores.NewArticleStore(settings.ArticleCacheTTL)
	return store, store, func() {}
}
