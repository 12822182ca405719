package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/tradeflow-api/internal/auth"
	"github.com/ksred/tradeflow-api/internal/broker"
	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/database"
	"github.com/ksred/tradeflow-api/internal/engine"
	"github.com/ksred/tradeflow-api/internal/executor"
	"github.com/ksred/tradeflow-api/internal/feed"
	"github.com/ksred/tradeflow-api/internal/journal"
	"github.com/ksred/tradeflow-api/internal/risk"
	"github.com/ksred/tradeflow-api/internal/scheduler"
	"github.com/ksred/tradeflow-api/internal/signals"
	"github.com/ksred/tradeflow-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading engine and its API server with
// graceful shutdown support.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// External collaborators: broker adapter and signal provider
	brokerAdapter, err := broker.New(cfg.Broker)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to build broker adapter")
	}

	provider, err := feed.New(cfg.Feed)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to build signal provider")
	}

	sched, err := scheduler.New(cfg.Trading)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to build scheduler")
	}

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth)
	authHandlers := auth.NewGinHandlers(authService)

	journalService := journal.NewService(db)
	journalHandlers := journal.NewGinHandlers(journalService)

	riskManager := risk.NewManager(cfg.Risk)
	riskHandlers := risk.NewGinHandlers(riskManager, brokerAdapter)

	signalService := signals.NewService(db, provider)
	signalHandlers := signals.NewGinHandlers(signalService)

	executorService := executor.NewService(db, brokerAdapter, riskManager, journalService)
	orderHandlers := executor.NewGinHandlers(executorService)

	// Create and start the engine loop
	processor := engine.NewProcessor(
		cfg.Engine, sched, signalService, executorService,
		riskManager, brokerAdapter, journalService, db,
	)
	engineHandlers := engine.NewGinHandlers(processor)

	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()

	go processor.Start(engineCtx)

	// Initialize router
	router := gin.Default()
	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg.Auth.JWTSecret,
		authHandlers, signalHandlers, orderHandlers,
		riskHandlers, journalHandlers, engineHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop the engine loop before the API so no new broker work starts
	engineCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := brokerAdapter.Disconnect(); err != nil {
		zlog.Warn().Err(err).Msg("Broker disconnect failed")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers. The login
// route is public; everything else requires a valid operator JWT.
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	signalHandlers *signals.GinHandlers,
	orderHandlers *executor.GinHandlers,
	riskHandlers *risk.GinHandlers,
	journalHandlers *journal.GinHandlers,
	engineHandlers *engine.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		// Operator routes
		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(jwtSecret))
		{
			protected.GET("/status", engineHandlers.StatusHandler())
			protected.GET("/account", engineHandlers.AccountHandler())
			protected.GET("/positions", engineHandlers.PositionsHandler())
			protected.GET("/snapshots", engineHandlers.SnapshotsHandler())

			protected.GET("/signals", signalHandlers.ListSignalsHandler())
			protected.POST("/signals", signalHandlers.CreateSignalHandler())
			protected.POST("/signals/fetch", signalHandlers.FetchSignalsHandler())

			protected.GET("/orders", orderHandlers.ListOrdersHandler())
			protected.POST("/orders", orderHandlers.SubmitOrderHandler())
			protected.GET("/orders/:order_id", orderHandlers.GetOrderHandler())
			protected.DELETE("/orders/:order_id", orderHandlers.CancelOrderHandler())
			protected.POST("/orders/:order_id/sync", orderHandlers.SyncOrderHandler())

			protected.GET("/risk/check", riskHandlers.CheckAllHandler())
			protected.GET("/journal", journalHandlers.ListLogsHandler())
		}
	}
}
