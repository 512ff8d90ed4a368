package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/eventis/backstage-api/internal/bus"
	"github.com/eventis/backstage-api/internal/config"
	"github.com/eventis/backstage-api/internal/deadline"
	"github.com/eventis/backstage-api/internal/gateway"
	"github.com/eventis/backstage-api/internal/handlers"
	"github.com/eventis/backstage-api/internal/middleware"
	"github.com/eventis/backstage-api/internal/migration"
	"github.com/eventis/backstage-api/internal/notification"
	"github.com/eventis/backstage-api/internal/repository"
	"github.com/eventis/backstage-api/internal/routes"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config        *config.Config
	db            *sql.DB
	logger        zerolog.Logger
	eventBus      *bus.Bus
	notifications notification.Service
	scanner       *deadline.Scanner
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// One bus per process; every live topic shares it.
	eventBus := bus.New(logger)

	// Email escalation is optional; without it URGENT/DEADLINE levels
	// simply stay in-app.
	var dispatcher notification.Dispatcher
	if cfg.Email.Enabled {
		smtp, err := notification.NewSMTPDispatcher(cfg.Email, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure email dispatcher")
		}
		dispatcher = smtp
	} else {
		logger.Warn().Msg("email escalation disabled")
	}

	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	notificationService := notification.NewService(notificationRepo, userRepo, eventBus, dispatcher, logger)

	app := &application{
		config:        cfg,
		db:            db,
		logger:        logger,
		eventBus:      eventBus,
		notifications: notificationService,
		scanner:       deadline.NewScanner(taskRepo, notificationService, cfg.Deadline.Schedule, logger),
	}

	if err := app.scanner.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start deadline scanner")
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(userRepo)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(userRepo repository.UserRepository) http.Handler {
	authHandler := handlers.NewAuthHandler(userRepo, app.config.JWTSecret, app.logger)
	notificationHandler := handlers.NewNotificationHandler(app.notifications, app.logger)
	subscribeHandler := handlers.NewSubscribeHandler(gateway.New(app.eventBus, app.logger), app.logger)

	return routes.NewRouter(authHandler, notificationHandler, subscribeHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		app.logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		app.logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		app.logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		app.logger.Info().Msg("HTTP server shutdown complete.")
	}

	app.scanner.Stop()

	// Closing the bus ends every live subscription; in-flight email
	// escalations are given a chance to settle.
	app.eventBus.Close()
	app.notifications.WaitForEscalations()
	app.logger.Info().Msg("Notification fan-out drained.")
}
