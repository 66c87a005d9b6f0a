package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pagerbell/pagerbell/internal/config"
	"github.com/pagerbell/pagerbell/internal/database"
	"github.com/pagerbell/pagerbell/internal/engine"
	"github.com/pagerbell/pagerbell/internal/handlers"
	"github.com/pagerbell/pagerbell/internal/middleware"
	"github.com/pagerbell/pagerbell/internal/notify"
	"gorm.io/gorm/logger"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Pagerbell...")

	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/incidents",
			"/dashboard*",
			"/auth/login",
		},
	})
	log.Printf("JWT authentication enabled for operator: %s", cfg.AdminUsername)

	// Initialize database connection
	db, err := database.Connect(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	store := database.NewStore(db)

	// Load the on-call roster (contacts + schedule windows)
	if err := store.LoadRoster(cfg.RosterPath, cfg.TimeLayout, cfg.Location); err != nil {
		log.Printf("Warning: Failed to load roster from %s: %v", cfg.RosterPath, err)
	}

	// Build the notification channel chain in priority order: SMS, email, chat
	var channels []notify.Channel
	if cfg.SMSGatewayURL != "" {
		channels = append(channels, notify.NewSMSChannel(cfg.SMSGatewayURL, cfg.SMSFrom, cfg.SMSToken))
		log.Printf("SMS notification channel enabled")
	}
	if cfg.SMTPAddr != "" {
		channels = append(channels, notify.NewEmailChannel(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword))
		log.Printf("Email notification channel enabled")
	}
	if cfg.SlackBotToken != "" {
		channels = append(channels, notify.NewSlackChannel(cfg.SlackBotToken))
		log.Printf("Slack notification channel enabled")
	}
	if len(channels) == 0 {
		log.Printf("Warning: no notification channels configured, assignees will not be notified")
	}
	dispatcher := notify.NewDispatcher(channels...)

	// Initialize the escalation engine
	broker := engine.NewBroker()
	eng := engine.New(store, dispatcher, broker, engine.Config{
		EscalationDelay:  cfg.EscalationDelay,
		PollInterval:     cfg.PollInterval,
		FailOnNoAssignee: cfg.FailOnNoAssignee,
		TimeLayout:       cfg.TimeLayout,
		Location:         cfg.Location,
	})
	log.Printf("Escalation engine initialized (delay: %s, poll: %s)", cfg.EscalationDelay, cfg.PollInterval)

	// Event stream for dashboard clients
	eventsHub := handlers.NewEventsHub()
	eng.OnUpdate = eventsHub.Broadcast

	// Lifetime context for run loops
	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	// Resume incidents that were active when the process last stopped
	active, err := store.ListActiveIncidents()
	if err != nil {
		log.Fatalf("Failed to list active incidents: %v", err)
	}
	for i := range active {
		incident := active[i]
		eng.Launch(ctx, &incident)
	}
	if len(active) > 0 {
		log.Printf("Resumed %d active incident run loops", len(active))
	}

	// Initialize HTTP handlers
	httpHandler := handlers.NewHTTPHandler()
	incidentHandler := handlers.NewIncidentHandler(store, eng, eventsHub, ctx, cfg.BaseURL, cfg.TimeLayout, cfg.Location)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	incidentHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	eventsHub.SetupRoutes(mux)

	// Wrap all routes with CORS middleware first, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("New incident endpoint: %s/incidents", cfg.BaseURL)
	log.Printf("Dashboard action endpoint: %s/dashboard/action?token={unique_id}", cfg.BaseURL)
	log.Printf("Health check endpoint: %s/health", cfg.BaseURL)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")

	// Stop run loops first: active incidents stay active and resume on the
	// next start
	ctxCancel()
	eventsHub.Close()

	log.Println("Shutting down HTTP server...")
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	log.Println("Shutdown complete")
}
