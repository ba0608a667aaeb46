// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/whenworks/whenworks/internal/database"
	"github.com/whenworks/whenworks/internal/handler"
	"github.com/whenworks/whenworks/internal/repository"
	"github.com/whenworks/whenworks/internal/service"
)

func main() {
	ctx := context.Background()

	// Load .env first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()
	if err := database.Bootstrap(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("schema bootstrap failed")
	}
	log.Info().Msg("connected to postgres")

	// ── 2. Wire up layers ────────────────────────────────────────────────
	dateRepo := repository.NewDateRepository(pool)
	eventRepo := repository.NewEventRepository(pool, dateRepo)
	responseRepo := repository.NewResponseRepository(pool, dateRepo)
	availabilityRepo := repository.NewAvailabilityRepository(pool)
	schedulerSvc := service.NewSchedulerService(eventRepo, responseRepo, availabilityRepo)
	eventHandler := handler.NewEventHandler(schedulerSvc, log)

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(log))     // structured access log
	r.Use(handler.CORS)            // clients are browsers on other origins

	// Health
	r.Get("/health", handler.HealthCheck)

	// Organizer-facing API
	r.Route("/events", func(r chi.Router) {
		r.Post("/", eventHandler.CreateEvent)
		r.Get("/", eventHandler.ListEvents)
		r.Get("/{id}/availability", eventHandler.GetEventAvailability)
	})

	// Attendee-facing API, reached through the secret sharing link.
	r.Route("/p/{token}", func(r chi.Router) {
		r.Get("/", eventHandler.GetEventByToken)
		r.Post("/responses", eventHandler.CreateResponse)
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Info().Str("port", port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
