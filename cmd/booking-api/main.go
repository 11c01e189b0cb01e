// Package main provides the booking API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/medbook/go-gpc/internal/api/handlers"
	"github.com/medbook/go-gpc/internal/api/middleware"
	"github.com/medbook/go-gpc/internal/booking"
	"github.com/medbook/go-gpc/internal/infrastructure/outbox"
	"github.com/medbook/go-gpc/internal/infrastructure/redpanda"
	"github.com/medbook/go-gpc/internal/observability/metrics"
	"github.com/medbook/go-gpc/internal/observability/tracing"
	"github.com/medbook/go-gpc/internal/store"
	"github.com/medbook/go-gpc/internal/validation"
	"github.com/medbook/go-gpc/pkg/idempotency"
)

// Config holds application configuration
type Config struct {
	Port         string
	KafkaBrokers []string
	ValidatorURL string
	APIKeys      map[string]string
	LogLevel     string
}

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg := loadConfig()

	ctx := context.Background()

	// Initialize tracing
	tracer, err := tracing.Init(ctx, tracing.ConfigFromEnv("booking-api"))
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
	}()

	// Initialize metrics
	m := metrics.New()

	// Initialize the slot store with the seeded catalog
	st := store.New(store.WithLogger(logger))
	m.FreeSlots.Set(float64(st.CountFreeSlots()))
	logger.Info("slot store seeded", zap.Int("free_slots", st.CountFreeSlots()))

	// Remote profile conformance is optional
	var remote validation.RemoteProfileValidator
	if cfg.ValidatorURL != "" {
		remoteCfg := validation.DefaultRemoteClientConfig()
		remoteCfg.BaseURL = cfg.ValidatorURL
		client, err := validation.NewRemoteClient(remoteCfg, logger)
		if err != nil {
			logger.Fatal("failed to create remote validator client", zap.Error(err))
		}
		remote = client
		logger.Info("remote profile validation enabled", zap.String("url", cfg.ValidatorURL))
	}

	validator := validation.NewAppointmentValidator(remote, logger)

	// Event publishing is optional; without brokers the service books
	// appointments but emits no events.
	var sink booking.EventSink
	if len(cfg.KafkaBrokers) > 0 {
		admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.Fatal("failed to create kafka admin", zap.Error(err))
		}
		if err := admin.EnsureTopics(ctx, redpanda.DefaultTopicConfigs()); err != nil {
			logger.Fatal("failed to ensure topics", zap.Error(err))
		}
		admin.Close()

		producerCfg := redpanda.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producer, err := redpanda.NewProducer(producerCfg, logger)
		if err != nil {
			logger.Fatal("failed to create producer", zap.Error(err))
		}
		defer producer.Close()

		ob, err := outbox.New(producer, outbox.DefaultConfig(), m, logger)
		if err != nil {
			logger.Fatal("failed to create outbox", zap.Error(err))
		}
		ob.Start()
		defer func() {
			if err := ob.Stop(); err != nil {
				logger.Error("outbox stop error", zap.Error(err))
			}
		}()
		sink = ob
		logger.Info("event publishing enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	svc := booking.NewService(validator, st, sink, m, logger)

	// Booking POSTs replay through the inbox when a client retries with
	// the same X-Request-ID
	inbox := idempotency.NewInbox(idempotency.DefaultInboxConfig(), logger)
	defer inbox.Close()

	bookingHandler := handlers.NewBookingHandler(svc, st, inbox, logger)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("booking-api"))

	// Health check and metrics (no auth)
	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	// API routes (with auth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		r.Mount("/", bookingHandler.Routes())
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting booking API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func loadConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	// Simple API keys for demo
	apiKeys := map[string]string{
		"demo-api-key-12345": "demo-client",
		"test-api-key-67890": "test-client",
	}

	// Override from environment if set
	if key := os.Getenv("API_KEY"); key != "" {
		apiKeys[key] = "env-client"
	}

	return Config{
		Port:         port,
		KafkaBrokers: brokers,
		ValidatorURL: os.Getenv("VALIDATOR_URL"),
		APIKeys:      apiKeys,
		LogLevel:     os.Getenv("LOG_LEVEL"),
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"booking-api","version":"1.0.0"}`)
}
