/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Earnings & Delivery Reconciliation Engine.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, optional YAML file, environment)
  2. Configure the logger
  3. Initialize SQLite store
  4. Load rate tables (built-in unless TABLES_PATH is set)
  5. Build the notification dispatcher (Kafka and/or SMS when configured)
  6. Create API handler, router and scheduler
  7. Start server with graceful shutdown

CONFIGURATION:
  See config/config.go. The most common variables:
    HTTP_PORT             HTTP server port (default: 8080)
    DB_PATH               SQLite database path (default: earnings.db)
                          Use ":memory:" for in-memory database
    COMMISSION_BASE_RATE  Base rate until an admin sets one (default: 0.10)
    KAFKA_BROKERS         Comma-separated; enables the Kafka channel
    SMS_API_URL           Enables the SMS channel
    LOG_LEVEL, LOG_FORMAT debug|info|warn|error, json|console

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Flush in-flight notifications
  5. Close Kafka writer and database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Ad billing and monthly awards
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/earnings-engine/api"
	"github.com/warp/earnings-engine/config"
	"github.com/warp/earnings-engine/factory"
	"github.com/warp/earnings-engine/notify"
	"github.com/warp/earnings-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Log)

	// Initialize store
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to initialize database")
	}
	defer store.Close()

	tables := factory.Defaults()
	if cfg.Tables.Path != "" {
		if tables, err = factory.LoadRateTables(cfg.Tables.Path); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Tables.Path).Msg("failed to load rate tables")
		}
		logger.Info().Str("path", cfg.Tables.Path).Msg("rate tables loaded")
	}

	// Notification channels
	var senders []notify.Sender
	var kafkaPub *notify.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub = notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		senders = append(senders, kafkaPub)
	}
	if cfg.SMS.APIURL != "" {
		senders = append(senders, notify.NewSMSSender(cfg.SMS.APIURL, cfg.SMS.Username, cfg.SMS.Password, cfg.SMS.SenderID))
	}
	dispatcher := notify.NewDispatcher(store, logger, senders...)

	// Initialize handler
	handler := api.NewHandler(store, dispatcher)
	handler.Points.Tiers = tables.Loyalty
	handler.Ads.Packages = tables.AdPackages
	handler.Ads.PeriodDays = tables.AdPeriodDays
	handler.Commission.DefaultBaseRate, _ = cfg.BaseRate() // validated by config.Load

	router := api.NewRouter(handler, logger, cfg.HTTP.AllowedOrigins)

	scheduler := api.NewScheduler(handler.Ads, handler.Awards, logger)
	scheduler.CheckInterval = cfg.Scheduler.AdBillingInterval
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Int("channels", len(senders)).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	dispatcher.Wait()
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Warn().Err(err).Msg("kafka writer close failed")
		}
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "earnings-engine").Logger()
}
