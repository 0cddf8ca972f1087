package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/hellf17/clinical-corvus-sub005/internal/api"
	"github.com/hellf17/clinical-corvus-sub005/internal/config"
	"github.com/hellf17/clinical-corvus-sub005/internal/database"
	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
	"github.com/hellf17/clinical-corvus-sub005/internal/history"
	"github.com/hellf17/clinical-corvus-sub005/internal/repository"
	"github.com/hellf17/clinical-corvus-sub005/internal/service"
	"github.com/hellf17/clinical-corvus-sub005/pkg/remote"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting Clinical Corvus score server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the patient database and apply migrations. An empty host
	// selects standalone mode: stateless scoring and history only.
	var patients api.PatientStore
	if cfg.Database.Host != "" {
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		migrator, err := database.NewMigrator(configManager.GetDatabaseURL(), "migrations", logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize migrations")
		}
		if err := migrator.Up(); err != nil {
			logger.WithError(err).Fatal("Failed to apply migrations")
		}
		migrator.Close()

		patients = repository.NewPatientRepository(db.Pool, logger)
	} else {
		logger.Info("No database host configured, serving stateless scoring only")
	}

	engine := service.NewScoreEngine(logger)

	runs, err := newHistoryStore(configManager)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open score history store")
	}
	defer runs.Close()

	crossCheck := newCrossChecker(cfg, logger)

	// Create server
	server := api.NewServer(configManager, engine, patients, runs, crossCheck, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// newHistoryStore opens the score-run store named by the history config.
func newHistoryStore(configManager *config.Manager) (history.Store, error) {
	cfg := configManager.GetHistoryConfig()
	if cfg.Driver == "postgres" {
		return history.NewPostgresStoreFromURL(cfg.DSN)
	}
	return history.NewSQLiteStore(cfg.Path)
}

// newCrossChecker wires the optional remote scoring service. Returns nil
// when remote scoring is disabled.
func newCrossChecker(cfg *domain.Config, logger *logrus.Logger) *remote.CrossChecker {
	if !cfg.RemoteAPI.Scoring.Enabled {
		return nil
	}

	client := remote.NewScoringClient(cfg.RemoteAPI.Scoring)

	// Without a Redis URL the cache degrades to memory-only.
	cache, err := remote.NewScoreCache(cfg.Cache)
	if err != nil {
		logger.WithError(err).Warn("Score cache unavailable, continuing without it")
		cache = nil
	}

	resilient := remote.NewResilientScoringClient(client, cache, logger)
	return remote.NewCrossChecker(resilient, logger)
}
