package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
	"github.com/hellf17/clinical-corvus-sub005/internal/history"
	"github.com/hellf17/clinical-corvus-sub005/internal/middleware"
	"github.com/hellf17/clinical-corvus-sub005/internal/service"
	"github.com/hellf17/clinical-corvus-sub005/pkg/remote"
)

// PatientStore is the persistence surface the HTTP handlers need.
// *repository.PatientRepository satisfies it; tests use an in-memory fake.
type PatientStore interface {
	CreatePatient(ctx context.Context, patient *domain.Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*domain.Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]*domain.Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error
	AddExam(ctx context.Context, exam *domain.ExamRecord) error
	AddVitalSigns(ctx context.Context, patientID uuid.UUID, reading *domain.VitalSignReading) error
	LoadSnapshot(ctx context.Context, patientID uuid.UUID) (*domain.PatientSnapshot, error)
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	engine        *service.ScoreEngine
	patients      PatientStore
	runs          history.Store
	crossCheck    *remote.CrossChecker
	log           *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	upgrader      websocket.Upgrader
}

// NewServer creates a new HTTP server instance. crossCheck may be nil when
// no remote scoring service is configured.
func NewServer(configManager domain.ConfigManager, engine *service.ScoreEngine, patients PatientStore, runs history.Store, crossCheck *remote.CrossChecker, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())

	server := &Server{
		configManager: configManager,
		engine:        engine,
		patients:      patients,
		runs:          runs,
		crossCheck:    crossCheck,
		log:           logger,
		router:        router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin; auth happens upstream.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router exposes the underlying handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes. Patient record routes exist only when a patient store
	// is wired; standalone deployments serve stateless scoring only.
	v1 := s.router.Group("/api/v1")
	{
		if s.patients != nil {
			v1.POST("/patients", s.handleCreatePatient)
			v1.GET("/patients", s.handleListPatients)
			v1.GET("/patients/:id", s.handleGetPatient)
			v1.DELETE("/patients/:id", s.handleDeletePatient)

			v1.POST("/patients/:id/exams", s.handleAddExam)
			v1.POST("/patients/:id/vitals", s.handleAddVitals)

			v1.GET("/patients/:id/scores", s.handleComputeScores)
			v1.GET("/patients/:id/scores/stream", s.handleScoreStream)
			v1.GET("/patients/:id/scores/:kind", s.handleComputeScore)
			v1.GET("/patients/:id/history", s.handleHistory)
		}

		// Stateless scoring: snapshot in the request body, nothing persisted.
		v1.POST("/scores/:kind", s.handleStatelessScore)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware adds a unique request ID to each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// generateRequestID generates a simple request ID
func generateRequestID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
