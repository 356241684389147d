package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	tokenTTL   time.Duration

	// Services
	ingestionService driving.IngestionService
	queryService     driving.QueryService
	documentService  driving.DocumentService

	// Infrastructure
	tokens    driven.IdentityTokens
	taskQueue driven.TaskQueue
	db        Pinger // PostgreSQL health check
	redis     Pinger // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host     string
	Port     int
	Version  string
	TokenTTL time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:     "0.0.0.0",
		Port:     8080,
		Version:  "dev",
		TokenTTL: 24 * time.Hour,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	ingestionService driving.IngestionService,
	queryService driving.QueryService,
	documentService driving.DocumentService,
	tokens driven.IdentityTokens,
	taskQueue driven.TaskQueue,
	db Pinger,
	redis Pinger, // can be nil
) *Server {
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}

	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		tokenTTL:         tokenTTL,
		ingestionService: ingestionService,
		queryService:     queryService,
		documentService:  documentService,
		tokens:           tokens,
		taskQueue:        taskQueue,
		db:               db,
		redis:            redis,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	identity := NewIdentityMiddleware(s.tokens)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Token endpoint (public); binds a wallet identity to a bearer token
	s.router.HandleFunc("POST /api/v1/auth/token", s.handleMintToken)

	// Ingestion saga endpoints
	s.router.Handle("POST /api/v1/documents",
		identity.Authenticate(http.HandlerFunc(s.handleUploadDocument)))
	s.router.Handle("POST /api/v1/documents/{id}/registration",
		identity.Authenticate(http.HandlerFunc(s.handleCompleteRegistration)))
	s.router.Handle("POST /api/v1/documents/{id}/registration/rebuild",
		identity.Authenticate(http.HandlerFunc(s.handleRebuildRegistration)))
	s.router.Handle("POST /api/v1/documents/{id}/resume",
		identity.Authenticate(http.HandlerFunc(s.handleResumeDocument)))
	s.router.Handle("POST /api/v1/documents/{id}/reindex",
		identity.Authenticate(http.HandlerFunc(s.handleReindexDocument)))

	// Document endpoints
	s.router.Handle("GET /api/v1/documents",
		identity.Authenticate(http.HandlerFunc(s.handleListDocuments)))
	s.router.Handle("GET /api/v1/documents/{id}",
		identity.Authenticate(http.HandlerFunc(s.handleGetDocument)))
	s.router.Handle("GET /api/v1/documents/{id}/download",
		identity.Authenticate(http.HandlerFunc(s.handleDownloadDocument)))
	s.router.Handle("GET /api/v1/documents/{id}/stats",
		identity.Authenticate(http.HandlerFunc(s.handleDocumentStats)))
	s.router.Handle("GET /api/v1/documents/{id}/ownership",
		identity.Authenticate(http.HandlerFunc(s.handleVerifyOwnership)))
	s.router.Handle("PUT /api/v1/documents/{id}/visibility",
		identity.Authenticate(http.HandlerFunc(s.handleSetVisibility)))
	s.router.Handle("DELETE /api/v1/documents/{id}",
		identity.Authenticate(http.HandlerFunc(s.handleDeleteDocument)))

	// Ledger view
	s.router.Handle("GET /api/v1/holdings",
		identity.Authenticate(http.HandlerFunc(s.handleLedgerHoldings)))

	// Query endpoint
	s.router.Handle("POST /api/v1/query",
		identity.Authenticate(http.HandlerFunc(s.handleQuery)))
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}
