// Package server exposes the filesystem adapter over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/metrics"
	"github.com/s3fs-fuse/bucketfs/internal/vfs"
)

// Config configures the HTTP server.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	// ServiceURLs is reported by GET /api/v1/urls, keyed by service name.
	ServiceURLs map[string]string
}

// Server serves the file browser API.
type Server struct {
	config     Config
	fs         *vfs.Adapter
	provider   credentials.Provider
	metrics    metrics.Manager
	log        logrus.FieldLogger
	httpServer *http.Server
}

// New creates a server. The router is built immediately, so Handler can be
// used without calling Start.
func New(cfg Config, fs *vfs.Adapter, provider credentials.Provider, mgr metrics.Manager, log logrus.FieldLogger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if mgr == nil {
		mgr = metrics.NewManager(metrics.Config{})
	}

	s := &Server{
		config:   cfg,
		fs:       fs,
		provider: provider,
		metrics:  mgr,
		log:      log,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.requestID)
	router.Use(s.logging)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/credentials", s.handleCredentials).Methods(http.MethodGet)
	api.HandleFunc("/buckets", s.handleListBuckets).Methods(http.MethodGet)
	api.HandleFunc("/files", s.handleListFiles).Methods(http.MethodGet)
	api.HandleFunc("/files", s.handleDeleteFile).Methods(http.MethodDelete)
	api.HandleFunc("/stat", s.handleStat).Methods(http.MethodGet)
	api.HandleFunc("/content", s.handleGetContent).Methods(http.MethodGet)
	api.HandleFunc("/content", s.handleSaveContent).Methods(http.MethodPut)
	api.HandleFunc("/download", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/folders", s.handleCreateFolder).Methods(http.MethodPost)
	api.HandleFunc("/folders", s.handleDeleteFolder).Methods(http.MethodDelete)
	api.HandleFunc("/rename", s.handleRename).Methods(http.MethodPost)
	api.HandleFunc("/urls", s.handleServiceURLs).Methods(http.MethodGet)
	api.HandleFunc("/log", s.handleClientLog).Methods(http.MethodPost)

	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.log),
		handlers.PrintRecoveryStack(true),
	)(router)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.log.WithField("address", s.config.Listen).Info("Starting API server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
