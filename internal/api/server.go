// Package api serves the research assistant over HTTP as a JSON API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/siftworks/sift/internal/ingest"
	"github.com/siftworks/sift/internal/workflow"
)

// Service is the application surface the API exposes.
type Service interface {
	Query(ctx context.Context, userID, threadID, query string) (*workflow.Result, error)
	IngestDocuments(ctx context.Context, paths []string) (ingest.Result, error)
	ResetThread(ctx context.Context, threadID string) error
	Healthy(ctx context.Context) error
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Service Service // Required
	Logger  *slog.Logger
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handlers{service: cfg.Service, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", h.query)
	mux.HandleFunc("POST /api/v1/documents", h.ingestDocuments)
	mux.HandleFunc("POST /api/v1/threads/{id}/reset", h.resetThread)
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /readyz", h.ready)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> Routes
	// RequestID runs before Logging so request_id is available in log attributes.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
