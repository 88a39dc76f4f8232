// Package api exposes the binary cache over HTTP.
//
// The surface follows the binary cache protocol: cache metadata at
// /nix-cache-info, per-artifact metadata at /<name>.narinfo, and
// artifact bytes at /nar/<name>. Uploads use PUT on the same paths;
// bytes and metadata may arrive in either order.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/felixgeelhaar/narcache/application/upload"
)

// Config configures the cache server.
type Config struct {
	// Coordinator handles uploads and fetches.
	Coordinator *upload.Coordinator

	// Address is the HTTP listen address (default ":8080").
	Address string

	// StoreDir is the store directory advertised to clients (default
	// "/nix/store").
	StoreDir string

	// Priority is the cache priority advertised to clients (default
	// 40). Lower numbers win.
	Priority int

	// MaxUploadBytes caps a single upload body. Zero means no limit.
	MaxUploadBytes int64

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration
}

// Server is the cache HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server
	mux        *http.ServeMux
}

// New creates a cache server.
func New(cfg Config) (*Server, error) {
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("api: coordinator is required")
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = "/nix/store"
	}
	if cfg.Priority == 0 {
		cfg.Priority = 40
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /nix-cache-info", s.handleCacheInfo)

	s.mux.HandleFunc("GET /nar/{name}", s.handleGetNar)
	s.mux.HandleFunc("HEAD /nar/{name}", s.handleStatNar)
	s.mux.HandleFunc("PUT /nar/{name}", s.handlePutNar)

	s.mux.HandleFunc("GET /{name}", s.handleGetNarInfo)
	s.mux.HandleFunc("PUT /{name}", s.handlePutNarInfo)
}

// Handler returns the server's handler with middleware applied. Used
// directly by tests.
func (s *Server) Handler() http.Handler {
	return requestLogging(s.mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
