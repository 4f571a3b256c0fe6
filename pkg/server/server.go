// Package server exposes the REST API and websocket monitor for the
// dispatch daemon.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nstogner/dispatch/pkg/archive"
	"github.com/nstogner/dispatch/pkg/engine"
	"github.com/nstogner/dispatch/pkg/model"
	"github.com/nstogner/dispatch/pkg/registry"
	"github.com/nstogner/dispatch/pkg/tools"
)

// Defaults fill in start-request fields the caller omitted. AllowUnsafeTools
// is a gate, not a default: requests can only opt in to unsafe tools when the
// daemon allows it.
type Defaults struct {
	Model            string
	MaxTurns         int
	AllowUnsafeTools bool
}

// Server serves the REST API for the dispatch daemon.
type Server struct {
	engine   *engine.Engine
	registry *registry.Registry
	archive  *archive.Archive
	provider model.Provider
	gateway  tools.Gateway
	srv      *http.Server

	// Defaults applies to POST /api/conversations. Zero value means no
	// defaulting and no unsafe tools.
	Defaults Defaults
}

// New creates a new Server. The archive may be nil, in which case archive
// routes return 404.
func New(
	eng *engine.Engine,
	reg *registry.Registry,
	arc *archive.Archive,
	provider model.Provider,
	gateway tools.Gateway,
) *Server {
	return &Server{
		engine:   eng,
		registry: reg,
		archive:  arc,
		provider: provider,
		gateway:  gateway,
	}
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	// Conversation routes
	mux.HandleFunc("POST /api/conversations", s.handleStartConversation)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("POST /api/conversations/{id}/cancel", s.handleCancelConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)

	// Archive
	mux.HandleFunc("GET /api/archive", s.handleListArchive)
	mux.HandleFunc("GET /api/archive/{id}", s.handleGetArchived)
	mux.HandleFunc("DELETE /api/archive/{id}", s.handleDeleteArchived)

	// Models and tools
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("GET /api/tools", s.handleListTools)

	// WebSocket monitor
	mux.HandleFunc("/api/watch", s.handleWatchWebSocket)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.corsMiddleware(mux),
	}

	slog.Info("Starting API server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("API Error", "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
