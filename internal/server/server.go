// Package server implements the HTTP server, middleware, and request handlers for the application.
package server

import (
	"html/template"
	"net/http"
	"time"

	"github.com/neonetrek/neonetrek-site/assets"
	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/neonetrek/neonetrek-site/internal/directory"
	"github.com/neonetrek/neonetrek-site/internal/registry"
)

// defaultKeepAlive is how often idle event streams receive a comment line.
const defaultKeepAlive = 25 * time.Second

// New creates a new Server serving dir and reg. statuses may be nil.
func New(dir *directory.Directory, reg *registry.Registry, statuses StatusSource, cfg *config.Config) (*Server, error) {
	index, err := template.ParseFS(assets.Templates(), "index.html")
	if err != nil {
		return nil, err
	}

	return &Server{
		directory:      dir,
		registry:       reg,
		statuses:       statuses,
		index:          index,
		shutdown:       make(chan struct{}),
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		keepAlive:      defaultKeepAlive,
		trustProxy:     cfg.Server.TrustProxy,
	}, nil
}

// Close ends open event streams and stops background cleanup.
// It is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.shutdown) })
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	// One limiter shared by every public data endpoint
	api := http.NewServeMux()
	api.HandleFunc("GET /servers.json", s.handleServerList)
	api.HandleFunc("GET /api/servers", s.handleCards)
	api.HandleFunc("GET /api/servers/{id}", s.handleCard)
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("GET /api/status/{id}", s.handleCardStatus)
	api.HandleFunc("GET /api/events", s.handleEvents)
	limited := s.RateLimitMiddleware(api)

	mux.Handle("GET /servers.json", limited)
	mux.Handle("GET /api/", limited)
	mux.HandleFunc("GET /health", s.handleHealth)

	fileServer := http.FileServer(assets.GetFileSystem())
	mux.Handle("GET /css/", fileServer)
	mux.Handle("GET /js/", fileServer)
	mux.Handle("GET /img/", fileServer)
	mux.Handle("GET /data/", fileServer)

	mux.Handle("GET /", http.HandlerFunc(s.handleIndex))

	return s.LoggingMiddleware(mux)
}
