// Package web hosts the REST API on an HTTP listener.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"canforge/api"
	"canforge/config"
	"canforge/engine"
	"canforge/logging"
)

// Server is the HTTP server for the REST API.
type Server struct {
	config  *config.WebConfig
	engine  *engine.Engine
	server  *http.Server
	router  chi.Router
	addr    string
	running bool
	mu      sync.RWMutex

	// Stops the API event stream
	apiCleanup func()
}

// NewServer creates a web server serving eng under /api.
func NewServer(cfg *config.WebConfig, eng *engine.Engine) *Server {
	s := &Server{
		config: cfg,
		engine: eng,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the chi router with all routes.
func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(requestLogger)
	r.Use(corsMiddleware)

	apiRouter, cleanup := api.NewRouter(s.engine)
	s.apiCleanup = cleanup
	r.Mount("/api", apiRouter)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/", http.StatusFound)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// debugLogWriter adapts logging.DebugLog to an io.Writer for use with log.Logger.
type debugLogWriter string

func (tag debugLogWriter) Write(p []byte) (n int, err error) {
	logging.DebugLog(string(tag), "%s", string(p))
	return len(p), nil
}

var _ io.Writer = debugLogWriter("")

// requestLogger writes one debug line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.DebugLog(logging.CatAPI, "%s %s %d %dB %v (%s)",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), r.RemoteAddr)
	})
}

// corsMiddleware adds CORS headers for API access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start binds the listener and serves in the background. Bind errors are
// returned; a port of 0 picks a free port, reported by Address.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.apiCleanup == nil {
		s.setupRoutes()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.config.Host, s.config.Port))
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(debugLogWriter(logging.CatAPI), "", 0),
	}
	s.server = srv

	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			logging.DebugError(logging.CatAPI, "serve", err)
			s.mu.Lock()
			if s.server == srv {
				s.running = false
			}
			s.mu.Unlock()
		}
	}()

	s.running = true
	logging.DebugLog(logging.CatAPI, "listening on %s", s.addr)
	return nil
}

// Stop halts the HTTP server gracefully.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	// Ends open event streams so Shutdown does not wait on them
	if s.apiCleanup != nil {
		s.apiCleanup()
		s.apiCleanup = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.running = false
	s.server = nil
	return err
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server address.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr != "" {
		return "http://" + s.addr
	}
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}
