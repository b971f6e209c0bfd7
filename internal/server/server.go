package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/voiceflow/internal/config"
	"github.com/leonardotrapani/voiceflow/internal/llm"
	"github.com/leonardotrapani/voiceflow/internal/recognizer"
	"github.com/leonardotrapani/voiceflow/internal/relay"
	"github.com/leonardotrapani/voiceflow/internal/session"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Options wires a Server to the rest of the process.
type Options struct {
	// Config is consulted on every request so reloads reach new connections.
	Config   func() *config.Config
	Factory  recognizer.Factory
	Registry *session.Registry
	// Summarizer returns nil when summaries are unavailable under cfg.
	Summarizer func(cfg *config.Config) (llm.Summarizer, error)
	Logger     *log.Logger
}

// Server owns the websocket connection table and implements relay.Emitter
// on top of it.
type Server struct {
	config     func() *config.Config
	factory    recognizer.Factory
	registry   *session.Registry
	summarizer func(cfg *config.Config) (llm.Summarizer, error)
	logger     *log.Logger
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	wg      sync.WaitGroup
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = session.NewRegistry(logger)
	}
	s := &Server{
		config:     opts.Config,
		factory:    opts.Factory,
		registry:   registry,
		summarizer: opts.Summarizer,
		logger:     logger.WithPrefix("server"),
		clients:    make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/ws", s.handleWebsocket)
	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.cors)
		r.Options("/summarize", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/summarize", s.handleSummarize)
	})

	if dir := s.config().Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			s.logger.Warn("static directory not found, frontend disabled", "dir", dir)
		}
	}

	return r
}

func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Emit writes msg to the connection connID.
func (s *Server) Emit(connID string, msg relay.Message) error {
	s.mu.RLock()
	c := s.clients[connID]
	s.mu.RUnlock()
	if c == nil {
		return ErrUnknownConnection
	}
	return c.writeJSON(msg, s.config().Server.WriteTimeout)
}

func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// CloseAll closes every websocket and waits for their handlers to finish
// tearing down sessions.
func (s *Server) CloseAll(ctx context.Context) error {
	s.mu.RLock()
	for _, c := range s.clients {
		c.close()
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return originAllowed(s.config().Server.AllowedOrigins, origin)
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(s.config().Server.AllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Sessions:    s.registry.Len(),
		Connections: s.Connections(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start).Round(time.Millisecond),
					"remote", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
