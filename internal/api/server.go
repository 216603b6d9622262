package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mattjoyce/linedesk/internal/events"
	"github.com/mattjoyce/linedesk/internal/webhook"
)

// Pusher sends operator-initiated text to a user id.
type Pusher interface {
	Push(ctx context.Context, to, text string) error
}

// InboxStats reports buffer depth for /healthz.
type InboxStats interface {
	Len() int
	Evicted() uint64
}

// Config holds API server configuration
type Config struct {
	Listen string
	// AllowedOrigins are browser origins allowed to call the operator
	// endpoints. Empty means same-origin only.
	AllowedOrigins []string
	// PolicyName is reported by /healthz.
	PolicyName string
}

// Server hosts the webhook ingress and the operator endpoints on one listener.
type Server struct {
	config    Config
	webhook   *webhook.Handler
	pusher    Pusher
	inbox     InboxStats
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	stopStreams chan struct{}
	stopOnce    sync.Once
}

// New creates a new API server instance
func New(config Config, wh *webhook.Handler, pusher Pusher, inbox InboxStats, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		webhook:   wh,
		pusher:    pusher,
		inbox:     inbox,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),

		stopStreams: make(chan struct{}),
	}
}

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 5 * time.Second

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. It returns
// only after in-flight requests have finished or shutdownTimeout has passed,
// so callers can rely on no handler running once it returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open.
		IdleTimeout:  60 * time.Second,
	}
	// Shutdown does not interrupt active handlers; end SSE streams explicitly.
	s.server.RegisterOnShutdown(s.closeStreams)

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) closeStreams() {
	s.stopOnce.Do(func() { close(s.stopStreams) })
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	// Router-level so preflight OPTIONS is answered before method routing.
	// The platform posts server-to-server without an Origin, so the webhook
	// is unaffected.
	r.Use(s.corsMiddleware())

	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	s.webhook.Routes(r)
	r.Post("/api/line/push", s.handlePush)
	r.Get("/api/line/events", s.handleEvents)

	return r
}

// corsMiddleware allows the configured origins. With none configured it is a
// passthrough, since an empty list means allow-all to rs/cors.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	if len(s.config.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Last-Event-ID"},
	})
	return c.Handler
}

// loggingMiddleware logs HTTP requests (no bodies).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		// The operator polls every few seconds; keep that out of INFO.
		if r.Method == http.MethodGet && r.URL.Path == webhook.Path {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
