package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ems/internal/gate"
	"github.com/desertthunder/ems/internal/models"
	"github.com/desertthunder/ems/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the mux patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Sessions is the session surface the web front drives.
type Sessions interface {
	Snapshot() session.Snapshot
	WaitResolved(ctx context.Context) error
	Login(ctx context.Context, email, password string) (*models.Identity, error)
	Register(ctx context.Context, profile models.RegisterProfile) (*models.Identity, error)
	Logout(ctx context.Context)
}

// Badge supplies the notification list and unread count.
type Badge interface {
	UnreadCount() int
	Sync(ctx context.Context) ([]models.Notification, error)
}

// Opts configures a [Server].
type Opts struct {
	Addr     string
	Sessions Sessions
	Table    *gate.Table
	// Feed is optional; without it the badge is always zero.
	Feed     Badge
	Registry *prometheus.Registry
	Logger   *log.Logger
}

// Server serves the web front.
type Server struct {
	router *BasicRouter
	http   *http.Server
	logger *log.Logger
}

// New wires the routes for opts.
func New(opts Opts) *Server {
	if opts.Table == nil {
		opts.Table = gate.DefaultTable()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	router := NewBasicRouter()
	router.Handle(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	router.Use(RequestLogger(opts.Logger), NewHTTPMetrics(opts.Registry).Middleware)

	views := newViews(opts.Sessions, opts.Feed)
	router.Handler(NewPageHandler(opts.Sessions, opts.Table, views, opts.Logger))
	router.Handler(NewAuthHandler(opts.Sessions, opts.Table, views, opts.Logger))
	router.Handler(NewNavHandler(opts.Sessions, opts.Feed))

	return &Server{
		router: router,
		http:   &http.Server{Addr: opts.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second},
		logger: opts.Logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting web front", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("error shutting down server", "error", err)
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
