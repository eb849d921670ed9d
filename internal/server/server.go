// Package server exposes the servicecall operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/florianilch/servicecall/internal/observability/middleware"
	"github.com/florianilch/servicecall/internal/servicecall"
)

// DefaultMaxRequestBytes bounds request bodies, uploads included.
const DefaultMaxRequestBytes = 64 << 20

// HeaderResolver rewrites header values before they are used, for example
// to replace keyring references with secrets.
type HeaderResolver interface {
	ResolveHeaders(headers map[string]string) (map[string]string, error)
}

// Server routes RPC requests to a servicecall.Dispatcher.
type Server struct {
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
}

// Compile-time check to ensure Server implements http.Handler
var _ http.Handler = (*Server)(nil)

type config struct {
	maxRequestBytes int64
	ratePerSecond   float64
	rateBurst       int
	metrics         http.Handler
	resolver        HeaderResolver
	uploadDir       string
	logger          *slog.Logger
}

// Option configures a Server.
type Option func(*config)

// WithMaxRequestBytes sets the request body limit.
func WithMaxRequestBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxRequestBytes = n
		}
	}
}

// WithRateLimit limits the RPC routes to perSecond requests with the given
// burst. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *config) {
		c.ratePerSecond = perSecond
		c.rateBurst = burst
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *config) {
		c.metrics = h
	}
}

// WithHeaderResolver resolves header values of every request through r.
func WithHeaderResolver(r HeaderResolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithUploadDir sets where uploaded files are spooled before forwarding.
func WithUploadDir(dir string) Option {
	return func(c *config) {
		c.uploadDir = dir
	}
}

// WithLogger sets the logger used for request logs.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New creates a Server for dispatcher. health backs the readiness probe.
func New(dispatcher *servicecall.Dispatcher, health ReadinessChecker, opts ...Option) (*Server, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	if health == nil {
		return nil, errors.New("readiness checker cannot be nil")
	}

	cfg := config{
		maxRequestBytes: DefaultMaxRequestBytes,
		uploadDir:       os.TempDir(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonTag)

	h := &handlers{
		dispatcher: dispatcher,
		resolver:   cfg.resolver,
		validate:   validate,
		uploadDir:  cfg.uploadDir,
	}

	r := chi.NewRouter()
	r.Use(Recovery, middleware.RequestIDGeneration)

	r.Get("/livez", livenessHandler())
	r.Get("/readyz", readinessHandler(health, dispatcher.Registry()))
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(
			middleware.Logging(cfg.logger),
			middleware.RequestIDPropagation,
			middleware.TraceContextExtraction,
			RequestSizeLimit(cfg.maxRequestBytes),
			RateLimit(cfg.ratePerSecond, cfg.rateBurst),
		)

		r.Get("/tokens", h.listTokens)
		r.Post("/tokens", h.createToken)
		r.Get("/tokens/{id}", h.describeToken)
		r.Delete("/tokens/{id}", h.removeToken)
		r.Post("/calls", h.call)
		r.Post("/uploads", h.upload)
		r.Post("/downloads", h.download)
	})

	return &Server{handler: r}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start binds addr and serves in the background. The returned channel
// receives a runtime error, if any, and is closed when serving stops.
func (s *Server) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// In-flight requests finish during Shutdown instead of being
		// cancelled with the start context.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	slog.InfoContext(ctx, "server listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh, nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type handlers struct {
	dispatcher *servicecall.Dispatcher
	resolver   HeaderResolver
	validate   *validator.Validate
	uploadDir  string
}

// headers parses raw header JSON and resolves secret references.
func (h *handlers) headers(raw json.RawMessage) (map[string]string, error) {
	text, err := headerText(raw)
	if err != nil {
		return nil, err
	}
	headers, err := servicecall.ParseHeaders(text)
	if err != nil {
		return nil, err
	}
	if h.resolver == nil {
		return headers, nil
	}
	resolved, err := h.resolver.ResolveHeaders(headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return resolved, nil
}
