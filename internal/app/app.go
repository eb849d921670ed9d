package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/servicecall/internal/metrics"
	"github.com/florianilch/servicecall/internal/secrets"
	"github.com/florianilch/servicecall/internal/server"
	"github.com/florianilch/servicecall/internal/servicecall"
	"github.com/florianilch/servicecall/internal/transport"
)

// App orchestrates the lifecycle of the RPC server and related services.
type App struct {
	cfg        *Config
	dispatcher *servicecall.Dispatcher
	metrics    *metrics.Metrics
	health     *Health
	server     *server.Server
}

// NewTransport builds the outbound HTTP client described by cfg.
func NewTransport(cfg *Config) *transport.Client {
	return transport.New(
		transport.WithTimeout(cfg.Transport.Timeout),
		transport.WithUserAgent(cfg.Transport.UserAgent),
		transport.WithDownloadDir(cfg.Download.Dir),
	)
}

// NewDispatcher builds a dispatcher with its own token registry.
func NewDispatcher(cfg *Config, opts ...servicecall.Option) *servicecall.Dispatcher {
	client := NewTransport(cfg)
	return servicecall.NewDispatcher(servicecall.NewRegistry(client, opts...), client, opts...)
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	m := metrics.New()
	dispatcher := NewDispatcher(cfg, servicecall.WithObserver(m))
	m.TrackRegistry(dispatcher.Registry())

	health := NewHealth()

	srv, err := server.New(dispatcher, health,
		server.WithMaxRequestBytes(cfg.Server.MaxRequestBytes),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		server.WithMetricsHandler(m.Handler()),
		server.WithHeaderResolver(secrets.New(cfg.Secrets.Service)),
		server.WithUploadDir(cfg.Download.Dir),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &App{
		cfg:        cfg,
		dispatcher: dispatcher,
		metrics:    m,
		health:     health,
		server:     srv,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting server", "address", a.cfg.Server.Address)
	serverErrCh, err := a.server.Start(gCtx, a.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	a.health.SetReady(true)
	shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
		a.health.SetReady(false)
		return nil
	})

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services", "tokens", a.dispatcher.Registry().Len())

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// Addr returns the address the server is bound to, or "" before Start.
func (a *App) Addr() string {
	if addr := a.server.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Ready reports whether the server accepts requests.
func (a *App) Ready() bool {
	return a.health.IsReady()
}
