package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/laudoscribe/laudoscribe/internal/config"
	"github.com/laudoscribe/laudoscribe/internal/health"
	"github.com/laudoscribe/laudoscribe/internal/observe"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Options bundles the dependencies of a [Server].
type Options struct {
	// Config is the server section of the loaded configuration.
	Config config.ServerConfig

	// Sessions builds and tracks dictation sessions. Required.
	Sessions *Manager

	// Templates resolves template IDs for load_template. Optional.
	Templates TemplateSource

	// Search answers semantic template queries. Optional.
	Search TemplateSearcher

	// Health serves /healthz and /readyz. Required.
	Health *health.Handler

	// Metrics instruments HTTP requests and sessions. Required.
	Metrics *observe.Metrics
}

// Server is the Laudoscribe HTTP front: the dictation WebSocket, health
// probes, and the Prometheus metrics endpoint.
type Server struct {
	cfg      config.ServerConfig
	sessions *Manager
	httpSrv  *http.Server
}

// New assembles the route table and the underlying [http.Server]. Call
// [Server.Run] to start serving.
func New(opts Options) *Server {
	mux := http.NewServeMux()

	opts.Health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /v1/session", &wsHandler{
		manager:   opts.Sessions,
		templates: opts.Templates,
		search:    opts.Search,
	})

	handler := observe.Middleware(opts.Metrics)(mux)

	return &Server{
		cfg:      opts.Config,
		sessions: opts.Sessions,
		httpSrv: &http.Server{
			Addr:              opts.Config.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully: the listener
// stops, in-flight requests finish, and every live dictation session is
// closed. Committed report text is never rolled back by shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS != nil {
			slog.Info("server listening", "addr", s.cfg.ListenAddr, "tls", true)
			err = s.httpSrv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			slog.Info("server listening", "addr", s.cfg.ListenAddr, "tls", false)
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the listener and closes all live sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("server shutting down")

	var errs []error
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.sessions.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session shutdown: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
