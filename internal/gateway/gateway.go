// ABOUTME: Gateway wiring: store, challenge service, auth gates, HTTP server
// ABOUTME: Owns the listener lifecycle and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sunware/authgate/internal/auth"
	"github.com/sunware/authgate/internal/challenge"
	"github.com/sunware/authgate/internal/config"
	"github.com/sunware/authgate/internal/mail"
	"github.com/sunware/authgate/internal/metrics"
	"github.com/sunware/authgate/internal/store"
)

// Gateway ties the identity store, challenge service, and token gates
// into a single HTTP server.
type Gateway struct {
	config     *config.Config
	store      store.IdentityStore
	challenges *challenge.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a gateway from configuration: it opens the SQLite identity
// store and selects the mail deliverer based on mail.enabled.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening identity store: %w", err)
	}

	var deliverer challenge.Deliverer
	if cfg.Mail.Enabled {
		deliverer, err = mail.NewSMTPDeliverer(cfg.Mail, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	} else {
		deliverer = mail.NewLogDeliverer(logger)
	}

	gw, err := NewWithDeps(cfg, st, deliverer, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithDeps builds a gateway around an existing store and deliverer.
func NewWithDeps(cfg *config.Config, st store.IdentityStore, deliverer challenge.Deliverer, logger *slog.Logger) (*Gateway, error) {
	codec, err := auth.NewJWTCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("building token codec: %w", err)
	}

	mux := http.NewServeMux()

	var authRecorder auth.OutcomeRecorder
	var challengeRecorder challenge.Recorder
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		collector := metrics.NewCollector(registry)
		authRecorder = collector
		challengeRecorder = collector
		mux.Handle(cfg.Metrics.Path, metrics.Handler(registry))
	}

	gw := &Gateway{
		config: cfg,
		store:  st,
		challenges: challenge.NewService(
			st, deliverer, codec, logger, challengeRecorder,
		),
		logger: logger.With("component", "gateway"),
	}

	// Public routes: no token required.
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)
	mux.HandleFunc("/auth/generate-otp", gw.handleGenerateOTP)
	mux.HandleFunc("/auth/validate-otp", gw.handleValidateOTP)

	// Gated routes: bearer token required, permission checks per route.
	authed := auth.HTTPAuthMiddleware(codec, cfg.Auth.PublicPrefixes, logger, authRecorder)
	gated := func(permission string, h http.HandlerFunc) http.Handler {
		if permission == "" {
			return authed(h)
		}
		return authed(auth.RequirePermission(permission)(h))
	}
	mux.Handle("/api/onboard", gated("onboard_employee", gw.handleOnboard))
	mux.Handle("/api/update", gated("update_employee", gw.handleUpdate))
	mux.Handle("/api/delete", gated("delete_employee", gw.handleDelete))
	mux.Handle("/api/read", gated("", gw.handleRead))

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler exposes the route table, primarily for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run serves HTTP until ctx is canceled or the server fails, then shuts
// down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the identity store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	g.logger.Info("gateway stopped")
	return firstErr
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the identity store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListIdentities(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
