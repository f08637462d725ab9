// Package app wires the relay server runtime: config, logging, the account
// store, HTTP routes and the websocket relay.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"relay/cmd/identity"
	authapi "relay/cmd/internal/auth/api"
	"relay/cmd/internal/realtime"
	"relay/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// App is the relay server runtime: it owns the account store, the HTTP
// handler chain and the websocket gateway.
type App struct {
	cfg Config
	log Logger

	repo       identity.Repository
	persistent bool

	metricsReg *prometheus.Registry
	httpM      *HTTPMetrics

	ws   *realtime.WSGateway
	auth *authapi.Handler
}

// New constructs a fully wired App. It opens and migrates the configured
// store; Close (or Run) releases it.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	repo, persistent, err := newRepository(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := newApp(cfg, log, repo, persistent, pwCfg)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	return a, nil
}

func newApp(cfg Config, log Logger, repo identity.Repository, persistent bool, pwCfg password.Config) (*App, error) {
	var (
		reg       *prometheus.Registry
		registrar prometheus.Registerer
	)
	if cfg.MetricsEnabled {
		reg = newMetricsRegistry()
		registrar = reg
	}

	svc, err := identity.NewService(repo,
		identity.WithLogger(log),
		identity.WithPasswordConfig(pwCfg),
		identity.WithMetrics(identity.NewMetrics(registrar)),
	)
	if err != nil {
		return nil, err
	}

	auth, err := authapi.NewHandler(log, svc, cfg.Auth)
	if err != nil {
		return nil, err
	}

	ws := realtime.NewWSGateway(log, realtime.NewRegistry(log), realtime.NewMetrics(registrar), cfg.WS)

	var httpM *HTTPMetrics
	if reg != nil {
		httpM = NewHTTPMetrics(reg)
	}

	return &App{
		cfg:        cfg,
		log:        log,
		repo:       repo,
		persistent: persistent,
		metricsReg: reg,
		httpM:      httpM,
		ws:         ws,
		auth:       auth,
	}, nil
}

// Handler returns the full middleware chain around the route mux.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)

	var h http.Handler = WithRequestLogging(mux, a.log, a.httpM)
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestID(h)
}

// Run serves until ctx is cancelled or the listener fails, then shuts the
// server down gracefully and closes the store.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	// Hijacked websocket connections are not tracked by Shutdown; they end
	// when baseCtx is cancelled after plain requests have drained.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"http", base,
		"ws", wsBaseURL(base)+"/ws/{user_id}",
		"db_driver", a.cfg.DBDriver,
		"metrics", a.metricsReg != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		defer cancelBase()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	if cerr := a.Close(); cerr != nil {
		a.log.Error("store.close.fail", "err", cerr)
	}
	a.log.Info("server.stopped")
	return err
}

// Close releases the account store.
func (a *App) Close() error {
	return a.repo.Close()
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
