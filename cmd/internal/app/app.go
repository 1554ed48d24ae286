// Package app wires the Vroom messaging server runtime: config, logging, HTTP routes, and the realtime gateway.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"vroom/cmd/internal/messaging"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App is the server runtime: it owns HTTP server wiring and gateway dependencies.
type App struct {
	cfg Config
	log Logger

	store messaging.Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metricsHandler http.Handler

	ws  *messaging.WSGateway
	api *messaging.APIHandler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	store, dbPool, dbEnabled, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := messaging.NewMetrics(reg)

	svc := messaging.NewService(log, store, metrics)
	conns := messaging.NewConnectionRegistry(log)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		metricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
		ws:  messaging.NewWSGateway(log, svc, conns, metrics),
		api: messaging.NewAPIHandler(log, svc),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.metricsHandler, a.ws, a.api)

	var handler http.Handler = mux
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithSecurityHeaders(handler)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Close store resources (pool etc).
	if err := a.store.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
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

// newStore decides between Postgres-backed persistence and the in-memory dev store.
//
// Ownership model:
// - app owns the pool lifecycle
// - PostgresStore.Close() is a no-op
func newStore(ctx context.Context, cfg Config, log Logger) (messaging.Store, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return messaging.NewInMemoryStore(), nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, err
	}

	store, err := messaging.NewPostgresStore(pool, messaging.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return store, pool, true, nil
}
