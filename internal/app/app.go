// Package app is the Lifecycle (C7): assembles the Task Store, Plugin
// Registry, Action Dispatcher and Scheduler in the order §4.7 mandates,
// wires OS-signal cancellation, and awaits a bounded drain on shutdown.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/OctaHive/octabot/internal/action"
	"github.com/OctaHive/octabot/internal/auth"
	"github.com/OctaHive/octabot/internal/clock"
	"github.com/OctaHive/octabot/internal/config"
	"github.com/OctaHive/octabot/internal/httpapi"
	"github.com/OctaHive/octabot/internal/kv"
	"github.com/OctaHive/octabot/internal/logging"
	"github.com/OctaHive/octabot/internal/migrate"
	"github.com/OctaHive/octabot/internal/observability"
	"github.com/OctaHive/octabot/internal/registry"
	"github.com/OctaHive/octabot/internal/sandbox"
	"github.com/OctaHive/octabot/internal/scheduler"
	"github.com/OctaHive/octabot/internal/store"
)

// App owns every long-lived component and its shutdown order.
type App struct {
	Config     config.Config
	Log        *logging.Logger
	Store      *store.Store
	Registry   *registry.Registry
	Dispatcher *action.Dispatcher
	Scheduler  *scheduler.Scheduler
	Auth       *auth.Issuer
	API        *httpapi.Handler

	sandboxHost *sandbox.Host
	httpSrv     *http.Server
	closers     []func(context.Context) error
}

// Boot brings up the engine in the order the lifecycle mandates: open the
// Task Store (running migrations), build the Plugin Registry, start the
// Action Dispatcher, start the Scheduler. Returns a non-nil error on any
// boot failure, matching the CLI's "non-zero exit on boot failure"
// contract.
func Boot(ctx context.Context, cfg config.Config, log *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	shutdownTracing, err := observability.Init(ctx, "octabot", cfg.LogLevel == "debug")
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.addCloser(shutdownTracing)

	if err := migrate.Up(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	a.addCloser(func(context.Context) error { pool.Close(); return nil })
	a.Store = store.New(pool)

	rdb, err := kv.Open(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	a.addCloser(func(context.Context) error { return rdb.Close() })
	kvStore := kv.New(rdb)

	sandboxHost, err := sandbox.NewHost(ctx, kvStore, log.Named("sandbox"), "")
	if err != nil {
		return nil, fmt.Errorf("init sandbox host: %w", err)
	}
	a.sandboxHost = sandboxHost
	a.addCloser(sandboxHost.Close)

	a.Registry = registry.New(sandboxHost, log.Named("registry"), cfg.PluginDir, loadPluginConfigs(cfg.PluginDir))
	if err := a.Registry.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan plugin registry: %w", err)
	}
	a.addCloser(a.Registry.Close)

	a.Dispatcher = action.New(log.Named("action"), kvStore, os.Getenv("CHAT_WEBHOOK_URL"))

	poolCapacity := cfg.PoolCapacity
	if poolCapacity <= 0 {
		poolCapacity = runtime.NumCPU()
	}
	a.Scheduler = scheduler.New(ctx, a.Store, a.Registry, a.Dispatcher, clock.Real{}, log.Named("scheduler"), scheduler.Config{
		Tick:          cfg.Tick(),
		PoolCapacity:  poolCapacity,
		LeaseTTL:      cfg.LeaseTTL(),
		PluginTimeout: cfg.PluginTimeout(),
		MaxRetries:    cfg.MaxRetries,
		RetryBase:     cfg.RetryBase(),
		RetryCap:      cfg.RetryCap(),
	})

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set; issued tokens use an empty signing key")
	}
	a.Auth = auth.NewIssuer(cfg.JWTSecret, cfg.JWTMaxAge())
	a.API = httpapi.New(a.Store, a.Scheduler, a.Auth, log.Named("httpapi"))
	a.httpSrv = &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: otelhttp.NewHandler(a.API.Router(), "octabot.http"),
	}

	return a, nil
}

func (a *App) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// loadPluginConfigs reads <pluginDir>/config.json, a host-side map of
// plugin name to opaque init config, if present. Its absence is not an
// error — every plugin then inits with "{}".
func loadPluginConfigs(pluginDir string) map[string]json.RawMessage {
	path := pluginDir + "/config.json"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// Run starts the Scheduler and blocks until an OS signal or ctx
// cancellation, then drains it with the configured shutdown deadline.
func (a *App) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := a.Registry.Watch(sigCtx); err != nil {
			a.Log.Warnw("plugin registry watch stopped", "err", err)
		}
	}()

	go a.Scheduler.Start()

	go func() {
		a.Log.Infow("http api listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Errorw("http api stopped unexpectedly", "err", err)
		}
	}()

	<-sigCtx.Done()
	a.Log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownDeadline)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.Log.Warnw("http api shutdown deadline exceeded", "err", err)
	}

	a.Scheduler.Shutdown(a.Config.ShutdownDeadline)
	return a.Close(context.Background())
}

// Close releases every component acquired during Boot, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.closers[i](cctx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	return firstErr
}
