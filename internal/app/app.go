// Package app wires all vigil subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects the
// trigger store, frame source, vision provider, and query engine from a
// config; Run starts the HTTP server and the query loop; Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithQuerier, WithStore). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/framelens/vigil/internal/config"
	"github.com/framelens/vigil/internal/engine"
	"github.com/framelens/vigil/internal/health"
	"github.com/framelens/vigil/internal/observe"
	"github.com/framelens/vigil/internal/resilience"
	"github.com/framelens/vigil/internal/trigger"
	"github.com/framelens/vigil/pkg/framesource"
	"github.com/framelens/vigil/pkg/framesource/filesource"
	"github.com/framelens/vigil/pkg/framesource/wssource"
	"github.com/framelens/vigil/pkg/provider/vision"
)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a frame source instead of creating one from config.
func WithSource(s framesource.Source) Option {
	return func(a *App) { a.source = s }
}

// WithQuerier injects a vision querier instead of creating one via the
// provider registry.
func WithQuerier(q vision.Querier) Option {
	return func(a *App) { a.querier = q }
}

// WithStore injects a trigger store instead of creating one from config.
func WithStore(s trigger.Store) Option {
	return func(a *App) { a.store = s }
}

// WithProviderRegistry replaces the vision provider registry used to build
// the querier. Embedders use this to register additional providers.
func WithProviderRegistry(r *config.Registry) Option {
	return func(a *App) { a.providers = r }
}

// WithOnResult sets a callback invoked for every feed entry the engine
// produces.
func WithOnResult(fn func(engine.Result)) Option {
	return func(a *App) { a.onResult = fn }
}

// WithPrometheusRegisterer sets the Prometheus registerer the metrics
// exporter registers with. Tests pass a fresh registry so repeated App
// construction does not collide on metric registration.
func WithPrometheusRegisterer(r prometheus.Registerer) Option {
	return func(a *App) { a.promReg = r }
}

// App owns all subsystem lifetimes and orchestrates the visual-query server.
type App struct {
	cfg       *config.Config
	providers *config.Registry
	onResult  func(engine.Result)
	promReg   prometheus.Registerer

	// Subsystems — initialised in New, torn down in Shutdown.
	store    trigger.Store
	triggers *trigger.Registry
	source   framesource.Source
	querier  vision.Querier
	engine   *engine.Engine
	server   *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// New builds an App from cfg. The config must already be validated.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.providers == nil {
		a.providers = config.DefaultRegistry()
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{Registerer: a.promReg})
	if err != nil {
		return nil, fmt.Errorf("app: init metrics provider: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownMetrics(shutCtx)
	})

	if err := a.initStore(); err != nil {
		return nil, err
	}
	a.triggers, err = trigger.NewRegistry(a.store)
	if err != nil {
		return nil, fmt.Errorf("app: trigger registry: %w", err)
	}

	mux := http.NewServeMux()
	if err := a.initSource(mux); err != nil {
		return nil, err
	}

	if a.querier == nil {
		a.querier, err = a.providers.CreateQuerier(cfg.Inference)
		if err != nil {
			return nil, fmt.Errorf("app: vision provider: %w", err)
		}
		if fb := cfg.Inference.Fallback; fb != nil {
			secondary, err := a.providers.CreateQuerier(fb.Inference())
			if err != nil {
				return nil, fmt.Errorf("app: fallback vision provider: %w", err)
			}
			wrapped := resilience.NewVisionFallback(a.querier, cfg.Inference.Provider, resilience.FallbackConfig{})
			wrapped.AddFallback(fb.Provider, secondary)
			a.querier = wrapped
			slog.Info("vision failover enabled", "primary", cfg.Inference.Provider, "fallback", fb.Provider)
		}
	}

	a.engine, err = engine.New(engine.Config{
		Source:   a.source,
		Querier:  a.querier,
		Triggers: a.triggers,
		Query:    cfg.Engine.Query,
		Pacing:   cfg.Engine.Pacing.Std(),
		OnResult: a.onResult,
	})
	if err != nil {
		return nil, fmt.Errorf("app: engine: %w", err)
	}

	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		func() string { return a.engine.State().String() },
		health.StoreChecker(a.store),
		health.SourceChecker(a.source),
	).Register(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// initStore creates the trigger store from config unless one was injected.
func (a *App) initStore() error {
	if a.store != nil {
		return nil
	}
	path := a.cfg.Storage.StorePath()
	switch a.cfg.Storage.Backend {
	case config.StorageSQLite:
		st, err := trigger.NewSQLiteStore(path)
		if err != nil {
			return fmt.Errorf("app: open trigger store: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	default:
		a.store = trigger.NewFileStore(path)
	}
	slog.Info("trigger store ready", "backend", a.cfg.Storage.Backend, "path", path)
	return nil
}

// initSource creates the frame source from config unless one was injected,
// mounting the websocket ingest endpoint on mux when configured.
func (a *App) initSource(mux *http.ServeMux) error {
	if a.source != nil {
		return nil
	}
	switch a.cfg.Source.Kind {
	case config.SourceFile:
		var opts []filesource.Option
		if d := a.cfg.Source.FrameInterval.Std(); d > 0 {
			opts = append(opts, filesource.WithFrameInterval(d))
		}
		src, err := filesource.New(a.cfg.Source.Path, opts...)
		if err != nil {
			return fmt.Errorf("app: frame source: %w", err)
		}
		a.source = src
		slog.Info("file frame source ready", "dir", a.cfg.Source.Path, "frames", src.Len())
	default:
		var opts []wssource.Option
		if d := a.cfg.Source.StaleAfter.Std(); d != 0 {
			opts = append(opts, wssource.WithStaleAfter(d))
		}
		src := wssource.New(opts...)
		mux.Handle("GET "+a.cfg.Source.IngestPath, src)
		a.source = src
		a.closers = append(a.closers, src.Close)
		slog.Info("websocket frame source ready", "path", a.cfg.Source.IngestPath)
	}
	return nil
}

// Engine returns the query engine, e.g. for changing the free-text query or
// the selected trigger at runtime.
func (a *App) Engine() *engine.Engine { return a.engine }

// Triggers returns the trigger registry.
func (a *App) Triggers() *trigger.Registry { return a.triggers }

// Run starts the HTTP server and the query loop, then blocks until ctx is
// cancelled or the server fails. Shutdown is always attempted before Run
// returns.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", a.cfg.Server.ListenAddr)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if err := a.engine.Start(ctx); err != nil {
		a.Shutdown(context.Background())
		return fmt.Errorf("app: start engine: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		slog.Error("http server failed", "err", runErr)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Shutdown(shutCtx)
	return runErr
}

// Shutdown stops the query loop, drains the HTTP server, and closes all
// subsystems in reverse creation order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) {
	a.stopOnce.Do(func() {
		a.engine.Stop()
		a.engine.Wait()

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				slog.Warn("subsystem close failed", "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
}
