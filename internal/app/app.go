// Package app assembles the service: bus, tracker, settings store, storage,
// metrics, browser watcher, and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/adapter/browser"
	"github.com/JakeFAU/readerglass/internal/api"
	"github.com/JakeFAU/readerglass/internal/clock/system"
	"github.com/JakeFAU/readerglass/internal/config"
	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/metrics"
	"github.com/JakeFAU/readerglass/internal/settings"
	"github.com/JakeFAU/readerglass/internal/sites"
	"github.com/JakeFAU/readerglass/internal/storage"
	"github.com/JakeFAU/readerglass/internal/storage/memory"
	"github.com/JakeFAU/readerglass/internal/storage/postgres"
	"github.com/JakeFAU/readerglass/internal/tracker"
)

// App owns the wired components and their lifecycles.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Bus      *events.Bus
	Settings *settings.Store
	Tracker  *tracker.Tracker
	Registry *prometheus.Registry

	store    storage.Provider
	recorder *storage.Recorder
	sink     *metrics.Sink
	watcher  *browser.Watcher
	server   *api.Server
}

// New assembles the components. Nothing touches the network until Start.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start connects storage, loads settings, and brings every component online.
func (a *App) Start(ctx context.Context) error {
	clk := system.New()
	a.Bus = events.New(clk, a.logger.Named("bus"))
	a.Registry = prometheus.NewRegistry()

	if a.cfg.DB.DSN != "" {
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifeSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("connect storage: %w", err)
		}
		a.store = store
	} else {
		a.logger.Info("no database configured, using in-memory storage")
		a.store = memory.New()
	}

	a.Settings = settings.NewStore(settings.Config{
		Path:   a.cfg.Settings.Path,
		Bus:    a.Bus,
		Logger: a.logger.Named("settings"),
	})
	if err := a.Settings.Load(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	sink, err := metrics.NewSink(a.Bus, a.Registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	a.sink = sink
	a.sink.Start()

	a.recorder = storage.NewRecorder(a.store, a.Bus, a.logger.Named("recorder"))
	a.recorder.Start(ctx)

	trkCfg := tracker.Config{
		Bus:      a.Bus,
		Metadata: a.store,
		Clock:    clk,
		Logger:   a.logger.Named("tracker"),
	}

	if a.cfg.Browser.Enabled {
		a.watcher = browser.New(browser.Config{
			RemoteURL:         a.cfg.Browser.RemoteURL,
			UserAgent:         a.cfg.Browser.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Browser.NavTimeoutSec) * time.Second,
			Bus:               a.Bus,
			Logger:            a.logger.Named("browser"),
		})
		if err := a.watcher.Start(ctx); err != nil {
			return fmt.Errorf("attach browser: %w", err)
		}
		trkCfg.Titles = a.watcher
		if a.cfg.Browser.OpenHome {
			home := sites.WeRead.HomeURL
			if err := a.watcher.Navigate(ctx, home); err != nil {
				a.logger.Warn("open home failed", zap.String("url", home), zap.Error(err))
			}
		}
	}

	a.Tracker = tracker.New(trkCfg)
	a.Tracker.Start(ctx)

	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	a.server = api.NewServer(api.Options{
		Tracker:  a.Tracker,
		Settings: a.Settings,
		Storage:  a.store,
		Bus:      a.Bus,
		Registry: a.Registry,
		Logger:   a.logger.Named("api"),
		APIKey:   apiKey,
	})
	return nil
}

// Handler returns the HTTP surface. Valid after Start.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Close tears the components down in reverse dependency order.
func (a *App) Close() {
	if a.Tracker != nil {
		a.Tracker.Close()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
