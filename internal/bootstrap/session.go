package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/civicwatch/civicwatch/config"
	"github.com/civicwatch/civicwatch/internal/apiclient"
	"github.com/civicwatch/civicwatch/internal/clock"
	"github.com/civicwatch/civicwatch/internal/observability/metrics"
	"github.com/civicwatch/civicwatch/internal/ports"
	"github.com/civicwatch/civicwatch/internal/service"
	"github.com/civicwatch/civicwatch/internal/tokenstate"
	"github.com/prometheus/client_golang/prometheus"
)

// AppDeps contains the inputs for building the client application.
type AppDeps struct {
	Config config.AppConfig
	Logger *slog.Logger

	// Store overrides the configured storage backend. Optional.
	Store ports.KeyValueStore
	// Transport overrides the base HTTP transport. Optional.
	Transport http.RoundTripper
	// Registry receives the session metrics. Defaults to a fresh registry.
	Registry *prometheus.Registry
	Clock    clock.Clock
}

// App is the wired client: credential store, API client and domain services.
type App struct {
	Config    config.AppConfig
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Recorder
	Vault     *tokenstate.Vault
	Client    *apiclient.Client
	Session   *service.SessionService
	Alerts    *service.AlertService
	Incidents *service.IncidentService

	store *Store
}

// NewApp opens storage, loads persisted tokens and wires the services.
// The returned App must be closed.
func NewApp(ctx context.Context, deps AppDeps) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	recorder, err := metrics.NewRecorder(registry, cfg.Observability.Metrics.Namespace)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store := &Store{KeyValueStore: deps.Store}
	if deps.Store == nil {
		store, err = OpenStore(ctx, StoreConfig{
			Storage:  cfg.Storage,
			Postgres: cfg.Postgres,
			Redis:    cfg.Redis,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	app, err := wire(ctx, cfg, deps, store, logger, registry, recorder)
	if err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

func wire(
	ctx context.Context,
	cfg config.AppConfig,
	deps AppDeps,
	store *Store,
	logger *slog.Logger,
	registry *prometheus.Registry,
	recorder *metrics.Recorder,
) (*App, error) {
	vault := tokenstate.NewVault(store.KeyValueStore, tokenstate.WithLogger(logger))
	if err := vault.Load(ctx); err != nil {
		// A failed load leaves the session signed out; the next login overwrites the store.
		logger.Warn("load persisted credentials", "error", err)
	}

	refresher, err := apiclient.NewRefresher(apiclient.RefresherOptions{
		BaseURL:          cfg.API.BaseURL,
		Path:             cfg.Auth.RefreshPath,
		HTTPClient:       &http.Client{Timeout: cfg.API.Timeout, Transport: deps.Transport},
		UserAgent:        cfg.API.UserAgent,
		AccessTokenExpr:  cfg.Auth.RefreshAccessTokenExpr,
		RefreshTokenExpr: cfg.Auth.RefreshRefreshTokenExpr,
	})
	if err != nil {
		return nil, fmt.Errorf("create refresher: %w", err)
	}
	group := apiclient.NewRefreshGroup(refresher, cfg.API.Timeout,
		apiclient.WithPairStore(vault), apiclient.WithGroupLogger(logger))

	client, err := apiclient.New(apiclient.Options{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		UserAgent:     cfg.API.UserAgent,
		Credentials:   vault,
		Refresh:       group,
		BaseTransport: deps.Transport,
		Logger:        logger,
		Metrics:       recorder,
	})
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}

	session, err := service.NewSessionService(service.SessionServiceOptions{
		Client: client,
		Vault:  vault,
		Tokens: group,
		Paths: service.AuthPaths{
			Login:    cfg.Auth.LoginPath,
			Profile:  cfg.Auth.ProfilePath,
			Liveness: cfg.Auth.LivenessPath,
		},
		Clock:               deps.Clock,
		Logger:              logger,
		Metrics:             recorder,
		RefreshMinInterval:  cfg.Auth.RefreshMinInterval,
		LivenessMaxAttempts: cfg.Auth.LivenessMaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("create session service: %w", err)
	}

	alerts, err := service.NewAlertService(service.AlertServiceOptions{Client: client, Logger: logger})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("create alert service: %w", err)
	}
	incidents, err := service.NewIncidentService(service.IncidentServiceOptions{Client: client})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("create incident service: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Metrics:   recorder,
		Vault:     vault,
		Client:    client,
		Session:   session,
		Alerts:    alerts,
		Incidents: incidents,
		store:     store,
	}, nil
}

// StorageMode reports the backend in use. Empty when the store was injected.
func (a *App) StorageMode() config.StorageMode {
	return a.store.Mode
}

// Close stops session observers and releases the store.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Session != nil {
		a.Session.Close()
	}
	a.store.Close()
}
