package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"maritimeacademy/site-admin/internal/audit"
	"maritimeacademy/site-admin/internal/backend"
	"maritimeacademy/site-admin/internal/config"
	"maritimeacademy/site-admin/internal/docstore"
	"maritimeacademy/site-admin/internal/httpserver"
	"maritimeacademy/site-admin/internal/observability"
)

type App struct {
	cfg      config.Config
	log      *slog.Logger
	storage  *Storage
	services *Services
	server   *httpserver.Server
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.EffectiveLogLevel())
	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "detail", w)
	}

	metrics := observability.NewMetrics()
	metrics.SetBuildInfo(httpserver.Version, cfg.Environment)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	storage, err := OpenStore(connectCtx, cfg.Store, logger, docstore.WithObserver(metrics))
	if err != nil {
		return nil, err
	}

	services, err := BuildServices(storage.Store, cfg.Auth, logger)
	if err != nil {
		_ = storage.Close(ctx)
		return nil, err
	}

	if cfg.Auth.BootstrapEmail != "" && cfg.Auth.BootstrapPassword != "" {
		created, err := services.Auth.EnsureBootstrapAdmin(connectCtx, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapName, cfg.Auth.BootstrapPassword)
		if err != nil {
			_ = storage.Close(ctx)
			return nil, fmt.Errorf("create bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", "email", cfg.Auth.BootstrapEmail)
		}
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL:     cfg.Backend.APIURL,
		Timeout:     cfg.Backend.Timeout,
		MaxAttempts: cfg.Backend.MaxAttempts,
		Backoff:     cfg.Backend.RetryBackoff,
	}, backend.WithObserver(metrics), backend.WithLogger(logger))
	if err != nil {
		_ = storage.Close(ctx)
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	deps := httpserver.Deps{
		Auth:     services.Auth,
		Accounts: services.Auth,
		Events:   services.Events,
		News:     services.News,
		Backend:  client,
		Audit:    audit.NewLogger(cfg.AuditLogFile),
		Store:    storage.Store,
		Metrics:  metrics,
		Logger:   logger,
		Options: httpserver.Options{
			Environment:     cfg.Environment,
			CookieName:      cfg.Auth.CookieName,
			SecureCookies:   cfg.Production(),
			TokenStorageKey: cfg.TokenStorageKey,
			AllowedOrigins:  cfg.HTTP.AllowedOrigins,
			MaxBodyBytes:    cfg.HTTP.MaxBodyBytes,
			LoginPerMinute:  cfg.HTTP.LoginRatePerMinute,
			LoginBurst:      cfg.HTTP.LoginRateBurst,
		},
		FrontendDistDir: cfg.FrontendDistDir,
	}
	// A nil *migrations.Service must stay a nil interface.
	if storage.Migrations != nil {
		deps.Migrations = storage.Migrations
	}

	return &App{
		cfg:      cfg,
		log:      logger,
		storage:  storage,
		services: services,
		server:   httpserver.New(cfg.HTTP, deps),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.storage.Close(closeCtx); err != nil {
			a.log.Warn("close store", "error", err)
		}
	}()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	if a.cfg.Auth.CleanupInterval > 0 {
		go a.pruneSessions(pruneCtx, a.cfg.Auth.CleanupInterval)
	}

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr, "store", a.cfg.Store.Backend)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

// pruneSessions removes expired sessions every interval until ctx ends.
func (a *App) pruneSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.services.Auth.PruneSessions(ctx)
			if err != nil {
				a.log.Warn("session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Info("expired sessions removed", "count", n)
			}
		}
	}
}
