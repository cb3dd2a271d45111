package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/health"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Readiness     *health.ProbeRunner
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		DB:            db,
		Redis:         redisClient,
		Readiness:     readiness,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server starting", "addr", a.Server.Addr, "env", a.Config.Env)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			a.Logger.Error("server failed", "error", err)
			return errors.Join(err, a.Shutdown(context.Background()))
		}
		return a.Shutdown(context.Background())
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
		return a.Shutdown(context.Background())
	}
}

// Shutdown drains HTTP, flushes telemetry and closes Redis and the database,
// each stage bounded by its own timeout inside the overall shutdown budget.
func (a *App) Shutdown(parent context.Context) error {
	total := durationOr(a.Config.ShutdownTimeout, 20*time.Second)
	totalCtx, totalCancel := context.WithTimeout(parent, total)
	defer totalCancel()

	var errs []error

	if a.Server != nil {
		httpCtx, cancel := context.WithTimeout(totalCtx, durationOr(a.Config.ShutdownHTTPDrainTimeout, 10*time.Second))
		if err := a.Server.Shutdown(httpCtx); err != nil {
			a.Logger.Error("failed to shutdown http server", "error", err)
			errs = append(errs, err)
		}
		cancel()
	}

	if a.Observability != nil {
		obsCtx, cancel := context.WithTimeout(totalCtx, durationOr(a.Config.ShutdownObservabilityTimeout, 8*time.Second))
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Error("failed to shutdown observability", "error", err)
			errs = append(errs, err)
		}
		cancel()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Error("failed to close database connection", "error", err)
				errs = append(errs, err)
			}
		}
	}

	a.Logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
