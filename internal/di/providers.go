package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/carspot-identity-service/internal/app"
	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/database"
	"github.com/sandeepkv93/carspot-identity-service/internal/health"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/handler"
	"github.com/sandeepkv93/carspot-identity-service/internal/http/router"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/repository"
	"github.com/sandeepkv93/carspot-identity-service/internal/security"
	"github.com/sandeepkv93/carspot-identity-service/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(repository.NewAccountRepository)

var SecuritySet = wire.NewSet(provideJWTManager)

var ServiceSet = wire.NewSet(
	provideEscalationPolicy,
	provideNotifier,
	provideAccountListCacheStore,
	service.NewAuthService,
	service.NewPasswordResetService,
	service.NewAccountService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.PasswordResetServiceInterface), new(*service.PasswordResetService)),
	wire.Bind(new(service.AccountServiceInterface), new(*service.AccountService)),
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewUserHandler,
	handler.NewAdminHandler,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

// MigrationRunner applies the schema and, when a bootstrap super-admin is
// configured, seeds it into an empty store.
type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

func (m *MigrationRunner) DB() *gorm.DB { return m.db }

func (m *MigrationRunner) Run(ctx context.Context) (*database.SeedReport, error) {
	if err := database.Migrate(m.db); err != nil {
		return nil, err
	}
	if m.cfg.SuperAdminBootstrapEmail == "" {
		return nil, nil
	}
	return database.SeedSuperAdmin(ctx, m.db, bootstrapSeed(m.cfg))
}

func bootstrapSeed(cfg *config.Config) database.SuperAdminSeed {
	return database.SuperAdminSeed{
		Name:        cfg.SuperAdminBootstrapName,
		Email:       cfg.SuperAdminBootstrapEmail,
		Password:    cfg.SuperAdminBootstrapSecret,
		DateOfBirth: cfg.SuperAdminBootstrapDOB,
	}
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	report, err := NewMigrationRunner(cfg, db).Run(context.Background())
	if err != nil {
		return nil, err
	}
	if report != nil {
		logger.Info("super-admin bootstrap", "created", report.Created, "noop", report.Noop, "reason", report.Reason)
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.RedisDialTimeout,
		ReadTimeout:  cfg.RedisReadTimeout,
		WriteTimeout: cfg.RedisWriteTimeout,
		PoolSize:     cfg.RedisPoolSize,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningSecret, cfg.JWTAccessTTL)
}

func provideEscalationPolicy(cfg *config.Config) *service.EscalationPolicy {
	return service.NewEscalationPolicy(cfg.MasterAdminSecret)
}

func provideNotifier(cfg *config.Config, logger *slog.Logger) (service.Notifier, error) {
	if !cfg.SMTPEnabled() {
		logger.Warn("smtp not configured; reset links will be logged instead of mailed")
		return service.NewLogNotifier(logger), nil
	}
	return service.NewSMTPNotifier(service.SMTPConfig{
		Host:       cfg.SMTPHost,
		Username:   cfg.SMTPUsername,
		Password:   cfg.SMTPPassword,
		From:       cfg.MailFrom,
		SkipVerify: cfg.SMTPSkipVerify,
	})
}

func provideAccountListCacheStore(cfg *config.Config, redisClient redis.UniversalClient) service.AccountListCacheStore {
	if !cfg.AccountListCacheEnabled {
		return service.NewNoopAccountListCacheStore()
	}
	if cfg.RedisEnabled && redisClient != nil {
		return service.NewRedisAccountListCacheStore(redisClient, cfg.AccountListCachePrefix)
	}
	return service.NewInMemoryAccountListCacheStore()
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	jwt *security.JWTManager,
	accounts repository.AccountRepository,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:    authHandler,
		UserHandler:    userHandler,
		AdminHandler:   adminHandler,
		JWTManager:     jwt,
		Accounts:       accounts,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Readiness:      readiness,
		EnableOTelHTTP: cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.NewDBChecker(db)}
	if cfg.RedisEnabled && redisClient != nil {
		checkers = append(checkers, health.NewRedisChecker(redisClient))
	}
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ServerStartGracePeriod, checkers...)
}
