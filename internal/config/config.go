package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string

	JWTIssuer        string
	JWTAudience      string
	JWTSigningSecret string
	JWTAccessTTL     time.Duration

	MasterAdminSecret         string
	MinRegistrationAge        int
	PasswordResetTokenTTL     time.Duration
	PasswordResetBaseURL      string
	CORSAllowedOrigins        []string
	SuperAdminBootstrapEmail  string
	SuperAdminBootstrapName   string
	SuperAdminBootstrapDOB    string
	SuperAdminBootstrapSecret string

	SMTPHost       string
	SMTPUsername   string
	SMTPPassword   string
	MailFrom       string
	SMTPSkipVerify bool

	AccountListCacheEnabled bool
	AccountListCacheTTL     time.Duration
	AccountListCachePrefix  string
	RedisEnabled            bool
	RedisAddr               string
	RedisUsername           string
	RedisPassword           string
	RedisDB                 int
	RedisDialTimeout        time.Duration
	RedisReadTimeout        time.Duration
	RedisWriteTimeout       time.Duration
	RedisPoolSize           int

	ReadinessProbeTimeout        time.Duration
	ServerStartGracePeriod       time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Env:                       env,
		HTTPPort:                  getEnv("HTTP_PORT", "8080"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		JWTIssuer:                 getEnv("JWT_ISSUER", "carspot-identity-service"),
		JWTAudience:               getEnv("JWT_AUDIENCE", "carspot-api"),
		JWTSigningSecret:          os.Getenv("JWT_SIGNING_SECRET"),
		MasterAdminSecret:         os.Getenv("MASTER_ADMIN_SECRET"),
		MinRegistrationAge:        getEnvInt("MIN_REGISTRATION_AGE", 18),
		PasswordResetBaseURL:      strings.TrimRight(getEnv("PASSWORD_RESET_BASE_URL", "http://localhost:3000/reset-password"), "/"),
		CORSAllowedOrigins:        splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		SuperAdminBootstrapEmail:  strings.TrimSpace(strings.ToLower(os.Getenv("SUPER_ADMIN_EMAIL"))),
		SuperAdminBootstrapName:   getEnv("SUPER_ADMIN_NAME", "Super Admin"),
		SuperAdminBootstrapDOB:    os.Getenv("SUPER_ADMIN_DATE_OF_BIRTH"),
		SuperAdminBootstrapSecret: os.Getenv("SUPER_ADMIN_PASSWORD"),

		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPUsername:   os.Getenv("SMTP_USERNAME"),
		SMTPPassword:   os.Getenv("SMTP_PASSWORD"),
		MailFrom:       getEnv("MAIL_FROM", "CarSpot <noreply@carspot.local>"),
		SMTPSkipVerify: getEnvBool("SMTP_SKIP_VERIFY", false),

		AccountListCacheEnabled: getEnvBool("ACCOUNT_LIST_CACHE_ENABLED", true),
		AccountListCachePrefix:  getEnv("ACCOUNT_LIST_CACHE_PREFIX", "carspot:account_list"),
		RedisEnabled:            getEnvBool("REDIS_ENABLED", false),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisUsername:           os.Getenv("REDIS_USERNAME"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		RedisPoolSize:           getEnvInt("REDIS_POOL_SIZE", 10),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "carspot-identity-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", !isLocalLikeEnv(env)),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", !isLocalLikeEnv(env)),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", !isLocalLikeEnv(env)),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"JWT_ACCESS_TTL", "3h", &cfg.JWTAccessTTL},
		{"PASSWORD_RESET_TOKEN_TTL", "15m", &cfg.PasswordResetTokenTTL},
		{"ACCOUNT_LIST_CACHE_TTL", "30s", &cfg.AccountListCacheTTL},
		{"REDIS_DIAL_TIMEOUT", "5s", &cfg.RedisDialTimeout},
		{"REDIS_READ_TIMEOUT", "3s", &cfg.RedisReadTimeout},
		{"REDIS_WRITE_TIMEOUT", "3s", &cfg.RedisWriteTimeout},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SERVER_START_GRACE_PERIOD", "2s", &cfg.ServerStartGracePeriod},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTSigningSecret) < 32 {
		errs = append(errs, "JWT_SIGNING_SECRET must be at least 32 chars")
	}
	if len(c.MasterAdminSecret) < 12 {
		errs = append(errs, "MASTER_ADMIN_SECRET must be at least 12 chars")
	}
	if c.MasterAdminSecret != "" && c.MasterAdminSecret == c.JWTSigningSecret {
		errs = append(errs, "MASTER_ADMIN_SECRET and JWT_SIGNING_SECRET must differ")
	}
	if c.JWTAccessTTL <= 0 || c.JWTAccessTTL > 24*time.Hour {
		errs = append(errs, "JWT_ACCESS_TTL must be between 1s and 24h")
	}
	if c.PasswordResetTokenTTL <= 0 || c.PasswordResetTokenTTL > time.Hour {
		errs = append(errs, "PASSWORD_RESET_TOKEN_TTL must be between 1s and 1h")
	}
	if c.MinRegistrationAge < 13 || c.MinRegistrationAge > 120 {
		errs = append(errs, "MIN_REGISTRATION_AGE must be between 13 and 120")
	}
	if c.PasswordResetBaseURL == "" {
		errs = append(errs, "PASSWORD_RESET_BASE_URL is required")
	}
	if smtpFields := countSet(c.SMTPHost, c.SMTPUsername, c.SMTPPassword); smtpFields != 0 && smtpFields != 3 {
		errs = append(errs, "SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD must be set together")
	}
	if c.SMTPHost != "" {
		if _, err := mail.ParseAddress(c.MailFrom); err != nil {
			errs = append(errs, "MAIL_FROM must be a valid address when SMTP is configured")
		}
	}
	if c.RedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if c.AccountListCacheEnabled && c.AccountListCacheTTL <= 0 {
		errs = append(errs, "ACCOUNT_LIST_CACHE_TTL must be > 0 when the cache is enabled")
	}
	if c.ReadinessProbeTimeout <= 0 {
		errs = append(errs, "READINESS_PROBE_TIMEOUT must be > 0")
	}
	if c.ShutdownTimeout <= 0 || c.ShutdownHTTPDrainTimeout <= 0 || c.ShutdownObservabilityTimeout <= 0 {
		errs = append(errs, "shutdown timeouts must be > 0")
	}
	if c.ShutdownHTTPDrainTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_HTTP_DRAIN_TIMEOUT must not exceed SHUTDOWN_TIMEOUT")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}

	if !isLocalLikeEnv(c.Env) {
		if strings.HasPrefix(strings.ToLower(c.PasswordResetBaseURL), "http://") {
			errs = append(errs, "PASSWORD_RESET_BASE_URL must use https outside local environments")
		}
		for _, origin := range c.CORSAllowedOrigins {
			if origin == "*" {
				errs = append(errs, "CORS_ALLOWED_ORIGINS must not contain * outside local environments")
				break
			}
		}
		if c.SMTPSkipVerify {
			errs = append(errs, "SMTP_SKIP_VERIFY is only allowed in local environments")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// SMTPEnabled reports whether outbound mail is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func countSet(values ...string) int {
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
