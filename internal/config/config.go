package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Signing material below this length is refused at startup. A short HMAC
// secret makes every issued token brute-forceable offline.
const MinSecretLength = 32

const minPepperLength = 16

type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseDSN string
	RedisAddr   string

	AccessTokenSecret  string
	RefreshTokenSecret string
	RefreshTokenPepper string
	JWTIssuer          string
	JWTAudience        string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int

	APIRateLimitRPM  int
	AuthRateLimitRPM int
	CORSOrigins      []string

	SessionSweepInterval         time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	LogLevelName string

	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
}

// Load reads the whole configuration surface from the environment once at
// process start. A missing or weak signing secret is a fatal load error,
// never a per-request condition.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:        envString("APP_ENV", "development"),
		HTTPAddr:           envString("HTTP_ADDR", ":8080"),
		DatabaseDSN:        envString("DATABASE_DSN", ""),
		RedisAddr:          envString("REDIS_ADDR", ""),
		AccessTokenSecret:  envString("ACCESS_TOKEN_SECRET", ""),
		RefreshTokenSecret: envString("REFRESH_TOKEN_SECRET", ""),
		RefreshTokenPepper: envString("REFRESH_TOKEN_PEPPER", ""),
		JWTIssuer:          envString("JWT_ISSUER", "loanhub-auth-service"),
		JWTAudience:        envString("JWT_AUDIENCE", "loanhub"),
		LogLevelName:       envString("LOG_LEVEL", "info"),

		OTELExporterOTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELServiceName:          envString("OTEL_SERVICE_NAME", "loanhub-auth-service"),
		OTELEnvironment:          envString("OTEL_ENVIRONMENT", "development"),
	}

	var err error
	fail := func(e error) (*Config, error) {
		recordConfigLoadEvent(context.Background(), cfg.Environment, "failure", classifyConfigLoadError(e))
		return nil, e
	}

	if cfg.AccessTokenTTL, err = envDuration("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return fail(err)
	}
	if cfg.RefreshTokenTTL, err = envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return fail(err)
	}
	if cfg.BcryptCost, err = envInt("BCRYPT_COST", 12); err != nil {
		return fail(err)
	}
	if cfg.APIRateLimitRPM, err = envInt("API_RATE_LIMIT_RPM", 300); err != nil {
		return fail(err)
	}
	if cfg.AuthRateLimitRPM, err = envInt("AUTH_RATE_LIMIT_RPM", 30); err != nil {
		return fail(err)
	}
	if cfg.SessionSweepInterval, err = envDuration("SESSION_SWEEP_INTERVAL", time.Hour); err != nil {
		return fail(err)
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return fail(err)
	}
	if cfg.ShutdownHTTPDrainTimeout, err = envDuration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 5*time.Second); err != nil {
		return fail(err)
	}
	if cfg.ShutdownObservabilityTimeout, err = envDuration("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second); err != nil {
		return fail(err)
	}
	if cfg.OTELMetricsEnabled, err = envBool("OTEL_METRICS_ENABLED", false); err != nil {
		return fail(err)
	}
	if cfg.OTELTracesEnabled, err = envBool("OTEL_TRACES_ENABLED", false); err != nil {
		return fail(err)
	}
	if cfg.OTELLogsEnabled, err = envBool("OTEL_LOGS_ENABLED", false); err != nil {
		return fail(err)
	}
	if cfg.OTELExporterOTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return fail(err)
	}
	if cfg.OTELMetricsExportInterval, err = envDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second); err != nil {
		return fail(err)
	}
	cfg.CORSOrigins = envCSV("CORS_ORIGINS", []string{"http://localhost:3000"})

	if err := cfg.validate(); err != nil {
		wrapped := fmt.Errorf("validate config: %w", err)
		recordConfigLoadEvent(context.Background(), cfg.Environment, "failure", classifyConfigLoadError(wrapped))
		return nil, wrapped
	}
	recordConfigLoadEvent(context.Background(), cfg.Environment, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.AccessTokenSecret) < MinSecretLength {
		return fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d characters", MinSecretLength)
	}
	if len(c.RefreshTokenSecret) < MinSecretLength {
		return fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d characters", MinSecretLength)
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if len(c.RefreshTokenPepper) < minPepperLength {
		return fmt.Errorf("REFRESH_TOKEN_PEPPER must be at least %d characters", minPepperLength)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	}
	return nil
}

func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.LogLevelName) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func envCSV(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
