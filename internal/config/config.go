package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName           = "walletd"
	defaultAppEnv            = "development"
	defaultPort              = "8080"
	defaultLogLevel          = "info"
	defaultShutdownDelay     = 10 * time.Second
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultAccessTokenTTL    = time.Hour
	defaultPendingDepositTTL = 24 * time.Hour
	defaultSweepSchedule     = "@every 15m"
	defaultAuthRatePerMinute = 60
	defaultAPIKeyPrefix      = "sk_live"
	defaultKafkaTopic        = "walletd.ledger"
	defaultCurrency          = "NGN"
	devJWTSecret             = "walletd-development-secret"
	devWebhookSecret         = "walletd-development-webhook"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL   string
	RedisURL      string
	RunMigrations bool
	DBMaxConns    int32
	KafkaBrokers  []string
	KafkaTopic    string

	JWTSecret         string
	AccessTokenTTL    time.Duration
	APIKeyPrefix      string
	CredentialPepper  string
	AuthRatePerMinute int

	WebhookSecret     string
	CheckoutURL       string
	OAuthURL          string
	OAuthRedirectURL  string
	Currency          string
	PendingDepositTTL time.Duration
	SweepSchedule     string

	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
}

// Load reads configuration values from the environment, after applying an
// optional .env file, and populates a Config instance.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		APIKeyPrefix:     getEnv("API_KEY_PREFIX", defaultAPIKeyPrefix),
		CredentialPepper: os.Getenv("CREDENTIAL_PEPPER"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		CheckoutURL:      getEnv("GATEWAY_CHECKOUT_URL", "https://checkout.walletd.local"),
		OAuthURL:         getEnv("OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
		OAuthRedirectURL: getEnv("OAUTH_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		Currency:         strings.ToUpper(getEnv("CURRENCY", defaultCurrency)),
		SweepSchedule:    getEnv("DEPOSIT_SWEEP_SCHEDULE", defaultSweepSchedule),
	}

	var err error
	if cfg.RunMigrations, err = boolEnv("RUN_MIGRATIONS", false); err != nil {
		return Config{}, err
	}
	maxConns, err := intEnv("DB_MAX_CONNS", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.DBMaxConns = int32(maxConns)
	if cfg.AuthRatePerMinute, err = intEnv("AUTH_RATE_PER_MINUTE", defaultAuthRatePerMinute); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL_SECONDS", "ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.PendingDepositTTL, err = durationEnv("PENDING_DEPOSIT_TTL_SECONDS", "PENDING_DEPOSIT_TTL", defaultPendingDepositTTL); err != nil {
		return Config{}, err
	}

	if !cfg.Development() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
		if cfg.WebhookSecret == "" {
			return Config{}, fmt.Errorf("WEBHOOK_SECRET must be set")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = devWebhookSecret
	}
	if cfg.CredentialPepper == "" {
		cfg.CredentialPepper = cfg.JWTSecret
	}
	if cfg.AccessTokenTTL <= 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}

	return cfg, nil
}

// Development reports whether the service runs with development defaults.
func (c Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev" || c.AppEnv == "local"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads a duration either as whole seconds from secondsKey or as
// a Go duration string from durationKey.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
