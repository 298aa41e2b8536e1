package config

import (
	"testing"
	"time"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("WEBHOOK_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKeyPrefix != "sk_live" || cfg.JWTSecret == "" || cfg.CredentialPepper != cfg.JWTSecret {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRequiresSecretsOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/walletd")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected missing WEBHOOK_SECRET to fail")
	}
	t.Setenv("WEBHOOK_SECRET", "whsec")
	if _, err := Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadParsesDurationsAndLists(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PENDING_DEPOSIT_TTL", "90m")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("RUN_MIGRATIONS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PendingDepositTTL != 90*time.Minute || cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("unexpected durations %v %v", cfg.PendingDepositTTL, cfg.ShutdownPeriod)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" || !cfg.RunMigrations {
		t.Fatalf("unexpected parse %+v", cfg)
	}

	t.Setenv("IDEMPOTENCY_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid duration to fail")
	}
}
