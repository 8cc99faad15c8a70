package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("KEYCLOAK_URL", "http://kc:8080/")
	t.Setenv("KEYCLOAK_REALM", "acme")

	cfg := Load()

	if cfg.DBURL != "postgres://projecthub:projecthub@db:5432/projecthub?sslmode=disable" {
		t.Fatalf("db url = %s", cfg.DBURL)
	}
	if cfg.KeycloakTimeout != 5*time.Second || cfg.KeycloakBreakerCooldown != 30*time.Second {
		t.Fatalf("keycloak timings = %s / %s", cfg.KeycloakTimeout, cfg.KeycloakBreakerCooldown)
	}
	if cfg.KeycloakIssuer() != "http://kc:8080/realms/acme" {
		t.Fatalf("issuer = %s", cfg.KeycloakIssuer())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x@y/z")
	t.Setenv("KEYCLOAK_TIMEOUT_MS", "250")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, ,https://b.test")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("PORT", "not-a-number")

	cfg := Load()

	if cfg.DBURL != "postgres://x@y/z" {
		t.Fatalf("DATABASE_URL should win, got %s", cfg.DBURL)
	}
	if cfg.KeycloakTimeout != 250*time.Millisecond {
		t.Fatalf("timeout = %s", cfg.KeycloakTimeout)
	}
	if cfg.StorageDriver != "memory" || cfg.RunMigrations {
		t.Fatalf("driver=%s migrations=%v", cfg.StorageDriver, cfg.RunMigrations)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.test" {
		t.Fatalf("origins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 0.5 {
		t.Fatalf("rps = %v", cfg.RateLimitRPS)
	}
	if cfg.Port != 8080 {
		t.Fatalf("bad PORT should fall back, got %d", cfg.Port)
	}
}
