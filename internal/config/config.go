package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	DBURL      string
	DBMaxConns int
	// StorageDriver is "postgres" or "memory".
	StorageDriver string
	RunMigrations bool

	KeycloakURL              string
	KeycloakRealm            string
	KeycloakClientID         string
	KeycloakClientSecret     string
	KeycloakTimeout          time.Duration
	KeycloakBreakerThreshold int
	KeycloakBreakerCooldown  time.Duration

	AuthHS256Secret string

	RustFSBaseURL      string
	RustFSUploadPath   string
	RustFSDownloadPath string
	MaxUploadBytes     int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
	LogFile         string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	// TrustedProxies may set X-Forwarded-For; empty means the peer address is the client.
	TrustedProxies []string

	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string
}

// Load reads the environment, after an optional .env in the working directory.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		DBURL:         buildDBURL(),
		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 10),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		RunMigrations: getEnvBool("RUN_MIGRATIONS", true),

		KeycloakURL:              getEnv("KEYCLOAK_URL", "http://localhost:8180"),
		KeycloakRealm:            getEnv("KEYCLOAK_REALM", "projecthub"),
		KeycloakClientID:         getEnv("KEYCLOAK_CLIENT_ID", "projecthub-backend"),
		KeycloakClientSecret:     getEnv("KEYCLOAK_CLIENT_SECRET", ""),
		KeycloakTimeout:          time.Duration(getEnvInt("KEYCLOAK_TIMEOUT_MS", 5000)) * time.Millisecond,
		KeycloakBreakerThreshold: getEnvInt("KEYCLOAK_BREAKER_THRESHOLD", 5),
		KeycloakBreakerCooldown:  time.Duration(getEnvInt("KEYCLOAK_BREAKER_COOLDOWN_SEC", 30)) * time.Second,

		AuthHS256Secret: getEnv("AUTH_HS256_SECRET", ""),

		RustFSBaseURL:      getEnv("RUSTFS_BASE_URL", "http://localhost:9000"),
		RustFSUploadPath:   getEnv("RUSTFS_UPLOAD_PATH", "/api/v1/upload"),
		RustFSDownloadPath: getEnv("RUSTFS_DOWNLOAD_PATH", "/api/v1/download"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      time.Duration(getEnvInt("CACHE_TTL_SEC", 60)) * time.Second,

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		LogFile:         getEnv("LOG_FILE", ""),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
		TrustedProxies:     splitList(getEnv("TRUSTED_PROXIES", "")),

		AdminEmail:     getEnv("ADMIN_EMAIL", ""),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		AdminFirstName: getEnv("ADMIN_FIRST_NAME", "Admin"),
		AdminLastName:  getEnv("ADMIN_LAST_NAME", "Projecthub"),
	}
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "projecthub")
	pass := getEnv("DB_PASSWORD", "projecthub")
	name := getEnv("DB_NAME", "projecthub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// Realm token issuer, used to pin inbound bearer tokens.
func (c Config) KeycloakIssuer() string {
	return strings.TrimRight(c.KeycloakURL, "/") + "/realms/" + c.KeycloakRealm
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("config.invalid_int", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("config.invalid_float", "key", key, "value", v)
			return fallback
		}
		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("config.invalid_bool", "key", key, "value", v)
			return fallback
		}
		return b
	}
	return fallback
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
