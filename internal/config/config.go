package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	// DevJWTSecret is only acceptable outside prod.
	DevJWTSecret = "dev-secret-change-me"
)

var ErrInsecureJWTSecret = errors.New("JWT_SECRET must be set to a non-default value in prod")

type Config struct {
	Env        string
	Port       int
	DBURL      string
	DBMaxConns int
	Store      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret         string
	SessionTTLMinutes int

	AdminUsername string
	AdminPassword string

	// ReviewerRole, when set, is required to approve or decline claims.
	ReviewerRole           string
	StrictClaimTransitions bool
	LoginAttemptsPerMinute int
	MigrateOnStart         bool
	OTelEnabled            bool
	OTelEndpoint           string
}

func Load() Config {
	// a missing .env is fine; real deployments use the environment
	_ = godotenv.Load()

	return Config{
		Env:        getEnv("APP_ENV", "dev"),
		Port:       getEnvInt("PORT", 8080),
		DBURL:      buildDBURL(),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 10),
		Store:      strings.ToLower(getEnv("STORE", StorePostgres)),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:         getEnv("JWT_SECRET", DevJWTSecret),
		SessionTTLMinutes: getEnvInt("SESSION_TTL_MINUTES", 60),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		ReviewerRole:           getEnv("CLAIMS_REVIEWER_ROLE", ""),
		StrictClaimTransitions: getEnvBool("CLAIMS_STRICT_TRANSITIONS", false),
		LoginAttemptsPerMinute: getEnvInt("LOGIN_RATE_PER_MIN", 20),
		MigrateOnStart:         getEnvBool("MIGRATE_ON_START", true),
		OTelEnabled:            getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:           getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

// Validate rejects settings the server must not start with.
func (c Config) Validate() error {
	if c.IsProd() && (c.JWTSecret == "" || c.JWTSecret == DevJWTSecret) {
		return ErrInsecureJWTSecret
	}

	return nil
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "claimdesk")
	pass := getEnv("DB_PASSWORD", "claimdesk")
	name := getEnv("DB_NAME", "claimdesk")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
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
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
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
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return b
	}
	return fallback
}
