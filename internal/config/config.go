package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"taquilla/internal/cache"
	"taquilla/internal/database"
	"taquilla/internal/external"
	"taquilla/internal/messaging"

	"github.com/joho/godotenv"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	Database database.Config
	NATS     messaging.Config
	Stripe   external.StripeConfig
	Guard    GuardConfig
	Redis    cache.RedisConfig
	Catalog  CatalogConfig
	Auth     AuthConfig
	Sweep    SweepConfig
}

// GuardConfig управляет кешами дедупликации запросов и webhook событий
type GuardConfig struct {
	// Backend is "memory" (per process) or "redis" (shared between instances)
	Backend  string
	Capacity int
	Retain   int
	TTL      time.Duration
}

// CatalogConfig выбирает источник каталога событий
type CatalogConfig struct {
	// Backend is "postgres" or "elasticsearch"
	Backend       string
	Elasticsearch ElasticsearchConfig
}

// AuthConfig включает Basic Auth для API
type AuthConfig struct {
	Enabled bool
}

// SweepConfig управляет фоновой сверкой оплаченных платежей
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	Lookback time.Duration
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "taquilla"),
			Password:           getEnv("DB_PASSWORD", "taquilla"),
			DBName:             getEnv("DB_NAME", "taquilla"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			Enabled:   getEnvBool("NATS_ENABLED", true),
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "taquilla"),
			ClientID:  getEnv("NATS_CLIENT_ID", "taquilla-api"),
		},

		Stripe: external.StripeConfig{
			SecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:          getEnv("PAYMENT_CURRENCY", "mxn"),
			Timeout:           time.Duration(getEnvInt("STRIPE_TIMEOUT_SEC", 30)) * time.Second,
			MaxNetworkRetries: int64(getEnvInt("STRIPE_MAX_NETWORK_RETRIES", 2)),
		},

		Guard: GuardConfig{
			Backend:  getEnv("GUARD_BACKEND", "memory"),
			Capacity: getEnvInt("GUARD_CAPACITY", 1000),
			Retain:   getEnvInt("GUARD_RETAIN", 500),
			TTL:      getEnvDuration("GUARD_TTL", 24*time.Hour),
		},

		Redis: cache.RedisConfig{
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
			Prefix:   getEnv("VALKEY_KEY_PREFIX", "taquilla"),
		},

		Catalog: CatalogConfig{
			Backend:       getEnv("CATALOG_BACKEND", "postgres"),
			Elasticsearch: LoadElasticsearchConfig(),
		},

		Auth: AuthConfig{
			Enabled: getEnvBool("AUTH_ENABLED", false),
		},

		Sweep: SweepConfig{
			Enabled:  getEnvBool("SWEEP_ENABLED", true),
			Interval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
			Lookback: getEnvDuration("SWEEP_LOOKBACK", 2*time.Hour),
		},
	}
}

// ValidateAPI проверяет настройки, без которых API нельзя запускать
func (c *Config) ValidateAPI() error {
	if c.Stripe.SecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	// с пустым секретом подпись webhook может вычислить кто угодно
	if c.Stripe.WebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	return nil
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool получает логическое значение переменной окружения
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration принимает значения вида "90s" или "2h"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
