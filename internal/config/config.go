package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all runtime configuration, loaded from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	MetricsNamespace string

	DatabaseURL    string
	DatabaseSchema string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	HTTPListenAddr string
	PublicBasePath string

	WhatsAppStorePath string
	WhatsAppLogLevel  string

	// BusinessID identifies the tenant this bot instance serves. One
	// connected WhatsApp device maps to one business.
	BusinessID string

	PaymentLinkBase   string
	ContextTTL        time.Duration
	LockTTL           time.Duration
	InventoryCacheTTL time.Duration
}

// Load reads configuration from environment variables, applying defaults
// for everything optional.
func Load() (Config, error) {
	cfg := Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "shopbot"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseSchema: getEnv("DATABASE_SCHEMA", "public"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath: os.Getenv("PUBLIC_BASE_PATH"),

		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "data/whatsapp.db"),
		WhatsAppLogLevel:  getEnv("WHATSAPP_LOG_LEVEL", "WARN"),

		BusinessID: os.Getenv("BUSINESS_ID"),

		PaymentLinkBase: getEnv("PAYMENT_LINK_BASE", "https://pay.example.com"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.BusinessID == "" {
		return Config{}, fmt.Errorf("BUSINESS_ID is required")
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	cfg.RedisTLS = getEnvBool("REDIS_TLS", false)

	if cfg.ContextTTL, err = getEnvDuration("CONTEXT_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = getEnvDuration("LOCK_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.InventoryCacheTTL, err = getEnvDuration("INVENTORY_CACHE_TTL", 30*time.Minute); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
