// Package config loads platform configuration from the environment.
// A .env file is honored in development; real deployments set variables
// directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete server configuration.
type Config struct {
	// HTTP
	Port         string
	AllowedHosts []string // exact ("api.example.com[:port]") or wildcard (".example.com")

	// Stores
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	// Tokens
	SigningSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Rate limiting
	RateLimitMax       int
	RateLimitWindowSec int
	AuthRateLimitMax   int // stricter ladder for login/register

	// Tenancy
	EnableRLS           bool
	TenantCacheTTLSec   int
	PublicRoutePrefixes []string

	// Audit
	AuditRetentionDays int

	// Encryption key ring: key id -> key material; CurrentKeyID marks the
	// key used for new writes.
	EncryptionKeys map[string]string
	CurrentKeyID   string

	// Logging
	LogLevel    string
	Development bool
}

// Load reads configuration from the environment. Required variables missing
// is a startup error, never a silent default.
func Load() (*Config, error) {
	// Best-effort; absence of .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("APP_PORT", "8080"),
		AllowedHosts:        splitList(getEnv("ALLOWED_HOSTS", "")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		RedisPass:           os.Getenv("REDIS_PASSWORD"),
		SigningSecret:       os.Getenv("SIGNING_SECRET"),
		AccessTTL:           getEnvDuration("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:          getEnvDuration("REFRESH_TTL", 7*24*time.Hour),
		RateLimitMax:        getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindowSec:  getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		AuthRateLimitMax:    getEnvInt("AUTH_RATE_LIMIT_MAX", 10),
		EnableRLS:           getEnvBool("ENABLE_RLS", true),
		TenantCacheTTLSec:   getEnvInt("TENANT_CACHE_TTL_SEC", 30),
		PublicRoutePrefixes: splitList(getEnv("PUBLIC_ROUTE_PREFIXES", "/auth,/health,/api/schema")),
		AuditRetentionDays:  getEnvInt("AUDIT_RETENTION_DAYS", 2557),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Development:         getEnv("APP_ENV", "development") == "development",
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("SIGNING_SECRET is required")
	}
	if len(cfg.AllowedHosts) == 0 {
		return nil, fmt.Errorf("ALLOWED_HOSTS is required")
	}

	keys, current, err := parseEncryptionKeys(os.Getenv("ENCRYPTION_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.EncryptionKeys = keys
	cfg.CurrentKeyID = current

	return cfg, nil
}

// parseEncryptionKeys parses "id1:key1,id2:key2,*id3:key3" where the starred
// id is the current key. An empty value yields an empty ring.
func parseEncryptionKeys(raw string) (map[string]string, string, error) {
	keys := make(map[string]string)
	current := ""
	if strings.TrimSpace(raw) == "" {
		return keys, current, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, key, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, "", fmt.Errorf("ENCRYPTION_KEYS: malformed entry %q", pair)
		}
		if marked := strings.TrimPrefix(id, "*"); marked != id {
			id = marked
			current = id
		}
		keys[id] = key
	}
	if current == "" && len(keys) > 0 {
		return nil, "", fmt.Errorf("ENCRYPTION_KEYS: no current key marked with '*'")
	}
	return keys, current, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
