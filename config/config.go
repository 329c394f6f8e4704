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
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	DefaultCatalogBaseURL = "https://api.spotify.com/v1"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	ServerPort    int
	StorageDriver string
	DatabaseURL   string
	// LockTimeout ограничивает ожидание блокировки строки игры при advance.
	LockTimeout time.Duration

	AllowedOrigins []string
	// TrustProxyHeaders берёт адрес клиента из X-Forwarded-For/X-Real-IP.
	// Включать только за доверенным прокси: иначе клиент сам выбирает,
	// по какому адресу его ограничивать.
	TrustProxyHeaders bool

	VoteRateLimit float64
	VoteRateBurst int

	CatalogBaseURL   string
	CatalogRateLimit float64

	Archive ArchiveConfig
}

// ArchiveConfig describes the S3 compatible bucket decided brackets are
// uploaded to. The archive is off unless every field is set.
type ArchiveConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

func (a ArchiveConfig) Enabled() bool {
	return a.AccountID != "" && a.AccessKeyID != "" && a.SecretAccessKey != "" &&
		a.BucketName != "" && a.PublicBaseURL != ""
}

// Overrides carries command line values that win over the environment.
// Zero fields are ignored.
type Overrides struct {
	StorageDriver string
	ServerPort    int
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load(envFile string) (*Config, error) {
	return LoadWithOverrides(envFile, Overrides{})
}

func LoadWithOverrides(envFile string, o Overrides) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
	} else {
		// Отсутствие .env не ошибка.
		_ = godotenv.Load()
	}

	cfg := &Config{
		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		CatalogBaseURL: strings.TrimRight(getEnv("CATALOG_BASE_URL", DefaultCatalogBaseURL), "/"),
		Archive: ArchiveConfig{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
	}

	var err error
	if cfg.ServerPort, err = getInt("SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.VoteRateLimit, err = getFloat("VOTE_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.VoteRateBurst, err = getInt("VOTE_RATE_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.CatalogRateLimit, err = getFloat("CATALOG_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.LockTimeout, err = getDuration("DB_LOCK_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.TrustProxyHeaders, err = getBool("TRUST_PROXY_HEADERS", false); err != nil {
		return nil, err
	}

	if o.StorageDriver != "" {
		cfg.StorageDriver = strings.ToLower(o.StorageDriver)
	}
	if o.ServerPort != 0 {
		cfg.ServerPort = o.ServerPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want %s or %s)", c.StorageDriver, StorageDriverPostgres, StorageDriverMemory)
	}
	if c.VoteRateLimit <= 0 || c.VoteRateBurst <= 0 {
		return fmt.Errorf("VOTE_RATE_LIMIT and VOTE_RATE_BURST must be positive")
	}
	if c.CatalogRateLimit <= 0 {
		return fmt.Errorf("CATALOG_RATE_LIMIT must be positive")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("DB_LOCK_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return d, nil
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
