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

// NoAuthToken disables bearer authentication when used as API_KEY.
const NoAuthToken = "none"

type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

type CacheConfig struct {
	Backend         string
	Directory       string
	Expiration      time.Duration
	MaxBytes        int64
	CleanupInterval time.Duration
	RedisURL        string
}

type BrowserConfig struct {
	Bin                string
	Proxy              string
	CaptureTimeout     time.Duration
	MaxConcurrentPages int64
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type Config struct {
	Addr      string
	APIKey    string
	LogLevel  string
	Cache     CacheConfig
	Storage   StorageConfig
	Browser   BrowserConfig
	RateLimit RateLimitConfig
}

// AuthEnabled reports whether requests must carry a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.APIKey != "" && c.APIKey != NoAuthToken
}

// Load reads .env files when present and builds the configuration from the
// environment.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:     getAddr(),
		APIKey:   getEnv("API_KEY", NoAuthToken),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Storage:  *GetStorageConfig(),
	}

	var errs []error

	expiration, err := getIntEnv("CACHE_EXPIRATION_SECONDS", 3600)
	errs = append(errs, err)
	maxBytes, err := getIntEnv("CACHE_MAX_BYTES", 100*1024*1024)
	errs = append(errs, err)
	cleanup, err := getDurationEnv("CACHE_CLEANUP_INTERVAL", time.Minute)
	errs = append(errs, err)
	cfg.Cache = CacheConfig{
		Backend:         strings.ToLower(getEnv("CACHE_BACKEND", "file")),
		Directory:       getEnv("CACHE_DIR", "./cache"),
		Expiration:      time.Duration(expiration) * time.Second,
		MaxBytes:        int64(maxBytes),
		CleanupInterval: cleanup,
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
	}

	timeout, err := getDurationEnv("CAPTURE_TIMEOUT", 60*time.Second)
	errs = append(errs, err)
	pages, err := getIntEnv("MAX_CONCURRENT_PAGES", 4)
	errs = append(errs, err)
	cfg.Browser = BrowserConfig{
		Bin:                getEnv("BROWSER_BIN", os.Getenv("BROWSER_PATH")),
		Proxy:              os.Getenv("BROWSER_PROXY"),
		CaptureTimeout:     timeout,
		MaxConcurrentPages: int64(pages),
	}

	rps, err := getFloatEnv("RATE_LIMIT_RPS", 2)
	errs = append(errs, err)
	burst, err := getIntEnv("RATE_LIMIT_BURST", 5)
	errs = append(errs, err)
	cfg.RateLimit = RateLimitConfig{RPS: rps, Burst: burst}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "file", "redis", "s3":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Cache.Expiration < 0 {
		return errors.New("CACHE_EXPIRATION_SECONDS cannot be negative")
	}
	if c.Browser.MaxConcurrentPages < 1 {
		return errors.New("MAX_CONCURRENT_PAGES must be at least 1")
	}
	if c.Browser.CaptureTimeout <= 0 {
		return errors.New("CAPTURE_TIMEOUT must be positive")
	}
	if c.Cache.Backend == "s3" && c.Storage.Bucket == "" {
		return errors.New("S3_BUCKET is required for the s3 cache backend")
	}
	return nil
}

func GetStorageConfig() *StorageConfig {
	return &StorageConfig{
		Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		AccessKeyID:     getEnv("S3_ACCESS_KEY", "minioadmin"),
		SecretAccessKey: getEnv("S3_SECRET_KEY", "minioadmin"),
		Bucket:          getEnv("S3_BUCKET", "glimpse-cache"),
		UseSSL:          getEnv("S3_USE_SSL", "false") == "true",
	}
}

// loadEnvFiles loads .env.local then .env; missing files are ignored and
// variables already set in the environment win.
func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func getAddr() string {
	if addr := os.Getenv("ADDR"); addr != "" {
		return addr
	}
	return ":" + getEnv("PORT", "8080")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
