package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	HTTP     HTTPConfig
	Nanopub  NanopubConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	Log      LogConfig
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type NanopubConfig struct {
	Name       string
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	UseMock    bool
}

type PipelineConfig struct {
	Debug               bool
	ResultLimit         int
	FallbackResultLimit int
	TextSearchLimit     int
	BatchConcurrency    int
	QueryTimeout        time.Duration
}

type CacheConfig struct {
	Enabled      bool
	RedisURL     string
	TTL          time.Duration
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

func Load() (*Config, error) {
	// A missing .env file is fine, the environment itself is authoritative.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:         getEnvInt("PORT", 8080),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		},
		Nanopub: NanopubConfig{
			Name:       getEnv("NANOPUB_ENDPOINT_NAME", "default"),
			URL:        getEnv("NANOPUB_ENDPOINT_URL", "https://test.nanopub.org"),
			Timeout:    getEnvDuration("NANOPUB_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvInt("NANOPUB_MAX_RETRIES", 3),
			RetryDelay: getEnvDuration("NANOPUB_RETRY_DELAY", 2*time.Second),
			UseMock:    getEnvBool("NANOPUB_USE_MOCK", false),
		},
		Pipeline: PipelineConfig{
			Debug:               getEnvBool("PIPELINE_DEBUG", false),
			ResultLimit:         getEnvInt("PIPELINE_RESULT_LIMIT", 50),
			FallbackResultLimit: getEnvInt("PIPELINE_FALLBACK_RESULT_LIMIT", 20),
			TextSearchLimit:     getEnvInt("PIPELINE_TEXT_SEARCH_LIMIT", 20),
			BatchConcurrency:    getEnvInt("PIPELINE_BATCH_CONCURRENCY", 5),
			QueryTimeout:        getEnvDuration("PIPELINE_QUERY_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			Enabled:      getEnvBool("CACHE_ENABLED", false),
			RedisURL:     getEnv("REDIS_URL", ""),
			TTL:          getEnvDuration("CACHE_TTL", 6*time.Hour),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port : %d", cfg.HTTP.Port)
	}

	if cfg.Nanopub.URL == "" && !cfg.Nanopub.UseMock {
		return fmt.Errorf("NANOPUB_ENDPOINT_URL is required")
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_ENABLED is true")
	}

	if cfg.Pipeline.BatchConcurrency <= 0 {
		return fmt.Errorf("PIPELINE_BATCH_CONCURRENCY must be positive, got %d", cfg.Pipeline.BatchConcurrency)
	}

	if cfg.Pipeline.ResultLimit <= 0 {
		return fmt.Errorf("PIPELINE_RESULT_LIMIT must be positive, got %d", cfg.Pipeline.ResultLimit)
	}

	return nil
}

func (cfg *Config) IsDevelopment() bool {
	return cfg.Environment == "development"
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
