package config_test

import (
	"nanoqa-pipeline/internal/config"
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("PORT", "9090")
	os.Setenv("NANOPUB_ENDPOINT_URL", "https://query.example.org")
	os.Setenv("NANOPUB_ENDPOINT_NAME", "primary")

	defer func() {
		os.Unsetenv("ENVIRONMENT")
		os.Unsetenv("PORT")
		os.Unsetenv("NANOPUB_ENDPOINT_URL")
		os.Unsetenv("NANOPUB_ENDPOINT_NAME")
	}()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Environment != "test" {
		t.Errorf("Expected environment 'test', got %s", cfg.Environment)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.HTTP.Port)
	}

	if cfg.Nanopub.URL != "https://query.example.org" {
		t.Errorf("Expected nanopub URL 'https://query.example.org', got %s", cfg.Nanopub.URL)
	}

	if cfg.Nanopub.Name != "primary" {
		t.Errorf("Expected endpoint name 'primary', got %s", cfg.Nanopub.Name)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	os.Unsetenv("ENVIRONMENT")
	os.Unsetenv("PORT")
	os.Unsetenv("NANOPUB_ENDPOINT_URL")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", cfg.Environment)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.HTTP.Port)
	}

	if cfg.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read timeout 30s, got %v", cfg.HTTP.ReadTimeout)
	}

	if cfg.Pipeline.ResultLimit != 50 {
		t.Errorf("Expected default result limit 50, got %d", cfg.Pipeline.ResultLimit)
	}

	if cfg.Pipeline.BatchConcurrency != 5 {
		t.Errorf("Expected default batch concurrency 5, got %d", cfg.Pipeline.BatchConcurrency)
	}

	if cfg.Cache.Enabled {
		t.Error("Expected cache disabled by default")
	}
}

func TestValidateConfigInvalidPort(t *testing.T) {
	os.Setenv("PORT", "-1")
	defer os.Unsetenv("PORT")

	_, err := config.Load()
	if err == nil {
		t.Error("Expected error for invalid port")
	}
}

func TestValidateConfigMissingEndpointURL(t *testing.T) {
	os.Setenv("NANOPUB_ENDPOINT_URL", "")
	os.Setenv("NANOPUB_USE_MOCK", "false")

	defer func() {
		os.Unsetenv("NANOPUB_ENDPOINT_URL")
		os.Unsetenv("NANOPUB_USE_MOCK")
	}()

	_, err := config.Load()
	if err == nil {
		t.Error("Expected error for missing endpoint URL")
	}
}

func TestValidateConfigMockWithoutURL(t *testing.T) {
	os.Setenv("NANOPUB_ENDPOINT_URL", "")
	os.Setenv("NANOPUB_USE_MOCK", "true")

	defer func() {
		os.Unsetenv("NANOPUB_ENDPOINT_URL")
		os.Unsetenv("NANOPUB_USE_MOCK")
	}()

	_, err := config.Load()
	if err != nil {
		t.Errorf("Expected mock mode to allow empty URL, got %v", err)
	}
}

func TestValidateConfigCacheRequiresRedisURL(t *testing.T) {
	os.Setenv("CACHE_ENABLED", "true")
	os.Setenv("REDIS_URL", "")

	defer func() {
		os.Unsetenv("CACHE_ENABLED")
		os.Unsetenv("REDIS_URL")
	}()

	_, err := config.Load()
	if err == nil {
		t.Error("Expected error when cache is enabled without a Redis URL")
	}
}

func TestValidateConfigBatchConcurrency(t *testing.T) {
	os.Setenv("PIPELINE_BATCH_CONCURRENCY", "0")
	defer os.Unsetenv("PIPELINE_BATCH_CONCURRENCY")

	_, err := config.Load()
	if err == nil {
		t.Error("Expected error for non-positive batch concurrency")
	}
}

func TestIsDevelopment(t *testing.T) {
	os.Unsetenv("ENVIRONMENT")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.IsDevelopment() {
		t.Error("Expected default environment to be development")
	}
}

func TestDurationParsing(t *testing.T) {
	os.Setenv("PIPELINE_QUERY_TIMEOUT", "45s")
	defer os.Unsetenv("PIPELINE_QUERY_TIMEOUT")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Pipeline.QueryTimeout != 45*time.Second {
		t.Errorf("Expected query timeout 45s, got %v", cfg.Pipeline.QueryTimeout)
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	os.Setenv("NANOPUB_TIMEOUT", "not-a-duration")
	defer os.Unsetenv("NANOPUB_TIMEOUT")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Nanopub.Timeout != 30*time.Second {
		t.Errorf("Expected fallback timeout 30s, got %v", cfg.Nanopub.Timeout)
	}
}
