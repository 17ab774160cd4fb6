package services_test

import (
	"testing"

	"nanoqa-pipeline/internal/config"
	"nanoqa-pipeline/internal/pkg/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stderr"})
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return log
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		ResultLimit:         50,
		FallbackResultLimit: 20,
		TextSearchLimit:     20,
		BatchConcurrency:    5,
	}
}
