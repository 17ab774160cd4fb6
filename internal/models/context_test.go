package models_test

import (
	"nanoqa-pipeline/internal/models"
	"testing"
)

func TestNewProcessingContext(t *testing.T) {
	pctx := models.NewProcessingContext("What papers cite AlexNet?", &models.ProcessOptions{
		UserID:    "user-1",
		SessionID: "session-1",
		Debug:     true,
		Preferences: map[string]interface{}{
			"limit": 10,
		},
	})

	if pctx.OriginalQuestion != "What papers cite AlexNet?" {
		t.Errorf("Expected question preserved, got %s", pctx.OriginalQuestion)
	}

	if pctx.RequestID == "" {
		t.Error("Expected a generated request ID")
	}

	if pctx.UserID != "user-1" || pctx.SessionID != "session-1" {
		t.Error("Expected user and session from options")
	}

	if !pctx.DebugMode {
		t.Error("Expected debug mode from options")
	}

	if pctx.Preferences["limit"] != 10 {
		t.Errorf("Expected preferences copied, got %v", pctx.Preferences)
	}
}

func TestNewProcessingContextNilOptions(t *testing.T) {
	pctx := models.NewProcessingContext("test question", nil)

	if pctx.DebugMode {
		t.Error("Expected debug mode off by default")
	}

	if pctx.Preferences == nil {
		t.Error("Expected preferences map initialized")
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	first := models.NewProcessingContext("q", nil)
	second := models.NewProcessingContext("q", nil)

	if first.RequestID == second.RequestID {
		t.Error("Expected unique request IDs per invocation")
	}
}

func TestAddExecutionError(t *testing.T) {
	pctx := models.NewProcessingContext("q", nil)

	pctx.AddExecutionError("Primary query failed: timeout")
	pctx.AddExecutionError("Fallback query 1 failed: network unreachable")

	if len(pctx.ExecutionErrors) != 2 {
		t.Errorf("Expected 2 execution errors, got %d", len(pctx.ExecutionErrors))
	}

	if pctx.ExecutionErrors[0] != "Primary query failed: timeout" {
		t.Errorf("Expected errors in insertion order, got %v", pctx.ExecutionErrors)
	}
}

func TestValidateProcessingContext(t *testing.T) {
	if models.ValidateProcessingContext(nil) {
		t.Error("Expected nil context to fail validation")
	}

	pctx := models.NewProcessingContext("", nil)
	if !models.ValidateProcessingContext(pctx) {
		t.Error("Expected empty-question context to pass, stage 1 handles empties")
	}
}

func TestElapsedSeconds(t *testing.T) {
	pctx := models.NewProcessingContext("q", nil)

	if pctx.ElapsedSeconds() < 0 {
		t.Error("Expected non-negative elapsed time")
	}
}
