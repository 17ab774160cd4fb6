package services_test

import (
	"context"
	"strings"
	"testing"

	"nanoqa-pipeline/internal/config"
	"nanoqa-pipeline/internal/endpoints"
	"nanoqa-pipeline/internal/services"
)

func newTestPipeline(t *testing.T) (*services.Pipeline, *endpoints.MockNanopubEndpoint) {
	t.Helper()

	log := newTestLogger(t)
	mock := endpoints.NewMockNanopubEndpoint("")
	manager := endpoints.NewEndpointManager(log)
	manager.Register("mock", mock, true)

	cfg := config.Config{
		Environment: "test",
		Pipeline:    testPipelineConfig(),
	}

	return services.NewPipeline(manager, nil, cfg, log), mock
}

func TestProcessEndToEnd(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	result := pipeline.Process(context.Background(), "What papers cite AlexNet?", nil)

	if result == nil {
		t.Fatal("Expected a result, got nil")
	}
	if result.Summary == "" {
		t.Error("Expected a non-empty summary")
	}
	if len(result.Suggestions) == 0 {
		t.Error("Expected non-empty suggestions")
	}

	// The mock endpoint serves two rows for every query.
	if !strings.Contains(result.Summary, "2") {
		t.Errorf("Expected the summary to mention 2 results, got %q", result.Summary)
	}

	qualifier := strings.Contains(result.Summary, "high confidence") ||
		strings.Contains(result.Summary, "moderate confidence") ||
		strings.Contains(result.Summary, "low confidence")
	if !qualifier {
		t.Errorf("Expected a confidence qualifier in the summary, got %q", result.Summary)
	}

	if result.ExecutionSummary["pipeline_steps_completed"] != 7 {
		t.Errorf("Expected 7 completed steps, got %v", result.ExecutionSummary["pipeline_steps_completed"])
	}
}

func TestProcessNeverReturnsNil(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	questions := []string{
		"",
		"   ",
		"???",
		"What papers cite AlexNet?",
		"completely unrelated gibberish xyzzy",
	}

	for _, question := range questions {
		result := pipeline.Process(context.Background(), question, nil)
		if result == nil {
			t.Fatalf("Expected a result for %q, got nil", question)
		}
		if result.Summary == "" {
			t.Errorf("Expected a non-empty summary for %q", question)
		}
		if len(result.Suggestions) == 0 {
			t.Errorf("Expected non-empty suggestions for %q", question)
		}
	}
}

func TestProcessEmptyQuestionYieldsValidationAnswer(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	for _, question := range []string{"", "   ", "???"} {
		result := pipeline.Process(context.Background(), question, nil)

		if result.ExecutionSummary["error_type"] != "ValidationError" {
			t.Errorf("Expected ValidationError for %q, got %v", question, result.ExecutionSummary["error_type"])
		}
		if result.ExecutionSummary["pipeline_steps_completed"] != 0 {
			t.Errorf("Expected 0 completed steps for %q, got %v", question, result.ExecutionSummary["pipeline_steps_completed"])
		}
		if result.Summary == "No results found for your query." {
			t.Errorf("Expected the validation summary to differ from the no-results phrasing for %q", question)
		}
		if strings.Contains(result.Summary, "network connectivity") {
			t.Errorf("Expected the validation summary to differ from the network phrasing for %q", question)
		}
	}
}

func TestProcessBatchPreservesOrder(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	questions := []string{
		"What papers cite AlexNet?",
		"",
		"Who authored the ImageNet paper?",
	}

	results := pipeline.ProcessBatch(context.Background(), questions, nil)

	if len(results) != len(questions) {
		t.Fatalf("Expected %d results, got %d", len(questions), len(results))
	}

	for i, result := range results {
		if result == nil {
			t.Fatalf("Expected a result at index %d, got nil", i)
		}
	}

	// The middle question fails validation and degrades; its neighbors are
	// unaffected.
	if results[1].ExecutionSummary["error_type"] != "ValidationError" {
		t.Errorf("Expected the empty question to degrade, got %v", results[1].ExecutionSummary)
	}
	if _, degraded := results[0].ExecutionSummary["error_type"]; degraded {
		t.Error("Expected the first question to succeed")
	}
	if _, degraded := results[2].ExecutionSummary["error_type"]; degraded {
		t.Error("Expected the third question to succeed")
	}
}

func TestQueryCacheAcrossInvocations(t *testing.T) {
	pipeline, mock := newTestPipeline(t)

	question := "What papers cite AlexNet?"

	pipeline.Process(context.Background(), question, nil)
	callsAfterFirst := mock.QueryCount()
	if callsAfterFirst == 0 {
		t.Fatal("Expected the first invocation to query the endpoint")
	}

	pipeline.Process(context.Background(), question, nil)
	if mock.QueryCount() != callsAfterFirst {
		t.Errorf("Expected the second identical invocation to be served from cache, calls went from %d to %d",
			callsAfterFirst, mock.QueryCount())
	}
}

func TestGetPipelineInfo(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	info := pipeline.GetPipelineInfo()

	steps, ok := info["steps"].([]string)
	if !ok || len(steps) != 7 {
		t.Fatalf("Expected 7 pipeline steps, got %v", info["steps"])
	}
	if steps[0] != "question_processor" || steps[6] != "answer_generator" {
		t.Errorf("Unexpected stage ordering: %v", steps)
	}

	endpointNames, ok := info["endpoints"].([]string)
	if !ok || len(endpointNames) != 1 || endpointNames[0] != "mock" {
		t.Errorf("Expected the registered mock endpoint, got %v", info["endpoints"])
	}
	if info["default_endpoint"] != "mock" {
		t.Errorf("Expected mock as default endpoint, got %v", info["default_endpoint"])
	}
}

func TestHealthCheckReportsHealthy(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	health := pipeline.HealthCheck(context.Background())

	if health["overall"] != "healthy" {
		t.Errorf("Expected healthy overall status, got %v", health["overall"])
	}

	components, ok := health["components"].(map[string]string)
	if !ok {
		t.Fatalf("Expected per-component health map, got %T", health["components"])
	}
	for _, step := range []string{"question_processor", "query_executor", "answer_generator"} {
		if components[step] != "healthy" {
			t.Errorf("Expected %s healthy, got %q", step, components[step])
		}
	}

	endpointHealth, ok := health["endpoints"].(map[string]string)
	if !ok || endpointHealth["mock"] != "healthy" {
		t.Errorf("Expected mock endpoint healthy, got %v", health["endpoints"])
	}
}

func TestGetStatsCountsInvocations(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	pipeline.Process(context.Background(), "What papers cite AlexNet?", nil)
	pipeline.Process(context.Background(), "", nil)

	stats := pipeline.GetStats()

	if stats["processed_questions"] != int64(2) {
		t.Errorf("Expected 2 processed questions, got %v", stats["processed_questions"])
	}
	if stats["degraded_answers"] != int64(1) {
		t.Errorf("Expected 1 degraded answer, got %v", stats["degraded_answers"])
	}
	if stats["active_requests"] != 0 {
		t.Errorf("Expected no active requests after completion, got %v", stats["active_requests"])
	}
}

func TestCloseDrainsCleanly(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	pipeline.Process(context.Background(), "What papers cite AlexNet?", nil)

	if err := pipeline.Close(); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
