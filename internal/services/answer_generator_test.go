package services_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/services"
)

func structuredResult(uri string, confidence float64, resultType string) *models.StructuredResult {
	return &models.StructuredResult{
		NanopubURI: uri,
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"result_type":  resultType,
			"completeness": 1.0,
		},
	}
}

func processedResults(results ...*models.StructuredResult) *models.ProcessedResults {
	groupings := models.ResultGroupings{
		ByType: make(map[string][]*models.StructuredResult),
		ByConfidence: map[string][]*models.StructuredResult{
			"high": {}, "medium": {}, "low": {},
		},
	}
	for _, result := range results {
		resultType := result.Metadata["result_type"].(string)
		groupings.ByType[resultType] = append(groupings.ByType[resultType], result)
		level := string(models.GetConfidenceLevel(result.Confidence))
		groupings.ByConfidence[level] = append(groupings.ByConfidence[level], result)
	}

	return &models.ProcessedResults{
		Results:              results,
		TotalFound:           len(results),
		ProcessingConfidence: 0.85,
		Groupings:            groupings,
	}
}

func TestGenerateNoResultsAnswer(t *testing.T) {
	generator := services.NewAnswerGenerator(newTestLogger(t))
	pctx := models.NewProcessingContext("What papers cite AlexNet?", nil)

	answer, err := generator.Generate(context.Background(), &models.ProcessedResults{}, pctx)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if answer.Summary != "No results found for your query." {
		t.Errorf("Expected the generic no-results summary, got %q", answer.Summary)
	}
	if len(answer.Suggestions) == 0 {
		t.Error("Expected non-empty suggestions")
	}
}

func TestGenerateNetworkFailureAnswer(t *testing.T) {
	generator := services.NewAnswerGenerator(newTestLogger(t))
	pctx := models.NewProcessingContext("What papers cite AlexNet?", nil)
	pctx.AddExecutionError("Primary query failed: network unreachable")

	answer, err := generator.Generate(context.Background(), &models.ProcessedResults{}, pctx)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if !strings.Contains(answer.Summary, "network connectivity") {
		t.Errorf("Expected a connectivity-specific summary, got %q", answer.Summary)
	}

	found := false
	for _, suggestion := range answer.Suggestions {
		if strings.Contains(suggestion, "internet connection") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected connectivity suggestions, got %v", answer.Suggestions)
	}
}

func TestGenerateSummaryNamesCitations(t *testing.T) {
	generator := services.NewAnswerGenerator(newTestLogger(t))
	pctx := models.NewProcessingContext("q", nil)

	citationHeavy := processedResults(
		structuredResult("http://purl.org/np/1", 0.9, models.ResultTypeCitation),
		structuredResult("http://purl.org/np/2", 0.9, models.ResultTypeCitation),
		structuredResult("http://purl.org/np/3", 0.9, models.ResultTypeGeneral),
	)

	answer, err := generator.Generate(context.Background(), citationHeavy, pctx)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if !strings.Contains(answer.Summary, "3 citation relationships") {
		t.Errorf("Expected citation-flavored summary, got %q", answer.Summary)
	}
	if !strings.Contains(answer.Summary, "high confidence") {
		t.Errorf("Expected high confidence qualifier, got %q", answer.Summary)
	}
}

func TestGenerateDetailedResultsRendering(t *testing.T) {
	generator := services.NewAnswerGenerator(newTestLogger(t))
	pctx := models.NewProcessingContext("q", nil)

	linked := structuredResult("http://purl.org/np/1", 0.9, models.ResultTypeRosettaStatement)
	linked.RosettaStatement = &models.RosettaStatement{
		Subject:              &models.ExtractedEntity{Text: "AlexNet"},
		StatementTypeURI:     "https://w3id.org/rosetta/Cites",
		StatementTypeLabel:   "cites",
		RequiredObject1:      &models.ExtractedEntity{Text: "ImageNet"},
		DynamicLabelTemplate: "SUBJECT cites OBJECT1",
	}
	bare := structuredResult("http://purl.org/np/2", 0.6, models.ResultTypeGeneral)
	weak := structuredResult("http://purl.org/np/3", 0.2, models.ResultTypeGeneral)

	answer, err := generator.Generate(context.Background(), processedResults(weak, linked, bare), pctx)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if len(answer.DetailedResults) != 3 {
		t.Fatalf("Expected 3 detail lines, got %d", len(answer.DetailedResults))
	}

	// Sorted by confidence descending, statement rendering preferred, glyph
	// per confidence tier.
	if answer.DetailedResults[0] != "1. ✓ AlexNet cites ImageNet" {
		t.Errorf("Unexpected first detail line: %q", answer.DetailedResults[0])
	}
	if answer.DetailedResults[1] != "2. ~ Nanopublication http://purl.org/np/2" {
		t.Errorf("Unexpected second detail line: %q", answer.DetailedResults[1])
	}
	if answer.DetailedResults[2] != "3. ? Nanopublication http://purl.org/np/3" {
		t.Errorf("Unexpected third detail line: %q", answer.DetailedResults[2])
	}
}

func TestGenerateDetailsCappedAtTen(t *testing.T) {
	generator := services.NewAnswerGenerator(newTestLogger(t))
	pctx := models.NewProcessingContext("q", nil)

	var results []*models.StructuredResult
	for i := 0; i < 15; i++ {
		results = append(results, structuredResult(fmt.Sprintf("http://purl.org/np/%d", i), 0.9, models.ResultTypeGeneral))
	}

	answer, err := generator.Generate(context.Background(), processedResults(results...), pctx)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if len(answer.DetailedResults) != 10 {
		t.Errorf("Expected detail lines capped at 10, got %d", len(answer.DetailedResults))
	}
}

func TestGenerateSuggestionsCappedAtFive(t *testing.T) {
	generator := services.NewAnswerGenerator(newTestLogger(t))
	pctx := models.NewProcessingContext("q", nil)

	// Citation results plus a tiny result count triggers every suggestion
	// source at once.
	results := processedResults(
		structuredResult("http://purl.org/np/1", 0.9, models.ResultTypeCitation),
	)

	answer, err := generator.Generate(context.Background(), results, pctx)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if len(answer.Suggestions) == 0 || len(answer.Suggestions) > 5 {
		t.Errorf("Expected between 1 and 5 suggestions, got %d", len(answer.Suggestions))
	}
}

func TestGenerateExecutionSummaryFields(t *testing.T) {
	generator := services.NewAnswerGenerator(newTestLogger(t))
	pctx := models.NewProcessingContext("What papers cite AlexNet?", nil)
	pctx.DebugMode = true

	answer, err := generator.Generate(context.Background(), processedResults(
		structuredResult("http://purl.org/np/1", 0.9, models.ResultTypeGeneral),
	), pctx)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	summary := answer.ExecutionSummary
	if summary["query_processed"] != "What papers cite AlexNet?" {
		t.Errorf("Expected the original question, got %v", summary["query_processed"])
	}
	if summary["pipeline_steps_completed"] != 7 {
		t.Errorf("Expected 7 completed steps, got %v", summary["pipeline_steps_completed"])
	}
	if summary["debug_mode"] != true {
		t.Errorf("Expected debug_mode true, got %v", summary["debug_mode"])
	}
	if _, ok := summary["total_execution_time"]; !ok {
		t.Error("Expected total_execution_time in the execution summary")
	}
}
