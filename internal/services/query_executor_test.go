package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"nanoqa-pipeline/internal/endpoints"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/services"
)

// scriptedEndpoint returns one canned response per ExecuteQuery call, in
// order, and counts the calls.
type scriptedEndpoint struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	rows []models.ResultRow
	err  error
}

func (endpoint *scriptedEndpoint) ExecuteQuery(ctx context.Context, query string) ([]models.ResultRow, error) {
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()

	index := endpoint.calls
	endpoint.calls++
	if index >= len(endpoint.responses) {
		index = len(endpoint.responses) - 1
	}

	response := endpoint.responses[index]
	return response.rows, response.err
}

func (endpoint *scriptedEndpoint) FetchNanopub(ctx context.Context, uri string) (*models.NanopubContent, error) {
	return nil, errors.New("not scripted")
}

func (endpoint *scriptedEndpoint) SearchText(ctx context.Context, text string, limit int) ([]models.TextSearchResult, error) {
	return nil, errors.New("not scripted")
}

func (endpoint *scriptedEndpoint) HealthCheck(ctx context.Context) error { return nil }

func (endpoint *scriptedEndpoint) Close() error { return nil }

func (endpoint *scriptedEndpoint) CallCount() int {
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	return endpoint.calls
}

func newScriptedExecutor(t *testing.T, responses ...scriptedResponse) (*services.QueryExecutor, *scriptedEndpoint) {
	t.Helper()

	log := newTestLogger(t)
	endpoint := &scriptedEndpoint{responses: responses}
	manager := endpoints.NewEndpointManager(log)
	manager.Register("scripted", endpoint, true)

	return services.NewQueryExecutor(manager, nil, log), endpoint
}

func sparqlQuery(text string) *models.SPARQLQuery {
	return &models.SPARQLQuery{
		QueryText:           text,
		QueryType:           models.QueryTypeSelect,
		EstimatedComplexity: 1,
		Timeout:             5 * time.Second,
	}
}

func singleRow(np string) []models.ResultRow {
	return []models.ResultRow{
		{"np": {Type: "uri", Value: np}},
	}
}

func TestExecutePrimarySuccess(t *testing.T) {
	executor, endpoint := newScriptedExecutor(t,
		scriptedResponse{rows: singleRow("http://purl.org/np/1")},
	)
	pctx := models.NewProcessingContext("q", nil)

	queries := &models.GeneratedQueries{
		PrimaryQuery:    sparqlQuery("SELECT-primary"),
		FallbackQueries: []*models.SPARQLQuery{sparqlQuery("SELECT-fallback")},
	}

	result, err := executor.Execute(context.Background(), queries, pctx)
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}

	if !result.Success || result.TotalResults != 1 {
		t.Errorf("Expected one-row success, got success=%v total=%d", result.Success, result.TotalResults)
	}
	if endpoint.CallCount() != 1 {
		t.Errorf("Expected exactly 1 endpoint call, got %d", endpoint.CallCount())
	}
	if len(pctx.ExecutionErrors) != 0 {
		t.Errorf("Expected no execution errors, got %v", pctx.ExecutionErrors)
	}
}

func TestExecuteCachesIdenticalQueries(t *testing.T) {
	executor, endpoint := newScriptedExecutor(t,
		scriptedResponse{rows: singleRow("http://purl.org/np/1")},
	)
	pctx := models.NewProcessingContext("q", nil)

	queries := &models.GeneratedQueries{PrimaryQuery: sparqlQuery("SELECT-primary")}

	first, err := executor.Execute(context.Background(), queries, pctx)
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	second, err := executor.Execute(context.Background(), queries, pctx)
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}

	if endpoint.CallCount() != 1 {
		t.Errorf("Expected the second execution to hit the cache, endpoint called %d times", endpoint.CallCount())
	}
	if second.TotalResults != first.TotalResults {
		t.Errorf("Expected cached rows to match, got %d vs %d", second.TotalResults, first.TotalResults)
	}
	if second.ExecutionTime != first.ExecutionTime {
		t.Errorf("Expected cached timing to be replayed, got %v vs %v", second.ExecutionTime, first.ExecutionTime)
	}
}

func TestExecuteFallsBackOnEmptyPrimary(t *testing.T) {
	executor, endpoint := newScriptedExecutor(t,
		scriptedResponse{rows: []models.ResultRow{}},
		scriptedResponse{rows: singleRow("http://purl.org/np/fallback")},
	)
	pctx := models.NewProcessingContext("q", nil)

	queries := &models.GeneratedQueries{
		PrimaryQuery:    sparqlQuery("SELECT-primary"),
		FallbackQueries: []*models.SPARQLQuery{sparqlQuery("SELECT-fallback")},
	}

	result, err := executor.Execute(context.Background(), queries, pctx)
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}

	if !result.Success || result.TotalResults != 1 {
		t.Errorf("Expected the fallback result, got success=%v total=%d", result.Success, result.TotalResults)
	}
	if result.QueryUsed != "SELECT-fallback" {
		t.Errorf("Expected the fallback query text, got %q", result.QueryUsed)
	}
	if endpoint.CallCount() != 2 {
		t.Errorf("Expected 2 endpoint calls, got %d", endpoint.CallCount())
	}
	// An empty success is not an error, nothing should be recorded.
	if len(pctx.ExecutionErrors) != 0 {
		t.Errorf("Expected no execution errors, got %v", pctx.ExecutionErrors)
	}
}

func TestExecuteRecordsFailuresAndTriesFallbacks(t *testing.T) {
	executor, _ := newScriptedExecutor(t,
		scriptedResponse{err: errors.New("network unreachable")},
		scriptedResponse{rows: singleRow("http://purl.org/np/fallback")},
	)
	pctx := models.NewProcessingContext("q", nil)

	queries := &models.GeneratedQueries{
		PrimaryQuery:    sparqlQuery("SELECT-primary"),
		FallbackQueries: []*models.SPARQLQuery{sparqlQuery("SELECT-fallback")},
	}

	result, err := executor.Execute(context.Background(), queries, pctx)
	if err != nil {
		t.Fatalf("Expected the failure to be caught internally, got %v", err)
	}

	if !result.Success {
		t.Error("Expected the fallback to succeed")
	}
	if len(pctx.ExecutionErrors) != 1 {
		t.Fatalf("Expected 1 execution error, got %v", pctx.ExecutionErrors)
	}
	if !strings.Contains(pctx.ExecutionErrors[0], "Primary query failed") {
		t.Errorf("Expected a primary failure record, got %q", pctx.ExecutionErrors[0])
	}
	if !strings.Contains(pctx.ExecutionErrors[0], "network unreachable") {
		t.Errorf("Expected the original error text, got %q", pctx.ExecutionErrors[0])
	}
}

func TestExecuteReturnsLastResultWhenExhausted(t *testing.T) {
	executor, endpoint := newScriptedExecutor(t,
		scriptedResponse{err: errors.New("connection refused")},
		scriptedResponse{err: errors.New("connection refused again")},
	)
	pctx := models.NewProcessingContext("q", nil)

	queries := &models.GeneratedQueries{
		PrimaryQuery:    sparqlQuery("SELECT-primary"),
		FallbackQueries: []*models.SPARQLQuery{sparqlQuery("SELECT-fallback")},
	}

	result, err := executor.Execute(context.Background(), queries, pctx)
	if err != nil {
		t.Fatalf("Expected the failures to stay in-band, got %v", err)
	}

	if result.Success {
		t.Error("Expected an unsuccessful result after exhausting all queries")
	}
	if !strings.Contains(result.ErrorMessage, "connection refused again") {
		t.Errorf("Expected the last attempt's error verbatim, got %q", result.ErrorMessage)
	}
	if endpoint.CallCount() != 2 {
		t.Errorf("Expected 2 endpoint calls, got %d", endpoint.CallCount())
	}
	if len(pctx.ExecutionErrors) != 2 {
		t.Errorf("Expected both failures recorded, got %v", pctx.ExecutionErrors)
	}
}

func TestExecuteWithoutPrimaryQuery(t *testing.T) {
	executor, endpoint := newScriptedExecutor(t, scriptedResponse{})
	pctx := models.NewProcessingContext("q", nil)

	result, err := executor.Execute(context.Background(), &models.GeneratedQueries{}, pctx)
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}

	if result.Success {
		t.Error("Expected an unsuccessful result without a primary query")
	}
	if endpoint.CallCount() != 0 {
		t.Errorf("Expected no endpoint calls, got %d", endpoint.CallCount())
	}
}
