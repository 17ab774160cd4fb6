package endpoints

import (
	"context"
	"fmt"
	"nanoqa-pipeline/internal/models"
	"sync"
)

// MockNanopubEndpoint serves canned data for tests and local development.
// It records every query so callers can assert on executed query counts.
type MockNanopubEndpoint struct {
	baseURL string

	mu          sync.Mutex
	queries     []string
	fetchCount  int
	searchCount int
}

func NewMockNanopubEndpoint(baseURL string) *MockNanopubEndpoint {
	if baseURL == "" {
		baseURL = "https://test.nanopub.org"
	}
	return &MockNanopubEndpoint{baseURL: baseURL}
}

func (endpoint *MockNanopubEndpoint) ExecuteQuery(ctx context.Context, query string) ([]models.ResultRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	endpoint.mu.Lock()
	endpoint.queries = append(endpoint.queries, query)
	endpoint.mu.Unlock()

	return []models.ResultRow{
		{
			"np":      {Type: "uri", Value: "http://purl.org/np/test_nanopub_1"},
			"subject": {Type: "uri", Value: "http://example.org/subject1"},
			"object1": {Type: "uri", Value: "http://example.org/object1"},
			"label":   {Type: "literal", Value: "Test nanopublication 1"},
		},
		{
			"np":      {Type: "uri", Value: "http://purl.org/np/test_nanopub_2"},
			"subject": {Type: "uri", Value: "http://example.org/subject2"},
			"object1": {Type: "uri", Value: "http://example.org/object2"},
			"label":   {Type: "literal", Value: "Test nanopublication 2"},
		},
	}, nil
}

func (endpoint *MockNanopubEndpoint) FetchNanopub(ctx context.Context, uri string) (*models.NanopubContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	endpoint.mu.Lock()
	endpoint.fetchCount++
	endpoint.mu.Unlock()

	return &models.NanopubContent{
		URI:        uri,
		Format:     "trig",
		Content:    fmt.Sprintf("# Mock nanopub content for %s", uri),
		StatusCode: 200,
	}, nil
}

func (endpoint *MockNanopubEndpoint) SearchText(ctx context.Context, text string, limit int) ([]models.TextSearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	endpoint.mu.Lock()
	endpoint.searchCount++
	endpoint.mu.Unlock()

	results := []models.TextSearchResult{
		{Nanopub: "http://purl.org/np/test1", Label: fmt.Sprintf("Test result for: %s", text), Score: 0.9},
		{Nanopub: "http://purl.org/np/test2", Label: fmt.Sprintf("Another result for: %s", text), Score: 0.7},
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func (endpoint *MockNanopubEndpoint) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (endpoint *MockNanopubEndpoint) Close() error {
	return nil
}

// QueryCount reports how many SPARQL queries were executed.
func (endpoint *MockNanopubEndpoint) QueryCount() int {
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	return len(endpoint.queries)
}

// Queries returns a copy of every executed query in order.
func (endpoint *MockNanopubEndpoint) Queries() []string {
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	queries := make([]string, len(endpoint.queries))
	copy(queries, endpoint.queries)
	return queries
}

func (endpoint *MockNanopubEndpoint) GetStats() map[string]interface{} {
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	return map[string]interface{}{
		"name":         "mock",
		"base_url":     endpoint.baseURL,
		"query_count":  len(endpoint.queries),
		"fetch_count":  endpoint.fetchCount,
		"search_count": endpoint.searchCount,
	}
}
