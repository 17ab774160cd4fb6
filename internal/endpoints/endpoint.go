// Package endpoints manages connections to nanopublication servers and
// provides a unified interface for SPARQL queries, nanopub retrieval and
// free text search.
package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"nanoqa-pipeline/internal/config"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// NanopubEndpoint is a single nanopub data source. Implementations must be
// safe for concurrent use.
type NanopubEndpoint interface {
	ExecuteQuery(ctx context.Context, query string) ([]models.ResultRow, error)
	FetchNanopub(ctx context.Context, uri string) (*models.NanopubContent, error)
	SearchText(ctx context.Context, text string, limit int) ([]models.TextSearchResult, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

const textSearchQueryTemplate = `PREFIX np: <http://www.nanopub.org/nschema#>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>

SELECT DISTINCT ?np ?label WHERE {
    ?np np:hasAssertion ?assertion .
    ?assertion ?p ?o .
    OPTIONAL { ?o rdfs:label ?label . }
    FILTER(CONTAINS(LCASE(STR(?o)), "%s"))
}
LIMIT %d`

// HTTPNanopubEndpoint talks to a standard nanopub network endpoint over
// HTTP. SPARQL queries go to <base>/sparql as form encoded POST requests,
// nanopubs are fetched from their own URIs as TriG.
type HTTPNanopubEndpoint struct {
	name    string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	config  config.NanopubConfig
	logger  *logger.Logger
}

func NewHTTPNanopubEndpoint(cfg config.NanopubConfig, log *logger.Logger) (*HTTPNanopubEndpoint, error) {
	if cfg.URL == "" {
		return nil, models.NewValidationError("ENDPOINT_URL_MISSING", "Nanopub endpoint URL cannot be empty")
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, models.NewValidationError("ENDPOINT_URL_INVALID", fmt.Sprintf("Invalid endpoint URL: %v", err))
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, models.NewValidationError("ENDPOINT_URL_INVALID", fmt.Sprintf("Unsupported endpoint URL scheme: %s", parsedURL.Scheme))
	}

	endpoint := &HTTPNanopubEndpoint{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log,
	}

	endpoint.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name + "-sparql",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Endpoint circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	log.Info("Nanopub Endpoint Initialized Successfully",
		"name", cfg.Name,
		"url", endpoint.baseURL,
		"timeout", cfg.Timeout,
		"max_retries", cfg.MaxRetries)

	return endpoint, nil
}

func (endpoint *HTTPNanopubEndpoint) Name() string {
	return endpoint.name
}

// ExecuteQuery runs a SPARQL query with retries behind the circuit breaker
// and returns the decoded result rows.
func (endpoint *HTTPNanopubEndpoint) ExecuteQuery(ctx context.Context, query string) ([]models.ResultRow, error) {
	startTime := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("EMPTY_QUERY", "SPARQL query cannot be empty")
	}

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.InitialInterval = endpoint.config.RetryDelay
	retryPolicy.MaxInterval = 30 * time.Second

	operation := func() ([]models.ResultRow, error) {
		rows, err := endpoint.executeQueryOnce(ctx, query)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, backoff.Permanent(err)
			}
			var pipelineErr *models.PipelineError
			if errors.As(err, &pipelineErr) && !pipelineErr.Retryable {
				return nil, backoff.Permanent(err)
			}
			endpoint.logger.Warn("SPARQL query attempt failed",
				"endpoint", endpoint.name,
				"error", err.Error())
			return nil, err
		}
		return rows, nil
	}

	rows, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(retryPolicy),
		backoff.WithMaxTries(uint(endpoint.config.MaxRetries)),
	)

	duration := time.Since(startTime)
	endpoint.logger.LogService("nanopub_endpoint", "execute_query", duration, map[string]interface{}{
		"endpoint":     endpoint.name,
		"query_length": len(query),
		"result_count": len(rows),
	}, err)

	if err != nil {
		return nil, models.WrapExternalError("SPARQL_QUERY", err).WithMetadata("endpoint", endpoint.name)
	}

	return rows, nil
}

func (endpoint *HTTPNanopubEndpoint) executeQueryOnce(ctx context.Context, query string) ([]models.ResultRow, error) {
	result, err := endpoint.breaker.Execute(func() (interface{}, error) {
		form := url.Values{}
		form.Set("query", query)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.baseURL+"/sparql", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("Failed to build SPARQL request : %w", err)
		}
		req.Header.Set("Accept", "application/sparql-results+json")
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := endpoint.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("SPARQL request failed : %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("SPARQL endpoint returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, models.NewValidationError("SPARQL_QUERY_REJECTED", err.Error())
			}
			return nil, err
		}

		var decoded models.SPARQLResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("Failed to parse SPARQL response : %w", err)
		}

		return decoded.Results.Bindings, nil
	})

	if err != nil {
		return nil, err
	}

	return result.([]models.ResultRow), nil
}

// FetchNanopub retrieves a single nanopublication as TriG from its URI.
func (endpoint *HTTPNanopubEndpoint) FetchNanopub(ctx context.Context, uri string) (*models.NanopubContent, error) {
	startTime := time.Now()

	if uri == "" {
		return nil, models.NewValidationError("EMPTY_NANOPUB_URI", "Nanopub URI cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, models.NewValidationError("NANOPUB_URI_INVALID", fmt.Sprintf("Invalid nanopub URI: %v", err))
	}
	req.Header.Set("Accept", "application/trig")

	resp, err := endpoint.client.Do(req)
	if err != nil {
		endpoint.logger.Error("Nanopub fetch failed", "uri", uri, "error", err)
		return nil, models.WrapExternalError("NANOPUB_FETCH", err).WithMetadata("uri", uri)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.WrapExternalError("NANOPUB_FETCH", err).WithMetadata("uri", uri)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("nanopub server returned HTTP %d", resp.StatusCode)
		return nil, models.WrapExternalError("NANOPUB_FETCH", err).WithMetadata("uri", uri)
	}

	endpoint.logger.LogService("nanopub_endpoint", "fetch_nanopub", time.Since(startTime), map[string]interface{}{
		"endpoint":     endpoint.name,
		"uri":          uri,
		"status":       resp.StatusCode,
		"content_size": len(body),
	}, nil)

	return &models.NanopubContent{
		URI:        uri,
		Format:     "trig",
		Content:    string(body),
		StatusCode: resp.StatusCode,
	}, nil
}

// SearchText searches nanopub assertions for a literal text fragment. The
// match is case insensitive and scoring is flat.
func (endpoint *HTTPNanopubEndpoint) SearchText(ctx context.Context, text string, limit int) ([]models.TextSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(textSearchQueryTemplate, escapeSPARQLString(strings.ToLower(text)), limit)

	rows, err := endpoint.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Text search failed : %w", err)
	}

	searchResults := make([]models.TextSearchResult, 0, len(rows))
	for _, row := range rows {
		searchResults = append(searchResults, models.TextSearchResult{
			Nanopub: row["np"].Value,
			Label:   row["label"].Value,
			Score:   1.0,
		})
	}

	return searchResults, nil
}

// HealthCheck probes the endpoint with a minimal query.
func (endpoint *HTTPNanopubEndpoint) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := endpoint.ExecuteQuery(probeCtx, "SELECT * WHERE { ?s ?p ?o } LIMIT 1"); err != nil {
		return fmt.Errorf("endpoint health check failed: %w", err)
	}
	return nil
}

func (endpoint *HTTPNanopubEndpoint) Close() error {
	endpoint.client.CloseIdleConnections()
	endpoint.logger.Debug("Nanopub endpoint closed", "name", endpoint.name)
	return nil
}

func (endpoint *HTTPNanopubEndpoint) GetStats() map[string]interface{} {
	counts := endpoint.breaker.Counts()
	return map[string]interface{}{
		"name":                 endpoint.name,
		"base_url":             endpoint.baseURL,
		"breaker_state":        endpoint.breaker.State().String(),
		"requests":             counts.Requests,
		"total_successes":      counts.TotalSuccesses,
		"total_failures":       counts.TotalFailures,
		"consecutive_failures": counts.ConsecutiveFailures,
	}
}

// escapeSPARQLString escapes a value for embedding inside a quoted SPARQL
// literal.
func escapeSPARQLString(value string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return replacer.Replace(value)
}
