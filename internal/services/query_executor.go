package services

import (
	"context"
	"fmt"
	"nanoqa-pipeline/internal/endpoints"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"sync"
	"time"
)

// QueryExecutor runs generated queries against the knowledge source with
// fallback-on-empty-or-error semantics. Query failures are converted into
// unsuccessful results and recorded on the processing context, they never
// propagate as errors.
type QueryExecutor struct {
	endpointManager *endpoints.EndpointManager
	sharedCache     *CacheService
	logger          *logger.Logger

	// queryCache memoizes executed queries by exact query text for the
	// lifetime of the executor. Concurrent batch tasks race benignly,
	// last writer wins.
	queryCache sync.Map
}

type cachedQueryResult struct {
	Rows          []models.ResultRow
	ExecutionTime time.Duration
}

// NewQueryExecutor wires the executor to the endpoint registry and an
// optional shared cache. Pass a nil sharedCache to run with the in-process
// cache only.
func NewQueryExecutor(endpointManager *endpoints.EndpointManager, sharedCache *CacheService, log *logger.Logger) *QueryExecutor {
	executor := &QueryExecutor{
		endpointManager: endpointManager,
		sharedCache:     sharedCache,
		logger:          log,
	}

	log.Info("Query Executor Initialized Successfully",
		"shared_cache", sharedCache != nil)

	return executor
}

// Execute runs the primary query and, when it fails or returns no rows,
// each fallback in order. The first non-empty success wins; with every
// query exhausted the last attempt's result is returned verbatim. Hard
// failures append human readable reasons to pctx.ExecutionErrors.
func (executor *QueryExecutor) Execute(ctx context.Context, queries *models.GeneratedQueries, pctx *models.ProcessingContext) (*models.QueryResults, error) {
	startTime := time.Now()

	if queries == nil || queries.PrimaryQuery == nil {
		return &models.QueryResults{
			Success:      false,
			Results:      []models.ResultRow{},
			ErrorMessage: "No primary query to execute",
		}, nil
	}

	result := executor.executeSingleQuery(ctx, queries.PrimaryQuery)

	if result.Success && result.TotalResults > 0 {
		executor.logger.Info("Primary query succeeded",
			"results", result.TotalResults,
			"execution_time", result.ExecutionTime)
		executor.logExecution(startTime, result, 0)
		return result, nil
	}

	if !result.Success && result.ErrorMessage != "" {
		pctx.AddExecutionError(fmt.Sprintf("Primary query failed: %s", result.ErrorMessage))
	}

	for i, fallbackQuery := range queries.FallbackQueries {
		executor.logger.Info("Trying fallback query", "fallback", i+1)
		result = executor.executeSingleQuery(ctx, fallbackQuery)

		if result.Success && result.TotalResults > 0 {
			executor.logger.Info("Fallback query succeeded",
				"fallback", i+1,
				"results", result.TotalResults)
			executor.logExecution(startTime, result, i+1)
			return result, nil
		}

		if !result.Success && result.ErrorMessage != "" {
			pctx.AddExecutionError(fmt.Sprintf("Fallback query %d failed: %s", i+1, result.ErrorMessage))
		}
	}

	executor.logger.Warn("All queries exhausted without results",
		"fallbacks_tried", len(queries.FallbackQueries))
	executor.logExecution(startTime, result, len(queries.FallbackQueries))
	return result, nil
}

func (executor *QueryExecutor) logExecution(startTime time.Time, result *models.QueryResults, fallbacksTried int) {
	executor.logger.LogService("query_executor", "execute", time.Since(startTime), map[string]interface{}{
		"success":         result.Success,
		"total_results":   result.TotalResults,
		"fallbacks_tried": fallbacksTried,
	}, nil)
}

// executeSingleQuery runs one query, consulting the in-process cache and
// then the shared cache before touching the knowledge source. A cache hit
// replays the stored rows and original timing as a fresh success.
func (executor *QueryExecutor) executeSingleQuery(ctx context.Context, query *models.SPARQLQuery) *models.QueryResults {
	startTime := time.Now()

	if cached, found := executor.queryCache.Load(query.QueryText); found {
		entry := cached.(*cachedQueryResult)
		executor.logger.Debug("Query cache hit", "scope", "instance", "rows", len(entry.Rows))
		return cachedResults(query.QueryText, entry)
	}

	if executor.sharedCache != nil {
		if rows, executionTime, found := executor.sharedCache.GetQueryResults(ctx, query.QueryText); found {
			entry := &cachedQueryResult{Rows: rows, ExecutionTime: executionTime}
			executor.queryCache.Store(query.QueryText, entry)
			executor.logger.Debug("Query cache hit", "scope", "shared", "rows", len(rows))
			return cachedResults(query.QueryText, entry)
		}
	}

	endpoint, err := executor.endpointManager.Get("")
	if err != nil {
		return failedResults(query.QueryText, time.Since(startTime), err)
	}

	queryCtx := ctx
	if query.Timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, query.Timeout)
		defer cancel()
	}

	rows, err := endpoint.ExecuteQuery(queryCtx, query.QueryText)
	executionTime := time.Since(startTime)

	if err != nil {
		executor.logger.Error("Query execution failed", "error", err.Error())
		return failedResults(query.QueryText, executionTime, err)
	}

	if rows == nil {
		rows = []models.ResultRow{}
	}

	entry := &cachedQueryResult{Rows: rows, ExecutionTime: executionTime}
	executor.queryCache.Store(query.QueryText, entry)
	if executor.sharedCache != nil {
		executor.sharedCache.StoreQueryResults(ctx, query.QueryText, rows, executionTime)
	}

	return &models.QueryResults{
		Success:       true,
		Results:       rows,
		QueryUsed:     query.QueryText,
		ExecutionTime: executionTime,
		TotalResults:  len(rows),
	}
}

func cachedResults(queryText string, entry *cachedQueryResult) *models.QueryResults {
	return &models.QueryResults{
		Success:       true,
		Results:       entry.Rows,
		QueryUsed:     queryText,
		ExecutionTime: entry.ExecutionTime,
		TotalResults:  len(entry.Rows),
	}
}

func failedResults(queryText string, executionTime time.Duration, err error) *models.QueryResults {
	return &models.QueryResults{
		Success:       false,
		Results:       []models.ResultRow{},
		QueryUsed:     queryText,
		ExecutionTime: executionTime,
		TotalResults:  0,
		ErrorMessage:  err.Error(),
	}
}

func (executor *QueryExecutor) GetStats() map[string]interface{} {
	cacheSize := 0
	executor.queryCache.Range(func(key, value interface{}) bool {
		cacheSize++
		return true
	})

	stats := map[string]interface{}{
		"query_cache_size": cacheSize,
		"shared_cache":     executor.sharedCache != nil,
	}
	return stats
}
