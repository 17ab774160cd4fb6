package services

import (
	"context"
	"errors"
	"fmt"
	"nanoqa-pipeline/internal/config"
	"nanoqa-pipeline/internal/endpoints"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"sync"
	"time"
)

const pipelineVersion = "1.0.0"

// pipelineSteps lists the seven stages in execution order.
var pipelineSteps = []string{
	"question_processor",
	"entity_extractor",
	"statement_generator",
	"query_generator",
	"query_executor",
	"result_processor",
	"answer_generator",
}

// Pipeline owns one instance of each stage and drives them in strict order.
// Process never returns an error: every stage failure is folded into a
// degraded but fully populated NaturalLanguageResult.
type Pipeline struct {
	questionProcessor  *QuestionProcessor
	entityExtractor    *EntityExtractor
	statementGenerator *StatementGenerator
	queryGenerator     *QueryGenerator
	queryExecutor      *QueryExecutor
	resultProcessor    *ResultProcessor
	answerGenerator    *AnswerGenerator

	endpointManager *endpoints.EndpointManager
	cacheService    *CacheService
	config          config.Config
	logger          *logger.Logger

	activeRequests sync.Map // request_id -> *models.ProcessingContext

	mu             sync.Mutex
	processedCount int64
	degradedCount  int64

	startTime time.Time
}

func NewPipeline(endpointManager *endpoints.EndpointManager, cacheService *CacheService, cfg config.Config, log *logger.Logger) *Pipeline {
	pipeline := &Pipeline{
		questionProcessor:  NewQuestionProcessor(log),
		entityExtractor:    NewEntityExtractor(endpointManager, log),
		statementGenerator: NewStatementGenerator(log),
		queryGenerator:     NewQueryGenerator(cfg.Pipeline, log),
		queryExecutor:      NewQueryExecutor(endpointManager, cacheService, log),
		resultProcessor:    NewResultProcessor(log),
		answerGenerator:    NewAnswerGenerator(log),
		endpointManager:    endpointManager,
		cacheService:       cacheService,
		config:             cfg,
		logger:             log,
		activeRequests:     sync.Map{},
		startTime:          time.Now(),
	}

	log.Info("Pipeline Initialized Successfully",
		"steps", len(pipelineSteps),
		"endpoints", len(endpointManager.List()),
		"cache_enabled", cacheService != nil)

	return pipeline
}

// Process runs a question through all seven stages. A validation failure in
// stage 1 yields a validation-flavored degraded answer, any other stage
// failure yields a generic degraded answer. Both report 0 completed steps:
// the count is fixed failure metadata, not a live progress counter.
func (pipeline *Pipeline) Process(ctx context.Context, question string, opts *models.ProcessOptions) *models.NaturalLanguageResult {
	startTime := time.Now()

	pctx := models.NewProcessingContext(question, opts)
	if pipeline.config.Pipeline.Debug {
		pctx.DebugMode = true
	}

	pipeline.activeRequests.Store(pctx.RequestID, pctx)
	defer pipeline.activeRequests.Delete(pctx.RequestID)

	pipeline.logger.LogPipeline(pctx.RequestID, question, "pipeline_started", 0, nil)

	result, err := pipeline.runStages(ctx, question, pctx)

	duration := time.Since(startTime)
	if err != nil {
		pipeline.countInvocation(true)

		if models.IsValidationError(err) {
			pipeline.logger.LogPipeline(pctx.RequestID, question, "pipeline_validation_failed", duration, err)
			return pipeline.validationDegradedAnswer(err, pctx)
		}

		pipeline.logger.LogPipeline(pctx.RequestID, question, "pipeline_failed", duration, err)
		return pipeline.degradedAnswer(err, pctx)
	}

	pipeline.countInvocation(false)
	pipeline.logger.LogPipeline(pctx.RequestID, question, "pipeline_completed", duration, nil)

	return result
}

func (pipeline *Pipeline) countInvocation(degraded bool) {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	pipeline.processedCount++
	if degraded {
		pipeline.degradedCount++
	}
}

// runStages is the explicit fold over the seven stages: each stage consumes
// only the previous stage's output plus the shared context, and the first
// error short-circuits. Stages are never retried here, a stage's own
// internal retry and fallback handling is the only retry in the pipeline.
func (pipeline *Pipeline) runStages(ctx context.Context, question string, pctx *models.ProcessingContext) (result *models.NaturalLanguageResult, err error) {
	// A panicking stage degrades the answer like any other stage failure.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = models.NewInternalError("STAGE_PANIC", fmt.Sprintf("stage panic: %v", r))
		}
	}()

	stageStart := time.Now()
	processedQuestion, err := pipeline.questionProcessor.Process(ctx, question, pctx)
	pipeline.logger.LogStage("question_processor", question, time.Since(stageStart), err)
	if err != nil {
		return nil, fmt.Errorf("question processing failed : %w", err)
	}

	stageStart = time.Now()
	linkedEntities, err := pipeline.entityExtractor.ExtractAndLink(ctx, processedQuestion, pctx)
	pipeline.logger.LogStage("entity_extractor", question, time.Since(stageStart), err)
	if err != nil {
		return nil, fmt.Errorf("entity extraction failed : %w", err)
	}

	stageStart = time.Now()
	generatedStatements, err := pipeline.statementGenerator.Generate(ctx, linkedEntities, processedQuestion, pctx)
	pipeline.logger.LogStage("statement_generator", question, time.Since(stageStart), err)
	if err != nil {
		return nil, fmt.Errorf("statement generation failed : %w", err)
	}

	stageStart = time.Now()
	generatedQueries, err := pipeline.queryGenerator.Generate(ctx, generatedStatements, pctx)
	pipeline.logger.LogStage("query_generator", question, time.Since(stageStart), err)
	if err != nil {
		return nil, fmt.Errorf("query generation failed : %w", err)
	}

	stageStart = time.Now()
	queryResults, err := pipeline.queryExecutor.Execute(ctx, generatedQueries, pctx)
	pipeline.logger.LogStage("query_executor", question, time.Since(stageStart), err)
	if err != nil {
		return nil, fmt.Errorf("query execution failed : %w", err)
	}

	stageStart = time.Now()
	processedResults, err := pipeline.resultProcessor.Process(ctx, queryResults, generatedStatements, pctx)
	pipeline.logger.LogStage("result_processor", question, time.Since(stageStart), err)
	if err != nil {
		return nil, fmt.Errorf("result processing failed : %w", err)
	}

	stageStart = time.Now()
	answer, err := pipeline.answerGenerator.Generate(ctx, processedResults, pctx)
	pipeline.logger.LogStage("answer_generator", question, time.Since(stageStart), err)
	if err != nil {
		return nil, fmt.Errorf("answer generation failed : %w", err)
	}

	return answer, nil
}

// ProcessBatch runs independent pipeline invocations for every question,
// bounded by the configured concurrency. The returned slice always has one
// result per question in input order; a failing question degrades only its
// own slot.
func (pipeline *Pipeline) ProcessBatch(ctx context.Context, questions []string, opts *models.ProcessOptions) []*models.NaturalLanguageResult {
	startTime := time.Now()

	results := make([]*models.NaturalLanguageResult, len(questions))

	concurrency := pipeline.config.Pipeline.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	semaphore := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, question := range questions {
		wg.Add(1)

		go func(index int, question string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[index] = pipeline.batchItemDegradedAnswer(fmt.Errorf("%v", r), index)
				}
			}()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[index] = pipeline.Process(ctx, question, opts)
		}(i, question)
	}

	wg.Wait()

	pipeline.logger.LogService("pipeline", "process_batch", time.Since(startTime), map[string]interface{}{
		"questions":   len(questions),
		"concurrency": concurrency,
	}, nil)

	return results
}

func (pipeline *Pipeline) validationDegradedAnswer(err error, pctx *models.ProcessingContext) *models.NaturalLanguageResult {
	message := err.Error()
	var pipelineErr *models.PipelineError
	if errors.As(err, &pipelineErr) {
		message = pipelineErr.Message
	}

	return &models.NaturalLanguageResult{
		Summary:               fmt.Sprintf("Error processing question: %s", message),
		DetailedResults:       []string{},
		ConfidenceExplanation: "Question validation failed",
		Suggestions: []string{
			"Please provide a valid question",
			"Check that your question is not empty",
			"Try rephrasing your question",
			"Include specific terms or concepts",
		},
		ExecutionSummary: map[string]interface{}{
			"error":                    message,
			"error_type":               "ValidationError",
			"total_execution_time":     pctx.ElapsedSeconds(),
			"pipeline_steps_completed": 0,
			"debug_mode":               pctx.DebugMode,
		},
	}
}

func (pipeline *Pipeline) degradedAnswer(err error, pctx *models.ProcessingContext) *models.NaturalLanguageResult {
	return &models.NaturalLanguageResult{
		Summary:               fmt.Sprintf("Error processing question: %s", err.Error()),
		DetailedResults:       []string{},
		ConfidenceExplanation: "Pipeline processing failed",
		Suggestions: []string{
			"Please try rephrasing your question",
			"Check for typos or unusual formatting",
			"Try a simpler version of your question",
			"Include specific identifiers like DOI or ORCID if available",
		},
		ExecutionSummary: map[string]interface{}{
			"error":                    err.Error(),
			"error_type":               models.ErrorKind(err),
			"total_execution_time":     pctx.ElapsedSeconds(),
			"pipeline_steps_completed": 0,
			"debug_mode":               pctx.DebugMode,
		},
	}
}

func (pipeline *Pipeline) batchItemDegradedAnswer(err error, index int) *models.NaturalLanguageResult {
	pipeline.logger.WithError(err).Error("Batch question failed", "batch_index", index)

	return &models.NaturalLanguageResult{
		Summary:               fmt.Sprintf("Error processing question: %s", err.Error()),
		DetailedResults:       []string{},
		ConfidenceExplanation: "Batch processing failed for this question",
		Suggestions:           []string{"Try processing this question individually"},
		ExecutionSummary: map[string]interface{}{
			"error":                err.Error(),
			"batch_index":          index,
			"total_execution_time": 0,
		},
	}
}

// GetPipelineInfo returns static pipeline metadata together with the
// registered endpoints and the effective configuration.
func (pipeline *Pipeline) GetPipelineInfo() map[string]interface{} {
	return map[string]interface{}{
		"pipeline_version": pipelineVersion,
		"steps":            pipelineSteps,
		"endpoints":        pipeline.endpointManager.List(),
		"default_endpoint": pipeline.endpointManager.DefaultEndpoint(),
		"config": map[string]interface{}{
			"debug_mode":            pipeline.config.Pipeline.Debug,
			"result_limit":          pipeline.config.Pipeline.ResultLimit,
			"fallback_result_limit": pipeline.config.Pipeline.FallbackResultLimit,
			"batch_concurrency":     pipeline.config.Pipeline.BatchConcurrency,
			"query_timeout":         pipeline.config.Pipeline.QueryTimeout.String(),
			"cache_enabled":         pipeline.cacheService != nil,
		},
	}
}

// HealthCheck probes every registered endpoint with a trivial query and
// reports per-endpoint and per-component health. It never fails, endpoint
// problems downgrade the overall status to degraded.
func (pipeline *Pipeline) HealthCheck(ctx context.Context) map[string]interface{} {
	endpointHealth := map[string]string{}
	componentHealth := map[string]string{}
	overall := "healthy"

	for _, name := range pipeline.endpointManager.List() {
		endpoint, err := pipeline.endpointManager.Get(name)
		if err == nil {
			err = endpoint.HealthCheck(ctx)
		}

		if err != nil {
			endpointHealth[name] = fmt.Sprintf("unhealthy: %s", err.Error())
			overall = "degraded"
			continue
		}
		endpointHealth[name] = "healthy"
	}

	for _, step := range pipelineSteps {
		componentHealth[step] = "healthy"
	}

	if pipeline.cacheService != nil {
		if err := pipeline.cacheService.HealthCheck(ctx); err != nil {
			componentHealth["cache"] = fmt.Sprintf("unhealthy: %s", err.Error())
			overall = "degraded"
		} else {
			componentHealth["cache"] = "healthy"
		}
	}

	return map[string]interface{}{
		"overall":    overall,
		"components": componentHealth,
		"endpoints":  endpointHealth,
	}
}

func (pipeline *Pipeline) ActiveRequestCount() int {
	count := 0
	pipeline.activeRequests.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (pipeline *Pipeline) GetStats() map[string]interface{} {
	uptime := time.Since(pipeline.startTime)

	pipeline.mu.Lock()
	processed, degraded := pipeline.processedCount, pipeline.degradedCount
	pipeline.mu.Unlock()

	return map[string]interface{}{
		"service":             "pipeline",
		"uptime_seconds":      uptime.Seconds(),
		"active_requests":     pipeline.ActiveRequestCount(),
		"processed_questions": processed,
		"degraded_answers":    degraded,
		"steps":               pipelineSteps,
		"endpoints":           pipeline.endpointManager.List(),
	}
}

// Close waits for in-flight requests to drain, up to 30 seconds.
func (pipeline *Pipeline) Close() error {
	pipeline.logger.Info("Pipeline shutting down")

	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		if pipeline.ActiveRequestCount() == 0 {
			pipeline.logger.Info("All requests completed, pipeline closed")
			return nil
		}

		select {
		case <-timeout:
			pipeline.logger.Warn("Timeout waiting for requests to complete",
				"active_requests", pipeline.ActiveRequestCount())
			return nil
		case <-ticker.C:
		}
	}
}
