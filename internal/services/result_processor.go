package services

import (
	"context"
	"fmt"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"strconv"
	"strings"
	"time"
)

// ResultProcessor turns raw SPARQL result rows into confidence-scored
// structured results, linking rows back to the Rosetta statements that
// produced the query where possible.
type ResultProcessor struct {
	logger *logger.Logger
}

func NewResultProcessor(log *logger.Logger) *ResultProcessor {
	processor := &ResultProcessor{
		logger: log,
	}

	log.Info("Result Processor Initialized Successfully")

	return processor
}

// Process structures every raw result row. It never fails: unsuccessful or
// empty executions yield an empty result set with confidence 0, and a row
// that cannot be processed is skipped rather than aborting the batch.
func (processor *ResultProcessor) Process(ctx context.Context, queryResults *models.QueryResults, statements *models.GeneratedStatements, pctx *models.ProcessingContext) (*models.ProcessedResults, error) {
	startTime := time.Now()

	if queryResults == nil || !queryResults.Success || len(queryResults.Results) == 0 {
		return &models.ProcessedResults{
			Results:              []*models.StructuredResult{},
			TotalFound:           0,
			ProcessingConfidence: 0,
			Groupings:            processor.groupResults(nil),
		}, nil
	}

	structured := make([]*models.StructuredResult, 0, len(queryResults.Results))
	for _, row := range queryResults.Results {
		if result := processor.processSingleResult(row, statements); result != nil {
			structured = append(structured, result)
		}
	}

	result := &models.ProcessedResults{
		Results:              structured,
		TotalFound:           len(structured),
		ProcessingConfidence: processor.processingConfidence(structured, queryResults),
		Groupings:            processor.groupResults(structured),
	}

	processor.logger.LogService("result_processor", "process", time.Since(startTime), map[string]interface{}{
		"raw_results":        queryResults.TotalResults,
		"structured_results": result.TotalFound,
		"confidence":         result.ProcessingConfidence,
	}, nil)

	return result, nil
}

// processSingleResult structures one row. Rows without an np binding carry
// no usable nanopublication and are dropped. A panic while handling a row
// must never take down the whole batch.
func (processor *ResultProcessor) processSingleResult(row models.ResultRow, statements *models.GeneratedStatements) (structured *models.StructuredResult) {
	defer func() {
		if r := recover(); r != nil {
			processor.logger.Warn("Failed To Process Result Row", "reason", fmt.Sprintf("%v", r))
			structured = nil
		}
	}()

	npBinding, ok := row["np"]
	if !ok || npBinding.Value == "" {
		return nil
	}

	structured = &models.StructuredResult{
		NanopubURI:   npBinding.Value,
		StatementURI: row["statement"].Value,
		Confidence:   1.0,
		RawData:      row,
	}

	structured.RosettaStatement = processor.matchStatement(row, statements)

	if confidenceBinding, ok := row["confidence"]; ok {
		if parsed, err := strconv.ParseFloat(confidenceBinding.Value, 64); err == nil {
			structured.Confidence = parsed
		}
	}

	structured.Metadata = map[string]interface{}{
		"has_dynamic_label": hasBinding(row, "label"),
		"result_type":       classifyResultType(row),
		"completeness":      assessCompleteness(row),
	}

	return structured
}

// matchStatement links a row back to the generated statement whose type URI
// appears in the row's statement URI.
func (processor *ResultProcessor) matchStatement(row models.ResultRow, statements *models.GeneratedStatements) *models.RosettaStatement {
	statementURI := row["statement"].Value
	if statementURI == "" || statements == nil {
		return nil
	}

	for _, statement := range statements.Statements {
		if statement.StatementTypeURI != "" && strings.Contains(statementURI, statement.StatementTypeURI) {
			return statement
		}
	}

	return nil
}

func hasBinding(row models.ResultRow, name string) bool {
	_, ok := row[name]
	return ok
}

func classifyResultType(row models.ResultRow) string {
	if hasBinding(row, "citation_type") {
		return models.ResultTypeCitation
	}
	if hasBinding(row, "statement") {
		return models.ResultTypeRosettaStatement
	}
	return models.ResultTypeGeneral
}

// assessCompleteness scores a row by how many of the core bindings it
// carries.
func assessCompleteness(row models.ResultRow) float64 {
	expected := []string{"np", "subject", "object1"}

	present := 0
	for _, name := range expected {
		if hasBinding(row, name) {
			present++
		}
	}

	return float64(present) / float64(len(expected))
}

// groupResults buckets results by result type and confidence level. The
// confidence buckets are always present, even when empty.
func (processor *ResultProcessor) groupResults(results []*models.StructuredResult) models.ResultGroupings {
	groupings := models.ResultGroupings{
		ByType: make(map[string][]*models.StructuredResult),
		ByConfidence: map[string][]*models.StructuredResult{
			"high":   {},
			"medium": {},
			"low":    {},
		},
	}

	for _, result := range results {
		resultType := "unknown"
		if value, ok := result.Metadata["result_type"].(string); ok {
			resultType = value
		}
		groupings.ByType[resultType] = append(groupings.ByType[resultType], result)

		level := string(models.GetConfidenceLevel(result.Confidence))
		groupings.ByConfidence[level] = append(groupings.ByConfidence[level], result)
	}

	return groupings
}

// processingConfidence blends the structuring rate with average row
// completeness and average row confidence.
func (processor *ResultProcessor) processingConfidence(structured []*models.StructuredResult, queryResults *models.QueryResults) float64 {
	if len(structured) == 0 {
		return 0
	}

	processingRate := 1.0
	if queryResults.TotalResults > 0 {
		processingRate = float64(len(structured)) / float64(queryResults.TotalResults)
	}

	var totalCompleteness, totalConfidence float64
	for _, result := range structured {
		if completeness, ok := result.Metadata["completeness"].(float64); ok {
			totalCompleteness += completeness
		}
		totalConfidence += result.Confidence
	}

	avgCompleteness := totalCompleteness / float64(len(structured))
	avgConfidence := totalConfidence / float64(len(structured))

	return processingRate*0.4 + avgCompleteness*0.3 + avgConfidence*0.3
}
