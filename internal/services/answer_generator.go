package services

import (
	"context"
	"fmt"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"sort"
	"strings"
	"time"
)

// AnswerGenerator converts structured results back into a natural language
// answer: summary, detail lines, confidence explanation and follow-up
// suggestions.
type AnswerGenerator struct {
	logger *logger.Logger
}

func NewAnswerGenerator(log *logger.Logger) *AnswerGenerator {
	generator := &AnswerGenerator{
		logger: log,
	}

	log.Info("Answer Generator Initialized Successfully")

	return generator
}

// Generate renders the final answer. It never fails; zero results produce a
// no-results answer whose wording depends on whether execution errors point
// at connectivity problems.
func (generator *AnswerGenerator) Generate(ctx context.Context, processed *models.ProcessedResults, pctx *models.ProcessingContext) (*models.NaturalLanguageResult, error) {
	startTime := time.Now()

	if processed == nil || processed.TotalFound == 0 {
		result := generator.noResultsAnswer(pctx)

		generator.logger.LogService("answer_generator", "generate", time.Since(startTime), map[string]interface{}{
			"results": 0,
		}, nil)

		return result, nil
	}

	result := &models.NaturalLanguageResult{
		Summary:               generator.buildSummary(processed),
		DetailedResults:       generator.buildDetailedResults(processed),
		ConfidenceExplanation: generator.confidenceExplanation(processed.ProcessingConfidence),
		Suggestions:           generator.buildSuggestions(processed),
		ExecutionSummary:      generator.executionSummary(pctx),
	}

	generator.logger.LogService("answer_generator", "generate", time.Since(startTime), map[string]interface{}{
		"results":      processed.TotalFound,
		"detail_lines": len(result.DetailedResults),
	}, nil)

	return result, nil
}

// buildSummary names the dominant result type and appends a confidence
// qualifier. Citation wording wins only when citations make up more than
// half of the results.
func (generator *AnswerGenerator) buildSummary(processed *models.ProcessedResults) string {
	total := processed.TotalFound
	citationCount := len(processed.Groupings.ByType[models.ResultTypeCitation])
	_, hasStatements := processed.Groupings.ByType[models.ResultTypeRosettaStatement]

	var summary string
	switch {
	case float64(citationCount) > float64(total)*0.5:
		summary = fmt.Sprintf("Found %d citation relationships", total)
	case hasStatements:
		summary = fmt.Sprintf("Found %d scientific statements", total)
	default:
		summary = fmt.Sprintf("Found %d relevant nanopublications", total)
	}

	confidence := processed.ProcessingConfidence
	switch {
	case confidence >= 0.8:
		summary += " with high confidence."
	case confidence >= 0.5:
		summary += " with moderate confidence."
	default:
		summary += " with low confidence."
	}

	return summary
}

// buildDetailedResults renders the top 10 results by confidence. A result
// linked back to a templated statement reads as that statement's natural
// language form, anything else falls back to its nanopub URI.
func (generator *AnswerGenerator) buildDetailedResults(processed *models.ProcessedResults) []string {
	top := make([]*models.StructuredResult, len(processed.Results))
	copy(top, processed.Results)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Confidence > top[j].Confidence
	})
	if len(top) > 10 {
		top = top[:10]
	}

	detailed := make([]string, 0, len(top))
	for i, result := range top {
		description := fmt.Sprintf("Nanopublication %s", result.NanopubURI)
		if result.RosettaStatement != nil && result.RosettaStatement.DynamicLabelTemplate != "" {
			description = result.RosettaStatement.ToNaturalLanguage()
		}

		glyph := "?"
		switch {
		case result.Confidence >= 0.8:
			glyph = "✓"
		case result.Confidence >= 0.5:
			glyph = "~"
		}

		detailed = append(detailed, fmt.Sprintf("%d. %s %s", i+1, glyph, description))
	}

	return detailed
}

func (generator *AnswerGenerator) confidenceExplanation(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "High confidence: Results closely match your query with well-structured data."
	case confidence >= 0.6:
		return "Good confidence: Results are relevant with mostly complete information."
	case confidence >= 0.4:
		return "Moderate confidence: Results may be relevant but information is incomplete."
	default:
		return "Low confidence: Results are uncertain and may not fully match your query."
	}
}

// buildSuggestions derives follow-up query suggestions from the result
// pattern, capped at five.
func (generator *AnswerGenerator) buildSuggestions(processed *models.ProcessedResults) []string {
	suggestions := []string{}

	if _, ok := processed.Groupings.ByType[models.ResultTypeCitation]; ok {
		suggestions = append(suggestions,
			"Try searching for 'papers authored by [author name]'",
			"Search for 'recent citations of this work'")
	}

	if processed.TotalFound > 50 {
		suggestions = append(suggestions, "Add more specific terms to narrow your search")
	} else if processed.TotalFound < 5 {
		suggestions = append(suggestions,
			"Try broader terms or check spelling",
			"Use alternative phrasings of your question")
	}

	suggestions = append(suggestions,
		"Explore related concepts using 'what is related to [topic]'",
		"Find author information with ORCID: 'work by 0000-0000-0000-0000'")

	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}

	return suggestions
}

func (generator *AnswerGenerator) executionSummary(pctx *models.ProcessingContext) map[string]interface{} {
	return map[string]interface{}{
		"total_execution_time":     pctx.ElapsedSeconds(),
		"query_processed":          pctx.OriginalQuestion,
		"pipeline_steps_completed": 7,
		"debug_mode":               pctx.DebugMode,
	}
}

// noResultsAnswer distinguishes connectivity failures from genuinely empty
// result sets by scanning the execution errors accumulated during query
// execution.
func (generator *AnswerGenerator) noResultsAnswer(pctx *models.ProcessingContext) *models.NaturalLanguageResult {
	networkFailure := false
	for _, execError := range pctx.ExecutionErrors {
		lowered := strings.ToLower(execError)
		if strings.Contains(lowered, "network") || strings.Contains(lowered, "connection") {
			networkFailure = true
			break
		}
	}

	var summary, explanation string
	var suggestions []string
	if networkFailure {
		summary = "Unable to search nanopublications due to network connectivity issues."
		explanation = "Could not connect to the nanopublication network to process your query."
		suggestions = []string{
			"Please try again in a few moments",
			"Check your internet connection",
			"The nanopublication servers may be temporarily unavailable",
			"Try a simpler query if the problem persists",
		}
	} else {
		summary = "No results found for your query."
		explanation = "Unable to find matching information in the nanopub network."
		suggestions = []string{
			"Check spelling and try different terms",
			"Use more general concepts",
			"Try asking about related topics",
			"Include specific identifiers like DOI or ORCID if available",
		}
	}

	return &models.NaturalLanguageResult{
		Summary:               summary,
		DetailedResults:       []string{},
		ConfidenceExplanation: explanation,
		Suggestions:           suggestions,
		ExecutionSummary:      generator.executionSummary(pctx),
	}
}
