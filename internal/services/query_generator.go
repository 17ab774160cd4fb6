package services

import (
	"context"
	"fmt"
	"nanoqa-pipeline/internal/config"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"strings"
	"time"
)

// QueryGenerator compiles Rosetta statements into a primary SPARQL query
// plus ranked fallback queries.
type QueryGenerator struct {
	config config.PipelineConfig
	logger *logger.Logger
}

const basicRosettaTemplate = `PREFIX np: <http://www.nanopub.org/nschema#>
PREFIX rosetta: <https://w3id.org/rosetta/>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>

SELECT DISTINCT ?np ?statement ?subject ?object1 ?object2 ?object3 ?label ?confidence WHERE {
  ?np np:hasAssertion ?assertion .
  ?statement a rosetta:RosettaStatement .
  ?statement rosetta:hasStatementType <%s> .
  %s
  %s
  OPTIONAL { ?statement rosetta:hasDynamicLabel ?label . }
  OPTIONAL { ?statement rosetta:hasConfidenceLevel ?confidence . }
  %s
}
LIMIT %d`

const citationSearchTemplate = `PREFIX np: <http://www.nanopub.org/nschema#>
PREFIX cito: <http://purl.org/spar/cito/>
PREFIX fabio: <http://purl.org/spar/fabio/>

SELECT DISTINCT ?np ?citing_paper ?cited_paper ?citation_type WHERE {
  ?np np:hasAssertion ?assertion .
  ?citing_paper ?citation_type ?cited_paper .
  ?citing_paper a fabio:ScholarlyWork .
  %s
  FILTER(STRSTARTS(STR(?citation_type), "http://purl.org/spar/cito/"))
}
LIMIT %d`

const fallbackTextTemplate = `PREFIX np: <http://www.nanopub.org/nschema#>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>

SELECT DISTINCT ?np ?subject ?predicate ?object ?label WHERE {
  ?np np:hasAssertion ?assertion .
  ?subject ?predicate ?object .
  OPTIONAL { ?subject rdfs:label ?label . }
  %s
}
LIMIT %d`

var citationKeywords = []string{"cite", "reference", "mention"}

func NewQueryGenerator(cfg config.PipelineConfig, log *logger.Logger) *QueryGenerator {
	generator := &QueryGenerator{
		config: cfg,
		logger: log,
	}

	log.Info("Query Generator Initialized Successfully",
		"result_limit", cfg.ResultLimit,
		"fallback_limit", cfg.FallbackResultLimit)

	return generator
}

// Generate builds the primary query from the first statement and fallback
// queries from the remaining statements and alternatives. Without any
// statements it emits a single text-search fallback built from the original
// question.
func (generator *QueryGenerator) Generate(ctx context.Context, statements *models.GeneratedStatements, pctx *models.ProcessingContext) (*models.GeneratedQueries, error) {
	startTime := time.Now()

	if statements == nil || len(statements.Statements) == 0 {
		result := generator.createTextFallback(pctx)
		generator.logger.LogService("query_generator", "generate", time.Since(startTime), map[string]interface{}{
			"method":    result.GenerationMethod,
			"fallbacks": len(result.FallbackQueries),
		}, nil)
		return result, nil
	}

	primaryStatement := statements.Statements[0]
	primaryQuery := generator.generateRosettaQuery(primaryStatement)

	fallbackQueries := []*models.SPARQLQuery{}

	upper := len(statements.Statements)
	if upper > 3 {
		upper = 3
	}
	for _, statement := range statements.Statements[1:upper] {
		fallbackQueries = append(fallbackQueries, generator.generateRosettaQuery(statement))
	}

	alternatives := statements.AlternativeInterpretations
	if len(alternatives) > 2 {
		alternatives = alternatives[:2]
	}
	for _, statement := range alternatives {
		fallbackQueries = append(fallbackQueries, generator.generateRosettaQuery(statement))
	}

	// Citation questions get a dedicated citation query tried before the
	// template fallbacks.
	if isCitationStatement(primaryStatement) {
		citationQuery := generator.generateCitationQuery(primaryStatement)
		fallbackQueries = append([]*models.SPARQLQuery{citationQuery}, fallbackQueries...)
	}

	result := &models.GeneratedQueries{
		PrimaryQuery:     primaryQuery,
		FallbackQueries:  fallbackQueries,
		GenerationMethod: models.GenerationMethodRosettaTemplate,
	}

	generator.logger.LogService("query_generator", "generate", time.Since(startTime), map[string]interface{}{
		"method":    result.GenerationMethod,
		"fallbacks": len(fallbackQueries),
	}, nil)

	return result, nil
}

func (generator *QueryGenerator) generateRosettaQuery(statement *models.RosettaStatement) *models.SPARQLQuery {
	var subjectPattern string
	if statement.Subject.URI != "" {
		subjectPattern = fmt.Sprintf("?statement rosetta:subject <%s> .", statement.Subject.URI)
	} else {
		subjectPattern = fmt.Sprintf("?statement rosetta:subject ?subject .\n  FILTER(CONTAINS(LCASE(STR(?subject)), %q))", strings.ToLower(statement.Subject.Text))
	}

	var objectPatterns []string
	if statement.RequiredObject1 != nil {
		if statement.RequiredObject1.URI != "" {
			objectPatterns = append(objectPatterns, fmt.Sprintf("?statement rosetta:requiredObjectPosition1 <%s> .", statement.RequiredObject1.URI))
		} else {
			objectPatterns = append(objectPatterns, fmt.Sprintf("?statement rosetta:requiredObjectPosition1 ?object1 .\n  FILTER(CONTAINS(LCASE(STR(?object1)), %q))", strings.ToLower(statement.RequiredObject1.Text)))
		}
	} else {
		objectPatterns = append(objectPatterns, "OPTIONAL { ?statement rosetta:requiredObjectPosition1 ?object1 . }")
	}

	optionalObjects := []*models.ExtractedEntity{
		statement.OptionalObject1,
		statement.OptionalObject2,
		statement.OptionalObject3,
	}
	for i, object := range optionalObjects {
		position := i + 1
		variable := position + 1
		switch {
		case object != nil && object.URI != "":
			objectPatterns = append(objectPatterns, fmt.Sprintf("OPTIONAL { ?statement rosetta:optionalObjectPosition%d <%s> . }", position, object.URI))
		case object != nil:
			objectPatterns = append(objectPatterns, fmt.Sprintf("OPTIONAL { ?statement rosetta:optionalObjectPosition%d ?object%d . FILTER(CONTAINS(LCASE(STR(?object%d)), %q)) }", position, variable, variable, strings.ToLower(object.Text)))
		default:
			objectPatterns = append(objectPatterns, fmt.Sprintf("OPTIONAL { ?statement rosetta:optionalObjectPosition%d ?object%d . }", position, variable))
		}
	}

	var filters []string
	if statement.ConfidenceLevelFilter != nil {
		filters = append(filters, fmt.Sprintf("FILTER(?confidence >= %v)", *statement.ConfidenceLevelFilter))
	}

	if statement.IsNegation {
		filters = append(filters, `?statement rosetta:isNegation "true"^^xsd:boolean .`)
	} else {
		filters = append(filters, `OPTIONAL { ?statement rosetta:isNegation ?negation . } FILTER(!BOUND(?negation) || ?negation = "false"^^xsd:boolean)`)
	}

	queryText := fmt.Sprintf(basicRosettaTemplate,
		statement.StatementTypeURI,
		subjectPattern,
		strings.Join(objectPatterns, "\n  "),
		strings.Join(filters, "\n  "),
		generator.config.ResultLimit,
	)

	return &models.SPARQLQuery{
		QueryText:           queryText,
		QueryType:           models.QueryTypeSelect,
		EstimatedComplexity: estimateComplexity(statement),
		Timeout:             generator.config.QueryTimeout,
	}
}

func (generator *QueryGenerator) generateCitationQuery(statement *models.RosettaStatement) *models.SPARQLQuery {
	var subjectFilter string
	if statement.Subject.URI != "" {
		subjectFilter = fmt.Sprintf("FILTER(?cited_paper = <%s>)", statement.Subject.URI)
	} else {
		subjectFilter = fmt.Sprintf("FILTER(CONTAINS(LCASE(STR(?cited_paper)), %q))", strings.ToLower(statement.Subject.Text))
	}

	queryText := fmt.Sprintf(citationSearchTemplate, subjectFilter, generator.config.ResultLimit)

	return &models.SPARQLQuery{
		QueryText:           queryText,
		QueryType:           models.QueryTypeSelect,
		EstimatedComplexity: 2,
		Timeout:             generator.config.QueryTimeout,
	}
}

// createTextFallback builds a free-text query from the first three words of
// the original question longer than three characters.
func (generator *QueryGenerator) createTextFallback(pctx *models.ProcessingContext) *models.GeneratedQueries {
	var importantWords []string
	if pctx != nil {
		for _, word := range strings.Fields(strings.ToLower(pctx.OriginalQuestion)) {
			if len(word) > 3 {
				importantWords = append(importantWords, word)
			}
			if len(importantWords) == 3 {
				break
			}
		}
	}

	var textFilters []string
	for _, word := range importantWords {
		textFilters = append(textFilters, fmt.Sprintf("FILTER(CONTAINS(LCASE(STR(?label)), %q))", word))
	}

	queryText := fmt.Sprintf(fallbackTextTemplate,
		strings.Join(textFilters, " || "),
		generator.config.FallbackResultLimit,
	)

	fallbackQuery := &models.SPARQLQuery{
		QueryText:           queryText,
		QueryType:           models.QueryTypeSelect,
		EstimatedComplexity: 1,
		Timeout:             generator.config.QueryTimeout,
	}

	return &models.GeneratedQueries{
		PrimaryQuery:     fallbackQuery,
		FallbackQueries:  []*models.SPARQLQuery{},
		GenerationMethod: models.GenerationMethodTextFallback,
	}
}

func isCitationStatement(statement *models.RosettaStatement) bool {
	labelLower := strings.ToLower(statement.StatementTypeLabel)
	for _, keyword := range citationKeywords {
		if strings.Contains(labelLower, keyword) {
			return true
		}
	}
	return false
}

func estimateComplexity(statement *models.RosettaStatement) int {
	complexity := 1

	if statement.RequiredObject1 != nil {
		complexity++
	}
	if statement.OptionalObject1 != nil {
		complexity++
	}
	if statement.ConfidenceLevelFilter != nil {
		complexity++
	}
	if statement.Context != "" {
		complexity++
	}

	if complexity > 5 {
		complexity = 5
	}
	return complexity
}
