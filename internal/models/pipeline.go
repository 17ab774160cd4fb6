package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// QuestionType classifies the intent of a question.
type QuestionType string

const (
	QuestionTypeWhat    QuestionType = "what"
	QuestionTypeWho     QuestionType = "who"
	QuestionTypeWhere   QuestionType = "where"
	QuestionTypeWhen    QuestionType = "when"
	QuestionTypeHow     QuestionType = "how"
	QuestionTypeWhy     QuestionType = "why"
	QuestionTypeList    QuestionType = "list"
	QuestionTypeCount   QuestionType = "count"
	QuestionTypeGeneral QuestionType = "general"
)

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityTypeDOI          EntityType = "doi"
	EntityTypeORCID        EntityType = "orcid"
	EntityTypeURL          EntityType = "url"
	EntityTypePerson       EntityType = "person"
	EntityTypeConcept      EntityType = "concept"
	EntityTypeTitle        EntityType = "title"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeLocation     EntityType = "location"
	EntityTypeDate         EntityType = "date"
	EntityTypeNumber       EntityType = "number"
	EntityTypeUnknown      EntityType = "unknown"
)

// IsIdentifier reports whether the type carries a resolvable identifier.
func (entityType EntityType) IsIdentifier() bool {
	return entityType == EntityTypeDOI || entityType == EntityTypeORCID || entityType == EntityTypeURL
}

type ConfidenceLevel string

const (
	ConfidenceLevelHigh   ConfidenceLevel = "high"
	ConfidenceLevelMedium ConfidenceLevel = "medium"
	ConfidenceLevelLow    ConfidenceLevel = "low"
)

func GetConfidenceLevel(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.8:
		return ConfidenceLevelHigh
	case confidence >= 0.5:
		return ConfidenceLevelMedium
	default:
		return ConfidenceLevelLow
	}
}

// ProcessedQuestion is the stage 1 output. Immutable once produced.
type ProcessedQuestion struct {
	OriginalText      string                 `json:"original_text"`
	CleanedText       string                 `json:"cleaned_text"`
	QuestionType      QuestionType           `json:"question_type"`
	KeyPhrases        []string               `json:"key_phrases"`
	PotentialEntities []string               `json:"potential_entities"`
	IntentConfidence  float64                `json:"intent_confidence"`
	Language          string                 `json:"language"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// ExtractedEntity is one entity span found in the question text. Two
// entities overlap iff their [StartPos, EndPos) ranges intersect.
type ExtractedEntity struct {
	Text       string                 `json:"text"`
	EntityType EntityType             `json:"entity_type"`
	Confidence float64                `json:"confidence"`
	StartPos   int                    `json:"start_pos"`
	EndPos     int                    `json:"end_pos"`
	URI        string                 `json:"uri,omitempty"`
	Label      string                 `json:"label,omitempty"`
	Aliases    []string               `json:"aliases,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// DisplayLabel prefers the resolved label over the raw text span.
func (entity *ExtractedEntity) DisplayLabel() string {
	if entity.Label != "" {
		return entity.Label
	}
	return entity.Text
}

func (entity *ExtractedEntity) ToSPARQLValue() string {
	switch {
	case entity.URI != "":
		return fmt.Sprintf("<%s>", entity.URI)
	case entity.EntityType == EntityTypeNumber:
		return entity.Text
	case entity.EntityType == EntityTypeDate:
		return fmt.Sprintf("%q^^xsd:date", entity.Text)
	default:
		return fmt.Sprintf("%q", entity.Text)
	}
}

// Overlaps reports whether the half-open spans of both entities intersect.
func (entity *ExtractedEntity) Overlaps(other *ExtractedEntity) bool {
	return entity.StartPos < other.EndPos && other.StartPos < entity.EndPos
}

func ValidateExtractedEntity(entity *ExtractedEntity) bool {
	if entity == nil || entity.Text == "" {
		return false
	}
	if entity.Confidence < 0 || entity.Confidence > 1 {
		return false
	}
	if entity.StartPos < 0 || entity.EndPos < entity.StartPos {
		return false
	}
	return true
}

// LinkedEntities is the stage 2 output. Subject and object candidates may
// overlap, a single entity can appear in both sets.
type LinkedEntities struct {
	Entities          []*ExtractedEntity     `json:"entities"`
	SubjectCandidates []*ExtractedEntity     `json:"subject_candidates"`
	ObjectCandidates  []*ExtractedEntity     `json:"object_candidates"`
	LinkingConfidence float64                `json:"linking_confidence"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// RosettaStatement is one structured relationship statement. Object position
// one is required by the statement templates, positions two to four are
// optional refinements.
type RosettaStatement struct {
	Subject            *ExtractedEntity `json:"subject"`
	StatementTypeURI   string           `json:"statement_type_uri"`
	StatementTypeLabel string           `json:"statement_type_label"`

	RequiredObject1 *ExtractedEntity `json:"required_object1,omitempty"`
	OptionalObject1 *ExtractedEntity `json:"optional_object1,omitempty"`
	OptionalObject2 *ExtractedEntity `json:"optional_object2,omitempty"`
	OptionalObject3 *ExtractedEntity `json:"optional_object3,omitempty"`

	DynamicLabelTemplate string `json:"dynamic_label_template,omitempty"`
	// ConfidenceLevelFilter is carried through to the query generator's
	// conditional FILTER clause. No current code path populates it.
	ConfidenceLevelFilter *float64               `json:"confidence_level,omitempty"`
	Context               string                 `json:"context,omitempty"`
	IsNegation            bool                   `json:"is_negation"`
	SourceReferences      []string               `json:"source_references,omitempty"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
}

var placeholderPattern = regexp.MustCompile(`(OBJECT[0-9]+|SUBJECT)`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// placeholderBinding pairs one template placeholder with the entity that
// fills it.
type placeholderBinding struct {
	placeholder string
	entity      *ExtractedEntity
}

// ToNaturalLanguage renders the statement through its dynamic label
// template. Placeholders are resolved from a fixed ordered table, unfilled
// placeholders are stripped and whitespace collapsed.
func (statement *RosettaStatement) ToNaturalLanguage() string {
	if statement.DynamicLabelTemplate == "" {
		return fmt.Sprintf("%s %s", statement.Subject.DisplayLabel(), statement.StatementTypeLabel)
	}

	bindings := []placeholderBinding{
		{"SUBJECT", statement.Subject},
		{"OBJECT1", statement.RequiredObject1},
		{"OBJECT2", statement.OptionalObject1},
		{"OBJECT3", statement.OptionalObject2},
		{"OBJECT4", statement.OptionalObject3},
	}

	return resolvePlaceholders(statement.DynamicLabelTemplate, bindings)
}

func resolvePlaceholders(template string, bindings []placeholderBinding) string {
	result := template
	for _, binding := range bindings {
		if binding.entity == nil {
			continue
		}
		result = strings.ReplaceAll(result, binding.placeholder, binding.entity.DisplayLabel())
	}

	result = placeholderPattern.ReplaceAllString(result, "")
	result = whitespacePattern.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

func ValidateRosettaStatement(statement *RosettaStatement) bool {
	if statement == nil || statement.Subject == nil || statement.StatementTypeURI == "" {
		return false
	}
	return ValidateExtractedEntity(statement.Subject)
}

// GeneratedStatements is the stage 3 output.
type GeneratedStatements struct {
	Statements                 []*RosettaStatement    `json:"statements"`
	GenerationConfidence       float64                `json:"generation_confidence"`
	AlternativeInterpretations []*RosettaStatement    `json:"alternative_interpretations,omitempty"`
	Metadata                   map[string]interface{} `json:"metadata,omitempty"`
}

type QueryType string

const (
	QueryTypeSelect    QueryType = "SELECT"
	QueryTypeAsk       QueryType = "ASK"
	QueryTypeConstruct QueryType = "CONSTRUCT"
)

type SPARQLQuery struct {
	QueryText           string                 `json:"query_text"`
	QueryType           QueryType              `json:"query_type"`
	EstimatedComplexity int                    `json:"estimated_complexity"`
	Timeout             time.Duration          `json:"timeout"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

func ValidateSPARQLQuery(query *SPARQLQuery) bool {
	if query == nil || query.QueryText == "" || query.QueryType == "" {
		return false
	}
	if query.EstimatedComplexity < 1 || query.EstimatedComplexity > 5 {
		return false
	}
	return true
}

const (
	GenerationMethodRosettaTemplate = "rosetta_template"
	GenerationMethodTextFallback    = "text_fallback"
)

// GeneratedQueries is the stage 4 output, one primary query plus ranked
// fallbacks.
type GeneratedQueries struct {
	PrimaryQuery     *SPARQLQuery           `json:"primary_query"`
	FallbackQueries  []*SPARQLQuery         `json:"fallback_queries,omitempty"`
	GenerationMethod string                 `json:"generation_method"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// BindingValue is one SPARQL JSON results binding cell.
type BindingValue struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// ResultRow maps variable names to their bound values for one result row.
type ResultRow map[string]BindingValue

// SPARQLResponse mirrors the application/sparql-results+json wire format.
type SPARQLResponse struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []ResultRow `json:"bindings"`
	} `json:"results"`
}

// QueryResults is the stage 5 output. Failures are carried in-band, a
// failed execution is a success=false value, never a propagated error.
type QueryResults struct {
	Success       bool                   `json:"success"`
	Results       []ResultRow            `json:"results"`
	QueryUsed     string                 `json:"query_used"`
	ExecutionTime time.Duration          `json:"execution_time"`
	TotalResults  int                    `json:"total_results"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// StructuredResult is one confidence-scored result. RosettaStatement is a
// lookup-only back-reference to the originating statement, not ownership.
type StructuredResult struct {
	NanopubURI       string                 `json:"nanopub_uri"`
	StatementURI     string                 `json:"statement_uri,omitempty"`
	RosettaStatement *RosettaStatement      `json:"-"`
	Confidence       float64                `json:"confidence"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	RawData          ResultRow              `json:"raw_data,omitempty"`
}

const (
	ResultTypeCitation         = "citation"
	ResultTypeRosettaStatement = "rosetta_statement"
	ResultTypeGeneral          = "general"
)

// ResultGroupings holds the always-present result groupings.
type ResultGroupings struct {
	ByType       map[string][]*StructuredResult `json:"by_type"`
	ByConfidence map[string][]*StructuredResult `json:"by_confidence"`
}

// ProcessedResults is the stage 6 output.
type ProcessedResults struct {
	Results              []*StructuredResult    `json:"results"`
	TotalFound           int                    `json:"total_found"`
	ProcessingConfidence float64                `json:"processing_confidence"`
	Groupings            ResultGroupings        `json:"groupings"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// NaturalLanguageResult is the stage 7 output and the pipeline's public
// answer shape. ExecutionSummary always carries total_execution_time,
// query_processed, pipeline_steps_completed and debug_mode, error paths add
// error and error_type.
type NaturalLanguageResult struct {
	Summary               string                 `json:"summary"`
	DetailedResults       []string               `json:"detailed_results"`
	ConfidenceExplanation string                 `json:"confidence_explanation"`
	Suggestions           []string               `json:"suggestions"`
	ExecutionSummary      map[string]interface{} `json:"execution_summary"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
}

// NanopubContent is the fetched representation of a single nanopublication.
type NanopubContent struct {
	URI        string `json:"uri"`
	Format     string `json:"format"`
	Content    string `json:"content"`
	StatusCode int    `json:"status"`
}

// TextSearchResult is one ranked free-text search match.
type TextSearchResult struct {
	Nanopub string  `json:"np"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
}
