package services

import (
	"context"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"regexp"
	"sort"
	"strings"
	"time"
)

// StatementGenerator maps a classified question plus its linked entities to
// structured Rosetta statements.
type StatementGenerator struct {
	logger *logger.Logger
}

type statementTemplate struct {
	Key              string
	URI              string
	Label            string
	DynamicTemplate  string
	TypicalVerbs     []string
	QuestionPatterns []*regexp.Regexp
	RequiresObject1  bool
}

// statementTemplates is the fixed relationship table. Order matters: equal
// match scores keep this order.
var statementTemplates = []statementTemplate{
	{
		Key:             "cites",
		URI:             "https://w3id.org/rosetta/Cites",
		Label:           "cites",
		DynamicTemplate: "SUBJECT cites OBJECT1",
		TypicalVerbs:    []string{"cites", "references", "mentions"},
		QuestionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`cite`),
			regexp.MustCompile(`reference`),
			regexp.MustCompile(`mention`),
		},
		RequiresObject1: true,
	},
	{
		Key:             "authored_by",
		URI:             "https://w3id.org/rosetta/AuthoredBy",
		Label:           "authored by",
		DynamicTemplate: "SUBJECT was authored by OBJECT1",
		TypicalVerbs:    []string{"authored", "written", "created"},
		QuestionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`author`),
			regexp.MustCompile(`wrote`),
			regexp.MustCompile(`written by`),
		},
		RequiresObject1: true,
	},
	{
		Key:             "has_measurement",
		URI:             "https://w3id.org/rosetta/HasMeasurement",
		Label:           "has measurement",
		DynamicTemplate: "SUBJECT has OBJECT1 of OBJECT2 OBJECT3",
		TypicalVerbs:    []string{"measures", "weighs", "contains"},
		QuestionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`mass`),
			regexp.MustCompile(`weight`),
			regexp.MustCompile(`temperature`),
			regexp.MustCompile(`measurement`),
		},
		RequiresObject1: true,
	},
	{
		Key:             "located_in",
		URI:             "https://w3id.org/rosetta/LocatedIn",
		Label:           "located in",
		DynamicTemplate: "SUBJECT is located in OBJECT1",
		TypicalVerbs:    []string{"located", "situated", "found"},
		QuestionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`where`),
			regexp.MustCompile(`location`),
			regexp.MustCompile(`located`),
		},
		RequiresObject1: true,
	},
	{
		Key:             "related_to",
		URI:             "https://w3id.org/rosetta/RelatedTo",
		Label:           "related to",
		DynamicTemplate: "SUBJECT is related to OBJECT1",
		TypicalVerbs:    []string{"related", "connected", "associated"},
		QuestionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`related`),
			regexp.MustCompile(`about`),
			regexp.MustCompile(`concerning`),
		},
		RequiresObject1: true,
	},
}

func NewStatementGenerator(log *logger.Logger) *StatementGenerator {
	generator := &StatementGenerator{
		logger: log,
	}

	log.Info("Statement Generator Initialized Successfully",
		"templates", len(statementTemplates))

	return generator
}

// Generate builds Rosetta statements for the top matching relationship
// templates. It never fails; empty entity sets yield an empty statement
// list with confidence 0.
func (generator *StatementGenerator) Generate(ctx context.Context, linked *models.LinkedEntities, processed *models.ProcessedQuestion, pctx *models.ProcessingContext) (*models.GeneratedStatements, error) {
	startTime := time.Now()

	result := &models.GeneratedStatements{
		Statements:                 []*models.RosettaStatement{},
		AlternativeInterpretations: []*models.RosettaStatement{},
		GenerationConfidence:       0,
	}

	if linked == nil || processed == nil {
		return result, nil
	}

	matched := generator.matchStatementTypes(processed)
	if len(matched) > 3 {
		matched = matched[:3]
	}

	for _, template := range matched {
		primary, alternatives := generator.generateForTemplate(template, linked)
		result.Statements = append(result.Statements, primary...)
		result.AlternativeInterpretations = append(result.AlternativeInterpretations, alternatives...)
	}

	result.GenerationConfidence = generator.generationConfidence(result.Statements, linked)

	generator.logger.LogService("statement_generator", "generate", time.Since(startTime), map[string]interface{}{
		"matched_templates": len(matched),
		"statements":        len(result.Statements),
		"alternatives":      len(result.AlternativeInterpretations),
		"confidence":        result.GenerationConfidence,
	}, nil)

	return result, nil
}

// matchStatementTypes scores every template against the cleaned question:
// +3 per matching cue pattern, +2 per verb keyword present. Templates with
// positive scores come back ordered by score descending.
func (generator *StatementGenerator) matchStatementTypes(processed *models.ProcessedQuestion) []statementTemplate {
	questionLower := strings.ToLower(processed.CleanedText)

	type scoredTemplate struct {
		template statementTemplate
		score    int
	}

	var matches []scoredTemplate
	for _, template := range statementTemplates {
		score := 0
		for _, pattern := range template.QuestionPatterns {
			if pattern.MatchString(questionLower) {
				score += 3
			}
		}
		for _, verb := range template.TypicalVerbs {
			if strings.Contains(questionLower, verb) {
				score += 2
			}
		}
		if score > 0 {
			matches = append(matches, scoredTemplate{template: template, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	templates := make([]statementTemplate, 0, len(matches))
	for _, match := range matches {
		templates = append(templates, match.template)
	}
	return templates
}

// generateForTemplate forms the cross product of subject and object
// candidates for one template. Self-pairs are excluded. When a template
// yields no primary statement but subject candidates exist, subject-only
// statements go into the alternatives list instead.
func (generator *StatementGenerator) generateForTemplate(template statementTemplate, linked *models.LinkedEntities) ([]*models.RosettaStatement, []*models.RosettaStatement) {
	var primary []*models.RosettaStatement
	var alternatives []*models.RosettaStatement

	for _, subject := range linked.SubjectCandidates {
		for _, object := range linked.ObjectCandidates {
			if subject == object {
				continue
			}

			statement := &models.RosettaStatement{
				Subject:              subject,
				StatementTypeURI:     template.URI,
				StatementTypeLabel:   template.Label,
				DynamicLabelTemplate: template.DynamicTemplate,
			}
			if template.RequiresObject1 {
				statement.RequiredObject1 = object
			}
			primary = append(primary, statement)
		}
	}

	if len(primary) == 0 {
		for _, subject := range linked.SubjectCandidates {
			alternatives = append(alternatives, &models.RosettaStatement{
				Subject:              subject,
				StatementTypeURI:     template.URI,
				StatementTypeLabel:   template.Label,
				DynamicLabelTemplate: template.DynamicTemplate,
			})
		}
	}

	return primary, alternatives
}

// generationConfidence scales the linking confidence by the fraction of
// statements carrying their required object.
func (generator *StatementGenerator) generationConfidence(statements []*models.RosettaStatement, linked *models.LinkedEntities) float64 {
	if len(statements) == 0 {
		return 0
	}

	complete := 0
	for _, statement := range statements {
		if statement.RequiredObject1 != nil {
			complete++
		}
	}
	completenessFactor := float64(complete) / float64(len(statements))

	return linked.LinkingConfidence * (0.5 + 0.5*completenessFactor)
}
