package services

import (
	"context"
	"math"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"regexp"
	"sort"
	"strings"
	"time"
)

// QuestionProcessor parses and preprocesses natural language questions.
// It classifies the question type, extracts key phrases and flags potential
// entities for the extractor stage.
type QuestionProcessor struct {
	logger *logger.Logger
}

var questionTypeOrder = []models.QuestionType{
	models.QuestionTypeWhat,
	models.QuestionTypeWho,
	models.QuestionTypeWhere,
	models.QuestionTypeWhen,
	models.QuestionTypeHow,
	models.QuestionTypeWhy,
	models.QuestionTypeList,
	models.QuestionTypeCount,
}

var questionTypePatterns = map[models.QuestionType][]*regexp.Regexp{
	models.QuestionTypeWhat: {
		regexp.MustCompile(`\bwhat\b`),
		regexp.MustCompile(`\bwhich\b`),
		regexp.MustCompile(`\bdefine\b`),
		regexp.MustCompile(`\bexplain\b`),
	},
	models.QuestionTypeWho: {
		regexp.MustCompile(`\bwho\b`),
		regexp.MustCompile(`\bwhom\b`),
		regexp.MustCompile(`\bwhose\b`),
		regexp.MustCompile(`\bauthor(?:ed)?\s+by\b`),
		regexp.MustCompile(`\bwritten\s+by\b`),
		regexp.MustCompile(`\bcreated\s+by\b`),
	},
	models.QuestionTypeWhere: {
		regexp.MustCompile(`\bwhere\b`),
		regexp.MustCompile(`\blocation\b`),
		regexp.MustCompile(`\blocated\b`),
	},
	models.QuestionTypeWhen: {
		regexp.MustCompile(`\bwhen\b`),
		regexp.MustCompile(`\bdate\b`),
		regexp.MustCompile(`\btime\b`),
		regexp.MustCompile(`\byear\b`),
	},
	models.QuestionTypeHow: {
		regexp.MustCompile(`\bhow\b`),
		regexp.MustCompile(`\bmethod\b`),
		regexp.MustCompile(`\bprocess\b`),
	},
	models.QuestionTypeWhy: {
		regexp.MustCompile(`\bwhy\b`),
		regexp.MustCompile(`\breason\b`),
		regexp.MustCompile(`\bcause\b`),
	},
	models.QuestionTypeList: {
		regexp.MustCompile(`\blist\b`),
		regexp.MustCompile(`\bshow\s+(?:me\s+)?all\b`),
		regexp.MustCompile(`\bfind\s+all\b`),
		regexp.MustCompile(`\bdisplay\s+all\b`),
		regexp.MustCompile(`\benumerate\b`),
		regexp.MustCompile(`\bidentify\s+all\b`),
		regexp.MustCompile(`\ball\s+\w+\s+by\b`),
		regexp.MustCompile(`papers\s+by\b`),
	},
	models.QuestionTypeCount: {
		regexp.MustCompile(`\bhow many\b`),
		regexp.MustCompile(`\bcount\b`),
		regexp.MustCompile(`\bnumber of\b`),
		regexp.MustCompile(`\bquantity\b`),
		regexp.MustCompile(`\bamount\b`),
	},
}

// howManyDiscountPattern removes "how many" hits from the HOW score, those
// belong to COUNT.
var howManyDiscountPattern = regexp.MustCompile(`\bhow\s+many\b`)

// listAuthorBoostPattern breaks the LIST vs WHO tie for "papers by" style
// questions in favour of LIST.
var listAuthorBoostPattern = regexp.MustCompile(`(?:list|show|find|all)\s+.*(?:papers|work|publications)\s+by\b`)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "have": {}, "has": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"may": {}, "might": {}, "can": {}, "must": {}, "shall": {}, "of": {},
	"in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "with": {}, "to": {},
	"from": {}, "up": {}, "about": {}, "into": {}, "through": {},
	"during": {}, "before": {}, "after": {}, "above": {}, "below": {},
	"between": {}, "among": {}, "under": {}, "over": {},
}

var interrogativeWords = map[string]struct{}{
	"what": {}, "who": {}, "where": {}, "when": {}, "why": {}, "how": {},
	"which": {}, "whose": {}, "whom": {}, "do": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "will": {}, "would": {}, "should": {},
	"is": {}, "are": {}, "was": {}, "were": {},
}

var capitalizedFillerWords = map[string]struct{}{
	"What": {}, "Who": {}, "Where": {}, "When": {}, "How": {}, "Why": {},
	"Which": {}, "The": {}, "This": {}, "That": {}, "These": {}, "Those": {},
}

var (
	collapseWhitespacePattern  = regexp.MustCompile(`\s+`)
	trailingPunctuationPattern = regexp.MustCompile(`[?!.]+$`)
	punctuationOnlyPattern     = regexp.MustCompile(`^[?!.\s]*$`)
	wordTokenPattern           = regexp.MustCompile(`\b\w+\b`)

	doiPattern               = regexp.MustCompile(`10\.\d+/[^\s]+`)
	orcidPattern             = regexp.MustCompile(`0000-\d{4}-\d{4}-\d{3}[\dX]`)
	urlPattern               = regexp.MustCompile(`https?://[^\s]+`)
	doubleQuotedPattern      = regexp.MustCompile(`"([^"]+)"`)
	singleQuotedPattern      = regexp.MustCompile(`'([^']+)'`)
	capitalizedPhrasePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	bareNumberPattern        = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	lowercaseTermPattern     = regexp.MustCompile(`\b[a-z]+(?:-[a-z]+)*\b`)
)

var nominalSuffixes = []string{"tion", "sion", "ment", "ness", "ity", "ism", "ics"}

func NewQuestionProcessor(log *logger.Logger) *QuestionProcessor {
	processor := &QuestionProcessor{
		logger: log,
	}

	log.Info("Question Processor Initialized Successfully",
		"question_types", len(questionTypePatterns))

	return processor
}

// Process cleans and classifies a raw question. It fails with a validation
// error when the question is empty or reduces to punctuation only.
func (processor *QuestionProcessor) Process(ctx context.Context, question string, pctx *models.ProcessingContext) (*models.ProcessedQuestion, error) {
	startTime := time.Now()

	if !models.ValidateProcessingContext(pctx) {
		return nil, models.NewValidationError("INVALID_CONTEXT", "Invalid processing context")
	}

	if strings.TrimSpace(question) == "" {
		return nil, models.NewValidationError("EMPTY_QUESTION", "Question cannot be empty")
	}

	cleaned := processor.cleanQuestion(question)
	if cleaned == "" {
		return nil, models.NewValidationError("EMPTY_QUESTION", "Question cannot be empty")
	}

	questionType, confidence := processor.classifyQuestionType(cleaned)
	keyPhrases := processor.extractKeyPhrases(cleaned)
	potentialEntities := processor.identifyPotentialEntities(cleaned)

	result := &models.ProcessedQuestion{
		OriginalText:      question,
		CleanedText:       cleaned,
		QuestionType:      questionType,
		KeyPhrases:        keyPhrases,
		PotentialEntities: potentialEntities,
		IntentConfidence:  confidence,
		Language:          "en",
		Metadata: map[string]interface{}{
			"step": "question_processor",
		},
	}

	processor.logger.LogService("question_processor", "process", time.Since(startTime), map[string]interface{}{
		"question_type":      string(questionType),
		"confidence":         confidence,
		"key_phrases":        len(keyPhrases),
		"potential_entities": len(potentialEntities),
	}, nil)

	return result, nil
}

// cleanQuestion collapses whitespace, normalizes trailing punctuation to a
// single question mark and appends one to unterminated interrogatives.
// Punctuation only input cleans to the empty string.
func (processor *QuestionProcessor) cleanQuestion(question string) string {
	cleaned := collapseWhitespacePattern.ReplaceAllString(strings.TrimSpace(question), " ")
	cleaned = trailingPunctuationPattern.ReplaceAllString(cleaned, "?")

	if punctuationOnlyPattern.MatchString(cleaned) {
		return ""
	}

	if !strings.HasSuffix(cleaned, "?") && processor.isInterrogative(cleaned) {
		cleaned += "?"
	}

	return cleaned
}

func (processor *QuestionProcessor) isInterrogative(text string) bool {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return false
	}
	_, interrogative := interrogativeWords[fields[0]]
	return interrogative
}

func (processor *QuestionProcessor) classifyQuestionType(question string) (models.QuestionType, float64) {
	questionLower := strings.ToLower(question)

	scores := make(map[models.QuestionType]int)
	for _, questionType := range questionTypeOrder {
		score := 0
		for _, pattern := range questionTypePatterns[questionType] {
			score += len(pattern.FindAllStringIndex(questionLower, -1)) * 2
		}
		if questionType == models.QuestionTypeHow {
			score -= len(howManyDiscountPattern.FindAllStringIndex(questionLower, -1)) * 2
		}
		if score > 0 {
			scores[questionType] = score
		}
	}

	_, hasList := scores[models.QuestionTypeList]
	_, hasWho := scores[models.QuestionTypeWho]
	if hasList && hasWho && listAuthorBoostPattern.MatchString(questionLower) {
		scores[models.QuestionTypeList] += 3
	}

	if len(scores) == 0 {
		return models.QuestionTypeGeneral, 0.5
	}

	bestType := models.QuestionTypeGeneral
	maxScore := 0
	totalScore := 0
	for _, questionType := range questionTypeOrder {
		score, scored := scores[questionType]
		if !scored {
			continue
		}
		totalScore += score
		if score > maxScore {
			maxScore = score
			bestType = questionType
		}
	}

	confidence := float64(maxScore) / float64(totalScore)
	if maxScore >= 4 {
		confidence = math.Min(confidence*1.2, 1.0)
	} else if maxScore == 1 {
		confidence = math.Max(confidence*0.8, 0.3)
	}

	return bestType, confidence
}

// extractKeyPhrases returns the top 10 longest unigrams, bigrams and
// trigrams after stop word removal. The sort is stable, so equal length
// phrases keep their first seen order.
func (processor *QuestionProcessor) extractKeyPhrases(question string) []string {
	words := wordTokenPattern.FindAllString(strings.ToLower(question), -1)

	var keyWords []string
	for _, word := range words {
		if _, stop := stopWords[word]; stop {
			continue
		}
		if len(word) > 2 {
			keyWords = append(keyWords, word)
		}
	}

	var phrases []string
	phrases = append(phrases, keyWords...)
	for i := 0; i+1 < len(keyWords); i++ {
		phrases = append(phrases, keyWords[i]+" "+keyWords[i+1])
	}
	for i := 0; i+2 < len(keyWords); i++ {
		phrases = append(phrases, keyWords[i]+" "+keyWords[i+1]+" "+keyWords[i+2])
	}

	seen := make(map[string]struct{}, len(phrases))
	unique := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		unique = append(unique, phrase)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return len(unique[i]) > len(unique[j])
	})

	if len(unique) > 10 {
		unique = unique[:10]
	}
	return unique
}

// identifyPotentialEntities collects candidate entity strings via fixed
// patterns, deduplicated preserving first seen order.
func (processor *QuestionProcessor) identifyPotentialEntities(question string) []string {
	var entities []string

	entities = append(entities, doiPattern.FindAllString(question, -1)...)
	entities = append(entities, orcidPattern.FindAllString(question, -1)...)
	entities = append(entities, urlPattern.FindAllString(question, -1)...)

	for _, match := range doubleQuotedPattern.FindAllStringSubmatch(question, -1) {
		entities = append(entities, match[1])
	}
	for _, match := range singleQuotedPattern.FindAllStringSubmatch(question, -1) {
		entities = append(entities, match[1])
	}

	for _, match := range capitalizedPhrasePattern.FindAllString(question, -1) {
		if _, filler := capitalizedFillerWords[match]; filler {
			continue
		}
		if len(strings.Fields(match)) <= 4 {
			entities = append(entities, match)
		}
	}

	entities = append(entities, bareNumberPattern.FindAllString(question, -1)...)

	suffixTerms := 0
	for _, term := range lowercaseTermPattern.FindAllString(strings.ToLower(question), -1) {
		if suffixTerms >= 5 {
			break
		}
		if len(term) > 5 && hasNominalSuffix(term) {
			entities = append(entities, term)
			suffixTerms++
		}
	}

	seen := make(map[string]struct{}, len(entities))
	unique := make([]string, 0, len(entities))
	for _, entity := range entities {
		if _, dup := seen[entity]; dup {
			continue
		}
		seen[entity] = struct{}{}
		unique = append(unique, entity)
	}
	return unique
}

func hasNominalSuffix(term string) bool {
	for _, suffix := range nominalSuffixes {
		if strings.HasSuffix(term, suffix) {
			return true
		}
	}
	return false
}

// AssessComplexity scores a processed question from 1 (simple) to 5 (very
// complex) based on length, entity count and compound connectives.
func (processor *QuestionProcessor) AssessComplexity(processed *models.ProcessedQuestion) int {
	complexity := 1

	wordCount := len(strings.Fields(processed.CleanedText))
	if wordCount > 20 {
		complexity += 2
	} else if wordCount > 10 {
		complexity++
	}

	entityCount := len(processed.PotentialEntities)
	if entityCount > 5 {
		complexity += 2
	} else if entityCount > 2 {
		complexity++
	}

	cleanedLower := strings.ToLower(processed.CleanedText)
	if strings.Contains(cleanedLower, " and ") {
		complexity++
	}
	if strings.Contains(cleanedLower, " or ") {
		complexity++
	}

	if processed.IntentConfidence > 0.9 && complexity > 1 {
		complexity--
	}

	if complexity > 5 {
		complexity = 5
	}
	return complexity
}

// SuggestImprovements lists phrasing hints that would make the question
// easier to answer.
func (processor *QuestionProcessor) SuggestImprovements(processed *models.ProcessedQuestion) []string {
	var suggestions []string

	if processed.IntentConfidence < 0.6 {
		suggestions = append(suggestions, "Consider rephrasing your question to be more specific")
	}
	if len(processed.PotentialEntities) == 0 {
		suggestions = append(suggestions, "Include specific identifiers like DOI, ORCID, or paper titles")
	}

	wordCount := len(strings.Fields(processed.CleanedText))
	if wordCount > 25 {
		suggestions = append(suggestions, "Try breaking your question into smaller, more focused parts")
	}
	if wordCount < 3 {
		suggestions = append(suggestions, "Provide more context or specific details in your question")
	}

	if processed.QuestionType == models.QuestionTypeGeneral {
		suggestions = append(suggestions, "Use question words like 'what', 'who', 'where' for better results")
	}

	return suggestions
}

var spamIndicators = []string{"buy now", "click here", "free offer", "$$$"}

// IsValidQuestion reports whether a raw question is worth processing at all.
func IsValidQuestion(question string) bool {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" || len(trimmed) < 3 {
		return false
	}

	questionLower := strings.ToLower(question)
	for _, indicator := range spamIndicators {
		if strings.Contains(questionLower, indicator) {
			return false
		}
	}
	return true
}
