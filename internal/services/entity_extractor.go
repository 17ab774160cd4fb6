package services

import (
	"context"
	"nanoqa-pipeline/internal/endpoints"
	"nanoqa-pipeline/internal/models"
	"nanoqa-pipeline/internal/pkg/logger"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// EntityExtractor finds candidate entities in a processed question, resolves
// duplicates and overlaps, links identifier entities to canonical URIs and
// splits the survivors into subject and object candidates.
//
// The endpoint manager is held for resolver implementations that look
// entities up in the nanopub network. The current resolver is local only.
type EntityExtractor struct {
	endpointManager *endpoints.EndpointManager
	logger          *logger.Logger

	// entityCache memoizes resolver outcomes keyed by "type|text" for the
	// lifetime of the extractor. Concurrent batch tasks race benignly,
	// last writer wins.
	entityCache sync.Map
}

type entityLink struct {
	URI      string
	Label    string
	Resolved bool
}

var (
	trailingIdentifierPunct = regexp.MustCompile(`[?!.,;]+$`)
	acronymPattern          = regexp.MustCompile(`\b[A-Z]{2,}\b`)
	parentheticalPattern    = regexp.MustCompile(`\(([^)]+)\)`)
	exampleListPrefix       = regexp.MustCompile(`^(?:e\.g\.|i\.e\.|eg|ie)[,.]?\s*`)
	nounPhrasePattern       = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3}\b`)
	singleWordPattern       = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9_-]{3,}\b`)
)

// acronymStopWords are all-caps tokens that name identifier kinds or units
// rather than entities.
var acronymStopWords = map[string]struct{}{
	"WHAT": {}, "WHO": {}, "WHERE": {}, "WHEN": {}, "WHY": {}, "HOW": {},
	"WHICH": {}, "THE": {}, "AND": {}, "FOR": {}, "WITH": {},
	"DOI": {}, "ORCID": {}, "URL": {}, "URI": {}, "ISBN": {}, "ISSN": {},
	"KG": {}, "KM": {}, "CM": {}, "MM": {}, "MG": {}, "ML": {}, "GB": {}, "MB": {},
}

var functionWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"by": {}, "for": {}, "with": {}, "to": {}, "from": {}, "and": {},
	"or": {}, "but": {}, "is": {}, "are": {}, "was": {}, "were": {},
}

var questionWordSet = map[string]struct{}{
	"what": {}, "who": {}, "where": {}, "when": {}, "why": {}, "how": {},
	"which": {}, "whose": {}, "whom": {},
}

// boundaryWords are generic scholarly vocabulary and relationship cues that
// surround entities without being entities themselves.
var boundaryWords = map[string]struct{}{
	"papers": {}, "paper": {}, "publications": {}, "publication": {},
	"research": {}, "study": {}, "studies": {}, "work": {}, "works": {},
	"data": {}, "results": {}, "result": {}, "find": {}, "show": {},
	"list": {}, "give": {}, "tell": {}, "please": {}, "many": {},
	"much": {}, "cite": {}, "cites": {}, "cited": {}, "reference": {},
	"references": {}, "mention": {}, "mentions": {}, "author": {},
	"authors": {}, "authored": {}, "written": {}, "wrote": {},
	"created": {}, "located": {}, "situated": {}, "related": {},
	"connected": {}, "associated": {}, "measure": {}, "measures": {},
	"measurement": {}, "regarding": {}, "concerning": {},
}

func NewEntityExtractor(endpointManager *endpoints.EndpointManager, log *logger.Logger) *EntityExtractor {
	extractor := &EntityExtractor{
		endpointManager: endpointManager,
		logger:          log,
	}

	log.Info("Entity Extractor Initialized Successfully")

	return extractor
}

// ExtractAndLink extracts, deduplicates, links and classifies entities from
// a processed question. It never fails on empty input, an empty question
// yields empty candidate sets with confidence 0.
func (extractor *EntityExtractor) ExtractAndLink(ctx context.Context, processed *models.ProcessedQuestion, pctx *models.ProcessingContext) (*models.LinkedEntities, error) {
	startTime := time.Now()

	result := &models.LinkedEntities{
		Entities:          []*models.ExtractedEntity{},
		SubjectCandidates: []*models.ExtractedEntity{},
		ObjectCandidates:  []*models.ExtractedEntity{},
		LinkingConfidence: 0,
	}

	if processed == nil || strings.TrimSpace(processed.CleanedText) == "" {
		return result, nil
	}

	text := processed.CleanedText

	candidates := extractor.extractCandidates(text)
	entities := extractor.resolveDuplicates(candidates)

	for _, entity := range entities {
		extractor.linkEntity(ctx, entity)
	}

	subjects, objects := extractor.classifyEntities(entities, text)

	result.Entities = entities
	result.SubjectCandidates = subjects
	result.ObjectCandidates = objects
	result.LinkingConfidence = extractor.linkingConfidence(entities)

	extractor.logger.LogService("entity_extractor", "extract_and_link", time.Since(startTime), map[string]interface{}{
		"entities":           len(entities),
		"subject_candidates": len(subjects),
		"object_candidates":  len(objects),
		"confidence":         result.LinkingConfidence,
	}, nil)

	return result, nil
}

// extractCandidates runs every extraction category in order. Structured
// identifiers and quoted titles claim their spans so lower-priority
// categories cannot re-extract fragments of them; the remaining categories
// may overlap each other and are resolved afterwards.
func (extractor *EntityExtractor) extractCandidates(text string) []*models.ExtractedEntity {
	var candidates []*models.ExtractedEntity
	used := make([]bool, len(text))

	claim := func(entity *models.ExtractedEntity) {
		for i := entity.StartPos; i < entity.EndPos && i < len(used); i++ {
			used[i] = true
		}
	}
	free := func(start, end int) bool {
		for i := start; i < end && i < len(used); i++ {
			if used[i] {
				return false
			}
		}
		return true
	}

	for _, entity := range extractor.extractStructuredIdentifiers(text) {
		candidates = append(candidates, entity)
		claim(entity)
	}

	for _, entity := range extractor.extractQuotedTitles(text) {
		if free(entity.StartPos, entity.EndPos) {
			candidates = append(candidates, entity)
			claim(entity)
		}
	}

	for _, entity := range extractor.extractAcronyms(text) {
		if free(entity.StartPos, entity.EndPos) {
			candidates = append(candidates, entity)
		}
	}

	for _, entity := range extractor.extractParentheticalLists(text) {
		if free(entity.StartPos, entity.EndPos) {
			candidates = append(candidates, entity)
		}
	}

	for _, entity := range extractor.extractNounPhrases(text) {
		if free(entity.StartPos, entity.EndPos) {
			candidates = append(candidates, entity)
		}
	}

	for _, entity := range extractor.extractMeaningfulWords(text) {
		if free(entity.StartPos, entity.EndPos) {
			candidates = append(candidates, entity)
		}
	}

	return candidates
}

// extractStructuredIdentifiers finds DOIs, ORCIDs and URLs. Trailing
// sentence punctuation is stripped from DOI and URL matches with the span
// adjusted to the stripped text.
func (extractor *EntityExtractor) extractStructuredIdentifiers(text string) []*models.ExtractedEntity {
	var entities []*models.ExtractedEntity

	for _, loc := range doiPattern.FindAllStringIndex(text, -1) {
		matched := trailingIdentifierPunct.ReplaceAllString(text[loc[0]:loc[1]], "")
		if matched == "" {
			continue
		}
		entities = append(entities, &models.ExtractedEntity{
			Text:       matched,
			EntityType: models.EntityTypeDOI,
			Confidence: 0.95,
			StartPos:   loc[0],
			EndPos:     loc[0] + len(matched),
		})
	}

	for _, loc := range orcidPattern.FindAllStringIndex(text, -1) {
		entities = append(entities, &models.ExtractedEntity{
			Text:       text[loc[0]:loc[1]],
			EntityType: models.EntityTypeORCID,
			Confidence: 0.95,
			StartPos:   loc[0],
			EndPos:     loc[1],
		})
	}

	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		matched := trailingIdentifierPunct.ReplaceAllString(text[loc[0]:loc[1]], "")
		if matched == "" {
			continue
		}
		entities = append(entities, &models.ExtractedEntity{
			Text:       matched,
			EntityType: models.EntityTypeURL,
			Confidence: 0.9,
			StartPos:   loc[0],
			EndPos:     loc[0] + len(matched),
		})
	}

	return entities
}

func (extractor *EntityExtractor) extractQuotedTitles(text string) []*models.ExtractedEntity {
	var entities []*models.ExtractedEntity

	for _, pattern := range []*regexp.Regexp{doubleQuotedPattern, singleQuotedPattern} {
		for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2], loc[3]
			if start < 0 || end <= start {
				continue
			}
			entities = append(entities, &models.ExtractedEntity{
				Text:       text[start:end],
				EntityType: models.EntityTypeTitle,
				Confidence: 0.8,
				StartPos:   start,
				EndPos:     end,
			})
		}
	}

	return entities
}

func (extractor *EntityExtractor) extractAcronyms(text string) []*models.ExtractedEntity {
	var entities []*models.ExtractedEntity

	for _, loc := range acronymPattern.FindAllStringIndex(text, -1) {
		acronym := text[loc[0]:loc[1]]
		if _, stop := acronymStopWords[acronym]; stop {
			continue
		}
		entities = append(entities, &models.ExtractedEntity{
			Text:       acronym,
			EntityType: models.EntityTypeConcept,
			Confidence: 0.7,
			StartPos:   loc[0],
			EndPos:     loc[1],
		})
	}

	return entities
}

// extractParentheticalLists splits "(e.g., A, B, C)" style contents into
// individual concept candidates.
func (extractor *EntityExtractor) extractParentheticalLists(text string) []*models.ExtractedEntity {
	var entities []*models.ExtractedEntity

	for _, loc := range parentheticalPattern.FindAllStringSubmatchIndex(text, -1) {
		contentStart, contentEnd := loc[2], loc[3]
		content := text[contentStart:contentEnd]

		inner := exampleListPrefix.ReplaceAllString(content, "")
		offset := contentStart + (len(content) - len(inner))

		segmentStart := 0
		for _, segment := range strings.Split(inner, ",") {
			trimmed := strings.TrimSpace(segment)
			if len(trimmed) >= 2 && !isFilteredWord(strings.ToLower(trimmed)) {
				leading := len(segment) - len(strings.TrimLeft(segment, " "))
				start := offset + segmentStart + leading
				entities = append(entities, &models.ExtractedEntity{
					Text:       trimmed,
					EntityType: models.EntityTypeConcept,
					Confidence: 0.6,
					StartPos:   start,
					EndPos:     start + len(trimmed),
				})
			}
			segmentStart += len(segment) + 1
		}
	}

	return entities
}

// extractNounPhrases finds runs of 2 to 4 capitalized words and strips
// leading and trailing function words from the span.
func (extractor *EntityExtractor) extractNounPhrases(text string) []*models.ExtractedEntity {
	var entities []*models.ExtractedEntity

	for _, loc := range nounPhrasePattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		words := strings.Split(text[start:end], " ")

		for len(words) > 0 {
			if _, function := functionWords[strings.ToLower(words[0])]; !function {
				break
			}
			start += len(words[0]) + 1
			words = words[1:]
		}
		for len(words) > 0 {
			last := words[len(words)-1]
			if _, function := functionWords[strings.ToLower(last)]; !function {
				break
			}
			end -= len(last) + 1
			words = words[:len(words)-1]
		}

		if len(words) < 2 || len(words) > 4 {
			continue
		}

		entities = append(entities, &models.ExtractedEntity{
			Text:       text[start:end],
			EntityType: models.EntityTypeConcept,
			Confidence: 0.65,
			StartPos:   start,
			EndPos:     end,
		})
	}

	return entities
}

// extractMeaningfulWords picks up single content words of at least 4
// characters, biased toward nominalizing suffixes.
func (extractor *EntityExtractor) extractMeaningfulWords(text string) []*models.ExtractedEntity {
	var entities []*models.ExtractedEntity

	for _, loc := range singleWordPattern.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		lowered := strings.ToLower(word)

		if isFilteredWord(lowered) {
			continue
		}

		confidence := 0.5
		if hasNominalSuffix(lowered) {
			confidence = 0.6
		}
		if confidence > 0.9 {
			confidence = 0.9
		}

		entities = append(entities, &models.ExtractedEntity{
			Text:       word,
			EntityType: models.EntityTypeConcept,
			Confidence: confidence,
			StartPos:   loc[0],
			EndPos:     loc[1],
		})
	}

	return entities
}

func isFilteredWord(lowered string) bool {
	if _, stop := stopWords[lowered]; stop {
		return true
	}
	if _, function := functionWords[lowered]; function {
		return true
	}
	if _, question := questionWordSet[lowered]; question {
		return true
	}
	_, boundary := boundaryWords[lowered]
	return boundary
}

// resolveDuplicates applies the three reduction rules in order: same
// normalized text keeps the highest-confidence instance, overlapping spans
// keep the higher-confidence one, and strict text substrings of a surviving
// entity are dropped. Survivors come back in positional order.
func (extractor *EntityExtractor) resolveDuplicates(candidates []*models.ExtractedEntity) []*models.ExtractedEntity {
	if len(candidates) == 0 {
		return []*models.ExtractedEntity{}
	}

	byText := make(map[string]*models.ExtractedEntity)
	var textOrder []string
	for _, candidate := range candidates {
		key := strings.ToLower(candidate.Text)
		existing, found := byText[key]
		if !found {
			textOrder = append(textOrder, key)
			byText[key] = candidate
		} else if candidate.Confidence > existing.Confidence {
			byText[key] = candidate
		}
	}

	deduped := make([]*models.ExtractedEntity, 0, len(textOrder))
	for _, key := range textOrder {
		deduped = append(deduped, byText[key])
	}

	ranked := make([]*models.ExtractedEntity, len(deduped))
	copy(ranked, deduped)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	var kept []*models.ExtractedEntity
	for _, candidate := range ranked {
		overlaps := false
		for _, survivor := range kept {
			if candidate.Overlaps(survivor) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, candidate)
		}
	}

	var survivors []*models.ExtractedEntity
	for _, candidate := range kept {
		candidateText := strings.ToLower(candidate.Text)
		substring := false
		for _, other := range kept {
			if other == candidate {
				continue
			}
			otherText := strings.ToLower(other.Text)
			if candidateText != otherText && strings.Contains(otherText, candidateText) {
				substring = true
				break
			}
		}
		if !substring {
			survivors = append(survivors, candidate)
		}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].StartPos < survivors[j].StartPos
	})

	if survivors == nil {
		survivors = []*models.ExtractedEntity{}
	}
	return survivors
}

// linkEntity resolves an entity to a canonical URI. Identifier types build
// their URI deterministically from the text; titles and concepts go through
// the resolver with its outcome cached per (type, text).
func (extractor *EntityExtractor) linkEntity(ctx context.Context, entity *models.ExtractedEntity) {
	switch entity.EntityType {
	case models.EntityTypeDOI:
		entity.URI = "https://doi.org/" + entity.Text
	case models.EntityTypeORCID:
		entity.URI = "https://orcid.org/" + entity.Text
	case models.EntityTypeURL:
		entity.URI = entity.Text
	case models.EntityTypeTitle, models.EntityTypeConcept:
		cacheKey := string(entity.EntityType) + "|" + strings.ToLower(entity.Text)
		if cached, found := extractor.entityCache.Load(cacheKey); found {
			link := cached.(*entityLink)
			entity.URI = link.URI
			entity.Label = link.Label
			return
		}

		link := extractor.resolveConcept(ctx, entity)
		extractor.entityCache.Store(cacheKey, link)
		entity.URI = link.URI
		entity.Label = link.Label
	}
}

// resolveConcept looks a title or concept up in the knowledge source.
// Currently unresolved for every input; the endpoint manager hook exists so
// a SPARQL label lookup can slot in without touching callers.
func (extractor *EntityExtractor) resolveConcept(ctx context.Context, entity *models.ExtractedEntity) *entityLink {
	return &entityLink{Resolved: false}
}

// classifyEntities splits entities into subject and object candidates.
// High-confidence identifier entities are always subject candidates and may
// additionally be object candidates when they sit late in the question.
func (extractor *EntityExtractor) classifyEntities(entities []*models.ExtractedEntity, cleanedText string) ([]*models.ExtractedEntity, []*models.ExtractedEntity) {
	subjects := []*models.ExtractedEntity{}
	objects := []*models.ExtractedEntity{}

	questionLength := len(cleanedText)

	for _, entity := range entities {
		positionRatio := 0.0
		if questionLength > 0 {
			positionRatio = float64(entity.StartPos) / float64(questionLength)
		}

		if entity.EntityType.IsIdentifier() && entity.Confidence > 0.9 {
			subjects = append(subjects, entity)
			if positionRatio >= 0.6 {
				objects = append(objects, entity)
			}
			continue
		}

		if positionRatio < 0.6 {
			subjects = append(subjects, entity)
		} else {
			objects = append(objects, entity)
		}
	}

	return subjects, objects
}

// linkingConfidence is a weighted mean: weight 3 for identifier types, 2
// for titles and multi-word phrases, 1 otherwise.
func (extractor *EntityExtractor) linkingConfidence(entities []*models.ExtractedEntity) float64 {
	if len(entities) == 0 {
		return 0
	}

	weightedSum := 0.0
	totalWeight := 0.0
	for _, entity := range entities {
		weight := 1.0
		switch {
		case entity.EntityType.IsIdentifier():
			weight = 3.0
		case entity.EntityType == models.EntityTypeTitle || strings.Contains(entity.Text, " "):
			weight = 2.0
		}
		weightedSum += entity.Confidence * weight
		totalWeight += weight
	}

	return weightedSum / totalWeight
}

func (extractor *EntityExtractor) GetStats() map[string]interface{} {
	cacheSize := 0
	extractor.entityCache.Range(func(key, value interface{}) bool {
		cacheSize++
		return true
	})
	return map[string]interface{}{
		"entity_cache_size": cacheSize,
	}
}
