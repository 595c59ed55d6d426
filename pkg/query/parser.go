// Package query turns free-text member searches into structured intents.
// Parsing is deterministic pattern and keyword matching over the shared
// vocabulary, so a query resolves to the same categories and cities that
// normalization and inference produce. Parsing never fails: text with no
// recognizable structure comes back as fuzzy terms only.
package query

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vocab"
)

// Category confidence tiers. A high-confidence keyword ("lawyer") pins the
// category outright; plain keyword hits accumulate a weaker score.
const (
	highConfidence     = 0.9
	baseConfidence     = 0.5
	perHitConfidence   = 0.1
	maxPlainConfidence = 0.75
)

var (
	quotedNamePattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	// lookupNamePattern captures a capitalized run after a lookup verb:
	// "Find Juan Dela Cruz", "where is Maria Santos".
	lookupNamePattern = regexp.MustCompile(`(?:(?i:find|locate|contact|where\s+is|who\s+is|looking\s+for)\s+)((?:[A-ZÑ][a-zñÑ'.-]*\s+){1,3}[A-ZÑ][a-zñÑ'.-]*)`)
	batchSpanPattern  = regexp.MustCompile(`(?i)\b(?:batch|class)\s+(?:no[:.]?\s*|of\s+)?(\d{2,4}(?:-[A-Za-z]+\d*)?)\b`)
	chapterPattern    = regexp.MustCompile(`(?i)\b(\S+(?:\s+\S+)?)\s+chapter\b`)
	needPattern       = regexp.MustCompile(`(?i)\b(?:need|needs|looking\s+for|do\s+we\s+have|is\s+there|anyone|recommend|refer|find\s+me\s+an?)\b`)
	findVerbPattern   = regexp.MustCompile(`(?i)\b(?:find|locate|look\s+up|where\s+is|who\s+is)\b`)
)

// queryStopwords are glue tokens that never carry search signal.
var queryStopwords = map[string]bool{
	"i": true, "a": true, "an": true, "the": true, "in": true, "at": true,
	"of": true, "on": true, "for": true, "to": true, "me": true, "my": true,
	"we": true, "us": true, "our": true, "is": true, "are": true, "do": true,
	"does": true, "have": true, "has": true, "who": true, "can": true,
	"any": true, "anyone": true, "someone": true, "please": true, "po": true,
	"need": true, "needs": true, "want": true, "help": true, "with": true,
	"from": true, "and": true, "or": true, "looking": true, "find": true,
	"locate": true, "where": true, "contact": true, "now": true,
	"recommend": true, "refer": true, "there": true, "batch": true,
	"chapter": true, "class": true, "member": true, "members": true,
}

// Parser interprets raw search text against the shared vocabulary.
type Parser struct {
	logger     ectologger.Logger
	normalizer *normalizers.Normalizer
	vocabulary *vocab.Vocabulary
}

// NewParser creates a new query parser
func NewParser(logger ectologger.Logger, normalizer *normalizers.Normalizer) *Parser {
	return &Parser{
		logger:     logger,
		normalizer: normalizer,
		vocabulary: normalizer.Vocabulary(),
	}
}

// Parse interprets raw free text. A recognized person name always means a
// directory lookup; an explicit need alongside a category, or a strong
// category keyword on its own, means a service request. Everything else,
// including empty or unparseable text, is a directory lookup over whatever
// structure was found.
func (p *Parser) Parse(ctx context.Context, raw string) *models.ParsedQuery {
	ctx, span := tracing.StartSpan(ctx, "query.Parser.Parse")
	defer span.End()

	parsed := &models.ParsedQuery{
		RawQuery: strings.TrimSpace(raw),
		Intent:   models.IntentDirectoryLookup,
	}
	if parsed.RawQuery == "" {
		return parsed
	}

	// Tokens claimed by recognized structure; whatever is left over at the
	// end becomes the fuzzy terms.
	consumed := make(map[string]bool)

	parsed.Urgent = p.vocabulary.IsUrgent(parsed.RawQuery)
	if parsed.Urgent {
		p.consumeUrgencyTerms(parsed.RawQuery, consumed)
	}

	p.parseBatch(parsed, consumed)
	p.parseChapter(parsed, consumed)
	p.parseLocations(parsed, consumed)
	p.parseCategory(parsed, consumed)
	p.parseName(parsed, consumed)
	p.decideIntent(parsed)
	p.collectFuzzyTerms(parsed, consumed)

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"intent":   parsed.Intent,
		"category": strValue(parsed.Category),
		"location": strValue(parsed.Location),
		"urgent":   parsed.Urgent,
	}).Debug("Parsed query")

	return parsed
}

func (p *Parser) parseBatch(parsed *models.ParsedQuery, consumed map[string]bool) {
	match := batchSpanPattern.FindStringSubmatch(parsed.RawQuery)
	if match == nil {
		return
	}
	batch, err := p.normalizer.Batch(match[1])
	if err != nil {
		return
	}
	parsed.BatchYear = &batch.Year
	markConsumed(consumed, tokenize(match[0]))
}

func (p *Parser) parseChapter(parsed *models.ParsedQuery, consumed map[string]bool) {
	match := chapterPattern.FindStringSubmatch(parsed.RawQuery)
	if match == nil {
		return
	}
	words := strings.Fields(match[1])
	// Drop leading glue ("the Manila chapter").
	for len(words) > 0 && queryStopwords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	if len(words) == 0 {
		return
	}
	chapter := p.normalizer.Chapter(strings.Join(words, " "))
	parsed.Chapter = &chapter
	consumed["chapter"] = true
	markConsumed(consumed, tokenize(strings.Join(words, " ")))
}

func (p *Parser) parseLocations(parsed *models.ParsedQuery, consumed map[string]bool) {
	mentions := p.vocabulary.FindLocations(parsed.RawQuery)
	seen := make(map[string]bool)
	for _, m := range mentions {
		markConsumed(consumed, tokenize(m.Mention))
		if seen[m.City] {
			continue
		}
		seen[m.City] = true
		if parsed.Location == nil {
			city := m.City
			parsed.Location = &city
		} else {
			parsed.AltLocations = append(parsed.AltLocations, m.City)
		}
	}
}

func (p *Parser) parseCategory(parsed *models.ParsedQuery, consumed map[string]bool) {
	text := expandPlurals(parsed.RawQuery)
	matches := p.vocabulary.MatchCategories(text)
	if len(matches) == 0 {
		return
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.HighConfidence != best.HighConfidence {
			if m.HighConfidence {
				best = m
			}
			continue
		}
		if m.Hits > best.Hits {
			best = m
		}
	}

	category := best.Category
	parsed.Category = &category
	if best.HighConfidence {
		parsed.CategoryConfidence = highConfidence
	} else {
		parsed.CategoryConfidence = min(baseConfidence+perHitConfidence*float64(best.Hits), maxPlainConfidence)
	}
	parsed.Specializations = p.vocabulary.MatchSpecializations(category, text)

	// Claim the matched category's keywords so they stay out of the name
	// and fuzzy terms. Keywords of other categories stay unclaimed: in
	// "need a lawyer or doctor" the runner-up keyword still reaches the
	// ranker as a fuzzy term.
	c, ok := p.vocabulary.CategoryByName(category)
	if !ok {
		return
	}
	tokens := tokenSet(text)
	for _, kw := range c.Keywords {
		consumeTerm(consumed, tokens, kw)
	}
	for _, kw := range c.HighConfidence {
		consumeTerm(consumed, tokens, kw)
	}
	for _, label := range parsed.Specializations {
		for _, kw := range c.Specializations[label] {
			consumeTerm(consumed, tokens, kw)
		}
	}
}

// parseName pulls a person name out of the query: a quoted phrase, a
// capitalized run after a lookup verb, a lookup verb with nothing but
// unclaimed tokens after it, or a query that is itself a capitalized name.
func (p *Parser) parseName(parsed *models.ParsedQuery, consumed map[string]bool) {
	if m := quotedNamePattern.FindStringSubmatch(parsed.RawQuery); m != nil {
		quoted := m[1]
		if quoted == "" {
			quoted = m[2]
		}
		if tokens := p.nameTokens(quoted, consumed, 1); tokens != nil {
			parsed.NameTokens = tokens
			markConsumed(consumed, tokens)
			return
		}
	}

	if m := lookupNamePattern.FindStringSubmatch(parsed.RawQuery); m != nil {
		if tokens := p.nameTokens(m[1], consumed, 2); tokens != nil {
			parsed.NameTokens = tokens
			markConsumed(consumed, tokens)
			return
		}
	}

	// "find juan dela cruz" typed in lowercase: a lookup verb with no other
	// recognized structure leaves the residual tokens as the name.
	if findVerbPattern.MatchString(parsed.RawQuery) && !needPattern.MatchString(parsed.RawQuery) &&
		parsed.Category == nil && parsed.BatchYear == nil && parsed.Chapter == nil {
		if tokens := p.nameTokens(parsed.RawQuery, consumed, 1); tokens != nil && len(tokens) <= 4 {
			parsed.NameTokens = tokens
			markConsumed(consumed, tokens)
			return
		}
	}

	// A bare capitalized name with nothing else recognized.
	if parsed.Category == nil && parsed.BatchYear == nil && parsed.Chapter == nil &&
		parsed.Location == nil && !needPattern.MatchString(parsed.RawQuery) {
		words := strings.Fields(parsed.RawQuery)
		if len(words) >= 2 && len(words) <= 4 && allCapitalized(words) {
			if tokens := p.nameTokens(parsed.RawQuery, consumed, 2); tokens != nil {
				parsed.NameTokens = tokens
				markConsumed(consumed, tokens)
			}
		}
	}
}

func (p *Parser) decideIntent(parsed *models.ParsedQuery) {
	if len(parsed.NameTokens) > 0 {
		parsed.Intent = models.IntentDirectoryLookup
		return
	}
	if parsed.Category != nil &&
		(needPattern.MatchString(parsed.RawQuery) || parsed.CategoryConfidence >= highConfidence) {
		parsed.Intent = models.IntentServiceRequest
		return
	}
	parsed.Intent = models.IntentDirectoryLookup
}

// collectFuzzyTerms gathers the significant tokens no structure claimed.
// They drive broad text matching when the structured fields are too thin
// to rank on.
func (p *Parser) collectFuzzyTerms(parsed *models.ParsedQuery, consumed map[string]bool) {
	seen := make(map[string]bool)
	for _, tok := range tokenize(parsed.RawQuery) {
		if len(tok) < 2 || queryStopwords[tok] || consumed[tok] || consumed[singular(tok)] || seen[tok] {
			continue
		}
		seen[tok] = true
		parsed.FuzzyTerms = append(parsed.FuzzyTerms, tok)
	}
}

// nameTokens extracts usable name parts from text. Stopwords, tokens
// already claimed by other structure, and profession words are not name
// parts, so "Find Attorney Santos" yields just "santos". Returns nil when
// fewer than minCount parts survive.
func (p *Parser) nameTokens(text string, consumed map[string]bool, minCount int) []string {
	var tokens []string
	for _, tok := range tokenize(text) {
		if queryStopwords[tok] || consumed[tok] || p.isCategoryWord(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) < minCount {
		return nil
	}
	return tokens
}

func (p *Parser) isCategoryWord(tok string) bool {
	stem := singular(tok)
	for i := range p.vocabulary.Categories {
		for _, kw := range p.vocabulary.Categories[i].Keywords {
			if kw == tok || kw == stem {
				return true
			}
		}
	}
	return false
}

func (p *Parser) consumeUrgencyTerms(raw string, consumed map[string]bool) {
	tokens := tokenSet(raw)
	for _, term := range p.vocabulary.UrgencyTerms {
		consumeTerm(consumed, tokens, term)
	}
}

// consumeTerm marks the words of term as claimed when they appear in the
// token set. Multi-word terms claim each of their words.
func consumeTerm(consumed map[string]bool, tokens map[string]bool, term string) {
	for _, w := range tokenize(term) {
		if tokens[w] {
			consumed[w] = true
		}
	}
}

func markConsumed(consumed map[string]bool, tokens []string) {
	for _, tok := range tokens {
		consumed[tok] = true
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(text) {
		set[tok] = true
	}
	return set
}

// expandPlurals appends the singular stem of plural tokens so "lawyers"
// still hits the "lawyer" keyword.
func expandPlurals(text string) string {
	var extra []string
	for _, tok := range tokenize(text) {
		if stem := singular(tok); stem != tok {
			extra = append(extra, stem)
		}
	}
	if len(extra) == 0 {
		return text
	}
	return text + " " + strings.Join(extra, " ")
}

func singular(tok string) string {
	if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}

func allCapitalized(words []string) bool {
	for _, w := range words {
		r := []rune(w)
		if len(r) == 0 || !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return true
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
