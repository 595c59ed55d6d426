// Package ranking orders searchable members against a parsed query. Every
// result carries the reasons it matched so a ranking is explainable, and
// ordering is fully deterministic: score, then completeness, then most
// recent verification, then member id.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vocab"
)

// Service-request weights. Profession, location, and specialization are the
// matching signals; a member with none of them is not a result. Confidence,
// contactability, and freshness only adjust the score of members that
// already matched.
const (
	weightConfidenceBase  = 0.3
	weightDeclaredMatch   = 0.4
	weightInferredMatch   = 0.3
	weightFuzzyProfession = 0.2
	weightOfficeCity      = 0.25
	weightHomeCity        = 0.15
	weightSameRegion      = 0.1
	weightSpecOverlap     = 0.1
	bonusEmail            = 0.05
	bonusMobile           = 0.05
	bonusFreshYear        = 0.05
	bonusFreshFiveYears   = 0.02
	penaltyNotOpen        = 0.15
)

// Directory-lookup weights.
const (
	weightNameCoverage  = 0.45
	weightBatchMatch    = 0.2
	weightChapterMatch  = 0.15
	weightLocationMatch = 0.1
	weightCategoryHint  = 0.15
	weightFuzzyCoverage = 0.2
	weightConfidenceTie = 0.1
)

// soundexTokenCredit is the partial credit a name token earns when it only
// matches by sound ("Dela" against "De La").
const soundexTokenCredit = 0.7

// fuzzyTokenThreshold is the minimum Jaro-Winkler similarity for a fuzzy
// term to count against a member token.
const fuzzyTokenThreshold = 0.85

// RankerConfig contains configuration for the ranker
type RankerConfig struct {
	MaxServiceResults   int // Result cap for service requests (default: 20)
	MaxDirectoryResults int // Result cap for directory lookups (default: 50)
}

// DefaultConfig returns default ranker configuration
func DefaultConfig() RankerConfig {
	return RankerConfig{
		MaxServiceResults:   20,
		MaxDirectoryResults: 50,
	}
}

// Ranker scores members against a parsed query.
type Ranker struct {
	logger     ectologger.Logger
	vocabulary *vocab.Vocabulary
	scorer     *matching.Scorer
	config     RankerConfig
}

// NewRanker creates a new ranker
func NewRanker(logger ectologger.Logger, vocabulary *vocab.Vocabulary, config RankerConfig) *Ranker {
	if config.MaxServiceResults <= 0 {
		config.MaxServiceResults = DefaultConfig().MaxServiceResults
	}
	if config.MaxDirectoryResults <= 0 {
		config.MaxDirectoryResults = DefaultConfig().MaxDirectoryResults
	}
	return &Ranker{
		logger:     logger,
		vocabulary: vocabulary,
		scorer:     matching.NewScorer(),
		config:     config,
	}
}

// Rank scores the pool against the query and returns the matches in
// descending relevance. Inactive and duplicate members never rank. A limit
// of zero applies the intent's default result cap.
func (r *Ranker) Rank(ctx context.Context, parsed *models.ParsedQuery, members []*models.Member, limit int) []models.RankedMember {
	ctx, span := tracing.StartSpan(ctx, "ranking.Ranker.Rank")
	defer span.End()

	var ranked []models.RankedMember
	for _, m := range members {
		if !m.Searchable() {
			continue
		}

		var score float64
		var reasons []string
		var matched bool
		if parsed.Intent == models.IntentServiceRequest {
			score, reasons, matched = r.scoreService(parsed, m)
		} else {
			score, reasons, matched = r.scoreDirectory(parsed, m)
		}
		if !matched {
			continue
		}
		ranked = append(ranked, models.RankedMember{Member: *m, Score: score, MatchReasons: reasons})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := &ranked[i], &ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Member.CompletenessScore != b.Member.CompletenessScore {
			return a.Member.CompletenessScore > b.Member.CompletenessScore
		}
		av, bv := a.Member.LastVerifiedAt, b.Member.LastVerifiedAt
		switch {
		case av != nil && bv != nil && !av.Equal(*bv):
			return av.After(*bv)
		case av != nil && bv == nil:
			return true
		case av == nil && bv != nil:
			return false
		}
		return a.Member.ID < b.Member.ID
	})

	if maxResults := r.limitFor(parsed.Intent, limit); len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"intent":    parsed.Intent,
		"pool_size": len(members),
		"results":   len(ranked),
	}).Debug("Ranked query results")

	return ranked
}

// scoreService ranks a member for a service request: profession tier first
// (declared beats inferred beats fuzzy text), then location (office beats
// home beats same region), then specialization overlap. The third return
// reports whether any matching signal fired at all.
func (r *Ranker) scoreService(q *models.ParsedQuery, m *models.Member) (float64, []string, bool) {
	var signal float64
	var reasons []string

	professionScore := 0.0
	if q.Category != nil {
		if m.DeclaredProfession != nil && *m.DeclaredProfession == *q.Category {
			professionScore = weightDeclaredMatch
			reasons = append(reasons, "Works as "+professionLabel(m))
		} else if inf := m.Inference.GetValue(); inf != nil && inf.Profession != nil && inf.Profession.Value == *q.Category {
			professionScore = weightInferredMatch * inf.Profession.Confidence
			reasons = append(reasons, fmt.Sprintf("Likely works in %s (AI inferred)", inf.Profession.Value))
		}
	}
	if professionScore == 0 && len(q.FuzzyTerms) > 0 {
		professionScore = r.fuzzyCoverage(q.FuzzyTerms, m) * weightFuzzyProfession
	}
	signal += professionScore

	city, kind := r.matchCity(q, m)
	switch kind {
	case cityMatchOffice:
		signal += weightOfficeCity
		reasons = append(reasons, "Works in "+city)
	case cityMatchHome:
		signal += weightHomeCity
		reasons = append(reasons, "Lives in "+city)
	case cityMatchRegion:
		signal += weightSameRegion
	}

	if len(q.Specializations) > 0 {
		overlap := specializationOverlap(q.Specializations, m.AllSpecializations())
		if len(overlap) > 0 {
			signal += weightSpecOverlap * float64(len(overlap)) / float64(len(q.Specializations))
			reasons = append(reasons, "Specializes in "+overlap[0])
		}
	}

	if signal <= 0 {
		return 0, nil, false
	}

	score := signal + m.ConfidenceScore*weightConfidenceBase
	if m.Email != nil {
		score += bonusEmail
	}
	if m.MobileNumber != nil {
		score += bonusMobile
	}
	score += freshnessBonus(m)
	if m.OpenToReferrals != nil && !*m.OpenToReferrals {
		score -= penaltyNotOpen
	}

	if m.Company != nil && *m.Company != "" {
		reasons = append(reasons, "Works at "+*m.Company)
	}
	if methods := contactMethods(m); len(methods) > 0 {
		reasons = append(reasons, "Available via "+strings.Join(methods, ", "))
	}

	return clamp01(score), reasons, true
}

// scoreDirectory ranks a member for a directory lookup: name coverage
// dominates, with batch, chapter, location, and a profession hint adding
// smaller boosts.
func (r *Ranker) scoreDirectory(q *models.ParsedQuery, m *models.Member) (float64, []string, bool) {
	var signal float64
	var reasons []string

	if len(q.NameTokens) > 0 {
		if cov := r.nameCoverage(q.NameTokens, m); cov > 0 {
			signal += cov * weightNameCoverage
			reasons = append(reasons, fmt.Sprintf("Name matches %q", strings.Join(q.NameTokens, " ")))
		}
	}

	if q.BatchYear != nil && m.BatchYear != nil && *q.BatchYear == *m.BatchYear {
		signal += weightBatchMatch
		label := strconv.Itoa(*m.BatchYear)
		if m.BatchLabel != nil {
			label = *m.BatchLabel
		}
		reasons = append(reasons, "Member of batch "+label)
	}

	if q.Chapter != nil && m.ChapterName != nil && strings.EqualFold(*q.Chapter, *m.ChapterName) {
		signal += weightChapterMatch
		reasons = append(reasons, fmt.Sprintf("Member of %s chapter", *m.ChapterName))
	}

	city, kind := r.matchCity(q, m)
	switch kind {
	case cityMatchOffice:
		signal += weightLocationMatch
		reasons = append(reasons, "Works in "+city)
	case cityMatchHome:
		signal += weightLocationMatch
		reasons = append(reasons, "Lives in "+city)
	}

	if q.Category != nil {
		if category, declared := m.ProfessionCategory(); category == *q.Category {
			signal += weightCategoryHint * q.CategoryConfidence
			if declared {
				reasons = append(reasons, "Works as "+professionLabel(m))
			} else {
				reasons = append(reasons, fmt.Sprintf("Likely works in %s (AI inferred)", category))
			}
		}
	}

	if len(q.FuzzyTerms) > 0 {
		signal += r.fuzzyCoverage(q.FuzzyTerms, m) * weightFuzzyCoverage
	}

	if signal <= 0 {
		return 0, nil, false
	}

	return clamp01(signal + m.ConfidenceScore*weightConfidenceTie), reasons, true
}

type cityMatch int

const (
	cityMatchNone cityMatch = iota
	cityMatchRegion
	cityMatchHome
	cityMatchOffice
)

// matchCity finds the strongest location relationship between the query's
// cities (primary plus alternatives) and the member's cities.
func (r *Ranker) matchCity(q *models.ParsedQuery, m *models.Member) (string, cityMatch) {
	if q.Location == nil {
		return "", cityMatchNone
	}
	cities := append([]string{*q.Location}, q.AltLocations...)

	for _, qc := range cities {
		if m.OfficeCity != nil && strings.EqualFold(*m.OfficeCity, qc) {
			return *m.OfficeCity, cityMatchOffice
		}
	}
	for _, qc := range cities {
		if m.HomeCity != nil && strings.EqualFold(*m.HomeCity, qc) {
			return *m.HomeCity, cityMatchHome
		}
	}
	for _, qc := range cities {
		if (m.OfficeCity != nil && r.vocabulary.SameRegion(qc, *m.OfficeCity)) ||
			(m.HomeCity != nil && r.vocabulary.SameRegion(qc, *m.HomeCity)) {
			return qc, cityMatchRegion
		}
	}
	return "", cityMatchNone
}

// nameCoverage scores how much of the queried name appears in the member's
// name. Exact tokens count in full; tokens that only agree by sound earn
// partial credit so spelling variants still surface.
func (r *Ranker) nameCoverage(queryTokens []string, m *models.Member) float64 {
	memberTokens := memberNameTokens(m)
	if len(memberTokens) == 0 {
		return 0
	}

	var credit float64
	for _, qt := range queryTokens {
		best := 0.0
		for _, mt := range memberTokens {
			if qt == mt {
				best = 1.0
				break
			}
			if r.scorer.SoundexMatch(qt, mt) == 1.0 && best < soundexTokenCredit {
				best = soundexTokenCredit
			}
		}
		credit += best
	}
	return credit / float64(len(queryTokens))
}

// fuzzyCoverage is the fraction of fuzzy terms found anywhere in the
// member's text: name, profession, company, chapter, cities, and
// specializations. Slight misspellings are forgiven.
func (r *Ranker) fuzzyCoverage(terms []string, m *models.Member) float64 {
	tokens := memberTextTokens(m)
	if len(tokens) == 0 {
		return 0
	}

	matched := 0
	for _, term := range terms {
		for _, tok := range tokens {
			if term == tok || r.scorer.JaroWinkler(term, tok) >= fuzzyTokenThreshold {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(terms))
}

func (r *Ranker) limitFor(intent string, limit int) int {
	if limit > 0 {
		return limit
	}
	if intent == models.IntentServiceRequest {
		return r.config.MaxServiceResults
	}
	return r.config.MaxDirectoryResults
}

// professionLabel is the display form of what a member does: the raw job
// title when it survived normalization, otherwise the profession category.
func professionLabel(m *models.Member) string {
	if m.JobTitle != nil && *m.JobTitle != "" {
		return *m.JobTitle
	}
	if m.DeclaredProfession != nil {
		return *m.DeclaredProfession
	}
	return ""
}

func specializationOverlap(query []string, member []string) []string {
	memberSet := make(map[string]bool, len(member))
	for _, s := range member {
		memberSet[strings.ToLower(s)] = true
	}
	var overlap []string
	for _, s := range query {
		if memberSet[strings.ToLower(s)] {
			overlap = append(overlap, s)
		}
	}
	return overlap
}

// freshnessBonus rewards recently collected or verified data. The vintage
// matters, not the row timestamp: importing a 1995 roster today does not
// make its entries fresh.
func freshnessBonus(m *models.Member) float64 {
	vintage := m.DataVintage
	if m.LastVerifiedAt != nil && (vintage == nil || m.LastVerifiedAt.After(*vintage)) {
		vintage = m.LastVerifiedAt
	}
	if vintage == nil {
		vintage = &m.UpdatedAt
	}
	age := time.Since(*vintage)
	switch {
	case age < 365*24*time.Hour:
		return bonusFreshYear
	case age < 5*365*24*time.Hour:
		return bonusFreshFiveYears
	}
	return 0
}

func contactMethods(m *models.Member) []string {
	var methods []string
	if m.Email != nil {
		methods = append(methods, "email")
	}
	if m.MobileNumber != nil {
		methods = append(methods, "mobile")
	}
	return methods
}

func memberNameTokens(m *models.Member) []string {
	text := m.FullName
	if m.Nickname != nil {
		text += " " + *m.Nickname
	}
	return tokenize(text)
}

func memberTextTokens(m *models.Member) []string {
	parts := []string{m.FullName}
	for _, p := range []*string{m.Nickname, m.JobTitle, m.Company, m.DeclaredProfession, m.ChapterName, m.HomeCity, m.OfficeCity} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	parts = append(parts, m.AllSpecializations()...)
	if inf := m.Inference.GetValue(); inf != nil && inf.Profession != nil {
		parts = append(parts, inf.Profession.Value)
	}
	return tokenize(strings.Join(parts, " "))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
