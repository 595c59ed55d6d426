// Package inference derives profession, specialization, and work location
// attributes from the signals a member record already carries. Every
// inferred value keeps its confidence and source so verified data can
// always be told apart from guesses.
package inference

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vocab"
)

// Inference sources, strongest first.
const (
	SourceJobTitle      = "job_title"
	SourceCompany       = "company"
	SourceEmailDomain   = "email_domain"
	SourceOfficeAddress = "office_address"
)

// sourceWeights reflect how reliable each signal is: a job title almost
// always names the profession, an office address rarely does.
var sourceWeights = map[string]float64{
	SourceJobTitle:      1.0,
	SourceCompany:       0.8,
	SourceEmailDomain:   0.6,
	SourceOfficeAddress: 0.4,
}

// EngineConfig contains configuration for the inference engine
type EngineConfig struct {
	// MinConfidence is the acceptance threshold; candidates below it are
	// kept as alternatives only (default: 0.5).
	MinConfidence float64
	// AmbiguityMargin is the minimum lead the top category needs over the
	// runner-up to be accepted (default: 0.1).
	AmbiguityMargin float64
	// WorkCityConfidence is assigned to a work location taken from the
	// office address (default: 0.8).
	WorkCityConfidence float64
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		MinConfidence:      0.5,
		AmbiguityMargin:    0.1,
		WorkCityConfidence: 0.8,
	}
}

// Engine scores category evidence from a member's fields and combines it
// into accepted inferences.
type Engine struct {
	logger     ectologger.Logger
	vocabulary *vocab.Vocabulary
	config     EngineConfig
}

// NewEngine creates a new inference engine
func NewEngine(logger ectologger.Logger, vocabulary *vocab.Vocabulary, config EngineConfig) *Engine {
	if config.MinConfidence == 0 {
		config.MinConfidence = DefaultConfig().MinConfidence
	}
	if config.AmbiguityMargin == 0 {
		config.AmbiguityMargin = DefaultConfig().AmbiguityMargin
	}
	if config.WorkCityConfidence == 0 {
		config.WorkCityConfidence = DefaultConfig().WorkCityConfidence
	}
	return &Engine{
		logger:     logger,
		vocabulary: vocabulary,
		config:     config,
	}
}

// evidence is one category hit from one source.
type evidence struct {
	source     string
	category   string
	keyword    string
	confidence float64
}

// Infer derives profession, specializations, and work city for a member.
// It never fails the record: weak or conflicting evidence produces
// alternatives instead of an accepted value.
func (e *Engine) Infer(ctx context.Context, member *models.Member) *models.InferenceResult {
	ctx, span := tracing.StartSpan(ctx, "inference.Engine.Infer")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"member_id": member.ID,
	})

	result := &models.InferenceResult{InferredAt: time.Now().UTC()}

	evidences := e.collectEvidence(member)
	accepted, alternatives := e.combine(evidences)
	result.Alternatives = alternatives

	if accepted != nil {
		result.Profession = accepted
		result.Specializations = e.inferSpecializations(member, accepted.Value)
		log.WithFields(map[string]any{
			"profession": accepted.Value,
			"confidence": accepted.Confidence,
			"source":     accepted.Source,
		}).Debug("Accepted profession inference")
	} else if len(alternatives) > 0 {
		log.WithFields(map[string]any{
			"candidates": len(alternatives),
		}).Debug("Profession inference ambiguous, keeping alternatives only")
	}

	if city := e.inferWorkCity(member); city != nil {
		result.WorkCity = city
	}

	return result
}

// collectEvidence runs every source against the vocabulary in a fixed
// order so results are deterministic.
func (e *Engine) collectEvidence(member *models.Member) []evidence {
	var out []evidence

	if member.JobTitle != nil {
		out = append(out, e.keywordEvidence(SourceJobTitle, *member.JobTitle)...)
	}
	if member.Company != nil {
		out = append(out, e.keywordEvidence(SourceCompany, *member.Company)...)
	}
	out = append(out, e.emailEvidence(member)...)
	if member.OfficeAddress != nil {
		out = append(out, e.keywordEvidence(SourceOfficeAddress, *member.OfficeAddress)...)
	}

	return out
}

// keywordEvidence scores vocabulary keyword hits in one field. A single
// hit is suggestive, repeated hits are conclusive, and a high-confidence
// keyword boosts the score to certainty for that source.
func (e *Engine) keywordEvidence(source, text string) []evidence {
	weight := sourceWeights[source]
	var out []evidence
	for _, match := range e.vocabulary.MatchCategories(text) {
		strength := 0.75
		if match.Hits >= 2 {
			strength = 1.0
		}
		if match.HighConfidence {
			strength = min(strength*1.5, 1.0)
		}
		out = append(out, evidence{
			source:     source,
			category:   match.Category,
			keyword:    match.Keyword,
			confidence: weight * strength,
		})
	}
	return out
}

// emailEvidence maps the email domain's sector onto a category, and scans
// the employer name when the domain identifies one.
func (e *Engine) emailEvidence(member *models.Member) []evidence {
	if member.EmailDomain == nil {
		return nil
	}
	weight := sourceWeights[SourceEmailDomain]
	var out []evidence

	sector := e.vocabulary.DomainSector(*member.EmailDomain)
	if category, ok := e.vocabulary.CategoryForSector(sector); ok {
		out = append(out, evidence{
			source:     SourceEmailDomain,
			category:   category,
			keyword:    sector + " domain",
			confidence: weight * 0.85,
		})
	}

	if company, ok := e.vocabulary.CompanyForDomain(*member.EmailDomain); ok {
		for _, match := range e.vocabulary.MatchCategories(company) {
			strength := 0.75
			if match.HighConfidence {
				strength = 1.0
			}
			out = append(out, evidence{
				source:     SourceEmailDomain,
				category:   match.Category,
				keyword:    match.Keyword,
				confidence: weight * strength,
			})
		}
	}
	return out
}

// combine folds per-source evidence into per-category confidence.
// Agreeing sources reinforce each other; the combined confidence is
// 1 - product(1 - c) so two weak signals beat either alone without ever
// reaching past 1. The top category is accepted only when it clears the
// threshold with a clear lead.
func (e *Engine) combine(evidences []evidence) (*models.InferredAttribute, []models.InferredCandidate) {
	if len(evidences) == 0 {
		return nil, nil
	}

	type categoryScore struct {
		category   string
		confidence float64
		best       evidence
	}
	byCategory := make(map[string]*categoryScore)
	for _, ev := range evidences {
		score, ok := byCategory[ev.category]
		if !ok {
			score = &categoryScore{category: ev.category, confidence: 0, best: ev}
			byCategory[ev.category] = score
		}
		score.confidence = 1 - (1-score.confidence)*(1-ev.confidence)
		if ev.confidence > score.best.confidence {
			score.best = ev
		}
	}

	scores := make([]*categoryScore, 0, len(byCategory))
	for _, s := range byCategory {
		scores = append(scores, s)
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].confidence != scores[j].confidence {
			return scores[i].confidence > scores[j].confidence
		}
		return scores[i].category < scores[j].category
	})

	var alternatives []models.InferredCandidate
	for _, s := range scores[1:] {
		alternatives = append(alternatives, models.InferredCandidate{
			Value:      s.category,
			Confidence: s.confidence,
			Source:     s.best.source,
		})
	}

	top := scores[0]
	accepted := top.confidence >= e.config.MinConfidence
	if accepted && len(scores) > 1 {
		accepted = top.confidence-scores[1].confidence >= e.config.AmbiguityMargin
	}
	if !accepted {
		// Demote the top candidate to an alternative too.
		alternatives = append([]models.InferredCandidate{{
			Value:      top.category,
			Confidence: top.confidence,
			Source:     top.best.source,
		}}, alternatives...)
		return nil, alternatives
	}

	return &models.InferredAttribute{
		Value:      top.category,
		Confidence: top.confidence,
		Source:     top.best.source,
		Keyword:    top.best.keyword,
	}, alternatives
}

// inferSpecializations scans the member's professional text for
// specialization keywords of the accepted category.
func (e *Engine) inferSpecializations(member *models.Member, category string) []string {
	text := ""
	if member.JobTitle != nil {
		text += *member.JobTitle + " "
	}
	if member.Company != nil {
		text += *member.Company + " "
	}
	if member.OfficeAddress != nil {
		text += *member.OfficeAddress
	}
	return e.vocabulary.MatchSpecializations(category, text)
}

// inferWorkCity lifts the office city into an inferred work location.
func (e *Engine) inferWorkCity(member *models.Member) *models.InferredAttribute {
	if member.OfficeCity == nil || *member.OfficeCity == "" {
		return nil
	}
	return &models.InferredAttribute{
		Value:      *member.OfficeCity,
		Confidence: e.config.WorkCityConfidence,
		Source:     SourceOfficeAddress,
	}
}
