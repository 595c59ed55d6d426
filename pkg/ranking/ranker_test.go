package ranking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/vocab"
)

func newTestRanker() *Ranker {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRanker(logger, vocab.Default(), DefaultConfig())
}

func str(s string) *string { return &s }
func intp(i int) *int      { return &i }
func boolp(b bool) *bool   { return &b }

// activeMember builds a minimal searchable member with a neutral 0.5
// confidence so expected scores stay easy to compute by hand.
func activeMember(id, fullName string) *models.Member {
	return &models.Member{
		ID:              id,
		FullName:        fullName,
		Status:          models.MemberStatusActive,
		ConfidenceScore: 0.5,
	}
}

func serviceQuery(category string) *models.ParsedQuery {
	return &models.ParsedQuery{
		Intent:             models.IntentServiceRequest,
		Category:           &category,
		CategoryConfidence: 0.9,
	}
}

func TestRank_ServiceProfessionTiers(t *testing.T) {
	r := newTestRanker()

	declared := activeMember("m1", "Ana Reyes")
	declared.DeclaredProfession = str("Legal")
	declared.JobTitle = str("Corporate Lawyer")
	declared.OfficeCity = str("Bulacan")

	inferred := activeMember("m2", "Ben Cruz")
	inferred.HomeCity = str("Bulacan")
	inferred.Inference = database.JSONB[*models.InferenceResult]{Data: &models.InferenceResult{
		Profession: &models.InferredAttribute{Value: "Legal", Confidence: 0.8, Source: "company"},
	}}

	unrelated := activeMember("m3", "Carla Lim")
	unrelated.DeclaredProfession = str("Medical")
	unrelated.HomeCity = str("Davao")

	q := serviceQuery("Legal")
	q.Location = str("Bulacan")

	ranked := r.Rank(context.Background(), q, []*models.Member{unrelated, inferred, declared}, 0)

	require.Len(t, ranked, 2)
	assert.Equal(t, "m1", ranked[0].Member.ID)
	assert.Equal(t, "m2", ranked[1].Member.ID)

	// declared: 0.4 profession + 0.25 office city + 0.5*0.3 confidence
	assert.InDelta(t, 0.80, ranked[0].Score, 0.001)
	assert.Contains(t, ranked[0].MatchReasons, "Works as Corporate Lawyer")
	assert.Contains(t, ranked[0].MatchReasons, "Works in Bulacan")

	// inferred: 0.3*0.8 profession + 0.15 home city + 0.15 confidence
	assert.InDelta(t, 0.54, ranked[1].Score, 0.001)
	assert.Contains(t, ranked[1].MatchReasons, "Likely works in Legal (AI inferred)")
	assert.Contains(t, ranked[1].MatchReasons, "Lives in Bulacan")
}

func TestRank_ServiceSameRegionFallback(t *testing.T) {
	r := newTestRanker()

	m := activeMember("m1", "Ana Reyes")
	m.DeclaredProfession = str("Legal")
	m.OfficeCity = str("Quezon City")

	q := serviceQuery("Legal")
	q.Location = str("Makati")

	ranked := r.Rank(context.Background(), q, []*models.Member{m}, 0)

	require.Len(t, ranked, 1)
	// 0.4 profession + 0.1 same region + 0.15 confidence
	assert.InDelta(t, 0.65, ranked[0].Score, 0.001)
	for _, reason := range ranked[0].MatchReasons {
		assert.NotContains(t, reason, "Works in")
		assert.NotContains(t, reason, "Lives in")
	}
}

func TestRank_ServiceSpecializationOverlap(t *testing.T) {
	r := newTestRanker()

	m := activeMember("m1", "Ana Reyes")
	m.DeclaredProfession = str("Legal")
	m.Specializations = database.JSONB[[]string]{Data: []string{"family law", "corporate law"}}

	q := serviceQuery("Legal")
	q.Specializations = []string{"family law"}

	ranked := r.Rank(context.Background(), q, []*models.Member{m}, 0)

	require.Len(t, ranked, 1)
	// 0.4 profession + 0.1 specialization + 0.15 confidence
	assert.InDelta(t, 0.65, ranked[0].Score, 0.001)
	assert.Contains(t, ranked[0].MatchReasons, "Specializes in family law")
}

func TestRank_ServiceWillingnessPenalty(t *testing.T) {
	r := newTestRanker()

	open := activeMember("m1", "Ana Reyes")
	open.DeclaredProfession = str("Legal")

	closed := activeMember("m2", "Ben Cruz")
	closed.DeclaredProfession = str("Legal")
	closed.OpenToReferrals = boolp(false)

	ranked := r.Rank(context.Background(), serviceQuery("Legal"), []*models.Member{closed, open}, 0)

	// Penalized, not excluded.
	require.Len(t, ranked, 2)
	assert.Equal(t, "m1", ranked[0].Member.ID)
	assert.InDelta(t, 0.55, ranked[0].Score, 0.001)
	assert.Equal(t, "m2", ranked[1].Member.ID)
	assert.InDelta(t, 0.40, ranked[1].Score, 0.001)
}

func TestRank_ServiceContactAndFreshnessBonuses(t *testing.T) {
	r := newTestRanker()

	verified := time.Now().AddDate(0, -1, 0)
	m := activeMember("m1", "Ana Reyes")
	m.DeclaredProfession = str("Legal")
	m.Email = str("ana@example.com")
	m.MobileNumber = str("+639171234567")
	m.LastVerifiedAt = &verified

	ranked := r.Rank(context.Background(), serviceQuery("Legal"), []*models.Member{m}, 0)

	require.Len(t, ranked, 1)
	// 0.4 profession + 0.15 confidence + 0.05 email + 0.05 mobile + 0.05 fresh
	assert.InDelta(t, 0.70, ranked[0].Score, 0.001)
	assert.Contains(t, ranked[0].MatchReasons, "Available via email, mobile")
}

func TestRank_FreshnessTracksVintageNotRowTimestamp(t *testing.T) {
	r := newTestRanker()

	// Imported today from a 1995 roster: the row is new, the data is not.
	stale := activeMember("m1", "Ana Reyes")
	stale.DeclaredProfession = str("Legal")
	stale.UpdatedAt = time.Now()
	oldVintage := time.Date(1995, time.January, 1, 0, 0, 0, 0, time.UTC)
	stale.DataVintage = &oldVintage

	fresh := activeMember("m2", "Ben Cruz")
	fresh.DeclaredProfession = str("Legal")
	recentVintage := time.Now().AddDate(0, -6, 0)
	fresh.DataVintage = &recentVintage

	ranked := r.Rank(context.Background(), serviceQuery("Legal"), []*models.Member{stale, fresh}, 0)

	require.Len(t, ranked, 2)
	assert.Equal(t, "m2", ranked[0].Member.ID)
	assert.InDelta(t, 0.60, ranked[0].Score, 0.001)
	assert.InDelta(t, 0.55, ranked[1].Score, 0.001)
}

func TestRank_ExcludesUnsearchableMembers(t *testing.T) {
	r := newTestRanker()

	duplicate := activeMember("m1", "Ana Reyes")
	duplicate.DeclaredProfession = str("Legal")
	duplicate.IsDuplicate = true
	duplicate.DuplicateOfID = str("m9")

	inactive := activeMember("m2", "Ben Cruz")
	inactive.DeclaredProfession = str("Legal")
	inactive.Status = models.MemberStatusInactive

	deleted := activeMember("m3", "Carla Lim")
	deleted.DeclaredProfession = str("Legal")
	now := time.Now()
	deleted.DeletedAt = &now

	ranked := r.Rank(context.Background(), serviceQuery("Legal"), []*models.Member{duplicate, inactive, deleted}, 0)

	assert.Empty(t, ranked)
}

func TestRank_DirectoryByName(t *testing.T) {
	r := newTestRanker()

	exact := activeMember("m1", "Juan Dela Cruz")
	partial := activeMember("m2", "Juan Santos")
	other := activeMember("m3", "Pedro Reyes")

	q := &models.ParsedQuery{
		Intent:     models.IntentDirectoryLookup,
		NameTokens: []string{"juan", "dela", "cruz"},
	}

	ranked := r.Rank(context.Background(), q, []*models.Member{partial, other, exact}, 0)

	require.Len(t, ranked, 2)
	assert.Equal(t, "m1", ranked[0].Member.ID)
	// full coverage: 0.45 + 0.5*0.1 confidence
	assert.InDelta(t, 0.50, ranked[0].Score, 0.001)
	assert.Contains(t, ranked[0].MatchReasons, `Name matches "juan dela cruz"`)

	assert.Equal(t, "m2", ranked[1].Member.ID)
	// one of three tokens: 0.45/3 + 0.05
	assert.InDelta(t, 0.20, ranked[1].Score, 0.001)
}

func TestRank_DirectoryNameSoundsAlike(t *testing.T) {
	r := newTestRanker()

	m := activeMember("m1", "Juan Dela Crus")

	q := &models.ParsedQuery{
		Intent:     models.IntentDirectoryLookup,
		NameTokens: []string{"juan", "dela", "cruz"},
	}

	ranked := r.Rank(context.Background(), q, []*models.Member{m}, 0)

	require.Len(t, ranked, 1)
	// two exact tokens plus one soundex token: (1+1+0.7)/3*0.45 + 0.05
	assert.InDelta(t, 0.455, ranked[0].Score, 0.001)
}

func TestRank_DirectoryBatchChapterLocation(t *testing.T) {
	r := newTestRanker()

	m := activeMember("m1", "Ana Reyes")
	m.BatchYear = intp(1995)
	m.BatchLabel = str("1995-S")
	m.ChapterName = str("Manila")
	m.HomeCity = str("Pasay")

	q := &models.ParsedQuery{
		Intent:    models.IntentDirectoryLookup,
		BatchYear: intp(1995),
		Chapter:   str("manila"),
		Location:  str("Pasay"),
	}

	ranked := r.Rank(context.Background(), q, []*models.Member{m}, 0)

	require.Len(t, ranked, 1)
	// 0.2 batch + 0.15 chapter + 0.1 location + 0.05 confidence
	assert.InDelta(t, 0.50, ranked[0].Score, 0.001)
	assert.Contains(t, ranked[0].MatchReasons, "Member of batch 1995-S")
	assert.Contains(t, ranked[0].MatchReasons, "Member of Manila chapter")
	assert.Contains(t, ranked[0].MatchReasons, "Lives in Pasay")
}

func TestRank_DirectoryFuzzyFallback(t *testing.T) {
	r := newTestRanker()

	photographer := activeMember("m1", "Ana Reyes")
	photographer.JobTitle = str("Wedding Photographer")
	other := activeMember("m2", "Ben Cruz")
	other.JobTitle = str("Accountant")

	q := &models.ParsedQuery{
		Intent:     models.IntentDirectoryLookup,
		FuzzyTerms: []string{"photographer"},
	}

	ranked := r.Rank(context.Background(), q, []*models.Member{photographer, other}, 0)

	require.Len(t, ranked, 1)
	assert.Equal(t, "m1", ranked[0].Member.ID)
	// 0.2 fuzzy + 0.05 confidence
	assert.InDelta(t, 0.25, ranked[0].Score, 0.001)
}

func TestRank_NoMatchesReturnsEmpty(t *testing.T) {
	r := newTestRanker()

	m := activeMember("m1", "Ana Reyes")
	m.DeclaredProfession = str("Legal")

	q := &models.ParsedQuery{
		Intent:     models.IntentDirectoryLookup,
		FuzzyTerms: []string{"astronaut"},
	}

	assert.Empty(t, r.Rank(context.Background(), q, []*models.Member{m}, 0))
	assert.Empty(t, r.Rank(context.Background(), q, nil, 0))
}

func TestRank_DeterministicOrderAndTieBreaks(t *testing.T) {
	r := newTestRanker()

	a := activeMember("m-a", "Ana Reyes")
	a.DeclaredProfession = str("Legal")
	b := activeMember("m-b", "Ana Reyes")
	b.DeclaredProfession = str("Legal")

	q := serviceQuery("Legal")

	first := r.Rank(context.Background(), q, []*models.Member{b, a}, 0)
	second := r.Rank(context.Background(), q, []*models.Member{a, b}, 0)

	require.Len(t, first, 2)
	assert.Equal(t, "m-a", first[0].Member.ID, "equal scores fall back to id order")
	assert.Equal(t, first, second)
}

func TestRank_TieBreakPrefersCompletenessThenVerification(t *testing.T) {
	r := newTestRanker()

	complete := activeMember("m1", "Ana Reyes")
	complete.DeclaredProfession = str("Legal")
	complete.CompletenessScore = 0.9

	sparse := activeMember("m2", "Ben Cruz")
	sparse.DeclaredProfession = str("Legal")
	sparse.CompletenessScore = 0.3

	recent := activeMember("m3", "Carla Lim")
	recent.DeclaredProfession = str("Legal")
	recent.CompletenessScore = 0.3
	// Old enough that no freshness bonus skews the scores.
	verified := time.Now().AddDate(-6, 0, 0)
	recent.LastVerifiedAt = &verified

	ranked := r.Rank(context.Background(), serviceQuery("Legal"), []*models.Member{sparse, recent, complete}, 0)

	require.Len(t, ranked, 3)
	assert.Equal(t, "m1", ranked[0].Member.ID)
	assert.Equal(t, "m3", ranked[1].Member.ID, "verified beats never-verified on ties")
	assert.Equal(t, "m2", ranked[2].Member.ID)
}

func TestRank_LimitCaps(t *testing.T) {
	r := newTestRanker()

	var pool []*models.Member
	for i := 0; i < 25; i++ {
		m := activeMember(fmt.Sprintf("m-%02d", i), "Ana Reyes")
		m.DeclaredProfession = str("Legal")
		pool = append(pool, m)
	}

	assert.Len(t, r.Rank(context.Background(), serviceQuery("Legal"), pool, 0), 20)
	assert.Len(t, r.Rank(context.Background(), serviceQuery("Legal"), pool, 5), 5)
	assert.Len(t, r.Rank(context.Background(), serviceQuery("Legal"), pool, 100), 25)
}
