package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

// searchPool ingests a small chapter roster with a spread of professions
// and cities, keyed by role for readable assertions.
func searchPool(t *testing.T, p *pipeline) map[string]*models.Member {
	t.Helper()

	return map[string]*models.Member{
		"familyLawyer": p.ingest(t, sheetRow("Atty. Juan Dela Cruz", map[string]any{
			"BATCH":          "95-S",
			"CHAPTER":        "Manila Chapter",
			"EMAIL":          "juan.delacruz@gmail.com",
			"MOBILE":         "0917-123-4567",
			"OFFICE ADDRESS": "Cruz Law Office, Ayala Avenue, Makati City",
			"PROFESSION":     "Family Lawyer",
		})),
		"corporateLawyer": p.ingest(t, sheetRow("Atty. Ramon Garcia", map[string]any{
			"BATCH":          "90-A",
			"CHAPTER":        "Quezon City Chapter",
			"EMAIL":          "ramon.garcia@yahoo.com",
			"OFFICE ADDRESS": "Garcia Law Center, Shaw Boulevard, Pasig City",
			"PROFESSION":     "Corporate Lawyer",
		})),
		"doctor": p.ingest(t, sheetRow("Dr. Maria Santos", map[string]any{
			"BATCH":          "90-A",
			"CHAPTER":        "Quezon City Chapter",
			"EMAIL":          "maria.santos@yahoo.com",
			"MOBILE":         "0918 555 6666",
			"OFFICE ADDRESS": "Santos Medical Clinic, Quezon City",
			"PROFESSION":     "Doctor",
		})),
		"engineer": p.ingest(t, sheetRow("Engr. Pedro Reyes", map[string]any{
			"BATCH":          "88",
			"CHAPTER":        "Cebu Chapter",
			"OFFICE ADDRESS": "Reyes Engineering Services, Osmena Boulevard, Cebu City",
			"PROFESSION":     "Civil Engineer",
		})),
		"developer": p.ingest(t, sheetRow("Ana Lim", map[string]any{
			"BATCH":          "2010-B",
			"EMAIL":          "ana.lim@gmail.com",
			"JOB TITLE":      "Software Developer",
			"COMPANY":        "Lim Web Studio",
			"OFFICE ADDRESS": "Lim Web Studio, Escario Street, Cebu City",
		})),
	}
}

func poolMembers(pool map[string]*models.Member) []*models.Member {
	members := make([]*models.Member, 0, len(pool))
	for _, m := range pool {
		members = append(members, m)
	}
	return members
}

func TestSearchFlow_ServiceRequestRanksBySpecialtyAndCity(t *testing.T) {
	p := newPipeline()
	pool := searchPool(t, p)

	parsed := p.parser.Parse(context.Background(), "I need a family lawyer in Makati")

	assert.Equal(t, models.IntentServiceRequest, parsed.Intent)
	require.NotNil(t, parsed.Category)
	assert.Equal(t, "Legal", *parsed.Category)
	assert.Contains(t, parsed.Specializations, "family law")
	require.NotNil(t, parsed.Location)
	assert.Equal(t, "Makati", *parsed.Location)

	ranked := p.ranker.Rank(context.Background(), parsed, poolMembers(pool), 0)
	require.GreaterOrEqual(t, len(ranked), 2)

	assert.Equal(t, pool["familyLawyer"].ID, ranked[0].Member.ID,
		"right specialty in the right city wins")
	assert.Equal(t, pool["corporateLawyer"].ID, ranked[1].Member.ID,
		"same profession in a neighboring city comes second")
	assert.Greater(t, ranked[0].Score, ranked[1].Score)

	assert.Contains(t, ranked[0].MatchReasons, "Works in Makati")
	assert.Contains(t, ranked[0].MatchReasons, "Specializes in family law")

	for _, result := range ranked {
		assert.NotEmpty(t, result.MatchReasons, "every result must be explainable")
	}
}

func TestSearchFlow_DirectoryLookupByName(t *testing.T) {
	p := newPipeline()
	pool := searchPool(t, p)

	parsed := p.parser.Parse(context.Background(), "Find Juan Dela Cruz")

	assert.Equal(t, models.IntentDirectoryLookup, parsed.Intent)
	assert.Equal(t, []string{"juan", "dela", "cruz"}, parsed.NameTokens)

	ranked := p.ranker.Rank(context.Background(), parsed, poolMembers(pool), 0)
	require.Len(t, ranked, 1, "nobody else in the pool shares the name")
	assert.Equal(t, pool["familyLawyer"].ID, ranked[0].Member.ID)
	assert.Contains(t, ranked[0].MatchReasons, `Name matches "juan dela cruz"`)
}

func TestSearchFlow_BatchAndChapterLookup(t *testing.T) {
	p := newPipeline()
	pool := searchPool(t, p)

	parsed := p.parser.Parse(context.Background(), "batch 95-S members of the Manila chapter")

	assert.Equal(t, models.IntentDirectoryLookup, parsed.Intent)
	require.NotNil(t, parsed.BatchYear)
	assert.Equal(t, 1995, *parsed.BatchYear)
	require.NotNil(t, parsed.Chapter)
	assert.Equal(t, "Manila", *parsed.Chapter)

	ranked := p.ranker.Rank(context.Background(), parsed, poolMembers(pool), 0)
	require.Len(t, ranked, 1)
	assert.Equal(t, pool["familyLawyer"].ID, ranked[0].Member.ID)
	assert.Contains(t, ranked[0].MatchReasons, "Member of batch 1995-S")
	assert.Contains(t, ranked[0].MatchReasons, "Member of Manila chapter")
}

func TestSearchFlow_UrgentRequestWithLocationAlias(t *testing.T) {
	p := newPipeline()
	pool := searchPool(t, p)

	parsed := p.parser.Parse(context.Background(), "urgent need a doctor in QC")

	assert.Equal(t, models.IntentServiceRequest, parsed.Intent)
	assert.True(t, parsed.Urgent)
	require.NotNil(t, parsed.Category)
	assert.Equal(t, "Medical", *parsed.Category)
	require.NotNil(t, parsed.Location)
	assert.Equal(t, "Quezon City", *parsed.Location, "the QC alias resolves before matching")

	ranked := p.ranker.Rank(context.Background(), parsed, poolMembers(pool), 0)
	require.NotEmpty(t, ranked)
	assert.Equal(t, pool["doctor"].ID, ranked[0].Member.ID)
	assert.Contains(t, ranked[0].MatchReasons, "Works in Quezon City")
}

func TestSearchFlow_InferredProfessionStillRanks(t *testing.T) {
	p := newPipeline()
	pool := searchPool(t, p)

	// Ana never declared a profession; only inference ties her to IT.
	parsed := p.parser.Parse(context.Background(), "need a software developer in Cebu")

	assert.Equal(t, models.IntentServiceRequest, parsed.Intent)
	require.NotNil(t, parsed.Category)
	assert.Equal(t, "IT/Technology", *parsed.Category)

	ranked := p.ranker.Rank(context.Background(), parsed, poolMembers(pool), 0)
	require.NotEmpty(t, ranked)
	assert.Equal(t, pool["developer"].ID, ranked[0].Member.ID)

	var inferredReason bool
	for _, reason := range ranked[0].MatchReasons {
		if reason == "Likely works in IT/Technology (AI inferred)" {
			inferredReason = true
		}
	}
	assert.True(t, inferredReason, "inferred matches must be labeled as such")
}

func TestSearchFlow_NoMatchesComeBackEmpty(t *testing.T) {
	p := newPipeline()
	pool := searchPool(t, p)

	parsed := p.parser.Parse(context.Background(), "kumusta po makikibalita lang")

	ranked := p.ranker.Rank(context.Background(), parsed, poolMembers(pool), 0)
	assert.Empty(t, ranked)
}

func TestSearchFlow_LimitCapsResults(t *testing.T) {
	p := newPipeline()
	pool := searchPool(t, p)

	// Both lawyers match a bare Legal request; a limit of one keeps the best.
	parsed := p.parser.Parse(context.Background(), "I need a lawyer in Makati")

	ranked := p.ranker.Rank(context.Background(), parsed, poolMembers(pool), 1)
	require.Len(t, ranked, 1)
	assert.Equal(t, pool["familyLawyer"].ID, ranked[0].Member.ID)
}
