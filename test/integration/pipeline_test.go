package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

// A full sheet row travels through extraction, normalization, and
// inference, the same path an imported Kafka message takes.
func TestImportFlow_SheetRowBecomesResolvedMember(t *testing.T) {
	p := newPipeline()

	raw := sheetRow("Atty. Jose Santos Jr.", map[string]any{
		"NICKNAME":       "Pepe",
		"BATCH":          "88-A",
		"CHAPTER":        "Quezon City Chapter",
		"EMAIL":          "Jose.Santos@GMAIL.com",
		"MOBILE":         "0917 555 1234",
		"OFFICE ADDRESS": "Santos Law Office, Tomas Morato Avenue, Quezon City",
		"PROFESSION":     "Lawyer",
	})

	result, err := p.builder.Build(context.Background(), raw)
	require.NoError(t, err)
	require.Empty(t, result.Issues)

	m := result.Member

	t.Run("identity", func(t *testing.T) {
		assert.Equal(t, "Jose Santos", m.FullName)
		assert.Equal(t, "Jose", *m.FirstName)
		assert.Equal(t, "Santos", *m.LastName)
		assert.Equal(t, "atty", *m.Honorific)
		assert.Equal(t, "jr", *m.NameSuffix)
		assert.Equal(t, "Pepe", *m.Nickname)
	})

	t.Run("membership", func(t *testing.T) {
		assert.Equal(t, 1988, *m.BatchYear)
		assert.Equal(t, "1988-A", *m.BatchLabel)
		assert.Equal(t, 1980, *m.BatchDecade)
		assert.Equal(t, "Quezon City", *m.ChapterName)
	})

	t.Run("contact", func(t *testing.T) {
		assert.Equal(t, "jose.santos@gmail.com", *m.Email)
		assert.Equal(t, "gmail.com", *m.EmailDomain)
		assert.Equal(t, "personal", *m.EmailSector)
		assert.Equal(t, "+639175551234", *m.MobileNumber)
	})

	t.Run("profession and location", func(t *testing.T) {
		assert.Equal(t, "Legal", *m.DeclaredProfession)
		assert.Equal(t, "Lawyer", *m.JobTitle)
		assert.Equal(t, "Quezon City", *m.OfficeCity)
		assert.Equal(t, "Metro Manila", *m.OfficeRegion)
	})

	t.Run("derived state", func(t *testing.T) {
		assert.True(t, m.Searchable())
		assert.NotEmpty(t, m.Fingerprint)
		assert.Greater(t, m.CompletenessScore, 0.5)
		assert.NotEmpty(t, result.Changes, "every populated field gets a creation change record")
		assert.Contains(t, string(m.RawData), "OFFICE ADDRESS", "original headers survive for provenance")
	})

	t.Run("inference", func(t *testing.T) {
		inferred := p.engine.Infer(context.Background(), m)
		change, err := p.builder.ApplyInference(m, inferred)
		require.NoError(t, err)
		require.NotNil(t, change, "first inference always differs from the empty one")
		assert.Equal(t, "inference", change.Field)

		stored := m.Inference.GetValue()
		require.NotNil(t, stored)
		require.NotNil(t, stored.Profession)
		assert.Equal(t, "Legal", stored.Profession.Value)
		require.NotNil(t, stored.WorkCity)
		assert.Equal(t, "Quezon City", stored.WorkCity.Value)
	})
}

func TestImportFlow_DegradedFieldsAreReportedNotFatal(t *testing.T) {
	p := newPipeline()

	raw := sheetRow("Maria Clara Ibarra", map[string]any{
		"EMAIL":  "not-an-email",
		"MOBILE": "call me at the office",
		"BATCH":  "batch unknown",
	})

	result, err := p.builder.Build(context.Background(), raw)
	require.NoError(t, err, "malformed optional fields never fail the record")

	m := result.Member
	assert.Equal(t, "Maria Clara Ibarra", m.FullName)
	assert.Nil(t, m.Email)
	assert.Nil(t, m.MobileNumber)
	assert.Nil(t, m.BatchYear)

	require.Len(t, result.Issues, 3)
	fields := make([]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		fields = append(fields, issue.Field)
	}
	assert.ElementsMatch(t, []string{"email", "mobile", "batch"}, fields)
}

func TestImportFlow_MissingNameRejectsRecord(t *testing.T) {
	p := newPipeline()

	_, err := p.builder.Build(context.Background(), &models.RawMemberRecord{
		SourceName: "roster-2024",
		Fields:     map[string]any{"EMAIL": "anon@example.com"},
	})
	require.Error(t, err)
	assert.True(t, models.IsMalformedInput(err))
}

func TestReimportFlow_UnchangedRowIsNoOp(t *testing.T) {
	p := newPipeline()

	row := sheetRow("Juan Dela Cruz", map[string]any{
		"BATCH":  "95-S",
		"EMAIL":  "juan.delacruz@gmail.com",
		"MOBILE": "0917-123-4567",
	})
	m := p.ingest(t, row)
	before := m.Fingerprint

	changes, issues, err := p.builder.Update(context.Background(), m, row.Fields, models.ChangeSourceImport, nil)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, issues)
	assert.Equal(t, before, m.Fingerprint)
	assert.Empty(t, m.PreviousFingerprint)
}

func TestReimportFlow_NewEmailRotatesFingerprint(t *testing.T) {
	p := newPipeline()

	m := p.ingest(t, sheetRow("Juan Dela Cruz", map[string]any{
		"EMAIL": "juan.delacruz@gmail.com",
	}))
	before := m.Fingerprint

	changes, _, err := p.builder.Update(context.Background(), m, map[string]any{
		"EMAIL": "juan.delacruz@petron.com",
	}, models.ChangeSourceImport, nil)
	require.NoError(t, err)

	changed := make([]string, 0, len(changes))
	for _, c := range changes {
		changed = append(changed, c.Field)
	}
	assert.Contains(t, changed, "email")
	assert.Contains(t, changed, "email_sector")

	assert.Equal(t, "corporate", *m.EmailSector)
	assert.NotEqual(t, before, m.Fingerprint)
	assert.Equal(t, before, m.PreviousFingerprint)
}

func TestInferenceFlow_JobTitleDrivesProfession(t *testing.T) {
	p := newPipeline()

	m := p.ingest(t, sheetRow("Ana Lim", map[string]any{
		"JOB TITLE": "Senior Software Developer",
		"COMPANY":   "Bayan Tech Solutions",
		"EMAIL":     "ana.lim@yahoo.com",
	}))

	assert.Nil(t, m.DeclaredProfession)

	stored := m.Inference.GetValue()
	require.NotNil(t, stored)
	require.NotNil(t, stored.Profession)
	assert.Equal(t, "IT/Technology", stored.Profession.Value)
	assert.Equal(t, "job_title", stored.Profession.Source)
	assert.GreaterOrEqual(t, stored.Profession.Confidence, 0.5)
	assert.Contains(t, stored.Specializations, "software development")

	category, declared := m.ProfessionCategory()
	assert.Equal(t, "IT/Technology", category)
	assert.False(t, declared, "inferred category must stay distinguishable from a declared one")
}

// Two imports of the same people from different sources land as separate
// rows; detection has to reunite them.
func TestDetectionFlow_AcrossSources(t *testing.T) {
	p := newPipeline()

	juan := p.ingest(t, sheetRow("Atty. Juan Dela Cruz", map[string]any{
		"NICKNAME":       "Johnny",
		"BATCH":          "95-S",
		"CHAPTER":        "Manila Chapter",
		"EMAIL":          "juan.delacruz@gmail.com",
		"MOBILE":         "0917-123-4567",
		"OFFICE ADDRESS": "Cruz Law Office, Ayala Avenue, Makati City",
		"PROFESSION":     "Lawyer",
	}))

	johnnyRaw := sheetRow("Johnny Dela Cruz", map[string]any{
		"BATCH":   "95-S",
		"CHAPTER": "Manila",
		"MOBILE":  "+63 917 123 4567",
	})
	johnnyRaw.SourceName = "referral-form"
	johnny := p.ingest(t, johnnyRaw)

	maria := p.ingest(t, sheetRow("Dr. Maria Santos", map[string]any{
		"BATCH":          "90-A",
		"EMAIL":          "maria.santos@yahoo.com",
		"PROFESSION":     "Doctor",
		"OFFICE ADDRESS": "Santos Medical Clinic, Quezon City",
	}))

	mariaDupRaw := sheetRow("Maria Santos", map[string]any{
		"EMAIL":  "maria.santos@yahoo.com",
		"MOBILE": "0918 222 3333",
	})
	mariaDupRaw.SourceName = "referral-form"
	mariaDup := p.ingest(t, mariaDupRaw)

	pedro := p.ingest(t, sheetRow("Engr. Pedro Reyes", map[string]any{
		"BATCH":      "82",
		"CHAPTER":    "Cebu Chapter",
		"PROFESSION": "Civil Engineer",
	}))
	ana := p.ingest(t, sheetRow("Ana Lim", map[string]any{
		"BATCH":     "2010-B",
		"JOB TITLE": "Software Developer",
	}))

	members := []*models.Member{juan, johnny, maria, mariaDup, pedro, ana}
	report, err := p.detector.Detect(context.Background(), members)
	require.NoError(t, err)

	assert.Equal(t, 6, report.MembersScanned)
	assert.False(t, report.Truncated)
	require.Len(t, report.Groups, 2)

	for _, group := range report.Groups {
		switch {
		case contains(group.MemberIDs, juan.ID):
			assert.ElementsMatch(t, []string{juan.ID, johnny.ID}, group.MemberIDs)
			assert.Equal(t, juan.ID, group.PrimaryID, "the richer record should be the primary")
		case contains(group.MemberIDs, maria.ID):
			assert.ElementsMatch(t, []string{maria.ID, mariaDup.ID}, group.MemberIDs)
			assert.Equal(t, maria.ID, group.PrimaryID)
			require.Len(t, group.Pairs, 1)
			assert.Contains(t, group.Pairs[0].MatchedFields, "email")
		default:
			t.Fatalf("unexpected group %v", group.MemberIDs)
		}
	}
}

// Detection output feeds straight into a keep_newest merge; the primary
// absorbs the newer contact data and the duplicate drops out of search.
func TestMergeFlow_KeepNewestBuildsGoldenRecord(t *testing.T) {
	p := newPipeline()

	primary := p.ingest(t, sheetRow("Atty. Ana Reyes", map[string]any{
		"BATCH":          "95-S",
		"CHAPTER":        "Manila Chapter",
		"EMAIL":          "ana.reyes@gmail.com",
		"OFFICE ADDRESS": "Reyes Law Office, Ayala Avenue, Makati City",
		"PROFESSION":     "Lawyer",
	}))

	dupRaw := sheetRow("Ana Reyes", map[string]any{
		"EMAIL":          "ana.reyes@gmail.com",
		"MOBILE":         "0917 888 9999",
		"COMPANY":        "Reyes & Partners",
		"OFFICE ADDRESS": "Reyes & Partners, Ortigas Center, Pasig City",
	})
	dupRaw.SourceName = "referral-form"
	dup := p.ingest(t, dupRaw)

	primary.UpdatedAt = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	dup.UpdatedAt = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

	report, err := p.detector.Detect(context.Background(), []*models.Member{primary, dup})
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)

	group := storedGroup(report.Groups[0])
	require.Equal(t, primary.ID, group.PrimaryMemberID)

	actor := "admin@chapter.ph"
	outcome, err := p.resolver.Resolve(context.Background(), group, []*models.Member{primary, dup}, models.MergeGroupRequest{
		Strategy: models.MergeStrategyKeepNewest,
	}, &actor)
	require.NoError(t, err)

	t.Run("group resolved", func(t *testing.T) {
		assert.Equal(t, models.DuplicateGroupStatusMerged, group.Status)
		require.NotNil(t, group.ResolvedAt)
		assert.Equal(t, actor, *group.ResolvedBy)
	})

	t.Run("golden record fields", func(t *testing.T) {
		assert.Equal(t, "+639178889999", *primary.MobileNumber)
		assert.Equal(t, "Reyes & Partners", *primary.Company)
		assert.Equal(t, "Pasig", *primary.OfficeCity, "newer office wins under most_recent")
		assert.NotEmpty(t, primary.PreviousFingerprint, "merged fields rotate the fingerprint")
	})

	t.Run("duplicate flagged", func(t *testing.T) {
		assert.True(t, dup.IsDuplicate)
		require.NotNil(t, dup.DuplicateOfID)
		assert.Equal(t, primary.ID, *dup.DuplicateOfID)
		assert.False(t, dup.Searchable())
	})

	t.Run("audit trail", func(t *testing.T) {
		assert.Equal(t, []string{dup.ID}, outcome.Result.MergedMemberIDs)
		assert.Contains(t, outcome.Result.FieldsChanged, "mobile_number")
		assert.Contains(t, outcome.Result.FieldsChanged, "company")
		assert.Equal(t, len(outcome.Changes), outcome.Result.ChangeCount)

		for _, change := range outcome.Changes {
			assert.Equal(t, models.ChangeSourceMerge, change.Source)
			require.NotNil(t, change.GroupID)
			assert.Equal(t, group.ID, *change.GroupID)
		}
	})

	t.Run("merged duplicate never ranks", func(t *testing.T) {
		parsed := p.parser.Parse(context.Background(), "Find Ana Reyes")
		ranked := p.ranker.Rank(context.Background(), parsed, []*models.Member{primary, dup}, 0)
		require.Len(t, ranked, 1)
		assert.Equal(t, primary.ID, ranked[0].Member.ID)
	})

	t.Run("re-resolving is a no-op", func(t *testing.T) {
		again, err := p.resolver.Resolve(context.Background(), group, []*models.Member{primary, dup}, models.MergeGroupRequest{
			Strategy: models.MergeStrategyKeepNewest,
		}, &actor)
		require.NoError(t, err)
		assert.Empty(t, again.Changes)
		assert.Empty(t, again.Result.MergedMemberIDs)
	})
}

func TestMergeFlow_FalsePositiveKeptApart(t *testing.T) {
	p := newPipeline()

	elder := p.ingest(t, sheetRow("Jose Garcia", map[string]any{
		"BATCH":  "85-A",
		"MOBILE": "0917 111 2222",
	}))
	youngerRaw := sheetRow("Jose Garcia", map[string]any{
		"BATCH":  "85-A",
		"MOBILE": "+63 917 111 2222",
	})
	youngerRaw.SourceName = "referral-form"
	younger := p.ingest(t, youngerRaw)

	report, err := p.detector.Detect(context.Background(), []*models.Member{elder, younger})
	require.NoError(t, err)
	require.Len(t, report.Groups, 1, "a father and son sharing a phone look identical to the detector")

	group := storedGroup(report.Groups[0])
	actor := "admin@chapter.ph"
	outcome, err := p.resolver.Resolve(context.Background(), group, []*models.Member{elder, younger}, models.MergeGroupRequest{
		Strategy: models.MergeStrategyKeepBoth,
	}, &actor)
	require.NoError(t, err)

	assert.Equal(t, models.DuplicateGroupStatusDismissed, group.Status)
	assert.NotNil(t, group.ResolvedAt)
	assert.Empty(t, outcome.Changes)

	assert.False(t, elder.IsDuplicate)
	assert.False(t, younger.IsDuplicate)
	assert.True(t, elder.Searchable())
	assert.True(t, younger.Searchable())

	// A dismissed verdict is final; merging it later must fail loudly.
	_, err = p.resolver.Resolve(context.Background(), group, []*models.Member{elder, younger}, models.MergeGroupRequest{
		Strategy: models.MergeStrategyKeepNewest,
	}, &actor)
	require.Error(t, err)
	assert.True(t, models.IsInvariantViolation(err))
}

func TestMergeFlow_ManualReviewParksThenMerges(t *testing.T) {
	p := newPipeline()

	a := p.ingest(t, sheetRow("Carlos Tan", map[string]any{
		"BATCH": "99-B",
		"EMAIL": "carlos.tan@gmail.com",
	}))
	bRaw := sheetRow("Carlos Tan", map[string]any{
		"EMAIL":  "carlos.tan@gmail.com",
		"MOBILE": "0917 444 5555",
	})
	bRaw.SourceName = "referral-form"
	b := p.ingest(t, bRaw)

	report, err := p.detector.Detect(context.Background(), []*models.Member{a, b})
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)

	group := storedGroup(report.Groups[0])
	actor := "reviewer@chapter.ph"

	parked, err := p.resolver.Resolve(context.Background(), group, []*models.Member{a, b}, models.MergeGroupRequest{
		Strategy: models.MergeStrategyManualReview,
	}, &actor)
	require.NoError(t, err)
	assert.Equal(t, models.DuplicateGroupStatusReview, group.Status)
	assert.Nil(t, group.ResolvedAt, "parking is not a resolution")
	assert.Empty(t, parked.Changes)

	// Review reached a verdict: merge goes through.
	merged, err := p.resolver.Resolve(context.Background(), group, []*models.Member{a, b}, models.MergeGroupRequest{
		Strategy: models.MergeStrategyKeepNewest,
	}, &actor)
	require.NoError(t, err)
	assert.Equal(t, models.DuplicateGroupStatusMerged, group.Status)
	assert.NotEmpty(t, merged.Result.MergedMemberIDs)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
