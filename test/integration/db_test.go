package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/changelog"
	"github.com/Ramsey-B/fern/internal/repositories/duplicategroup"
	"github.com/Ramsey-B/fern/internal/repositories/importbatch"
	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

// testContext holds shared state for database-backed tests.
type testContext struct {
	ctx      context.Context
	db       database.DB
	members  *member.Repository
	changes  *changelog.Repository
	groups   *duplicategroup.Repository
	batches  *importbatch.Repository
	pipeline *pipeline
}

// setupTestContext connects to the database named by TEST_DATABASE_HOST.
// Tests skip when no test database is configured, so the suite stays
// runnable on a laptop without postgres.
func setupTestContext(t *testing.T) *testContext {
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("Database not configured")
	}

	port := 5432
	if v := os.Getenv("TEST_DATABASE_PORT"); v != "" {
		parsed, err := strconv.Atoi(v)
		require.NoError(t, err, "TEST_DATABASE_PORT must be a number")
		port = parsed
	}

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	ctx := context.Background()

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:         host,
		Port:         port,
		User:         envOr("TEST_DATABASE_USER", "postgres"),
		Password:     envOr("TEST_DATABASE_PASSWORD", "postgres"),
		Name:         envOr("TEST_DATABASE_NAME", "fern_test"),
		SSLMode:      "disable",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &testContext{
		ctx:      ctx,
		db:       db,
		members:  member.NewRepository(db, logger),
		changes:  changelog.NewRepository(db, logger),
		groups:   duplicategroup.NewRepository(db, logger),
		batches:  importbatch.NewRepository(db, logger),
		pipeline: newPipeline(),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// uniqueEmail keeps reruns against a shared test database from colliding.
func uniqueEmail(local string) string {
	return fmt.Sprintf("%s.%s@gmail.com", local, uuid.New().String()[:8])
}

func (tc *testContext) searchableIDs(t *testing.T) map[string]bool {
	t.Helper()
	listed, err := tc.members.ListSearchable(tc.ctx)
	require.NoError(t, err)
	ids := make(map[string]bool, len(listed))
	for _, m := range listed {
		ids[m.ID] = true
	}
	return ids
}

func TestMemberRepository_Lifecycle(t *testing.T) {
	tc := setupTestContext(t)

	email := uniqueEmail("jose.santos")
	row := sheetRow("Atty. Jose Santos", map[string]any{
		"BATCH":      "88-A",
		"CHAPTER":    "Quezon City Chapter",
		"EMAIL":      email,
		"MOBILE":     "0917 555 1234",
		"PROFESSION": "Lawyer",
	})
	m := tc.pipeline.ingest(t, row)
	require.NoError(t, tc.members.Create(tc.ctx, m))

	t.Run("GetRoundTripsNormalizedColumns", func(t *testing.T) {
		got, err := tc.members.Get(tc.ctx, m.ID)
		require.NoError(t, err)

		assert.Equal(t, "Jose Santos", got.FullName)
		assert.Equal(t, "atty", *got.Honorific)
		assert.Equal(t, email, *got.Email)
		assert.Equal(t, "+639175551234", *got.MobileNumber)
		assert.Equal(t, "1988-A", *got.BatchLabel)
		assert.Equal(t, "Quezon City", *got.ChapterName)
		assert.Equal(t, m.Fingerprint, got.Fingerprint)
		assert.NotNil(t, got.Inference.GetValue(), "inference survives the jsonb column")
		assert.NotEmpty(t, got.RawData)

		require.NotNil(t, got.DataVintage)
		assert.True(t, got.DataVintage.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)),
			"vintage parsed from the roster name survives the round trip")
	})

	t.Run("GetByEmail", func(t *testing.T) {
		got, err := tc.members.GetByEmail(tc.ctx, email)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, m.ID, got.ID)

		missing, err := tc.members.GetByEmail(tc.ctx, uniqueEmail("nobody"))
		require.NoError(t, err)
		assert.Nil(t, missing, "unknown email is not an error")
	})

	t.Run("GetBySourceRecord", func(t *testing.T) {
		got, err := tc.members.GetBySourceRecord(tc.ctx, row.SourceName, row.SourceRecordID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, m.ID, got.ID)

		missing, err := tc.members.GetBySourceRecord(tc.ctx, row.SourceName, uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("UpdatePersistsReprocessedFields", func(t *testing.T) {
		before := m.Fingerprint
		changed, issues, err := tc.pipeline.builder.Update(tc.ctx, m, map[string]any{
			"MOBILE": "0918 222 3333",
		}, models.ChangeSourceAPI, str("admin@chapter.ph"))
		require.NoError(t, err)
		require.Empty(t, issues)
		require.NotEmpty(t, changed)

		require.NoError(t, tc.members.Update(tc.ctx, m))

		got, err := tc.members.Get(tc.ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "+639182223333", *got.MobileNumber)
		assert.NotEqual(t, before, got.Fingerprint)
		assert.Equal(t, before, got.PreviousFingerprint)
	})

	t.Run("VerificationStamp", func(t *testing.T) {
		require.NoError(t, tc.members.RecordVerification(tc.ctx, m.ID, "admin@chapter.ph", 0.95))

		got, err := tc.members.Get(tc.ctx, m.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastVerifiedAt)
		assert.Equal(t, "admin@chapter.ph", *got.VerifiedBy)
		assert.InDelta(t, 0.95, got.ConfidenceScore, 0.001)
	})

	t.Run("DeactivateAndRestore", func(t *testing.T) {
		require.NoError(t, tc.members.Deactivate(tc.ctx, m.ID))

		got, err := tc.members.Get(tc.ctx, m.ID)
		require.NoError(t, err, "soft deleted members stay readable by id")
		assert.Equal(t, models.MemberStatusInactive, got.Status)
		assert.NotNil(t, got.DeletedAt)
		assert.False(t, tc.searchableIDs(t)[m.ID])

		require.NoError(t, tc.members.Restore(tc.ctx, m.ID))

		got, err = tc.members.Get(tc.ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MemberStatusActive, got.Status)
		assert.Nil(t, got.DeletedAt)
		assert.True(t, tc.searchableIDs(t)[m.ID])

		err = tc.members.Restore(tc.ctx, m.ID)
		require.Error(t, err, "restoring an active member is a 404")
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("MarkDuplicateExcludesFromSearch", func(t *testing.T) {
		dup := tc.pipeline.ingest(t, sheetRow("Jose Santos", map[string]any{
			"EMAIL": uniqueEmail("jose.santos.dup"),
		}))
		require.NoError(t, tc.members.Create(tc.ctx, dup))

		require.NoError(t, tc.members.MarkDuplicate(tc.ctx, dup.ID, m.ID))

		got, err := tc.members.Get(tc.ctx, dup.ID)
		require.NoError(t, err)
		assert.True(t, got.IsDuplicate)
		assert.Equal(t, m.ID, *got.DuplicateOfID)
		assert.False(t, tc.searchableIDs(t)[dup.ID])
	})

	t.Run("MissingMemberIs404", func(t *testing.T) {
		err := tc.members.Deactivate(tc.ctx, uuid.New().String())
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestChangelogRepository_History(t *testing.T) {
	tc := setupTestContext(t)

	result, err := tc.pipeline.builder.Build(tc.ctx, sheetRow("Maria Reyes", map[string]any{
		"EMAIL":  uniqueEmail("maria.reyes"),
		"MOBILE": "0917 111 2222",
	}))
	require.NoError(t, err)
	m := result.Member
	require.NoError(t, tc.members.Create(tc.ctx, m))
	require.NoError(t, tc.changes.Append(tc.ctx, result.Changes))

	updated, _, err := tc.pipeline.builder.Update(tc.ctx, m, map[string]any{
		"MOBILE": "0918 333 4444",
	}, models.ChangeSourceAPI, str("admin@chapter.ph"))
	require.NoError(t, err)
	require.NoError(t, tc.changes.Append(tc.ctx, updated))

	t.Run("ListForMember", func(t *testing.T) {
		history, err := tc.changes.ListForMember(tc.ctx, m.ID, nil, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, len(result.Changes)+len(updated), history.TotalCount)
		for _, rec := range history.Items {
			assert.Equal(t, m.ID, rec.MemberID)
		}
	})

	t.Run("FieldFilter", func(t *testing.T) {
		field := "mobile_number"
		history, err := tc.changes.ListForMember(tc.ctx, m.ID, &field, 1, 50)
		require.NoError(t, err)
		require.Equal(t, 2, history.TotalCount, "creation plus one correction")
		for _, rec := range history.Items {
			assert.Equal(t, field, rec.Field)
		}
	})

	t.Run("FieldHistory", func(t *testing.T) {
		history, err := tc.changes.FieldHistory(tc.ctx, m.ID, "mobile_number")
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("CountSince", func(t *testing.T) {
		count, err := tc.changes.CountSince(tc.ctx, time.Now().UTC().Add(-time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, len(result.Changes)+len(updated))
	})

	t.Run("EmptyAppendIsNoOp", func(t *testing.T) {
		require.NoError(t, tc.changes.Append(tc.ctx, nil))
	})
}

func TestDuplicateGroupRepository_Flow(t *testing.T) {
	tc := setupTestContext(t)

	shared := uniqueEmail("carlos.tan")
	a := tc.pipeline.ingest(t, sheetRow("Carlos Tan", map[string]any{
		"EMAIL": shared,
		"BATCH": "90-A",
	}))
	b := tc.pipeline.ingest(t, sheetRow("Carlos M. Tan", map[string]any{
		"EMAIL":  shared,
		"MOBILE": "0917 777 8888",
	}))
	require.NoError(t, tc.members.Create(tc.ctx, a))
	require.NoError(t, tc.members.Create(tc.ctx, b))

	report, err := tc.pipeline.detector.Detect(tc.ctx, []*models.Member{a, b})
	require.NoError(t, err)
	require.Len(t, report.Groups, 1, "shared email is a certain match")

	group := storedGroup(report.Groups[0])
	require.NoError(t, tc.groups.Create(tc.ctx, group))

	t.Run("GetLoadsMembers", func(t *testing.T) {
		got, err := tc.groups.Get(tc.ctx, group.ID)
		require.NoError(t, err)

		assert.Equal(t, models.DuplicateGroupStatusOpen, got.Status)
		assert.InDelta(t, group.Score, got.Score, 0.001)
		require.Len(t, got.Members, 2)

		var primaries int
		for _, gm := range got.Members {
			assert.Contains(t, gm.MatchedFields.Data, "email")
			if gm.IsPrimary {
				primaries++
				assert.Equal(t, group.PrimaryMemberID, gm.MemberID)
			}
		}
		assert.Equal(t, 1, primaries)
	})

	t.Run("ListUnresolvedIncludesOpenGroups", func(t *testing.T) {
		unresolved, err := tc.groups.ListUnresolved(tc.ctx)
		require.NoError(t, err)

		found := false
		for _, g := range unresolved {
			if g.ID == group.ID {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("ReviewThenResolve", func(t *testing.T) {
		require.NoError(t, tc.groups.MarkReview(tc.ctx, group.ID))

		err := tc.groups.MarkReview(tc.ctx, group.ID)
		require.Error(t, err, "only open groups can move to review")
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

		require.NoError(t, tc.groups.Resolve(tc.ctx, group.ID, models.DuplicateGroupStatusMerged, str("admin@chapter.ph")))

		got, err := tc.groups.Get(tc.ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DuplicateGroupStatusMerged, got.Status)
		require.NotNil(t, got.ResolvedAt)
		assert.Equal(t, "admin@chapter.ph", *got.ResolvedBy)

		err = tc.groups.Resolve(tc.ctx, group.ID, models.DuplicateGroupStatusDismissed, nil)
		require.Error(t, err, "resolved groups stay resolved")
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})

	t.Run("CountByStatus", func(t *testing.T) {
		counts, err := tc.groups.CountByStatus(tc.ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, counts[models.DuplicateGroupStatusMerged], 1)
	})
}

func TestImportBatchRepository_Counters(t *testing.T) {
	tc := setupTestContext(t)

	batch := &models.ImportBatch{SourceName: "roster-2024", TotalRecords: 15}
	require.NoError(t, tc.batches.Create(tc.ctx, batch))
	require.NotEmpty(t, batch.ID)
	assert.Equal(t, models.ImportBatchStatusRunning, batch.Status)

	t.Run("CountersAccumulate", func(t *testing.T) {
		require.NoError(t, tc.batches.IncrementCounters(tc.ctx, batch.ID, importbatch.Counters{Processed: 10, Created: 7, Updated: 2, Skipped: 1}))
		require.NoError(t, tc.batches.IncrementCounters(tc.ctx, batch.ID, importbatch.Counters{Processed: 5, Created: 5}))

		got, err := tc.batches.Get(tc.ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, 15, got.TotalRecords)
		assert.Equal(t, 15, got.ProcessedRecords)
		assert.Equal(t, 12, got.CreatedRecords)
		assert.Equal(t, 2, got.UpdatedRecords)
		assert.Equal(t, 1, got.SkippedRecords)
		assert.Equal(t, 0, got.FailedRecords)
	})

	t.Run("Complete", func(t *testing.T) {
		require.NoError(t, tc.batches.Complete(tc.ctx, batch.ID, models.ImportBatchStatusCompleted))

		got, err := tc.batches.Get(tc.ctx, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ImportBatchStatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("RecentIncludesNewBatch", func(t *testing.T) {
		recent, err := tc.batches.Recent(tc.ctx, 5)
		require.NoError(t, err)

		found := false
		for _, b := range recent {
			if b.ID == batch.ID {
				found = true
			}
		}
		assert.True(t, found, "a batch created moments ago is among the most recent")
	})

	t.Run("MissingBatchIs404", func(t *testing.T) {
		err := tc.batches.IncrementCounters(tc.ctx, uuid.New().String(), importbatch.Counters{Processed: 1})
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}
